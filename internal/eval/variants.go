package eval

import (
	"strings"

	"github.com/mpyw/bceval/internal/result"
)

// Interleave returns the index rows used to combine operands that have
// sizes[i] untagged alternatives each. Row d picks alternative d of every
// operand, clamping at the operand's last alternative, so each alternative
// appears at least once without forming the full product. Repeated rows are
// left to the caller.
//
//	sizes [2 3]  ->  [0 0] [1 1] [1 2] [1 2] [1 2] [1 2]
func Interleave(sizes []int) [][]int {
	if len(sizes) == 0 {
		return [][]int{{}}
	}
	rows := 1
	for _, s := range sizes {
		if s <= 0 {
			return nil
		}
		rows *= s
	}
	out := make([][]int, rows)
	for d := 1; d <= rows; d++ {
		row := make([]int, len(sizes))
		for i, s := range sizes {
			if d <= s {
				row[i] = d - 1
			} else {
				row[i] = s%d - 1
			}
		}
		out[d-1] = row
	}
	return out
}

// row is one choice of a candidate per operand.
type row struct {
	cands []cand
	tags  result.Choices
}

func (r row) key() string {
	var b strings.Builder
	for _, c := range r.cands {
		b.WriteString(c.id.String())
		b.WriteByte(',')
	}
	return b.String()
}

// rows combines operand alternatives into argument rows.
//
// Alternatives tagged with branch or binding decisions are combined as a
// product filtered down to the rows whose decisions agree, capped at
// MaxVariants. Untagged alternatives are interleaved.
func (e *Env) rows(lists [][]cand) []row {
	for _, l := range lists {
		if len(l) == 0 {
			return nil
		}
	}

	tagged := false
	single := true
	for _, l := range lists {
		if len(l) > 1 {
			single = false
		}
		for _, c := range l {
			if len(c.tags) > 0 {
				tagged = true
			}
		}
	}

	if single || !tagged {
		sizes := make([]int, len(lists))
		for i, l := range lists {
			sizes[i] = len(l)
		}
		var out []row
		seen := make(map[string]bool)
		for _, idx := range Interleave(sizes) {
			r := row{cands: make([]cand, len(lists))}
			for i, j := range idx {
				r.cands[i] = lists[i][j]
				r.tags = r.tags.Union(lists[i][j].tags)
			}
			if k := r.key(); !seen[k] {
				seen[k] = true
				out = append(out, r)
			}
		}
		return out
	}

	limit := e.maxVariants()
	var out []row
	cur := make([]cand, len(lists))
	var rec func(i int, acc result.Choices) bool
	rec = func(i int, acc result.Choices) bool {
		if len(out) >= limit {
			return false
		}
		if i == len(lists) {
			out = append(out, row{cands: append([]cand(nil), cur...), tags: acc})
			return true
		}
		for _, c := range lists[i] {
			if !acc.Compatible(c.tags, e.segCompat) {
				continue
			}
			cur[i] = c
			if !rec(i+1, acc.Union(c.tags)) {
				return false
			}
		}
		return true
	}
	if !rec(0, nil) {
		log.Warningf("argument combinations capped at %d", limit)
	}
	return out
}
