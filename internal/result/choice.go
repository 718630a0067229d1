package result

import (
	"fmt"
	"sort"
	"strings"
)

// ChoiceKind tells what a Choice selected.
type ChoiceKind uint8

const (
	// ChoiceSegment tags a value with the branch segment that produced it.
	ChoiceSegment ChoiceKind = iota
	// ChoiceBinding tags a value with the argument binding it came from.
	ChoiceBinding
)

// Choice records one control-flow or binding decision a value depends on.
// Scope is the evaluation context the decision was taken in.
type Choice struct {
	Scope string
	Kind  ChoiceKind
	Index int
}

func (c Choice) String() string {
	if c.Kind == ChoiceBinding {
		return fmt.Sprintf("%s@b%d", c.Scope, c.Index)
	}
	return fmt.Sprintf("%s@s%d", c.Scope, c.Index)
}

// Choices is a sorted, duplicate free set of decisions.
type Choices []Choice

// SegmentCompat reports whether segments a and b of the context scope can
// execute in one pass.
type SegmentCompat func(scope string, a, b int) bool

func less(a, b Choice) bool {
	if a.Scope != b.Scope {
		return a.Scope < b.Scope
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Index < b.Index
}

// Of builds a Choices set.
func Of(cs ...Choice) Choices {
	out := append(Choices(nil), cs...)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	n := 0
	for i, c := range out {
		if i > 0 && c == out[n-1] {
			continue
		}
		out[n] = c
		n++
	}
	return out[:n]
}

// Union returns the decisions of both sets.
func (c Choices) Union(o Choices) Choices {
	if len(o) == 0 {
		return c
	}
	if len(c) == 0 {
		return o
	}
	return Of(append(append(Choices(nil), c...), o...)...)
}

// Compatible reports whether every pair of decisions taken in the same scope
// agree: binding decisions must pick the same binding, segment decisions must
// lie on one path. Decisions of different scopes never conflict.
func (c Choices) Compatible(o Choices, seg SegmentCompat) bool {
	for _, a := range c {
		for _, b := range o {
			if a.Scope != b.Scope || a.Kind != b.Kind {
				continue
			}
			switch a.Kind {
			case ChoiceBinding:
				if a.Index != b.Index {
					return false
				}
			case ChoiceSegment:
				if a.Index != b.Index && (seg == nil || !seg(a.Scope, a.Index, b.Index)) {
					return false
				}
			}
		}
	}
	return true
}

// Key renders the set as a stable map key.
func (c Choices) Key() string {
	parts := make([]string, len(c))
	for i, x := range c {
		parts[i] = x.String()
	}
	return strings.Join(parts, ",")
}
