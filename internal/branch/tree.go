// Package branch reconstructs a forward control-flow tree from a method's
// instruction stream.
package branch

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/tools/container/intsets"

	"github.com/mpyw/bceval/internal/bytecode"
)

// =============================================================================
// Segment
//
// A Segment is a straight-line run of instructions. Forward gotos are followed
// inside the same segment; conditional branches and switches close the segment
// and fork one child per distinct successor.
//
// Example:
//
//	0: aload_1
//	1: ifnull 4        ─┐ segment #0 [0 1]
//	2: ldc "Q1"         │
//	3: goto 5          ─┼─ segment #1 [2 3]    (child of #0)
//	4: ldc "Q2"        ─┼─ segment #2 [4]      (child of #0)
//	5: astore_2        ─┘ segment #3 [5 ...]  (split out of #1, merged from #2)
// =============================================================================

// Segment is one node of the branch tree.
type Segment struct {
	ID       int
	Start    bytecode.Pos
	Parent   *Segment
	Children []*Segment

	// Loop is set when the segment ends with a back-edge.
	Loop bool
	// Handler is set for the roots built from exception handler entries.
	Handler bool

	order []bytecode.Pos
	set   intsets.Sparse
	in    []*Segment
	out   []*Segment
}

// Positions returns the instruction positions in walk order.
func (s *Segment) Positions() []bytecode.Pos {
	return s.order
}

// Contains reports whether pos belongs to the segment.
func (s *Segment) Contains(pos bytecode.Pos) bool {
	return !s.set.IsEmpty() && s.set.Has(int(pos))
}

// Last returns the final position of the segment.
func (s *Segment) Last() bytecode.Pos {
	if len(s.order) == 0 {
		return bytecode.NoPos
	}
	return s.order[len(s.order)-1]
}

// Sources returns the segments that flow into s: its parent and any segment
// that merges into it.
func (s *Segment) Sources() []*Segment {
	return s.in
}

// Successors returns the segments s flows into.
func (s *Segment) Successors() []*Segment {
	return s.out
}

func (s *Segment) String() string {
	return fmt.Sprintf("#%d", s.ID)
}

func link(from, to *Segment) {
	for _, x := range to.in {
		if x == from {
			return
		}
	}
	to.in = append(to.in, from)
	from.out = append(from.out, to)
}

// =============================================================================
// Tree
// =============================================================================

// Tree is the branch tree of one method. It is immutable after Build and safe
// for concurrent queries.
type Tree struct {
	code     *bytecode.Code
	root     *Segment
	roots    []*Segment
	segments []*Segment
	owner    map[bytecode.Pos]*Segment
	handlers intsets.Sparse

	mu      sync.Mutex
	reaches map[[2]int]bool
}

// Build constructs the tree rooted at the first instruction of code. Handler
// entries that the main walk never reaches become additional roots.
func Build(code *bytecode.Code, handlers []bytecode.Handler) *Tree {
	t := &Tree{
		code:    code,
		owner:   make(map[bytecode.Pos]*Segment),
		reaches: make(map[[2]int]bool),
	}
	if code.Len() == 0 {
		return t
	}
	t.root = t.enter(nil, code.First())
	t.roots = append(t.roots, t.root)

	entries := make([]bytecode.Pos, 0, len(handlers))
	for _, h := range handlers {
		entries = append(entries, h.Entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i] < entries[j] })
	for _, e := range entries {
		if t.handlers.Has(int(e)) {
			continue
		}
		if _, ok := code.At(e); !ok {
			continue
		}
		t.handlers.Insert(int(e))
		var seg *Segment
		if _, owned := t.owner[e]; owned {
			seg = t.splitAt(e)
		} else {
			seg = t.enter(nil, e)
			t.roots = append(t.roots, seg)
		}
		seg.Handler = true
	}
	return t
}

func (t *Tree) newSegment(parent *Segment, start bytecode.Pos) *Segment {
	s := &Segment{ID: len(t.segments), Start: start, Parent: parent}
	t.segments = append(t.segments, s)
	if parent != nil {
		parent.Children = append(parent.Children, s)
		link(parent, s)
	}
	return s
}

// enter starts a child of from at pos, or links from to the segment already
// owning pos.
func (t *Tree) enter(from *Segment, pos bytecode.Pos) *Segment {
	if _, owned := t.owner[pos]; owned {
		target := t.splitAt(pos)
		if from != nil {
			link(from, target)
		}
		return target
	}
	s := t.newSegment(from, pos)
	t.fill(s, pos)
	return s
}

func (t *Tree) add(s *Segment, pos bytecode.Pos) {
	s.order = append(s.order, pos)
	s.set.Insert(int(pos))
	t.owner[pos] = s
}

func (t *Tree) fill(s *Segment, pos bytecode.Pos) {
	for {
		if _, owned := t.owner[pos]; owned {
			// Fell into code already walked: merge.
			link(s, t.splitAt(pos))
			return
		}
		t.add(s, pos)
		in, _ := t.code.At(pos)

		switch in.Kind() {
		case bytecode.KindGoto:
			if in.Target <= pos {
				s.Loop = true
				return
			}
			pos = in.Target
			continue

		case bytecode.KindIf:
			if next, ok := t.code.Next(pos); ok {
				t.enter(s, next)
			}
			if in.Target <= pos {
				s.Loop = true
			} else {
				t.enter(s, in.Target)
			}
			return

		case bytecode.KindSwitch:
			for _, target := range in.Targets() {
				if target <= pos {
					s.Loop = true
					continue
				}
				t.enter(s, target)
			}
			return

		case bytecode.KindReturn, bytecode.KindThrow:
			return
		}

		next, ok := t.code.Next(pos)
		if !ok {
			return
		}
		pos = next
	}
}

// splitAt makes pos the start of a segment, moving the tail of its current
// owner into a new child.
func (t *Tree) splitAt(pos bytecode.Pos) *Segment {
	s := t.owner[pos]
	if s.Start == pos {
		return s
	}
	idx := 0
	for i, p := range s.order {
		if p == pos {
			idx = i
			break
		}
	}

	tail := &Segment{ID: len(t.segments), Start: pos, Parent: s, Loop: s.Loop}
	t.segments = append(t.segments, tail)
	tail.order = append([]bytecode.Pos(nil), s.order[idx:]...)
	for _, p := range tail.order {
		s.set.Remove(int(p))
		tail.set.Insert(int(p))
		t.owner[p] = tail
	}
	s.order = s.order[:idx:idx]
	s.Loop = false

	tail.Children, s.Children = s.Children, []*Segment{tail}
	for _, c := range tail.Children {
		c.Parent = tail
	}
	tail.out, s.out = s.out, nil
	for _, succ := range tail.out {
		for i, x := range succ.in {
			if x == s {
				succ.in[i] = tail
			}
		}
	}
	link(s, tail)
	return tail
}

// =============================================================================
// Queries
// =============================================================================

// Code returns the instruction stream the tree was built from.
func (t *Tree) Code() *bytecode.Code {
	return t.code
}

// Root returns the segment holding the first instruction.
func (t *Tree) Root() *Segment {
	return t.root
}

// Roots returns the method root followed by the handler roots.
func (t *Tree) Roots() []*Segment {
	return t.roots
}

// Segments returns all segments ordered by ID.
func (t *Tree) Segments() []*Segment {
	return t.segments
}

// Segment returns the segment with the given ID.
func (t *Tree) Segment(id int) (*Segment, bool) {
	if id < 0 || id >= len(t.segments) {
		return nil, false
	}
	return t.segments[id], true
}

// SegmentOf returns the segment owning pos. Positions the walk never reaches
// (dead code) have no segment.
func (t *Tree) SegmentOf(pos bytecode.Pos) (*Segment, bool) {
	s, ok := t.owner[pos]
	return s, ok
}

// IsHandlerEntry reports whether pos is the entry of an exception handler.
func (t *Tree) IsHandlerEntry(pos bytecode.Pos) bool {
	return !t.handlers.IsEmpty() && t.handlers.Has(int(pos))
}

// Preds returns the flow predecessors of the instruction at pos.
func (t *Tree) Preds(pos bytecode.Pos) []bytecode.Pos {
	s, ok := t.owner[pos]
	if !ok {
		return nil
	}
	if pos != s.Start {
		for i, p := range s.order {
			if p == pos {
				return []bytecode.Pos{s.order[i-1]}
			}
		}
		return nil
	}
	preds := make([]bytecode.Pos, 0, len(s.in))
	for _, src := range s.in {
		preds = append(preds, src.Last())
	}
	return preds
}

// Before returns the positions of s that precede pos, nearest first. When pos
// is not in s, all positions of s are returned, last first.
func (t *Tree) Before(s *Segment, pos bytecode.Pos) []bytecode.Pos {
	end := len(s.order)
	if s.Contains(pos) {
		for i, p := range s.order {
			if p == pos {
				end = i
				break
			}
		}
	}
	out := make([]bytecode.Pos, 0, end)
	for i := end - 1; i >= 0; i-- {
		out = append(out, s.order[i])
	}
	return out
}

// Ancestors returns s and its parents up to the root.
func (t *Tree) Ancestors(s *Segment) []*Segment {
	var out []*Segment
	for ; s != nil; s = s.Parent {
		out = append(out, s)
	}
	return out
}

// Locate searches from a descendant outward for the segment holding pos:
// first the ancestors of from, then any segment that can reach from.
func (t *Tree) Locate(from *Segment, pos bytecode.Pos) (*Segment, bool) {
	for _, a := range t.Ancestors(from) {
		if a.Contains(pos) {
			return a, true
		}
	}
	if s, ok := t.owner[pos]; ok && t.Reaches(s, from) {
		return s, true
	}
	return nil, false
}

// JumpsInto returns the segments, from s upward through its ancestors, that
// contain a jump whose target lies in [lo, hi].
func (t *Tree) JumpsInto(s *Segment, lo, hi bytecode.Pos) []*Segment {
	var out []*Segment
	for _, a := range t.Ancestors(s) {
		for _, p := range a.order {
			in, _ := t.code.At(p)
			hit := false
			for _, target := range in.Targets() {
				if target >= lo && target <= hi {
					hit = true
				}
			}
			if hit {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Reaches reports whether control can flow from a to b. A segment reaches
// itself.
//
//	     #0
//	    /  \
//	  #1    #2
//	    \  /
//	     #3
//
//	Reaches(#0, #3) = true
//	Reaches(#1, #2) = false  (exclusive branches)
//	Reaches(#3, #0) = false  (back-edges are not part of the tree)
func (t *Tree) Reaches(a, b *Segment) bool {
	if a == nil || b == nil {
		return false
	}
	if a == b {
		return true
	}
	key := [2]int{a.ID, b.ID}
	t.mu.Lock()
	r, ok := t.reaches[key]
	t.mu.Unlock()
	if ok {
		return r
	}

	var visited intsets.Sparse
	visited.Insert(a.ID)
	queue := []*Segment{a}
	for len(queue) > 0 && !r {
		s := queue[0]
		queue = queue[1:]
		for _, succ := range s.out {
			if succ == b {
				r = true
				break
			}
			if visited.Insert(succ.ID) {
				queue = append(queue, succ)
			}
		}
	}

	t.mu.Lock()
	t.reaches[key] = r
	t.mu.Unlock()
	return r
}

// Compatible reports whether a and b can both execute in one pass through
// the method.
func (t *Tree) Compatible(a, b *Segment) bool {
	return t.Reaches(a, b) || t.Reaches(b, a)
}

func (t *Tree) String() string {
	var b strings.Builder
	for _, s := range t.segments {
		fmt.Fprintf(&b, "%s %v", s, s.order)
		if s.Handler {
			b.WriteString(" handler")
		}
		if s.Loop {
			b.WriteString(" loop")
		}
		if len(s.out) > 0 {
			b.WriteString(" ->")
			for _, succ := range s.out {
				b.WriteString(" " + succ.String())
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
