package debug

import (
	"github.com/mpyw/bceval/internal/result"
)

// DefaultMaxDepth bounds Collect when no depth is given.
const DefaultMaxDepth = 32

// Info is the provenance of one result: what it is, where it was produced
// and the results it was derived from.
type Info struct {
	ID       result.ID
	Kind     result.Kind
	Summary  string
	Site     result.Site
	Origin   string // resolver that substituted the value, if any
	Cause    string // failure of an illegal result
	Children []*Info

	// Seen marks a result already shown higher up; its children are omitted.
	Seen bool
	// Truncated marks a result below the depth bound.
	Truncated bool
}

// Collect walks the provenance of id. Results shared by several parents are
// expanded under the first one only.
func Collect(a *result.Arena, id result.ID, maxDepth int) *Info {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	seen := make(map[result.ID]bool)
	var walk func(id result.ID, depth int) *Info
	walk = func(id result.ID, depth int) *Info {
		info := &Info{ID: id, Summary: a.Describe(id)}
		n, err := a.Get(id)
		if err != nil {
			info.Cause = err.Error()
			return info
		}
		info.Kind, info.Site, info.Origin = n.Kind, n.Site, n.Origin
		if n.Cause != nil {
			info.Cause = n.Cause.Error()
		}
		children := derivedFrom(n)
		if len(children) == 0 {
			return info
		}
		if seen[id] {
			info.Seen = true
			return info
		}
		seen[id] = true
		if depth >= maxDepth {
			info.Truncated = true
			return info
		}
		for _, c := range children {
			info.Children = append(info.Children, walk(c, depth+1))
		}
		return info
	}
	return walk(id, 0)
}

// derivedFrom lists the results a node was derived from, in display order.
func derivedFrom(n result.Node) []result.ID {
	var out []result.ID
	add := func(ids ...result.ID) {
		for _, id := range ids {
			if !id.IsZero() {
				out = append(out, id)
			}
		}
	}
	switch n.Kind {
	case result.Duplicate:
		add(n.Alias)
	case result.Multiple:
		add(n.Members...)
	case result.Stub, result.Illegal:
		add(n.Source)
	case result.DelayInvoke:
		if f, ok := n.Forced(); ok {
			add(f)
			break
		}
		add(n.Call.Receiver)
		add(n.Call.Args...)
	case result.Delay:
		if f, ok := n.Forced(); ok {
			add(f)
			break
		}
		add(n.Relations...)
	default:
		add(n.Relations...)
	}
	return out
}
