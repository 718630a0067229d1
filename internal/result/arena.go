package result

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/mpyw/bceval/internal/bytecode"
)

var log = commonlog.GetLogger("bceval.result")

// =============================================================================
// Arena
//
// Results never point at each other directly; relations, members and aliases
// are IDs into the arena. Reset invalidates every outstanding ID by bumping
// the generation.
// =============================================================================

// Arena owns the results of one analysis run. It is safe for concurrent use.
type Arena struct {
	mu    sync.RWMutex
	gen   uint32
	nodes []*Node
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{gen: 1, nodes: []*Node{nil}}
}

// Len returns the number of live results.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nodes) - 1
}

// Reset drops every result. IDs issued before the reset become stale.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	for i := range a.nodes {
		a.nodes[i] = nil
	}
	a.nodes = a.nodes[:1]
}

func (a *Arena) alloc(n *Node) ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = append(a.nodes, n)
	return ID{index: uint32(len(a.nodes) - 1), gen: a.gen}
}

func (a *Arena) lookup(id ID) (*Node, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id.IsZero() || id.gen != a.gen || int(id.index) >= len(a.nodes) {
		return nil, Errorf(ErrBadEval, id, "stale or unknown result %s", id)
	}
	return a.nodes[id.index], nil
}

// Get returns a snapshot of the node.
func (a *Arena) Get(id ID) (Node, error) {
	n, err := a.lookup(id)
	if err != nil {
		return Node{}, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return *n, nil
}

// KindOf returns the variant of id, or zero for unknown ids.
func (a *Arena) KindOf(id ID) Kind {
	n, err := a.Get(id)
	if err != nil {
		return 0
	}
	return n.Kind
}

// =============================================================================
// Constructors
// =============================================================================

// NewConstant records a fully known value.
func (a *Arena) NewConstant(site Site, v any, relations ...ID) ID {
	return a.alloc(&Node{Kind: Constant, Site: site, Value: v, Relations: relations})
}

// NewResolved records a value substituted by the resolver named origin.
func (a *Arena) NewResolved(site Site, v any, origin string, relations ...ID) ID {
	return a.alloc(&Node{Kind: Constant, Site: site, Value: v, Origin: origin, Relations: relations})
}

// NewVariable records an untraceable slot.
func (a *Arena) NewVariable(site Site, v VarInfo) ID {
	return a.alloc(&Node{Kind: Variable, Site: site, Var: &v})
}

// NewDelay records a deferred computation.
func (a *Arena) NewDelay(site Site, in *bytecode.Instruction, relations []ID, fn Pending) ID {
	return a.alloc(&Node{Kind: Delay, Site: site, Instr: in, Relations: relations, pending: fn})
}

// NewInvoke records a deferred call expression.
func (a *Arena) NewInvoke(site Site, in *bytecode.Instruction, call CallInfo, fn Pending) ID {
	var rel []ID
	if !call.Receiver.IsZero() {
		rel = append(rel, call.Receiver)
	}
	rel = append(rel, call.Args...)
	return a.alloc(&Node{Kind: DelayInvoke, Site: site, Instr: in, Call: &call, Relations: rel, pending: fn})
}

// NewDuplicate records a stack alias of id.
func (a *Arena) NewDuplicate(site Site, alias ID) ID {
	return a.alloc(&Node{Kind: Duplicate, Site: site, Alias: alias})
}

// NewIllegal records a terminal failure.
func (a *Arena) NewIllegal(site Site, status Status, source ID, cause error) ID {
	return a.alloc(&Node{Kind: Illegal, Site: site, Status: status, Source: source, Cause: cause})
}

// NewStub records a placeholder standing in for variable.
func (a *Arena) NewStub(site Site, variable ID) ID {
	return a.alloc(&Node{Kind: Stub, Site: site, Source: variable})
}

// NewMultiple records a union. Nested unions are flattened, duplicates are
// aliased away and repeated members dropped. tags may be nil or parallel to
// members. A union of one member is that member.
func (a *Arena) NewMultiple(site Site, members []ID, tags []Choices) (ID, error) {
	type entry struct {
		id   ID
		tags Choices
	}
	var flat []entry
	seen := make(map[string]bool)
	var walk func(id ID, c Choices, depth int) error
	walk = func(id ID, c Choices, depth int) error {
		if depth > 64 {
			return Errorf(ErrLoopedEvaluation, id, "union nests itself")
		}
		n, err := a.Get(id)
		if err != nil {
			return err
		}
		switch n.Kind {
		case Duplicate:
			return walk(n.Alias, c, depth+1)
		case Multiple:
			for i, m := range n.Members {
				if err := walk(m, c.Union(n.Tags[i]), depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		key := id.String()
		if n.Kind == Constant {
			if k, ok := valueKey(n.Value); ok {
				key = k
			}
		}
		key += "|" + c.Key()
		if !seen[key] {
			seen[key] = true
			flat = append(flat, entry{id, c})
		}
		return nil
	}
	for i, m := range members {
		var c Choices
		if i < len(tags) {
			c = tags[i]
		}
		if err := walk(m, c, 0); err != nil {
			return None, err
		}
	}

	switch len(flat) {
	case 0:
		return None, Errorf(ErrBadEval, None, "empty union")
	case 1:
		return flat[0].id, nil
	}
	n := &Node{Kind: Multiple, Site: site}
	for _, e := range flat {
		n.Members = append(n.Members, e.id)
		n.Tags = append(n.Tags, e.tags)
	}
	return a.alloc(n), nil
}

// valueKey returns a dedup key for comparable constant values.
func valueKey(v any) (string, bool) {
	if v == nil {
		return "v:nil", true
	}
	t := reflect.TypeOf(v)
	if !t.Comparable() || t.Kind() == reflect.Pointer {
		return "", false
	}
	return fmt.Sprintf("v:%T:%#v", v, v), true
}

// =============================================================================
// Forcing
// =============================================================================

// Force runs the pending computation of a Delay or DelayInvoke, following
// chains of deferred results and duplicate aliases, and returns the first
// non-deferred result. Successful outcomes are memoized unless the
// computation refused a call because of a frame already on the forcer's
// stack. Failures are never memoized.
//
// Re-entering a node the same forcer is already forcing, or a node resolving
// to itself, is ErrLoopedEvaluation.
func (a *Arena) Force(f *Forcer, id ID) (ID, error) {
	var chain map[ID]bool
	for {
		n, err := a.lookup(id)
		if err != nil {
			return id, err
		}
		a.mu.RLock()
		kind, done, forced, alias, fn := n.Kind, n.done, n.forced, n.Alias, n.pending
		a.mu.RUnlock()

		switch kind {
		case Duplicate:
			id = alias
			continue
		case Delay, DelayInvoke:
		default:
			return id, nil
		}

		if chain == nil {
			chain = make(map[ID]bool)
		}
		if chain[id] {
			log.Errorf("result %s resolves through itself", id)
			return id, Errorf(ErrLoopedEvaluation, id, "%s resolves through itself", id)
		}
		chain[id] = true

		if done {
			id = forced
			continue
		}
		if f.forcing[id] {
			log.Errorf("result %s re-entered while forcing", id)
			return id, Errorf(ErrLoopedEvaluation, id, "%s re-entered while forcing", id)
		}

		f.forcing[id] = true
		truncated := f.Watch()
		r, err := fn(f)
		cut := truncated()
		delete(f.forcing, id)
		if err != nil {
			return id, err
		}
		if r == id {
			log.Errorf("result %s resolved to itself", id)
			return id, Errorf(ErrLoopedEvaluation, id, "%s resolved to itself", id)
		}

		if cut {
			id = r
			continue
		}
		a.mu.Lock()
		if !n.done {
			n.done, n.forced = true, r
		} else {
			r = n.forced
		}
		a.mu.Unlock()
		id = r
	}
}

// IsResolved reports whether id is fully known: constants are, variables,
// illegal results and stubs are not, deferred results are once forced to a
// resolved result, and unions are when all members are.
func (a *Arena) IsResolved(id ID) bool {
	return a.isResolved(id, 0)
}

func (a *Arena) isResolved(id ID, depth int) bool {
	if depth > 256 {
		return false
	}
	n, err := a.Get(id)
	if err != nil {
		return false
	}
	switch n.Kind {
	case Constant:
		return true
	case Delay, DelayInvoke:
		return n.done && a.isResolved(n.forced, depth+1)
	case Multiple:
		for _, m := range n.Members {
			if !a.isResolved(m, depth+1) {
				return false
			}
		}
		return true
	case Duplicate:
		return a.isResolved(n.Alias, depth+1)
	}
	return false
}

// Describe renders a one-line summary of id.
func (a *Arena) Describe(id ID) string {
	n, err := a.Get(id)
	if err != nil {
		return id.String() + " <stale>"
	}
	switch n.Kind {
	case Constant:
		return fmt.Sprintf("%s constant %s", id, bytecode.FormatConst(n.Value))
	case Variable:
		return fmt.Sprintf("%s variable %s %s", id, n.Var.Kind, n.Var.Name)
	case DelayInvoke:
		return fmt.Sprintf("%s invoke %s", id, n.Call.Ref)
	case Delay:
		if n.Instr != nil {
			return fmt.Sprintf("%s delay %s", id, n.Instr.Op)
		}
		return fmt.Sprintf("%s delay", id)
	case Multiple:
		return fmt.Sprintf("%s multiple %v", id, n.Members)
	case Duplicate:
		return fmt.Sprintf("%s duplicate of %s", id, n.Alias)
	case Illegal:
		return fmt.Sprintf("%s illegal (%s)", id, n.Status)
	case Stub:
		return fmt.Sprintf("%s stub for %s", id, n.Source)
	}
	return id.String()
}
