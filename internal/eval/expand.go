package eval

import (
	"fmt"
	"reflect"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/result"
)

const maxExpandDepth = 512

// cand is one concrete alternative of a result together with the decisions
// selecting it.
type cand struct {
	id   result.ID
	tags result.Choices
}

// expand reduces id to the constants it can take. Alternatives that fail
// are dropped and reported through err; err alone is returned when nothing
// survives. With resolve set, failed leaves are handed to the resolver.
func (e *Env) expand(f *result.Forcer, id result.ID, resolve bool) ([]cand, error) {
	return e.expandDepth(f, id, resolve, 0)
}

func (e *Env) expandDepth(f *result.Forcer, id result.ID, resolve bool, depth int) ([]cand, error) {
	if depth > maxExpandDepth {
		return nil, result.Errorf(result.ErrLoopedEvaluation, id, "expansion of %s does not terminate", id)
	}
	n, err := e.Arena.Get(id)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case result.Constant:
		return []cand{{id: id}}, nil

	case result.Duplicate:
		return e.expandDepth(f, n.Alias, resolve, depth+1)

	case result.Multiple:
		var out []cand
		var errs []error
		for i, m := range n.Members {
			sub, err := e.expandDepth(f, m, resolve, depth+1)
			if result.IsFatal(err) {
				return nil, err
			}
			if err != nil {
				errs = append(errs, err)
			}
			for _, s := range sub {
				out = append(out, cand{id: s.id, tags: s.tags.Union(n.Tags[i])})
			}
		}
		return out, alternatives(id, errs)

	case result.Delay, result.DelayInvoke:
		r, ferr := e.Arena.Force(f, id)
		if ferr != nil {
			err = ferr
			break
		}
		// A computation ending in an Illegal is resolved as itself, so the
		// resolver sees the expression rather than the bare failure.
		if rn, gerr := e.Arena.Get(r); gerr == nil && rn.Kind == result.Illegal {
			err = illegalError(r, rn)
			break
		}
		return e.expandDepth(f, r, resolve, depth+1)

	case result.Variable:
		out, verr := e.expandVariable(f, id, n, resolve, depth)
		if verr == nil || len(out) > 0 || result.IsFatal(verr) {
			return out, verr
		}
		err = verr

	case result.Stub:
		err = result.Errorf(result.ErrUnresolvedVariable, id, "placeholder for %s", e.Arena.Describe(n.Source))

	case result.Illegal:
		err = illegalError(id, n)

	default:
		err = result.Errorf(result.ErrBadEval, id, "unknown result kind %s", n.Kind)
	}
	return e.recover(f, id, err, resolve, depth)
}

// recover hands a failed result to the resolver.
func (e *Env) recover(f *result.Forcer, id result.ID, cause error, resolve bool, depth int) ([]cand, error) {
	if !resolve || e.Resolver == nil || result.IsFatal(cause) {
		return nil, cause
	}
	r, err := e.Resolver.Resolve(&scope{env: e, f: f}, id, cause)
	if err != nil {
		return nil, err
	}
	if r.IsZero() || r == id {
		return nil, cause
	}
	return e.expandDepth(f, r, false, depth+1)
}

func (e *Env) expandVariable(f *result.Forcer, id result.ID, n result.Node, resolve bool, depth int) ([]cand, error) {
	v := n.Var
	c, ok := e.Lookup(n.Site.Scope)
	if v.Kind != result.VarParam || !ok {
		return nil, result.Errorf(result.ErrUnresolvedVariable, id, "%s %s of %s", v.Kind, v.Name, v.Method)
	}
	if a, ok := c.Arg(v.Slot); ok {
		return e.expandDepth(f, a, resolve, depth+1)
	}

	if !f.EnterVar(id) {
		return nil, result.Errorf(result.ErrUnresolvedVariable, id, "%s of %s depends on itself", v.Name, v.Method)
	}
	defer f.LeaveVar(id)

	bs, err := c.Bindings()
	if err != nil {
		return nil, err
	}
	var out []cand
	var errs []error
	for i, b := range bs {
		a, ok := b.Args[v.Slot]
		if !ok {
			continue
		}
		sub, err := e.expandDepth(f, a, resolve, depth+1)
		if result.IsFatal(err) {
			return nil, err
		}
		if err != nil {
			errs = append(errs, err)
		}
		tag := result.Of(result.Choice{Scope: c.key, Kind: result.ChoiceBinding, Index: i})
		for _, s := range sub {
			out = append(out, cand{id: s.id, tags: s.tags.Union(tag)})
		}
	}
	if len(out) == 0 && len(errs) == 0 {
		return nil, result.Errorf(result.ErrNoParameterVariants, id, "no call site binds %s of %s", v.Name, v.Method)
	}
	return out, alternatives(id, errs)
}

// alternatives folds the failures of dropped alternatives into one error.
func alternatives(id result.ID, errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	kind := result.KindOf(errs[0])
	if kind == nil {
		kind = result.ErrUnresolvedVariable
	}
	return result.Aggregate(kind, id, fmt.Sprintf("%d alternatives failed", len(errs)), errs)
}

func illegalError(id result.ID, n result.Node) error {
	kind := result.ErrIllegalInvocation
	switch n.Status {
	case result.StatusNotFound:
		kind = result.ErrMemberNotFound
	case result.StatusNotAccessible:
		kind = result.ErrNotAccessible
	}
	if n.Cause != nil {
		return result.Aggregate(kind, id, n.Status.String(), []error{n.Cause})
	}
	return result.Errorf(kind, id, "%s", n.Status)
}

// value returns the value of a constant result.
func (e *Env) value(id result.ID) (any, error) {
	n, err := e.Arena.Get(id)
	if err != nil {
		return nil, err
	}
	if n.Kind != result.Constant {
		return nil, result.Errorf(result.ErrBadEval, id, "%s is not a constant", e.Arena.Describe(id))
	}
	return n.Value, nil
}

// =============================================================================
// Concrete values
// =============================================================================

// ConcreteValues expands id into its distinct values, consulting the
// resolver for unresolved leaves. The error reports dropped alternatives;
// values may be non-empty alongside it.
func (e *Env) ConcreteValues(f *result.Forcer, id result.ID) ([]any, error) {
	cands, err := e.expand(f, id, true)
	var out []any
	seen := make(map[any]bool)
	for _, cd := range cands {
		v, verr := e.value(cd.id)
		if verr != nil {
			return out, verr
		}
		if v != nil && reflect.TypeOf(v).Comparable() {
			if seen[v] {
				continue
			}
			seen[v] = true
		} else if v == nil {
			if seen[nil] {
				continue
			}
			seen[nil] = true
		}
		out = append(out, v)
	}
	return out, err
}

// Candidates expands id into constant results without consulting the
// resolver.
func (e *Env) Candidates(f *result.Forcer, id result.ID) ([]result.ID, error) {
	cands, err := e.expand(f, id, false)
	return ids(cands), err
}

func ids(cands []cand) []result.ID {
	out := make([]result.ID, len(cands))
	for i, cd := range cands {
		out[i] = cd.id
	}
	return out
}

// scope exposes an expansion in progress to the resolver.
type scope struct {
	env *Env
	f   *result.Forcer
}

func (s *scope) Arena() *result.Arena {
	return s.env.Arena
}

func (s *scope) Program() *bytecode.Program {
	return s.env.Program
}

func (s *scope) Expand(id result.ID) ([]result.ID, error) {
	cands, err := s.env.expand(s.f, id, true)
	if len(cands) == 0 {
		return nil, err
	}
	return ids(cands), nil
}
