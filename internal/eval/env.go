// Package eval symbolically evaluates method bodies.
//
// Evaluation is demand driven: asking for the value an instruction pushes
// walks the branch tree backwards to the instructions producing its
// operands and records the computation as deferred results in the arena.
// Nothing runs until a caller expands a result into concrete values.
//
// The package contains:
//   - Env: program-wide state shared by all evaluation contexts
//   - Context: one method body under one set of fixed arguments
//   - Handlers: per-instruction strategies dispatched by Context.Evaluate
//   - expand: reduction of results to concrete values, with variable binding
//     and resolver fallback
package eval

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"

	"github.com/mpyw/bceval/internal/branch"
	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/cache"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/resolver"
	"github.com/mpyw/bceval/internal/result"
)

var log = commonlog.GetLogger("bceval.eval")

// Limits applied when Env fields are left zero.
const (
	DefaultMaxCallDepth = 16
	DefaultMaxVariants  = 256
)

// Binding is one way a caller supplies the parameters of a method: the
// argument expressions of a single call site, keyed by the callee's local
// slot.
type Binding struct {
	Args   map[int]result.ID
	Source string // caller context key
	Pos    bytecode.Pos
}

// Binder finds the call sites binding the parameters of a context.
type Binder interface {
	Bindings(c *Context) ([]Binding, error)
}

// Env is the program-wide evaluation state. Configure the exported fields
// before the first call to Context; they must not change afterwards.
type Env struct {
	Program  *bytecode.Program
	Arena    *result.Arena
	Cache    *cache.Cache
	Host     *host.Registry
	Live     host.Live
	Resolver resolver.Resolver
	Binder   Binder
	Handlers []Handler

	MaxCallDepth int
	MaxVariants  int

	group    singleflight.Group
	contexts sync.Map // context key -> *Context
	trees    sync.Map // method key -> *branch.Tree
}

// NewEnv returns an environment over p with the builtin host library, a
// snapshot of the declared component instances and the default handlers.
func NewEnv(p *bytecode.Program, arena *result.Arena) *Env {
	return &Env{
		Program:      p,
		Arena:        arena,
		Cache:        cache.New(arena, 0),
		Host:         host.Builtins(),
		Live:         host.NewSnapshot(p.Components()),
		Handlers:     DefaultHandlers(),
		MaxCallDepth: DefaultMaxCallDepth,
		MaxVariants:  DefaultMaxVariants,
	}
}

func (e *Env) maxVariants() int {
	if e.MaxVariants <= 0 {
		return DefaultMaxVariants
	}
	return e.MaxVariants
}

func (e *Env) maxCallDepth() int {
	if e.MaxCallDepth <= 0 {
		return DefaultMaxCallDepth
	}
	return e.MaxCallDepth
}

// Reset forgets every context and tree. Call it together with Arena.Reset.
func (e *Env) Reset() {
	e.contexts.Range(func(k, _ any) bool {
		e.contexts.Delete(k)
		return true
	})
	e.trees.Range(func(k, _ any) bool {
		e.trees.Delete(k)
		return true
	})
	if e.Cache != nil {
		e.Cache.Reset()
	}
}

// =============================================================================
// Context factory
// =============================================================================

// ContextKey renders the identity of a context: the method, the component
// it runs for and its fixed arguments.
func ContextKey(m *bytecode.Method, comp *bytecode.Component, args map[int]result.ID) string {
	var b strings.Builder
	b.WriteString(m.Key())
	b.WriteByte('|')
	if comp != nil {
		b.WriteString(comp.Name)
	}
	b.WriteByte('|')
	slots := make([]int, 0, len(args))
	for s := range args {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	for i, s := range slots {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d=%s", s, args[s])
	}
	return b.String()
}

// Context returns the evaluation context of m for comp with the given fixed
// arguments. Contexts are shared: equal inputs return the same context.
func (e *Env) Context(m *bytecode.Method, comp *bytecode.Component, args map[int]result.ID) (*Context, error) {
	key := ContextKey(m, comp, args)
	if c, ok := e.contexts.Load(key); ok {
		return c.(*Context), nil
	}
	v, err, _ := e.group.Do("ctx:"+key, func() (any, error) {
		if c, ok := e.contexts.Load(key); ok {
			return c, nil
		}
		if m.IsAbstract() {
			return nil, result.Errorf(result.ErrMemberNotFound, result.None, "%s has no body", m)
		}
		tree, err := e.tree(m)
		if err != nil {
			return nil, err
		}
		fixed := make(map[int]result.ID, len(args))
		for s, id := range args {
			fixed[s] = id
		}
		c := &Context{
			env:       e,
			key:       key,
			Method:    m,
			Component: comp,
			Tree:      tree,
			args:      fixed,
			values:    make(map[bytecode.Pos]result.ID),
			operands:  make(map[[2]int]result.ID),
		}
		e.contexts.Store(key, c)
		log.Debugf("new context %s", key)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}

// ComponentContext returns the argument-free context of m, running for the
// component whose type declares m, if any.
func (e *Env) ComponentContext(m *bytecode.Method) (*Context, error) {
	comp, _ := e.Program.ComponentOfType(m.Owner)
	return e.Context(m, comp, nil)
}

// Lookup returns the context with the given key, if it has been created.
func (e *Env) Lookup(key string) (*Context, bool) {
	c, ok := e.contexts.Load(key)
	if !ok {
		return nil, false
	}
	return c.(*Context), true
}

func (e *Env) tree(m *bytecode.Method) (*branch.Tree, error) {
	key := m.Key()
	if t, ok := e.trees.Load(key); ok {
		return t.(*branch.Tree), nil
	}
	v, err, _ := e.group.Do("tree:"+key, func() (any, error) {
		if t, ok := e.trees.Load(key); ok {
			return t, nil
		}
		t := branch.Build(m.Code, m.Handlers)
		e.trees.Store(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*branch.Tree), nil
}

// segCompat reports whether two segments of a context lie on one path.
// Unknown scopes never conflict.
func (e *Env) segCompat(scope string, a, b int) bool {
	c, ok := e.Lookup(scope)
	if !ok {
		return true
	}
	sa, okA := c.Tree.Segment(a)
	sb, okB := c.Tree.Segment(b)
	if !okA || !okB {
		return true
	}
	return c.Tree.Compatible(sa, sb)
}

// NewForcer returns a forcer whose call stack starts at c.
func (e *Env) NewForcer(c *Context) *result.Forcer {
	return result.NewForcer(c.Key())
}
