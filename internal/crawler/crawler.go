// Package crawler binds the parameters of a method to the arguments its
// callers pass.
//
// When a parameter cannot be resolved inside its own method, the crawler
// looks for the call instructions that target the method, in the class that
// declares it and in the classes of the components depending on it. Each
// matching call site becomes one binding: the caller's argument expressions,
// evaluated in the caller's own context. Callers with unresolved parameters
// are crawled in turn when their arguments are expanded.
package crawler

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/eval"
	"github.com/mpyw/bceval/internal/result"
	"github.com/mpyw/bceval/internal/typeutil"
)

var log = commonlog.GetLogger("bceval.crawler")

// Graph answers which components depend on a component.
type Graph interface {
	DependentsOf(name string) []*bytecode.Component
}

// CallPoint is a call instruction inside a method.
type CallPoint struct {
	Method *bytecode.Method
	Instr  *bytecode.Instruction
}

func (cp CallPoint) String() string {
	return fmt.Sprintf("%s@%d", cp.Method.Key(), cp.Instr.Pos)
}

// Crawler implements eval.Binder.
type Crawler struct {
	env     *eval.Env
	graph   Graph
	workers int

	group  singleflight.Group
	points sync.Map // class name -> []CallPoint
}

var _ eval.Binder = (*Crawler)(nil)

// New returns a crawler over the program of env. Non-positive workers means
// GOMAXPROCS.
func New(env *eval.Env, workers int) *Crawler {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Crawler{env: env, graph: env.Program, workers: workers}
}

// WithGraph replaces the dependency graph, which defaults to the program's
// own component declarations.
func (c *Crawler) WithGraph(g Graph) *Crawler {
	c.graph = g
	return c
}

// CallPointsOf returns the call instructions in the methods of class. The
// index of a class is built once.
func (c *Crawler) CallPointsOf(class string) ([]CallPoint, error) {
	if v, ok := c.points.Load(class); ok {
		return v.([]CallPoint), nil
	}
	v, err, _ := c.group.Do(class, func() (any, error) {
		if v, ok := c.points.Load(class); ok {
			return v, nil
		}
		cls, ok := c.env.Program.Class(class)
		if !ok {
			return nil, fmt.Errorf("class %s is not part of the program", class)
		}
		var out []CallPoint
		for _, m := range cls.Methods {
			if m.Code == nil {
				continue
			}
			for _, in := range m.Code.Instructions() {
				if in.Kind() == bytecode.KindInvoke && in.Member != nil {
					out = append(out, CallPoint{Method: m, Instr: in})
				}
			}
		}
		c.points.Store(class, out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]CallPoint), nil
}

// Scope returns the classes searched for callers of m: the declaring class
// and the types of the components depending on its component. Methods of
// classes that are not components are searched for in every class.
func (c *Crawler) Scope(m *bytecode.Method) []string {
	p := c.env.Program
	comp, ok := p.ComponentOfType(m.Owner)
	if !ok {
		classes := p.Classes()
		out := make([]string, len(classes))
		for i, cls := range classes {
			out[i] = cls.Name
		}
		return out
	}
	out := []string{m.Owner}
	seen := map[string]bool{m.Owner: true}
	for _, dep := range c.graph.DependentsOf(comp.Name) {
		if !seen[dep.Type] {
			seen[dep.Type] = true
			out = append(out, dep.Type)
		}
	}
	return out
}

// Callers returns the call sites in scope that may invoke m.
func (c *Crawler) Callers(m *bytecode.Method) ([]CallPoint, error) {
	classes := c.Scope(m)
	found := make([][]CallPoint, len(classes))

	var eg errgroup.Group
	eg.SetLimit(c.workers)
	for i, class := range classes {
		i, class := i, class
		eg.Go(func() error {
			points, err := c.CallPointsOf(class)
			if err != nil {
				return err
			}
			for _, cp := range points {
				if c.matches(cp, m) {
					found[i] = append(found[i], cp)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []CallPoint
	for _, f := range found {
		out = append(out, f...)
	}
	return out, nil
}

// matches reports whether the call at cp may run m. Names and parameter
// types must agree; static calls name the declaring class exactly, other
// calls name a class related to it in either direction. Calls from m to
// itself never bind its parameters.
func (c *Crawler) matches(cp CallPoint, m *bytecode.Method) bool {
	ref := cp.Instr.Member
	if ref.Name != m.Name || !typeutil.SameParams(ref.Desc, m.Desc) {
		return false
	}
	if cp.Method.Key() == m.Key() {
		return false
	}
	if (cp.Instr.Op == bytecode.INVOKESTATIC) != m.IsStatic() {
		return false
	}
	if m.IsStatic() || m.IsConstructor() {
		return ref.Owner == m.Owner
	}
	p := c.env.Program
	return typeutil.IsAssignable(p, ref.Owner, m.Owner) || typeutil.IsAssignable(p, m.Owner, ref.Owner)
}

// Bindings implements eval.Binder. Call sites whose arguments cannot be
// evaluated are skipped.
func (c *Crawler) Bindings(ctx *eval.Context) ([]eval.Binding, error) {
	m := ctx.Method
	callers, err := c.Callers(m)
	if err != nil {
		return nil, err
	}
	log.Debugf("%s: %d call sites", m.Key(), len(callers))

	slots := m.ParamSlots()
	var out []eval.Binding
	for _, cp := range callers {
		b, err := c.binding(cp, m, slots)
		if result.IsFatal(err) {
			return nil, err
		}
		if err != nil {
			log.Warningf("skipping call site %s of %s: %v", cp, m.Key(), err)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Crawler) binding(cp CallPoint, m *bytecode.Method, slots []int) (eval.Binding, error) {
	caller, err := c.env.ComponentContext(cp.Method)
	if err != nil {
		return eval.Binding{}, err
	}
	b := eval.Binding{Args: make(map[int]result.ID, len(slots)+1), Source: caller.Key(), Pos: cp.Instr.Pos}

	// Operands are in push order: the receiver comes first for instance
	// calls.
	first := 0
	if !m.IsStatic() {
		first = 1
		if !m.IsConstructor() {
			recv, err := caller.Operand(cp.Instr.Pos, 0)
			if err != nil {
				return eval.Binding{}, err
			}
			b.Args[0] = recv
		}
	}
	for i, slot := range slots {
		id, err := caller.Operand(cp.Instr.Pos, first+i)
		if err != nil {
			return eval.Binding{}, err
		}
		b.Args[slot] = id
	}
	return b, nil
}
