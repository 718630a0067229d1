// Package bceval evaluates the values flowing through the bytecode of a
// component-based application without running it.
//
// Given a program image, an Analyzer answers which concrete values an
// instruction can produce: which strings reach a messaging call, which
// names a configuration lookup uses. Unknown parameters are bound by
// crawling the call sites of dependent components, and values that remain
// unknown are rendered as placeholders such as "{queueName}".
package bceval

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/cache"
	"github.com/mpyw/bceval/internal/config"
	"github.com/mpyw/bceval/internal/crawler"
	"github.com/mpyw/bceval/internal/debug"
	"github.com/mpyw/bceval/internal/eval"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/resolver"
	"github.com/mpyw/bceval/internal/result"
	"github.com/mpyw/bceval/internal/typeutil"
)

var log = commonlog.GetLogger("bceval")

// Options configures an Analyzer.
type Options struct {
	// Resolver substitutes values that cannot be resolved. Nil leaves them
	// as failures.
	Resolver resolver.Resolver
	// Crawl enables binding parameters through call sites.
	Crawl bool
	// Workers bounds parallel call-site evaluation; 0 means GOMAXPROCS.
	Workers      int
	MaxCallDepth int
	MaxVariants  int
	// Live replaces the instance snapshot declared by the program image.
	Live host.Live
}

// DefaultOptions crawls call sites and renders unknown values by name.
func DefaultOptions() Options {
	return Options{
		Resolver:     &resolver.Stringify{Level: resolver.VarOnly},
		Crawl:        true,
		MaxCallDepth: eval.DefaultMaxCallDepth,
		MaxVariants:  eval.DefaultMaxVariants,
	}
}

// FromConfig converts a run configuration.
func FromConfig(c *config.Config) Options {
	o := Options{
		Crawl:        c.Crawler.Enabled,
		Workers:      c.Crawler.Workers,
		MaxCallDepth: c.Eval.MaxCallDepth,
		MaxVariants:  c.Eval.MaxVariants,
	}
	if c.Resolver.Enabled {
		o.Resolver = NewStringify(c.Resolver.Level, c.Resolver.FailFast)
	}
	return o
}

// NewStringify returns the placeholder resolver for a configuration level
// name.
func NewStringify(level string, failFast bool) *resolver.Stringify {
	s := &resolver.Stringify{Level: resolver.VarOnly, FailFast: failFast}
	if level == config.LevelFull {
		s.Level = resolver.Full
	}
	return s
}

// Analyzer evaluates one program. It is safe for concurrent use.
type Analyzer struct {
	Program *bytecode.Program

	env     *eval.Env
	crawler *crawler.Crawler
	runID   uuid.UUID
	workers int
}

// New returns an Analyzer for p.
func New(p *bytecode.Program, opts Options) *Analyzer {
	arena := result.NewArena()
	env := eval.NewEnv(p, arena)
	env.Cache = cache.New(arena, cache.DefaultShards)
	env.Resolver = opts.Resolver
	env.MaxCallDepth = opts.MaxCallDepth
	env.MaxVariants = opts.MaxVariants
	if opts.Live != nil {
		env.Live = opts.Live
	}

	a := &Analyzer{Program: p, env: env, runID: uuid.New(), workers: opts.Workers}
	if opts.Crawl {
		a.crawler = crawler.New(env, opts.Workers)
		env.Binder = a.crawler
	}
	log.Infof("run %s: %d classes, %d components", a.runID, len(p.Classes()), len(p.Components()))
	return a
}

// RunID identifies the run in logs and cache snapshots.
func (a *Analyzer) RunID() string {
	return a.runID.String()
}

// Env exposes the evaluation state.
func (a *Analyzer) Env() *eval.Env {
	return a.env
}

// Context returns the argument-free context of the method with the given
// key ("owner.name(desc)").
func (a *Analyzer) Context(method string) (*eval.Context, error) {
	m, ok := a.Program.Method(method)
	if !ok {
		return nil, result.Errorf(result.ErrMemberNotFound, result.None, "method %s", method)
	}
	return a.env.ComponentContext(m)
}

// Evaluate returns the result of the instruction at pos in method.
func (a *Analyzer) Evaluate(method string, pos bytecode.Pos) (result.ID, error) {
	c, err := a.Context(method)
	if err != nil {
		return result.None, err
	}
	return c.Evaluate(pos)
}

// ArgumentValues returns the values of operand i of the instruction at pos,
// in push order.
func (a *Analyzer) ArgumentValues(method string, pos bytecode.Pos, i int) ([]any, error) {
	c, err := a.Context(method)
	if err != nil {
		return nil, err
	}
	id, err := c.Operand(pos, i)
	if err != nil {
		return nil, err
	}
	return a.env.ConcreteValues(a.env.NewForcer(c), id)
}

// ConcreteValues expands a result into its distinct values. The error
// reports alternatives that failed; values may be returned alongside it.
func (a *Analyzer) ConcreteValues(id result.ID) ([]any, error) {
	return a.env.ConcreteValues(a.forcer(id), id)
}

func (a *Analyzer) forcer(id result.ID) *result.Forcer {
	if n, err := a.env.Arena.Get(id); err == nil {
		if c, ok := a.env.Lookup(n.Site.Scope); ok {
			return a.env.NewForcer(c)
		}
	}
	return result.NewForcer()
}

// Explain renders the provenance of a result.
func (a *Analyzer) Explain(id result.ID) string {
	return debug.Format(debug.Collect(a.env.Arena, id, 0))
}

// CallSite is the outcome of evaluating one call instruction.
type CallSite struct {
	Method string
	Pos    bytecode.Pos
	Call   bytecode.MemberRef
	Values []any
	Err    error
}

func (cs CallSite) String() string {
	return fmt.Sprintf("%s@%d", cs.Method, cs.Pos)
}

// CallSiteValues evaluates operand i of every call to target in the
// program. Calls match by name and descriptor and by an owner assignable to
// target's owner. Failures are reported per call site; only looped
// evaluation aborts.
func (a *Analyzer) CallSiteValues(ctx context.Context, target bytecode.MemberRef, i int) ([]CallSite, error) {
	var sites []CallSite
	for _, cls := range a.Program.Classes() {
		for _, m := range cls.Methods {
			if m.Code == nil {
				continue
			}
			for _, in := range m.Code.Instructions() {
				if in.Kind() != bytecode.KindInvoke || in.Member == nil || !a.targets(*in.Member, target) {
					continue
				}
				sites = append(sites, CallSite{Method: m.Key(), Pos: in.Pos, Call: *in.Member})
			}
		}
	}
	sort.Slice(sites, func(x, y int) bool {
		if sites[x].Method != sites[y].Method {
			return sites[x].Method < sites[y].Method
		}
		return sites[x].Pos < sites[y].Pos
	})

	eg, ctx := errgroup.WithContext(ctx)
	if a.workers > 0 {
		eg.SetLimit(a.workers)
	}
	for j := range sites {
		j := j
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cs := &sites[j]
			cs.Values, cs.Err = a.ArgumentValues(cs.Method, cs.Pos, i)
			if result.IsFatal(cs.Err) {
				return fmt.Errorf("%s: %w", cs, cs.Err)
			}
			if cs.Err != nil {
				log.Debugf("%s: %v", cs, cs.Err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return sites, nil
}

func (a *Analyzer) targets(ref, target bytecode.MemberRef) bool {
	if ref.Name != target.Name || ref.Desc != target.Desc {
		return false
	}
	if ref.Owner == target.Owner {
		return true
	}
	return typeutil.IsAssignable(a.Program, ref.Owner, target.Owner)
}

// Snapshot encodes the call cache.
func (a *Analyzer) Snapshot() ([]byte, error) {
	return a.env.Cache.Snapshot(a.RunID()).Marshal()
}

// CacheStats reports call cache activity.
func (a *Analyzer) CacheStats() cache.Stats {
	return a.env.Cache.Stats()
}
