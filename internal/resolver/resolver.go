// Package resolver decides what an unresolvable result stands for.
//
// The evaluator calls a Resolver whenever a result cannot be reduced to
// concrete values: a parameter no call site binds, a field nobody assigns, a
// call that failed for every argument row. The resolver may substitute a
// replacement result or give up by returning an error.
package resolver

import (
	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/result"
)

// Scope is the part of an evaluation a resolver may consult.
type Scope interface {
	// Arena holds every result the resolver is handed.
	Arena() *result.Arena
	// Program is the program under evaluation.
	Program() *bytecode.Program
	// Expand returns the concrete results id can take, resolving failed
	// leaves with the same resolver.
	Expand(id result.ID) ([]result.ID, error)
}

// Resolver substitutes unresolved results.
type Resolver interface {
	// Resolve returns a replacement for id, whose evaluation failed with
	// cause. Returning an error keeps the failure.
	Resolve(s Scope, id result.ID, cause error) (result.ID, error)
}

// Func adapts a function to Resolver.
type Func func(s Scope, id result.ID, cause error) (result.ID, error)

// Resolve implements Resolver.
func (fn Func) Resolve(s Scope, id result.ID, cause error) (result.ID, error) {
	return fn(s, id, cause)
}
