// Package result implements the value algebra produced by evaluation: an
// arena of tagged results addressed by generational ids.
package result

import (
	"fmt"

	"github.com/mpyw/bceval/internal/bytecode"
)

// ID addresses a node of an Arena. The zero ID is "no result".
type ID struct {
	index uint32
	gen   uint32
}

// None is the zero ID.
var None ID

// IsZero reports whether id is None.
func (id ID) IsZero() bool {
	return id.index == 0
}

// Index returns the arena slot of id.
func (id ID) Index() int {
	return int(id.index)
}

func (id ID) String() string {
	if id.IsZero() {
		return "#-"
	}
	return fmt.Sprintf("#%d", id.index)
}

// Kind is the variant of a result.
type Kind uint8

const (
	Constant Kind = iota + 1
	Variable
	Delay
	DelayInvoke
	Multiple
	Duplicate
	Illegal
	Stub
)

var kindNames = map[Kind]string{
	Constant:    "constant",
	Variable:    "variable",
	Delay:       "delay",
	DelayInvoke: "invoke",
	Multiple:    "multiple",
	Duplicate:   "duplicate",
	Illegal:     "illegal",
	Stub:        "stub",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Status tags an Illegal result.
type Status uint8

const (
	StatusNone Status = iota
	StatusNotFound
	StatusNotAccessible
	StatusInvocationFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "not found"
	case StatusNotAccessible:
		return "not accessible"
	case StatusInvocationFailed:
		return "invocation failed"
	}
	return "none"
}

// VarKind distinguishes parameters from locals.
type VarKind uint8

const (
	VarParam VarKind = iota
	VarLocal
)

func (k VarKind) String() string {
	if k == VarParam {
		return "param"
	}
	return "local"
}

// VarInfo describes a slot that could not be traced to a definition.
type VarInfo struct {
	Kind   VarKind
	Slot   int
	Index  int // parameter index, -1 for locals and the receiver
	Desc   string
	Name   string
	Method string // key of the declaring method
	Owner  string // declaring class
}

// Site locates the instructions a result was built from.
type Site struct {
	Scope  string // evaluation context key
	Method string
	First  bytecode.Pos
	Last   bytecode.Pos
}

// At returns a site covering a single position.
func At(scope, method string, pos bytecode.Pos) Site {
	return Site{Scope: scope, Method: method, First: pos, Last: pos}
}

// CallInfo describes the call expression of a DelayInvoke.
type CallInfo struct {
	Op       bytecode.Opcode
	Ref      bytecode.MemberRef
	Dynamic  *bytecode.DynamicRef
	Receiver ID // None for static and dynamic calls
	Args     []ID
}

// Pending computes the result of a deferred node.
type Pending func(f *Forcer) (ID, error)

// Node is one result. Fields not relevant to Kind are zero.
type Node struct {
	Kind  Kind
	Site  Site
	Instr *bytecode.Instruction

	// Constant; Origin names the resolver that substituted it, if any.
	Value  any
	Origin string
	// Constant, Delay, DelayInvoke
	Relations []ID
	// Variable
	Var *VarInfo
	// DelayInvoke
	Call *CallInfo
	// Multiple: Tags[i] holds the decisions that select Members[i].
	Members []ID
	Tags    []Choices
	// Duplicate
	Alias ID
	// Illegal; Source is also the replaced variable of a Stub.
	Status Status
	Source ID
	Cause  error

	pending Pending
	done    bool
	forced  ID
}

// Forced returns the memoized outcome of a Delay, if it has been forced.
func (n Node) Forced() (ID, bool) {
	return n.forced, n.done
}
