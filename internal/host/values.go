// Package host models the runtime library the evaluated code calls into:
// value representations, Java string conversions and a registry of builtin
// methods standing in for reflection.
package host

import (
	"fmt"
	"hash/fnv"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/typeutil"
)

// Value representations:
//
//	int, short, byte   int32 on the stack
//	char               int32 on the stack, Char when typed
//	boolean            int32 on the stack, bool when typed or boxed
//	long               int64
//	float / double     float32 / float64
//	String             string
//	null               nil
//	objects            *Object, *Array, *StringBuilder, Lambda, bytecode.ClassConst

// Char is a typed UTF-16 code unit.
type Char uint16

// Classed values know their runtime class.
type Classed interface {
	JavaClass() string
}

// Object is an instance of a program or library class. Fields holds the
// values known for it.
type Object struct {
	Class  string
	Fields map[string]any
}

// NewObject returns an object with no known fields.
func NewObject(class string) *Object {
	return &Object{Class: class, Fields: make(map[string]any)}
}

// JavaClass implements Classed.
func (o *Object) JavaClass() string { return o.Class }

// Array is a realized array.
type Array struct {
	Elem   string // element descriptor
	Values []any
}

// NewArray returns an array of n zero elements.
func NewArray(elem string, n int) *Array {
	a := &Array{Elem: elem, Values: make([]any, n)}
	zero := Zero(elem)
	for i := range a.Values {
		a.Values[i] = zero
	}
	return a
}

// JavaClass implements Classed.
func (a *Array) JavaClass() string { return "[" + a.Elem }

// StringBuilder is an immutable view of a java.lang.StringBuilder; append
// returns a new builder.
type StringBuilder struct {
	Class string
	Text  string
}

// JavaClass implements Classed.
func (b *StringBuilder) JavaClass() string { return b.Class }

// Lambda is a functional object produced by a metafactory call site.
type Lambda struct {
	Interface string // functional interface
	Method    string // interface method name
	Desc      string // erased interface method descriptor
	Impl      bytecode.MethodHandle
	Captured  []any
}

// JavaClass implements Classed.
func (l Lambda) JavaClass() string { return l.Interface }

// ClassOf returns the runtime class of v, boxing primitives.
func ClassOf(v any) string {
	switch x := v.(type) {
	case string:
		return "java/lang/String"
	case int32:
		return "java/lang/Integer"
	case int64:
		return "java/lang/Long"
	case float32:
		return "java/lang/Float"
	case float64:
		return "java/lang/Double"
	case bool:
		return "java/lang/Boolean"
	case Char:
		return "java/lang/Character"
	case bytecode.ClassConst:
		return "java/lang/Class"
	case Classed:
		return x.JavaClass()
	}
	return ""
}

// Zero returns the default value of a field or element descriptor.
func Zero(desc string) any {
	switch desc {
	case "I", "S", "B", "C", "Z":
		return int32(0)
	case "J":
		return int64(0)
	case "F":
		return float32(0)
	case "D":
		return float64(0)
	}
	return nil
}

// Typed converts a stack value to its typed form for desc: int32 becomes
// Char for C and bool for Z.
func Typed(v any, desc string) any {
	n, ok := v.(int32)
	if !ok {
		return v
	}
	switch desc {
	case "C":
		return Char(n)
	case "Z":
		return n != 0
	}
	return v
}

// Stack converts a typed value to its stack form for desc.
func Stack(v any, desc string) any {
	switch x := v.(type) {
	case bool:
		if !typeutil.IsPrimitive(desc) {
			return x
		}
		if x {
			return int32(1)
		}
		return int32(0)
	case Char:
		if typeutil.IsPrimitive(desc) {
			return int32(x)
		}
	case int32:
		switch desc {
		case "J":
			return int64(x)
		case "F":
			return float32(x)
		case "D":
			return float64(x)
		}
	}
	return v
}

// identity renders a stable pseudo identity hash for objects without a
// toString of their own.
func identity(class string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(class))
	return fmt.Sprintf("%s@%x", typeutil.JavaName(class), h.Sum32())
}
