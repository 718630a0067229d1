// Package typeutil provides descriptor and type-hierarchy utilities for the
// VM's type system.
//
// Descriptors use the VM's internal form:
//
//	I J F D Z B C S V     primitives (int, long, float, double, boolean, byte, char, short, void)
//	Ljava/lang/String;    class types
//	[I  [[Ljava/lang/Object;  arrays
//	(ILjava/lang/String;)V    method descriptors
package typeutil

import (
	"fmt"
	"strings"
)

// =============================================================================
// Descriptor Parsing
// =============================================================================

// MethodDesc is a parsed method descriptor.
type MethodDesc struct {
	Params []string
	Return string
}

// ParseMethod parses a method descriptor such as "(ILjava/lang/String;)V".
func ParseMethod(desc string) (MethodDesc, error) {
	if !strings.HasPrefix(desc, "(") {
		return MethodDesc{}, fmt.Errorf("bad method descriptor %q", desc)
	}
	end := strings.IndexByte(desc, ')')
	if end < 0 {
		return MethodDesc{}, fmt.Errorf("bad method descriptor %q", desc)
	}
	params, err := splitFields(desc[1:end])
	if err != nil {
		return MethodDesc{}, fmt.Errorf("bad method descriptor %q: %w", desc, err)
	}
	ret := desc[end+1:]
	if ret != "V" {
		if _, err := fieldLen(ret); err != nil {
			return MethodDesc{}, fmt.Errorf("bad method descriptor %q: %w", desc, err)
		}
	}
	return MethodDesc{Params: params, Return: ret}, nil
}

// MustParseMethod is ParseMethod for descriptors known to be valid.
func MustParseMethod(desc string) MethodDesc {
	md, err := ParseMethod(desc)
	if err != nil {
		panic(err)
	}
	return md
}

func splitFields(s string) ([]string, error) {
	var out []string
	for len(s) > 0 {
		n, err := fieldLen(s)
		if err != nil {
			return nil, err
		}
		out = append(out, s[:n])
		s = s[n:]
	}
	return out, nil
}

// fieldLen returns the length of the field descriptor at the start of s.
func fieldLen(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty field descriptor")
	}
	switch s[0] {
	case 'I', 'J', 'F', 'D', 'Z', 'B', 'C', 'S':
		return 1, nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return 0, fmt.Errorf("unterminated class descriptor %q", s)
		}
		return end + 1, nil
	case '[':
		n, err := fieldLen(s[1:])
		return n + 1, err
	}
	return 0, fmt.Errorf("bad field descriptor %q", s)
}

// =============================================================================
// Descriptor Classification
// =============================================================================

// IsPrimitive reports whether desc names a primitive type.
func IsPrimitive(desc string) bool {
	return len(desc) == 1 && strings.Contains("IJFDZBCS", desc)
}

// IsIntLike reports whether desc is stored as a 32-bit int on the stack.
func IsIntLike(desc string) bool {
	switch desc {
	case "I", "Z", "B", "C", "S":
		return true
	}
	return false
}

// Category returns 2 for long and double, 1 otherwise.
func Category(desc string) int {
	if desc == "J" || desc == "D" {
		return 2
	}
	return 1
}

// ClassName extracts the class name from a class or array descriptor.
// Class names are returned as is.
func ClassName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// Descriptor converts a class name to its descriptor. Array descriptors are
// returned as is.
func Descriptor(className string) string {
	if strings.HasPrefix(className, "[") || IsPrimitive(className) {
		return className
	}
	return "L" + className + ";"
}

// SimpleName returns the unqualified name of a class ("java/lang/String" ->
// "String", "a/Outer$Inner" -> "Inner").
func SimpleName(name string) string {
	name = ClassName(name)
	if i := strings.LastIndexAny(name, "/$."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// JavaName returns the dotted form of an internal class name.
func JavaName(name string) string {
	return strings.ReplaceAll(ClassName(name), "/", ".")
}

// ParamSlots returns the local-variable slot of each parameter. Instance
// methods reserve slot 0 for the receiver.
func ParamSlots(params []string, static bool) []int {
	slots := make([]int, len(params))
	next := 0
	if !static {
		next = 1
	}
	for i, p := range params {
		slots[i] = next
		next += Category(p)
	}
	return slots
}

// SameParams reports whether two method descriptors take the same parameters.
func SameParams(a, b string) bool {
	ea := strings.IndexByte(a, ')')
	eb := strings.IndexByte(b, ')')
	if ea < 0 || eb < 0 {
		return false
	}
	return a[:ea] == b[:eb]
}
