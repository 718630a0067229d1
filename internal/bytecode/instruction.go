package bytecode

import (
	"fmt"
	"strings"
)

// Pos addresses an instruction inside one method body. Positions are totally
// ordered but not necessarily contiguous.
type Pos int

// NoPos marks an absent position.
const NoPos Pos = -1

// MemberRef names a field or method by owner class, name and descriptor.
type MemberRef struct {
	Owner     string
	Name      string
	Desc      string
	Interface bool
}

// String renders the reference as Owner.name(desc).
func (m MemberRef) String() string {
	if strings.HasPrefix(m.Desc, "(") {
		return m.Owner + "." + m.Name + m.Desc
	}
	return m.Owner + "." + m.Name + ":" + m.Desc
}

// ClassConst is the value of a class literal pushed by ldc.
type ClassConst struct {
	Name string
}

func (c ClassConst) String() string {
	return c.Name + ".class"
}

// HandleKind is the reference kind of a method handle constant.
type HandleKind int

const (
	HandleStatic HandleKind = iota
	HandleVirtual
	HandleSpecial
	HandleInterface
	HandleConstructor
)

// MethodHandle is a method handle constant (bootstrap arguments).
type MethodHandle struct {
	Kind HandleKind
	Ref  MemberRef
}

func (h MethodHandle) String() string {
	return fmt.Sprintf("handle(%d, %s)", h.Kind, h.Ref)
}

// MethodType is a method type constant (bootstrap arguments).
type MethodType struct {
	Desc string
}

// DynamicRef describes an invokedynamic call site.
type DynamicRef struct {
	Bootstrap MemberRef
	Name      string
	Desc      string
	Args      []any
}

// SwitchCase is one non-default arm of a switch instruction.
type SwitchCase struct {
	Key    int32
	Target Pos
}

// Instruction is one decoded instruction with its operands.
//
// Only the fields relevant to Op are set:
//
//	const pushes       Const
//	loads / stores     Local
//	iinc               Local, Inc
//	if* / goto         Target
//	*switch            Default, Cases
//	field / invoke     Member
//	invokedynamic      Dynamic
//	new / checkcast    Type
//	newarray           Type (element descriptor), Dims
type Instruction struct {
	Pos     Pos
	Op      Opcode
	Const   any
	Local   int
	Inc     int32
	Target  Pos
	Default Pos
	Cases   []SwitchCase
	Member  *MemberRef
	Dynamic *DynamicRef
	Type    string
	Dims    int
}

// Kind returns the evaluator category of the instruction.
func (i *Instruction) Kind() Kind {
	return i.Op.Kind()
}

// Targets returns every jump target of the instruction, in operand order and
// without duplicates.
func (i *Instruction) Targets() []Pos {
	switch i.Kind() {
	case KindIf, KindGoto:
		return []Pos{i.Target}
	case KindSwitch:
		seen := make(map[Pos]bool, len(i.Cases)+1)
		var out []Pos
		for _, c := range i.Cases {
			if !seen[c.Target] {
				seen[c.Target] = true
				out = append(out, c.Target)
			}
		}
		if !seen[i.Default] {
			out = append(out, i.Default)
		}
		return out
	}
	return nil
}

// String renders the instruction in the assembler syntax.
func (i *Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s", i.Pos, i.Op)
	switch i.Kind() {
	case KindConst:
		if i.Const != nil && i.Op != ACONST_NULL {
			fmt.Fprintf(&b, " %s", FormatConst(i.Const))
		}
	case KindLoad, KindStore:
		fmt.Fprintf(&b, " %d", i.Local)
	case KindIncrement:
		fmt.Fprintf(&b, " %d %d", i.Local, i.Inc)
	case KindIf, KindGoto:
		fmt.Fprintf(&b, " %d", i.Target)
	case KindSwitch:
		for _, c := range i.Cases {
			fmt.Fprintf(&b, " %d:%d", c.Key, c.Target)
		}
		fmt.Fprintf(&b, " default:%d", i.Default)
	case KindGetField, KindPutField, KindInvoke:
		if i.Member != nil {
			fmt.Fprintf(&b, " %s", i.Member)
		}
	case KindInvokeDynamic:
		if i.Dynamic != nil {
			fmt.Fprintf(&b, " %s%s", i.Dynamic.Name, i.Dynamic.Desc)
		}
	case KindNew, KindNewArray, KindCheckCast, KindInstanceOf:
		fmt.Fprintf(&b, " %s", i.Type)
	}
	return b.String()
}

// FormatConst renders a constant operand in the assembler syntax.
func FormatConst(v any) string {
	switch c := v.(type) {
	case string:
		return fmt.Sprintf("%q", c)
	case int64:
		return fmt.Sprintf("%dL", c)
	case float32:
		return fmt.Sprintf("%gF", c)
	case float64:
		return fmt.Sprintf("%gD", c)
	case nil:
		return "null"
	}
	return fmt.Sprint(v)
}
