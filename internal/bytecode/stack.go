package bytecode

import "github.com/mpyw/bceval/internal/typeutil"

// StackEffect returns how many values the instruction pops and pushes.
// ok is false for the category-dependent shuffles (pop2, dup_x2, dup2*),
// whose effect depends on the values on the stack.
func StackEffect(in *Instruction) (pop, push int, ok bool) {
	info := in.Op.Info()
	switch in.Kind() {
	case KindInvoke:
		if in.Member == nil {
			return 0, 0, false
		}
		md, err := typeutil.ParseMethod(in.Member.Desc)
		if err != nil {
			return 0, 0, false
		}
		pop = len(md.Params)
		if in.Op != INVOKESTATIC {
			pop++
		}
		if md.Return != "V" {
			push = 1
		}
		return pop, push, true
	case KindInvokeDynamic:
		if in.Dynamic == nil {
			return 0, 0, false
		}
		md, err := typeutil.ParseMethod(in.Dynamic.Desc)
		if err != nil {
			return 0, 0, false
		}
		if md.Return != "V" {
			push = 1
		}
		return len(md.Params), push, true
	case KindNewArray:
		if in.Op == MULTIANEWARRAY {
			return in.Dims, 1, true
		}
	}
	if info.Pop == variable || info.Push == variable {
		return 0, 0, false
	}
	return info.Pop, info.Push, true
}

// ValueDesc returns the static descriptor of the value pushed by in, when it
// can be told from the instruction alone. Shuffles return false.
func ValueDesc(in *Instruction) (string, bool) {
	switch in.Op {
	case ACONST_NULL:
		return "Ljava/lang/Object;", true
	case ICONST_M1, ICONST_0, ICONST_1, ICONST_2, ICONST_3, ICONST_4, ICONST_5, BIPUSH, SIPUSH:
		return "I", true
	case LCONST_0, LCONST_1:
		return "J", true
	case FCONST_0, FCONST_1, FCONST_2:
		return "F", true
	case DCONST_0, DCONST_1:
		return "D", true
	case LDC, LDC_W, LDC2_W:
		return constDesc(in.Const), true
	case ILOAD, ILOAD_0, ILOAD_1, ILOAD_2, ILOAD_3, IALOAD, BALOAD, CALOAD, SALOAD,
		L2I, F2I, D2I, I2B, I2C, I2S, LCMP, FCMPL, FCMPG, DCMPL, DCMPG, ARRAYLENGTH, INSTANCEOF:
		return "I", true
	case LLOAD, LLOAD_0, LLOAD_1, LLOAD_2, LLOAD_3, LALOAD, I2L, F2L, D2L:
		return "J", true
	case FLOAD, FLOAD_0, FLOAD_1, FLOAD_2, FLOAD_3, FALOAD, I2F, L2F, D2F:
		return "F", true
	case DLOAD, DLOAD_0, DLOAD_1, DLOAD_2, DLOAD_3, DALOAD, I2D, L2D, F2D:
		return "D", true
	case ALOAD, ALOAD_0, ALOAD_1, ALOAD_2, ALOAD_3, AALOAD:
		return "Ljava/lang/Object;", true
	case NEW, CHECKCAST:
		return typeutil.Descriptor(in.Type), true
	case NEWARRAY, ANEWARRAY, MULTIANEWARRAY:
		return "[" + in.Type, true
	case GETFIELD, GETSTATIC:
		if in.Member != nil {
			return in.Member.Desc, true
		}
	case INVOKEVIRTUAL, INVOKESPECIAL, INVOKESTATIC, INVOKEINTERFACE:
		if in.Member != nil {
			if md, err := typeutil.ParseMethod(in.Member.Desc); err == nil {
				return md.Return, true
			}
		}
	case INVOKEDYNAMIC:
		if in.Dynamic != nil {
			if md, err := typeutil.ParseMethod(in.Dynamic.Desc); err == nil {
				return md.Return, true
			}
		}
	}
	switch in.Kind() {
	case KindArithmetic:
		switch in.Op.String()[0] {
		case 'i':
			return "I", true
		case 'l':
			return "J", true
		case 'f':
			return "F", true
		case 'd':
			return "D", true
		}
	}
	return "", false
}

func constDesc(v any) string {
	switch v.(type) {
	case int32:
		return "I"
	case int64:
		return "J"
	case float32:
		return "F"
	case float64:
		return "D"
	case string:
		return "Ljava/lang/String;"
	case ClassConst:
		return "Ljava/lang/Class;"
	}
	return "Ljava/lang/Object;"
}

// IsStore reports whether in writes local slot.
func IsStore(in *Instruction, slot int) bool {
	return (in.Kind() == KindStore || in.Kind() == KindIncrement) && in.Local == slot
}

// ReturnsValue reports whether in is a value-returning return instruction.
func ReturnsValue(in *Instruction) bool {
	return in.Kind() == KindReturn && in.Op != RETURN
}
