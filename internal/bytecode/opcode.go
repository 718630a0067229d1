package bytecode

import "fmt"

// =============================================================================
// Opcode definitions
//
// Numbering follows the JVM instruction set so that images produced from real
// class files keep their opcodes. Short forms (iload_1, iconst_2, ...) are kept
// as distinct opcodes; the reader fills in their implicit operand.
// =============================================================================

// Opcode represents a single VM instruction.
type Opcode byte

// Constants
const (
	NOP         Opcode = 0x00
	ACONST_NULL Opcode = 0x01
	ICONST_M1   Opcode = 0x02
	ICONST_0    Opcode = 0x03
	ICONST_1    Opcode = 0x04
	ICONST_2    Opcode = 0x05
	ICONST_3    Opcode = 0x06
	ICONST_4    Opcode = 0x07
	ICONST_5    Opcode = 0x08
	LCONST_0    Opcode = 0x09
	LCONST_1    Opcode = 0x0a
	FCONST_0    Opcode = 0x0b
	FCONST_1    Opcode = 0x0c
	FCONST_2    Opcode = 0x0d
	DCONST_0    Opcode = 0x0e
	DCONST_1    Opcode = 0x0f
	BIPUSH      Opcode = 0x10
	SIPUSH      Opcode = 0x11
	LDC         Opcode = 0x12
	LDC_W       Opcode = 0x13
	LDC2_W      Opcode = 0x14
)

// Loads
const (
	ILOAD   Opcode = 0x15
	LLOAD   Opcode = 0x16
	FLOAD   Opcode = 0x17
	DLOAD   Opcode = 0x18
	ALOAD   Opcode = 0x19
	ILOAD_0 Opcode = 0x1a
	ILOAD_1 Opcode = 0x1b
	ILOAD_2 Opcode = 0x1c
	ILOAD_3 Opcode = 0x1d
	LLOAD_0 Opcode = 0x1e
	LLOAD_1 Opcode = 0x1f
	LLOAD_2 Opcode = 0x20
	LLOAD_3 Opcode = 0x21
	FLOAD_0 Opcode = 0x22
	FLOAD_1 Opcode = 0x23
	FLOAD_2 Opcode = 0x24
	FLOAD_3 Opcode = 0x25
	DLOAD_0 Opcode = 0x26
	DLOAD_1 Opcode = 0x27
	DLOAD_2 Opcode = 0x28
	DLOAD_3 Opcode = 0x29
	ALOAD_0 Opcode = 0x2a
	ALOAD_1 Opcode = 0x2b
	ALOAD_2 Opcode = 0x2c
	ALOAD_3 Opcode = 0x2d
	IALOAD  Opcode = 0x2e
	LALOAD  Opcode = 0x2f
	FALOAD  Opcode = 0x30
	DALOAD  Opcode = 0x31
	AALOAD  Opcode = 0x32
	BALOAD  Opcode = 0x33
	CALOAD  Opcode = 0x34
	SALOAD  Opcode = 0x35
)

// Stores
const (
	ISTORE   Opcode = 0x36
	LSTORE   Opcode = 0x37
	FSTORE   Opcode = 0x38
	DSTORE   Opcode = 0x39
	ASTORE   Opcode = 0x3a
	ISTORE_0 Opcode = 0x3b
	ISTORE_1 Opcode = 0x3c
	ISTORE_2 Opcode = 0x3d
	ISTORE_3 Opcode = 0x3e
	LSTORE_0 Opcode = 0x3f
	LSTORE_1 Opcode = 0x40
	LSTORE_2 Opcode = 0x41
	LSTORE_3 Opcode = 0x42
	FSTORE_0 Opcode = 0x43
	FSTORE_1 Opcode = 0x44
	FSTORE_2 Opcode = 0x45
	FSTORE_3 Opcode = 0x46
	DSTORE_0 Opcode = 0x47
	DSTORE_1 Opcode = 0x48
	DSTORE_2 Opcode = 0x49
	DSTORE_3 Opcode = 0x4a
	ASTORE_0 Opcode = 0x4b
	ASTORE_1 Opcode = 0x4c
	ASTORE_2 Opcode = 0x4d
	ASTORE_3 Opcode = 0x4e
	IASTORE  Opcode = 0x4f
	LASTORE  Opcode = 0x50
	FASTORE  Opcode = 0x51
	DASTORE  Opcode = 0x52
	AASTORE  Opcode = 0x53
	BASTORE  Opcode = 0x54
	CASTORE  Opcode = 0x55
	SASTORE  Opcode = 0x56
)

// Stack
const (
	POP     Opcode = 0x57
	POP2    Opcode = 0x58
	DUP     Opcode = 0x59
	DUP_X1  Opcode = 0x5a
	DUP_X2  Opcode = 0x5b
	DUP2    Opcode = 0x5c
	DUP2_X1 Opcode = 0x5d
	DUP2_X2 Opcode = 0x5e
	SWAP    Opcode = 0x5f
)

// Math
const (
	IADD  Opcode = 0x60
	LADD  Opcode = 0x61
	FADD  Opcode = 0x62
	DADD  Opcode = 0x63
	ISUB  Opcode = 0x64
	LSUB  Opcode = 0x65
	FSUB  Opcode = 0x66
	DSUB  Opcode = 0x67
	IMUL  Opcode = 0x68
	LMUL  Opcode = 0x69
	FMUL  Opcode = 0x6a
	DMUL  Opcode = 0x6b
	IDIV  Opcode = 0x6c
	LDIV  Opcode = 0x6d
	FDIV  Opcode = 0x6e
	DDIV  Opcode = 0x6f
	IREM  Opcode = 0x70
	LREM  Opcode = 0x71
	FREM  Opcode = 0x72
	DREM  Opcode = 0x73
	INEG  Opcode = 0x74
	LNEG  Opcode = 0x75
	FNEG  Opcode = 0x76
	DNEG  Opcode = 0x77
	ISHL  Opcode = 0x78
	LSHL  Opcode = 0x79
	ISHR  Opcode = 0x7a
	LSHR  Opcode = 0x7b
	IUSHR Opcode = 0x7c
	LUSHR Opcode = 0x7d
	IAND  Opcode = 0x7e
	LAND  Opcode = 0x7f
	IOR   Opcode = 0x80
	LOR   Opcode = 0x81
	IXOR  Opcode = 0x82
	LXOR  Opcode = 0x83
	IINC  Opcode = 0x84
)

// Conversions and comparisons
const (
	I2L   Opcode = 0x85
	I2F   Opcode = 0x86
	I2D   Opcode = 0x87
	L2I   Opcode = 0x88
	L2F   Opcode = 0x89
	L2D   Opcode = 0x8a
	F2I   Opcode = 0x8b
	F2L   Opcode = 0x8c
	F2D   Opcode = 0x8d
	D2I   Opcode = 0x8e
	D2L   Opcode = 0x8f
	D2F   Opcode = 0x90
	I2B   Opcode = 0x91
	I2C   Opcode = 0x92
	I2S   Opcode = 0x93
	LCMP  Opcode = 0x94
	FCMPL Opcode = 0x95
	FCMPG Opcode = 0x96
	DCMPL Opcode = 0x97
	DCMPG Opcode = 0x98
)

// Control
const (
	IFEQ         Opcode = 0x99
	IFNE         Opcode = 0x9a
	IFLT         Opcode = 0x9b
	IFGE         Opcode = 0x9c
	IFGT         Opcode = 0x9d
	IFLE         Opcode = 0x9e
	IF_ICMPEQ    Opcode = 0x9f
	IF_ICMPNE    Opcode = 0xa0
	IF_ICMPLT    Opcode = 0xa1
	IF_ICMPGE    Opcode = 0xa2
	IF_ICMPGT    Opcode = 0xa3
	IF_ICMPLE    Opcode = 0xa4
	IF_ACMPEQ    Opcode = 0xa5
	IF_ACMPNE    Opcode = 0xa6
	GOTO         Opcode = 0xa7
	JSR          Opcode = 0xa8
	RET          Opcode = 0xa9
	TABLESWITCH  Opcode = 0xaa
	LOOKUPSWITCH Opcode = 0xab
	IRETURN      Opcode = 0xac
	LRETURN      Opcode = 0xad
	FRETURN      Opcode = 0xae
	DRETURN      Opcode = 0xaf
	ARETURN      Opcode = 0xb0
	RETURN       Opcode = 0xb1
)

// References
const (
	GETSTATIC       Opcode = 0xb2
	PUTSTATIC       Opcode = 0xb3
	GETFIELD        Opcode = 0xb4
	PUTFIELD        Opcode = 0xb5
	INVOKEVIRTUAL   Opcode = 0xb6
	INVOKESPECIAL   Opcode = 0xb7
	INVOKESTATIC    Opcode = 0xb8
	INVOKEINTERFACE Opcode = 0xb9
	INVOKEDYNAMIC   Opcode = 0xba
	NEW             Opcode = 0xbb
	NEWARRAY        Opcode = 0xbc
	ANEWARRAY       Opcode = 0xbd
	ARRAYLENGTH     Opcode = 0xbe
	ATHROW          Opcode = 0xbf
	CHECKCAST       Opcode = 0xc0
	INSTANCEOF      Opcode = 0xc1
	MONITORENTER    Opcode = 0xc2
	MONITOREXIT     Opcode = 0xc3
	WIDE            Opcode = 0xc4
	MULTIANEWARRAY  Opcode = 0xc5
	IFNULL          Opcode = 0xc6
	IFNONNULL       Opcode = 0xc7
	GOTO_W          Opcode = 0xc8
	JSR_W           Opcode = 0xc9
)

// =============================================================================
// Opcode metadata
// =============================================================================

// Kind groups opcodes by the way the evaluator treats them.
type Kind int

const (
	KindOther Kind = iota
	KindConst
	KindLoad
	KindStore
	KindArrayLoad
	KindArrayStore
	KindStack
	KindArithmetic
	KindIncrement
	KindConvert
	KindCompare
	KindIf
	KindGoto
	KindSwitch
	KindReturn
	KindThrow
	KindGetField
	KindPutField
	KindInvoke
	KindInvokeDynamic
	KindNew
	KindNewArray
	KindArrayLength
	KindCheckCast
	KindInstanceOf
	KindMonitor
)

// variable marks a stack count that depends on the instruction operands.
const variable = -1

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name string
	Kind Kind
	Pop  int // values consumed (variable = -1)
	Push int // values produced (variable = -1)
}

// Stack counts are in values, not slots: a long occupies one entry.
var opcodeTable = map[Opcode]OpcodeInfo{
	NOP:         {"nop", KindOther, 0, 0},
	ACONST_NULL: {"aconst_null", KindConst, 0, 1},
	ICONST_M1:   {"iconst_m1", KindConst, 0, 1},
	ICONST_0:    {"iconst_0", KindConst, 0, 1},
	ICONST_1:    {"iconst_1", KindConst, 0, 1},
	ICONST_2:    {"iconst_2", KindConst, 0, 1},
	ICONST_3:    {"iconst_3", KindConst, 0, 1},
	ICONST_4:    {"iconst_4", KindConst, 0, 1},
	ICONST_5:    {"iconst_5", KindConst, 0, 1},
	LCONST_0:    {"lconst_0", KindConst, 0, 1},
	LCONST_1:    {"lconst_1", KindConst, 0, 1},
	FCONST_0:    {"fconst_0", KindConst, 0, 1},
	FCONST_1:    {"fconst_1", KindConst, 0, 1},
	FCONST_2:    {"fconst_2", KindConst, 0, 1},
	DCONST_0:    {"dconst_0", KindConst, 0, 1},
	DCONST_1:    {"dconst_1", KindConst, 0, 1},
	BIPUSH:      {"bipush", KindConst, 0, 1},
	SIPUSH:      {"sipush", KindConst, 0, 1},
	LDC:         {"ldc", KindConst, 0, 1},
	LDC_W:       {"ldc_w", KindConst, 0, 1},
	LDC2_W:      {"ldc2_w", KindConst, 0, 1},

	ILOAD: {"iload", KindLoad, 0, 1}, LLOAD: {"lload", KindLoad, 0, 1},
	FLOAD: {"fload", KindLoad, 0, 1}, DLOAD: {"dload", KindLoad, 0, 1},
	ALOAD:   {"aload", KindLoad, 0, 1},
	ILOAD_0: {"iload_0", KindLoad, 0, 1}, ILOAD_1: {"iload_1", KindLoad, 0, 1},
	ILOAD_2: {"iload_2", KindLoad, 0, 1}, ILOAD_3: {"iload_3", KindLoad, 0, 1},
	LLOAD_0: {"lload_0", KindLoad, 0, 1}, LLOAD_1: {"lload_1", KindLoad, 0, 1},
	LLOAD_2: {"lload_2", KindLoad, 0, 1}, LLOAD_3: {"lload_3", KindLoad, 0, 1},
	FLOAD_0: {"fload_0", KindLoad, 0, 1}, FLOAD_1: {"fload_1", KindLoad, 0, 1},
	FLOAD_2: {"fload_2", KindLoad, 0, 1}, FLOAD_3: {"fload_3", KindLoad, 0, 1},
	DLOAD_0: {"dload_0", KindLoad, 0, 1}, DLOAD_1: {"dload_1", KindLoad, 0, 1},
	DLOAD_2: {"dload_2", KindLoad, 0, 1}, DLOAD_3: {"dload_3", KindLoad, 0, 1},
	ALOAD_0: {"aload_0", KindLoad, 0, 1}, ALOAD_1: {"aload_1", KindLoad, 0, 1},
	ALOAD_2: {"aload_2", KindLoad, 0, 1}, ALOAD_3: {"aload_3", KindLoad, 0, 1},

	IALOAD: {"iaload", KindArrayLoad, 2, 1}, LALOAD: {"laload", KindArrayLoad, 2, 1},
	FALOAD: {"faload", KindArrayLoad, 2, 1}, DALOAD: {"daload", KindArrayLoad, 2, 1},
	AALOAD: {"aaload", KindArrayLoad, 2, 1}, BALOAD: {"baload", KindArrayLoad, 2, 1},
	CALOAD: {"caload", KindArrayLoad, 2, 1}, SALOAD: {"saload", KindArrayLoad, 2, 1},

	ISTORE: {"istore", KindStore, 1, 0}, LSTORE: {"lstore", KindStore, 1, 0},
	FSTORE: {"fstore", KindStore, 1, 0}, DSTORE: {"dstore", KindStore, 1, 0},
	ASTORE:   {"astore", KindStore, 1, 0},
	ISTORE_0: {"istore_0", KindStore, 1, 0}, ISTORE_1: {"istore_1", KindStore, 1, 0},
	ISTORE_2: {"istore_2", KindStore, 1, 0}, ISTORE_3: {"istore_3", KindStore, 1, 0},
	LSTORE_0: {"lstore_0", KindStore, 1, 0}, LSTORE_1: {"lstore_1", KindStore, 1, 0},
	LSTORE_2: {"lstore_2", KindStore, 1, 0}, LSTORE_3: {"lstore_3", KindStore, 1, 0},
	FSTORE_0: {"fstore_0", KindStore, 1, 0}, FSTORE_1: {"fstore_1", KindStore, 1, 0},
	FSTORE_2: {"fstore_2", KindStore, 1, 0}, FSTORE_3: {"fstore_3", KindStore, 1, 0},
	DSTORE_0: {"dstore_0", KindStore, 1, 0}, DSTORE_1: {"dstore_1", KindStore, 1, 0},
	DSTORE_2: {"dstore_2", KindStore, 1, 0}, DSTORE_3: {"dstore_3", KindStore, 1, 0},
	ASTORE_0: {"astore_0", KindStore, 1, 0}, ASTORE_1: {"astore_1", KindStore, 1, 0},
	ASTORE_2: {"astore_2", KindStore, 1, 0}, ASTORE_3: {"astore_3", KindStore, 1, 0},

	IASTORE: {"iastore", KindArrayStore, 3, 0}, LASTORE: {"lastore", KindArrayStore, 3, 0},
	FASTORE: {"fastore", KindArrayStore, 3, 0}, DASTORE: {"dastore", KindArrayStore, 3, 0},
	AASTORE: {"aastore", KindArrayStore, 3, 0}, BASTORE: {"bastore", KindArrayStore, 3, 0},
	CASTORE: {"castore", KindArrayStore, 3, 0}, SASTORE: {"sastore", KindArrayStore, 3, 0},

	// pop2/dup2 forms depend on value categories and are resolved by the evaluator.
	POP:     {"pop", KindStack, 1, 0},
	POP2:    {"pop2", KindStack, variable, 0},
	DUP:     {"dup", KindStack, 1, 2},
	DUP_X1:  {"dup_x1", KindStack, 2, 3},
	DUP_X2:  {"dup_x2", KindStack, variable, variable},
	DUP2:    {"dup2", KindStack, variable, variable},
	DUP2_X1: {"dup2_x1", KindStack, variable, variable},
	DUP2_X2: {"dup2_x2", KindStack, variable, variable},
	SWAP:    {"swap", KindStack, 2, 2},

	IADD: {"iadd", KindArithmetic, 2, 1}, LADD: {"ladd", KindArithmetic, 2, 1},
	FADD: {"fadd", KindArithmetic, 2, 1}, DADD: {"dadd", KindArithmetic, 2, 1},
	ISUB: {"isub", KindArithmetic, 2, 1}, LSUB: {"lsub", KindArithmetic, 2, 1},
	FSUB: {"fsub", KindArithmetic, 2, 1}, DSUB: {"dsub", KindArithmetic, 2, 1},
	IMUL: {"imul", KindArithmetic, 2, 1}, LMUL: {"lmul", KindArithmetic, 2, 1},
	FMUL: {"fmul", KindArithmetic, 2, 1}, DMUL: {"dmul", KindArithmetic, 2, 1},
	IDIV: {"idiv", KindArithmetic, 2, 1}, LDIV: {"ldiv", KindArithmetic, 2, 1},
	FDIV: {"fdiv", KindArithmetic, 2, 1}, DDIV: {"ddiv", KindArithmetic, 2, 1},
	IREM: {"irem", KindArithmetic, 2, 1}, LREM: {"lrem", KindArithmetic, 2, 1},
	FREM: {"frem", KindArithmetic, 2, 1}, DREM: {"drem", KindArithmetic, 2, 1},
	INEG: {"ineg", KindArithmetic, 1, 1}, LNEG: {"lneg", KindArithmetic, 1, 1},
	FNEG: {"fneg", KindArithmetic, 1, 1}, DNEG: {"dneg", KindArithmetic, 1, 1},
	ISHL: {"ishl", KindArithmetic, 2, 1}, LSHL: {"lshl", KindArithmetic, 2, 1},
	ISHR: {"ishr", KindArithmetic, 2, 1}, LSHR: {"lshr", KindArithmetic, 2, 1},
	IUSHR: {"iushr", KindArithmetic, 2, 1}, LUSHR: {"lushr", KindArithmetic, 2, 1},
	IAND: {"iand", KindArithmetic, 2, 1}, LAND: {"land", KindArithmetic, 2, 1},
	IOR: {"ior", KindArithmetic, 2, 1}, LOR: {"lor", KindArithmetic, 2, 1},
	IXOR: {"ixor", KindArithmetic, 2, 1}, LXOR: {"lxor", KindArithmetic, 2, 1},
	IINC: {"iinc", KindIncrement, 0, 0},

	I2L: {"i2l", KindConvert, 1, 1}, I2F: {"i2f", KindConvert, 1, 1},
	I2D: {"i2d", KindConvert, 1, 1}, L2I: {"l2i", KindConvert, 1, 1},
	L2F: {"l2f", KindConvert, 1, 1}, L2D: {"l2d", KindConvert, 1, 1},
	F2I: {"f2i", KindConvert, 1, 1}, F2L: {"f2l", KindConvert, 1, 1},
	F2D: {"f2d", KindConvert, 1, 1}, D2I: {"d2i", KindConvert, 1, 1},
	D2L: {"d2l", KindConvert, 1, 1}, D2F: {"d2f", KindConvert, 1, 1},
	I2B: {"i2b", KindConvert, 1, 1}, I2C: {"i2c", KindConvert, 1, 1},
	I2S: {"i2s", KindConvert, 1, 1},

	LCMP: {"lcmp", KindCompare, 2, 1}, FCMPL: {"fcmpl", KindCompare, 2, 1},
	FCMPG: {"fcmpg", KindCompare, 2, 1}, DCMPL: {"dcmpl", KindCompare, 2, 1},
	DCMPG: {"dcmpg", KindCompare, 2, 1},

	IFEQ: {"ifeq", KindIf, 1, 0}, IFNE: {"ifne", KindIf, 1, 0},
	IFLT: {"iflt", KindIf, 1, 0}, IFGE: {"ifge", KindIf, 1, 0},
	IFGT: {"ifgt", KindIf, 1, 0}, IFLE: {"ifle", KindIf, 1, 0},
	IF_ICMPEQ: {"if_icmpeq", KindIf, 2, 0}, IF_ICMPNE: {"if_icmpne", KindIf, 2, 0},
	IF_ICMPLT: {"if_icmplt", KindIf, 2, 0}, IF_ICMPGE: {"if_icmpge", KindIf, 2, 0},
	IF_ICMPGT: {"if_icmpgt", KindIf, 2, 0}, IF_ICMPLE: {"if_icmple", KindIf, 2, 0},
	IF_ACMPEQ: {"if_acmpeq", KindIf, 2, 0}, IF_ACMPNE: {"if_acmpne", KindIf, 2, 0},
	IFNULL: {"ifnull", KindIf, 1, 0}, IFNONNULL: {"ifnonnull", KindIf, 1, 0},

	GOTO:         {"goto", KindGoto, 0, 0},
	GOTO_W:       {"goto_w", KindGoto, 0, 0},
	JSR:          {"jsr", KindOther, 0, 1},
	JSR_W:        {"jsr_w", KindOther, 0, 1},
	RET:          {"ret", KindOther, 0, 0},
	TABLESWITCH:  {"tableswitch", KindSwitch, 1, 0},
	LOOKUPSWITCH: {"lookupswitch", KindSwitch, 1, 0},

	IRETURN: {"ireturn", KindReturn, 1, 0}, LRETURN: {"lreturn", KindReturn, 1, 0},
	FRETURN: {"freturn", KindReturn, 1, 0}, DRETURN: {"dreturn", KindReturn, 1, 0},
	ARETURN: {"areturn", KindReturn, 1, 0}, RETURN: {"return", KindReturn, 0, 0},
	ATHROW: {"athrow", KindThrow, 1, 0},

	GETSTATIC: {"getstatic", KindGetField, 0, 1},
	PUTSTATIC: {"putstatic", KindPutField, 1, 0},
	GETFIELD:  {"getfield", KindGetField, 1, 1},
	PUTFIELD:  {"putfield", KindPutField, 2, 0},

	INVOKEVIRTUAL:   {"invokevirtual", KindInvoke, variable, variable},
	INVOKESPECIAL:   {"invokespecial", KindInvoke, variable, variable},
	INVOKESTATIC:    {"invokestatic", KindInvoke, variable, variable},
	INVOKEINTERFACE: {"invokeinterface", KindInvoke, variable, variable},
	INVOKEDYNAMIC:   {"invokedynamic", KindInvokeDynamic, variable, variable},

	NEW:            {"new", KindNew, 0, 1},
	NEWARRAY:       {"newarray", KindNewArray, 1, 1},
	ANEWARRAY:      {"anewarray", KindNewArray, 1, 1},
	MULTIANEWARRAY: {"multianewarray", KindNewArray, variable, 1},
	ARRAYLENGTH:    {"arraylength", KindArrayLength, 1, 1},
	CHECKCAST:      {"checkcast", KindCheckCast, 1, 1},
	INSTANCEOF:     {"instanceof", KindInstanceOf, 1, 1},
	MONITORENTER:   {"monitorenter", KindMonitor, 1, 0},
	MONITOREXIT:    {"monitorexit", KindMonitor, 1, 0},
	WIDE:           {"wide", KindOther, 0, 0},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown_%02x", byte(op)), Kind: KindOther}
}

// Kind returns the evaluator category of the opcode.
func (op Opcode) Kind() Kind {
	return op.Info().Kind
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// Lookup returns the opcode with the given mnemonic.
func Lookup(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// IsUnconditional reports whether control never falls through to the next
// instruction.
func (op Opcode) IsUnconditional() bool {
	switch op.Kind() {
	case KindGoto, KindSwitch, KindReturn, KindThrow:
		return true
	}
	return op == RET
}
