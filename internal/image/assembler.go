package image

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/mpyw/bceval/internal/bytecode"
)

// =============================================================================
// Assembler
//
// Code is written one instruction per line:
//
//	start:
//	    aload_1
//	    ifnull other            // comment
//	    ldc "Q1"
//	    goto done
//	other:
//	    ldc "Q2"
//	done:
//	    astore_2
//	    invokevirtual app/Client.send(Ljava/lang/String;)V
//
// Positions are instruction indices starting at 0.
// =============================================================================

// Assembled is the result of assembling one method body.
type Assembled struct {
	Instructions []*bytecode.Instruction
	Labels       map[string]bytecode.Pos
}

type pendingJump struct {
	line   int
	in     *bytecode.Instruction
	target string
	caseAt int // -1 for Target, -2 for Default, otherwise index into Cases
}

// Assemble parses textual code.
func Assemble(src string) (*Assembled, error) {
	asm := &Assembled{Labels: make(map[string]bytecode.Pos)}
	var jumps []pendingJump

	for n, raw := range strings.Split(src, "\n") {
		lineNo := n + 1
		toks, err := tokenize(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		for len(toks) > 0 && isLabel(toks[0]) {
			name := strings.TrimSuffix(toks[0], ":")
			if _, dup := asm.Labels[name]; dup {
				return nil, fmt.Errorf("line %d: duplicate label %q", lineNo, name)
			}
			asm.Labels[name] = bytecode.Pos(len(asm.Instructions))
			toks = toks[1:]
		}
		if len(toks) == 0 {
			continue
		}
		op, ok := bytecode.Lookup(toks[0])
		if !ok {
			return nil, fmt.Errorf("line %d: unknown instruction %q", lineNo, toks[0])
		}
		in := &bytecode.Instruction{Pos: bytecode.Pos(len(asm.Instructions)), Op: op, Target: bytecode.NoPos, Default: bytecode.NoPos}
		js, err := decodeOperands(in, toks[1:])
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", lineNo, toks[0], err)
		}
		for _, j := range js {
			j.line = lineNo
			jumps = append(jumps, j)
		}
		asm.Instructions = append(asm.Instructions, in)
	}

	for _, j := range jumps {
		pos, ok := asm.Labels[j.target]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown label %q", j.line, j.target)
		}
		switch j.caseAt {
		case -1:
			j.in.Target = pos
		case -2:
			j.in.Default = pos
		default:
			j.in.Cases[j.caseAt].Target = pos
		}
	}
	return asm, nil
}

func isLabel(tok string) bool {
	if !strings.HasSuffix(tok, ":") || len(tok) < 2 {
		return false
	}
	for _, r := range strings.TrimSuffix(tok, ":") {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' || r == '.') {
			return false
		}
	}
	return true
}

// tokenize splits a line on whitespace, keeping quoted strings (with Go
// escapes) intact and dropping // and # comments.
func tokenize(line string) ([]string, error) {
	var toks []string
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#' || (c == '/' && i+1 < len(line) && line[i+1] == '/'):
			return toks, nil
		case c == '"':
			end := i + 1
			for end < len(line) && line[end] != '"' {
				if line[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(line) {
				return nil, fmt.Errorf("unterminated string")
			}
			toks = append(toks, line[i:end+1])
			i = end + 1
		default:
			end := i
			for end < len(line) && line[end] != ' ' && line[end] != '\t' && line[end] != '\r' {
				end++
			}
			toks = append(toks, line[i:end])
			i = end
		}
	}
	return toks, nil
}

func unquote(tok string) (string, error) {
	if len(tok) < 2 || tok[0] != '"' || tok[len(tok)-1] != '"' {
		return "", fmt.Errorf("expected quoted string, got %s", tok)
	}
	s := tok[1 : len(tok)-1]
	var b strings.Builder
	for len(s) > 0 {
		r, _, tail, err := strconv.UnquoteChar(s, '"')
		if err != nil {
			return "", fmt.Errorf("bad string %s: %w", tok, err)
		}
		b.WriteRune(r)
		s = tail
	}
	return b.String(), nil
}

// implicit holds the operand of the short-form opcodes.
var implicit = map[bytecode.Opcode]any{
	bytecode.ACONST_NULL: nil,
	bytecode.ICONST_M1:   int32(-1), bytecode.ICONST_0: int32(0), bytecode.ICONST_1: int32(1),
	bytecode.ICONST_2: int32(2), bytecode.ICONST_3: int32(3), bytecode.ICONST_4: int32(4),
	bytecode.ICONST_5: int32(5),
	bytecode.LCONST_0: int64(0), bytecode.LCONST_1: int64(1),
	bytecode.FCONST_0: float32(0), bytecode.FCONST_1: float32(1), bytecode.FCONST_2: float32(2),
	bytecode.DCONST_0: float64(0), bytecode.DCONST_1: float64(1),
}

func shortSlot(op bytecode.Opcode) (int, bool) {
	name := op.String()
	if i := strings.LastIndexByte(name, '_'); i > 0 && i == len(name)-2 {
		if d := name[i+1]; d >= '0' && d <= '3' {
			return int(d - '0'), true
		}
	}
	return 0, false
}

func decodeOperands(in *bytecode.Instruction, args []string) ([]pendingJump, error) {
	want := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("want %d operand(s), got %d", n, len(args))
		}
		return nil
	}

	switch in.Kind() {
	case bytecode.KindConst:
		if v, ok := implicit[in.Op]; ok {
			in.Const = v
			return nil, want(0)
		}
		if err := want(1); err != nil {
			return nil, err
		}
		switch in.Op {
		case bytecode.BIPUSH, bytecode.SIPUSH:
			n, err := strconv.ParseInt(args[0], 10, 16)
			if err != nil {
				return nil, err
			}
			in.Const = int32(n)
		default:
			v, err := parseConst(args[0], in.Op == bytecode.LDC2_W)
			if err != nil {
				return nil, err
			}
			in.Const = v
		}
		return nil, nil

	case bytecode.KindLoad, bytecode.KindStore:
		if slot, ok := shortSlot(in.Op); ok {
			in.Local = slot
			return nil, want(0)
		}
		if err := want(1); err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(args[0])
		in.Local = n
		return nil, err

	case bytecode.KindIncrement:
		if err := want(2); err != nil {
			return nil, err
		}
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, err
		}
		inc, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return nil, err
		}
		in.Local, in.Inc = slot, int32(inc)
		return nil, nil

	case bytecode.KindIf, bytecode.KindGoto:
		if err := want(1); err != nil {
			return nil, err
		}
		return []pendingJump{{in: in, target: args[0], caseAt: -1}}, nil

	case bytecode.KindSwitch:
		var jumps []pendingJump
		for _, a := range args {
			key, label, ok := strings.Cut(a, ":")
			if !ok {
				return nil, fmt.Errorf("switch arm %q is not key:label", a)
			}
			if key == "default" {
				jumps = append(jumps, pendingJump{in: in, target: label, caseAt: -2})
				continue
			}
			k, err := strconv.ParseInt(key, 10, 32)
			if err != nil {
				return nil, err
			}
			in.Cases = append(in.Cases, bytecode.SwitchCase{Key: int32(k), Target: bytecode.NoPos})
			jumps = append(jumps, pendingJump{in: in, target: label, caseAt: len(in.Cases) - 1})
		}
		for _, j := range jumps {
			if j.caseAt == -2 {
				return jumps, nil
			}
		}
		return nil, fmt.Errorf("switch without default arm")

	case bytecode.KindGetField, bytecode.KindPutField:
		if err := want(1); err != nil {
			return nil, err
		}
		ref, err := parseFieldRef(args[0])
		in.Member = ref
		return nil, err

	case bytecode.KindInvoke:
		if err := want(1); err != nil {
			return nil, err
		}
		ref, err := ParseMethodRef(args[0])
		if err != nil {
			return nil, err
		}
		ref.Interface = in.Op == bytecode.INVOKEINTERFACE
		in.Member = ref
		return nil, nil

	case bytecode.KindInvokeDynamic:
		dyn, err := parseDynamic(args)
		in.Dynamic = dyn
		return nil, err

	case bytecode.KindNew, bytecode.KindCheckCast, bytecode.KindInstanceOf:
		if err := want(1); err != nil {
			return nil, err
		}
		in.Type = args[0]
		return nil, nil

	case bytecode.KindNewArray:
		switch in.Op {
		case bytecode.NEWARRAY:
			if err := want(1); err != nil {
				return nil, err
			}
			d, ok := primitiveDescs[args[0]]
			if !ok {
				return nil, fmt.Errorf("unknown primitive array type %q", args[0])
			}
			in.Type = d
		case bytecode.ANEWARRAY:
			if err := want(1); err != nil {
				return nil, err
			}
			in.Type = descriptorOf(args[0])
		case bytecode.MULTIANEWARRAY:
			if err := want(2); err != nil {
				return nil, err
			}
			dims, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, err
			}
			// Type holds the component descriptor of the outermost array.
			desc := args[0]
			if len(desc) < dims || strings.Count(desc[:dims], "[") != dims {
				return nil, fmt.Errorf("descriptor %s has fewer than %d dimensions", desc, dims)
			}
			in.Type, in.Dims = desc[1:], dims
		}
		return nil, nil
	}
	return nil, want(0)
}

var primitiveDescs = map[string]string{
	"boolean": "Z", "char": "C", "float": "F", "double": "D",
	"byte": "B", "short": "S", "int": "I", "long": "J",
}

func descriptorOf(name string) string {
	if strings.HasPrefix(name, "[") {
		return name
	}
	return "L" + name + ";"
}

// parseConst decodes an ldc operand: "text", 12, 12L, 1.5F, 1.5D, 1.5 or
// class:name.
func parseConst(tok string, wide bool) (any, error) {
	if strings.HasPrefix(tok, "\"") {
		return unquote(tok)
	}
	if name, ok := strings.CutPrefix(tok, "class:"); ok {
		return bytecode.ClassConst{Name: name}, nil
	}
	switch {
	case strings.HasSuffix(tok, "L"):
		return strconv.ParseInt(strings.TrimSuffix(tok, "L"), 10, 64)
	case strings.HasSuffix(tok, "F"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(tok, "F"), 32)
		return float32(f), err
	case strings.HasSuffix(tok, "D"):
		return strconv.ParseFloat(strings.TrimSuffix(tok, "D"), 64)
	}
	if strings.ContainsAny(tok, ".eE") {
		if wide {
			return strconv.ParseFloat(tok, 64)
		}
		f, err := strconv.ParseFloat(tok, 32)
		return float32(f), err
	}
	if wide {
		return strconv.ParseInt(tok, 10, 64)
	}
	n, err := strconv.ParseInt(tok, 10, 32)
	return int32(n), err
}

// parseFieldRef decodes owner.name:desc.
func parseFieldRef(tok string) (*bytecode.MemberRef, error) {
	head, desc, ok := strings.Cut(tok, ":")
	if !ok {
		return nil, fmt.Errorf("field reference %q is not owner.name:desc", tok)
	}
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 {
		return nil, fmt.Errorf("field reference %q has no owner", tok)
	}
	return &bytecode.MemberRef{Owner: head[:dot], Name: head[dot+1:], Desc: desc}, nil
}

// ParseMethodRef decodes a method reference written owner.name(desc).
func ParseMethodRef(tok string) (*bytecode.MemberRef, error) {
	paren := strings.IndexByte(tok, '(')
	if paren < 0 {
		return nil, fmt.Errorf("method reference %q has no descriptor", tok)
	}
	head := tok[:paren]
	dot := strings.LastIndexByte(head, '.')
	if dot <= 0 {
		return nil, fmt.Errorf("method reference %q has no owner", tok)
	}
	return &bytecode.MemberRef{Owner: head[:dot], Name: head[dot+1:], Desc: tok[paren:]}, nil
}

const (
	concatFactory = "java/lang/invoke/StringConcatFactory"
	lambdaFactory = "java/lang/invoke/LambdaMetafactory"
)

var bootstrapAliases = map[string]bytecode.MemberRef{
	"concat": {Owner: concatFactory, Name: "makeConcatWithConstants", Desc: "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/String;[Ljava/lang/Object;)Ljava/lang/invoke/CallSite;"},
	"lambda": {Owner: lambdaFactory, Name: "metafactory", Desc: "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;"},
}

var handleKinds = map[string]bytecode.HandleKind{
	"static":    bytecode.HandleStatic,
	"virtual":   bytecode.HandleVirtual,
	"special":   bytecode.HandleSpecial,
	"interface": bytecode.HandleInterface,
	"new":       bytecode.HandleConstructor,
}

// parseDynamic decodes: name(desc) bootstrap arg...
// bootstrap is "concat", "lambda" or owner.name(desc); args are constants,
// type:(desc) method types or kind:owner.name(desc) method handles.
func parseDynamic(args []string) (*bytecode.DynamicRef, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("want name(desc) and bootstrap")
	}
	paren := strings.IndexByte(args[0], '(')
	if paren <= 0 {
		return nil, fmt.Errorf("call site %q is not name(desc)", args[0])
	}
	dyn := &bytecode.DynamicRef{Name: args[0][:paren], Desc: args[0][paren:]}
	if bsm, ok := bootstrapAliases[args[1]]; ok {
		dyn.Bootstrap = bsm
	} else {
		ref, err := ParseMethodRef(args[1])
		if err != nil {
			return nil, err
		}
		dyn.Bootstrap = *ref
	}
	for _, a := range args[2:] {
		if desc, ok := strings.CutPrefix(a, "type:"); ok {
			dyn.Args = append(dyn.Args, bytecode.MethodType{Desc: desc})
			continue
		}
		if kind, rest, ok := strings.Cut(a, ":"); ok && !strings.HasPrefix(a, "\"") {
			if hk, known := handleKinds[kind]; known {
				ref, err := ParseMethodRef(rest)
				if err != nil {
					return nil, err
				}
				dyn.Args = append(dyn.Args, bytecode.MethodHandle{Kind: hk, Ref: *ref})
				continue
			}
		}
		v, err := parseConst(a, false)
		if err != nil {
			return nil, fmt.Errorf("bootstrap argument %q: %w", a, err)
		}
		dyn.Args = append(dyn.Args, v)
	}
	return dyn, nil
}
