package resolver

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/result"
	"github.com/mpyw/bceval/internal/typeutil"
)

var log = commonlog.GetLogger("bceval.resolver")

// Origin marks the constants substituted by Stringify.
const Origin = "stringify"

const maxRenderings = 64

// Level selects how much context a placeholder carries.
type Level int

const (
	// VarOnly renders bare names: "{dest}".
	VarOnly Level = iota
	// Full renders the declaring component and method: "{Svc.send({dest})}".
	Full
)

// Stringify replaces an unresolved result with a textual rendering of the
// expression that produced it:
//
//	variable         {name}                   {Component.method({name})}
//	field read       {name}                   {Owner.name}
//	call             recv(args)               {recv.method(args)}
//	new              args                     {new Type(args)}
//	arithmetic       a op b                   a op b
//
// (VarOnly on the left, Full on the right.) Concatenations and string calls
// over a rendered part are evaluated normally, so "q-" + dest becomes
// "q-{dest}".
type Stringify struct {
	Level Level
	// FailFast keeps the original failure instead of rendering it.
	FailFast bool
}

// Resolve implements Resolver.
func (r *Stringify) Resolve(s Scope, id result.ID, cause error) (result.ID, error) {
	if r.FailFast {
		return result.None, cause
	}
	texts, err := r.render(s, id, 0)
	if err != nil {
		log.Debugf("cannot render %s: %v", s.Arena().Describe(id), err)
		return result.None, err
	}
	n, err := s.Arena().Get(id)
	if err != nil {
		return result.None, err
	}
	ids := make([]result.ID, len(texts))
	for i, t := range texts {
		ids[i] = s.Arena().NewResolved(n.Site, t, Origin, id)
	}
	return s.Arena().NewMultiple(n.Site, ids, nil)
}

func (r *Stringify) full() bool {
	return r.Level == Full
}

func (r *Stringify) render(s Scope, id result.ID, depth int) ([]string, error) {
	if depth > 64 {
		return nil, result.Errorf(result.ErrLoopedEvaluation, id, "rendering of %s does not terminate", id)
	}
	a := s.Arena()
	n, err := a.Get(id)
	if err != nil {
		return nil, err
	}
	switch n.Kind {
	case result.Constant:
		return []string{host.ToString(n.Value)}, nil
	case result.Duplicate:
		return r.render(s, n.Alias, depth+1)
	case result.Stub:
		return r.render(s, n.Source, depth+1)
	case result.Variable:
		return []string{r.variable(n.Var)}, nil
	case result.Multiple:
		var out []string
		for _, m := range n.Members {
			sub, err := r.render(s, m, depth+1)
			if err != nil {
				return nil, err
			}
			out = appendUnique(out, sub...)
		}
		return out, nil
	case result.Delay, result.DelayInvoke:
		return r.expression(s, id, n, depth)
	}
	return nil, result.Errorf(result.ErrUnresolvedVariable, id, "cannot render %s", a.Describe(id))
}

func (r *Stringify) variable(v *result.VarInfo) string {
	name := "{" + v.Name + "}"
	if !r.full() {
		return name
	}
	return "{" + typeutil.SimpleName(v.Owner) + "." + methodName(v.Method) + "(" + name + ")}"
}

// methodName extracts the name from a method key "Owner.name(desc)".
func methodName(key string) string {
	if i := strings.IndexByte(key, '('); i >= 0 {
		key = key[:i]
	}
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}

func (r *Stringify) expression(s Scope, id result.ID, n result.Node, depth int) ([]string, error) {
	if n.Call != nil {
		return r.call(s, n)
	}
	if n.Instr == nil {
		return nil, result.Errorf(result.ErrUnresolvedVariable, id, "cannot render %s", s.Arena().Describe(id))
	}
	in := n.Instr
	switch in.Kind() {
	case bytecode.KindGetField:
		if r.full() {
			return []string{"{" + typeutil.SimpleName(in.Member.Owner) + "." + in.Member.Name + "}"}, nil
		}
		return []string{"{" + in.Member.Name + "}"}, nil
	case bytecode.KindLoad, bytecode.KindIncrement, bytecode.KindCheckCast:
		var out []string
		for _, rel := range n.Relations {
			ps, err := r.parts(s, rel)
			if err != nil {
				return nil, err
			}
			for _, p := range ps {
				out = appendUnique(out, p.text)
			}
		}
		return out, nil
	case bytecode.KindArrayLoad, bytecode.KindArrayLength, bytecode.KindConvert, bytecode.KindInstanceOf:
		if len(n.Relations) == 0 {
			break
		}
		return r.render(s, n.Relations[0], depth+1)
	case bytecode.KindArithmetic, bytecode.KindCompare:
		return r.arithmetic(s, in, n.Relations)
	}
	return nil, result.Errorf(result.ErrUnresolvedVariable, id, "cannot render %s", in)
}

// =============================================================================
// Parts
// =============================================================================

// part is one concrete rendering of a sub-expression.
type part struct {
	text     string
	value    any
	rendered bool // substituted by Stringify
	node     result.ID
}

func (r *Stringify) parts(s Scope, id result.ID) ([]part, error) {
	ids, err := s.Expand(id)
	if err != nil {
		return nil, err
	}
	out := make([]part, 0, len(ids))
	for _, x := range ids {
		n, err := s.Arena().Get(x)
		if err != nil {
			return nil, err
		}
		out = append(out, part{text: host.ToString(n.Value), value: n.Value, rendered: n.Origin == Origin, node: id})
	}
	return out, nil
}

// receiver renders the object of a call: library values as themselves,
// program objects by variable or class name in Full mode and not at all in
// VarOnly mode.
func (r *Stringify) receiver(s Scope, p part) (string, bool) {
	if p.rendered || isLibraryValue(p.value) {
		return p.text, true
	}
	if !r.full() {
		return "", false
	}
	if name := varName(s, p.node); name != "" && name != "this" {
		return name, true
	}
	return classAsVar(typeutil.SimpleName(host.ClassOf(p.value))), true
}

func isLibraryValue(v any) bool {
	switch v.(type) {
	case nil, string, int32, int64, float32, float64, bool, host.Char, bytecode.ClassConst, *host.StringBuilder:
		return true
	}
	return strings.HasPrefix(host.ClassOf(v), "java/")
}

func varName(s Scope, id result.ID) string {
	for i := 0; i < 8; i++ {
		n, err := s.Arena().Get(id)
		if err != nil {
			return ""
		}
		switch n.Kind {
		case result.Variable:
			return n.Var.Name
		case result.Duplicate:
			id = n.Alias
		case result.Stub:
			id = n.Source
		default:
			return ""
		}
	}
	return ""
}

// classAsVar turns a class name into a variable-like name: the first three
// letters are lowercased.
func classAsVar(simple string) string {
	if len(simple) <= 2 {
		return simple
	}
	return strings.ToLower(simple[:3]) + simple[3:]
}

// =============================================================================
// Calls
// =============================================================================

func (r *Stringify) call(s Scope, n result.Node) ([]string, error) {
	call := n.Call
	args, err := r.argParts(s, call.Args)
	if err != nil {
		return nil, err
	}

	if call.Dynamic != nil {
		return r.dynamic(call.Dynamic, args)
	}

	var out []string
	if call.Ref.Name == "<init>" {
		for _, row := range args {
			out = appendUnique(out, r.newCall(call.Ref.Owner, row))
		}
		return out, nil
	}

	objs := []string{""}
	hasObj := false
	if !call.Receiver.IsZero() {
		ps, err := r.parts(s, call.Receiver)
		if err != nil {
			return nil, err
		}
		objs = objs[:0]
		for _, p := range ps {
			o, ok := r.receiver(s, p)
			if ok {
				hasObj = true
			}
			objs = appendUnique(objs, o)
		}
	}
	for _, o := range objs {
		for _, row := range args {
			out = appendUnique(out, r.methodCall(call.Ref.Owner, call.Ref.Name, o, hasObj, row))
			if len(out) >= maxRenderings {
				return out, nil
			}
		}
	}
	return out, nil
}

// argParts renders every argument and combines the renderings into rows.
func (r *Stringify) argParts(s Scope, args []result.ID) ([][]string, error) {
	rows := [][]string{{}}
	for _, a := range args {
		ps, err := r.parts(s, a)
		if err != nil {
			return nil, err
		}
		var next [][]string
		for _, row := range rows {
			for _, p := range ps {
				if len(next) >= maxRenderings {
					break
				}
				next = append(next, append(append([]string(nil), row...), p.text))
			}
		}
		rows = next
	}
	return rows, nil
}

func (r *Stringify) methodCall(owner, name, obj string, hasObj bool, args []string) string {
	joined := strings.Join(args, ", ")
	if r.full() {
		if !hasObj || obj == "" {
			obj = typeutil.SimpleName(owner)
		}
		return "{" + obj + "." + name + "(" + joined + ")}"
	}
	if len(args) > 1 || (len(obj) > 1 && len(args) > 0) {
		return obj + "(" + joined + ")"
	}
	return obj + joined
}

func (r *Stringify) newCall(owner string, args []string) string {
	joined := strings.Join(args, ", ")
	if r.full() {
		return "{new " + typeutil.SimpleName(owner) + "(" + joined + ")}"
	}
	if len(args) > 1 {
		return "(" + joined + ")"
	}
	return joined
}

func (r *Stringify) dynamic(d *bytecode.DynamicRef, args [][]string) ([]string, error) {
	var out []string
	recipe, isRecipe := "", false
	if d.Bootstrap.Name == "makeConcatWithConstants" && len(d.Args) > 0 {
		recipe, isRecipe = d.Args[0].(string)
	}
	for _, row := range args {
		if !isRecipe {
			out = appendUnique(out, strings.Join(row, ""))
			continue
		}
		vals := make([]any, len(row))
		descs := make([]string, len(row))
		for i, a := range row {
			vals[i], descs[i] = a, "Ljava/lang/String;"
		}
		text, err := host.Concat(recipe, vals, descs, d.Args[1:])
		if err != nil {
			return nil, result.Aggregate(result.ErrIllegalInvocation, result.None, "concat", []error{err})
		}
		out = appendUnique(out, text)
	}
	return out, nil
}

// =============================================================================
// Arithmetic
// =============================================================================

var operators = map[bytecode.Opcode]string{
	bytecode.IADD: "+", bytecode.LADD: "+", bytecode.FADD: "+", bytecode.DADD: "+",
	bytecode.ISUB: "-", bytecode.LSUB: "-", bytecode.FSUB: "-", bytecode.DSUB: "-",
	bytecode.IMUL: "*", bytecode.LMUL: "*", bytecode.FMUL: "*", bytecode.DMUL: "*",
	bytecode.IDIV: "/", bytecode.LDIV: "/", bytecode.FDIV: "/", bytecode.DDIV: "/",
	bytecode.IREM: "%", bytecode.LREM: "%", bytecode.FREM: "%", bytecode.DREM: "%",
	bytecode.IAND: "&", bytecode.LAND: "&",
	bytecode.IOR: "|", bytecode.LOR: "|",
	bytecode.IXOR: "^", bytecode.LXOR: "^",
	bytecode.ISHL: "<<", bytecode.LSHL: "<<",
	bytecode.ISHR: ">>", bytecode.LSHR: ">>",
	bytecode.IUSHR: ">>>", bytecode.LUSHR: ">>>",
	bytecode.LCMP: "<=>", bytecode.FCMPL: "<=>", bytecode.FCMPG: "<=>", bytecode.DCMPL: "<=>", bytecode.DCMPG: "<=>",
}

func isShift(op bytecode.Opcode) bool {
	switch op {
	case bytecode.ISHL, bytecode.LSHL, bytecode.ISHR, bytecode.LSHR, bytecode.IUSHR, bytecode.LUSHR:
		return true
	}
	return false
}

func (r *Stringify) arithmetic(s Scope, in *bytecode.Instruction, ops []result.ID) ([]string, error) {
	if len(ops) == 0 {
		return nil, result.Errorf(result.ErrUnresolvedVariable, result.None, "%s has no operands", in)
	}
	first, err := r.parts(s, ops[0])
	if err != nil {
		return nil, err
	}
	if len(ops) == 1 {
		var out []string
		for _, p := range first {
			if r.full() {
				out = appendUnique(out, "-"+p.text)
			} else {
				out = appendUnique(out, p.text)
			}
		}
		return out, nil
	}
	second, err := r.parts(s, ops[1])
	if err != nil {
		return nil, err
	}

	if !r.full() {
		if texts := renderedTexts(first); len(texts) > 0 {
			return texts, nil
		}
		if texts := renderedTexts(second); len(texts) > 0 {
			return texts, nil
		}
	}

	op, ok := operators[in.Op]
	if !ok {
		return nil, result.Errorf(result.ErrUnresolvedVariable, result.None, "cannot render %s", in)
	}
	var out []string
	for _, a := range first {
		for _, b := range second {
			bt := b.text
			if isShift(in.Op) {
				if n, ok := b.value.(int32); ok && !b.rendered {
					bt = fmt.Sprint(n & 0x1f)
				}
			}
			out = appendUnique(out, a.text+" "+op+" "+bt)
		}
	}
	return out, nil
}

func renderedTexts(ps []part) []string {
	var out []string
	for _, p := range ps {
		if p.rendered {
			out = appendUnique(out, p.text)
		}
	}
	return out
}

func appendUnique(out []string, vs ...string) []string {
	for _, v := range vs {
		dup := false
		for _, o := range out {
			if o == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}
