package eval

import (
	"fmt"
	"strings"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/result"
	"github.com/mpyw/bceval/internal/typeutil"
)

// Bootstrap methods the evaluator understands.
const (
	concatFactory = "java/lang/invoke/StringConcatFactory"
	lambdaFactory = "java/lang/invoke/LambdaMetafactory"
)

// DynamicHandler handles invokedynamic call sites: string concatenation
// recipes and lambda creation.
type DynamicHandler struct{}

// CanHandle returns true for invokedynamic.
func (h *DynamicHandler) CanHandle(in *bytecode.Instruction) bool {
	return in.Kind() == bytecode.KindInvokeDynamic
}

// Handle records the call site.
func (h *DynamicHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	d := in.Dynamic
	if d == nil {
		return result.None, result.Errorf(result.ErrBadEval, result.None, "%s has no call site", in)
	}
	sig, err := typeutil.ParseMethod(d.Desc)
	if err != nil {
		return result.None, result.Errorf(result.ErrBadEval, result.None, "%s: %v", in, err)
	}
	ops, err := c.Operands(in.Pos, len(sig.Params))
	if err != nil {
		return result.None, err
	}
	call := result.CallInfo{Op: in.Op, Ref: d.Bootstrap, Dynamic: d, Args: ops}

	e := c.env
	site := c.site(in.Pos)
	var fn func([]any) (any, error)
	resolve := false
	switch {
	case d.Bootstrap.Owner == concatFactory && d.Bootstrap.Name == "makeConcatWithConstants":
		recipe, consts, err := concatRecipe(d)
		if err != nil {
			return result.None, err
		}
		resolve = true
		fn = func(vs []any) (any, error) {
			return host.Concat(recipe, vs, sig.Params, consts)
		}
	case d.Bootstrap.Owner == concatFactory && d.Bootstrap.Name == "makeConcat":
		resolve = true
		fn = func(vs []any) (any, error) {
			var b strings.Builder
			for i, v := range vs {
				b.WriteString(host.ToString(host.Typed(v, sig.Params[i])))
			}
			return b.String(), nil
		}
	case d.Bootstrap.Owner == lambdaFactory:
		l, err := lambdaOf(d, sig)
		if err != nil {
			return result.None, err
		}
		fn = func(vs []any) (any, error) {
			out := l
			out.Captured = append([]any(nil), vs...)
			return out, nil
		}
	default:
		return e.Arena.NewIllegal(site, result.StatusNotFound, result.None,
			fmt.Errorf("unsupported bootstrap %s", d.Bootstrap)), nil
	}

	return e.Arena.NewInvoke(site, in, call, func(f *result.Forcer) (result.ID, error) {
		return e.combine(f, site, ops, resolve, fn)
	}), nil
}

func concatRecipe(d *bytecode.DynamicRef) (string, []any, error) {
	if len(d.Args) == 0 {
		return "", nil, result.Errorf(result.ErrBadEval, result.None, "concat call site %s has no recipe", d.Name)
	}
	recipe, ok := d.Args[0].(string)
	if !ok {
		return "", nil, result.Errorf(result.ErrBadEval, result.None, "concat recipe is %T", d.Args[0])
	}
	return recipe, d.Args[1:], nil
}

// lambdaOf reads the metafactory arguments: the erased interface method
// type, the implementation handle and the instantiated type.
func lambdaOf(d *bytecode.DynamicRef, sig typeutil.MethodDesc) (host.Lambda, error) {
	if len(d.Args) < 2 {
		return host.Lambda{}, result.Errorf(result.ErrBadEval, result.None, "lambda call site %s lacks arguments", d.Name)
	}
	mt, ok := d.Args[0].(bytecode.MethodType)
	if !ok {
		return host.Lambda{}, result.Errorf(result.ErrBadEval, result.None, "lambda method type is %T", d.Args[0])
	}
	impl, ok := d.Args[1].(bytecode.MethodHandle)
	if !ok {
		return host.Lambda{}, result.Errorf(result.ErrBadEval, result.None, "lambda implementation is %T", d.Args[1])
	}
	return host.Lambda{
		Interface: typeutil.ClassName(sig.Return),
		Method:    d.Name,
		Desc:      mt.Desc,
		Impl:      impl,
	}, nil
}

// callLambda runs the implementation of a lambda with its captured values
// followed by the call arguments.
func (c *Context) callLambda(f *result.Forcer, site result.Site, l host.Lambda, argIDs []result.ID, args []any) (result.ID, error) {
	e := c.env
	ids := make([]result.ID, 0, len(l.Captured)+len(argIDs))
	vals := make([]any, 0, len(l.Captured)+len(args))
	for _, v := range l.Captured {
		ids = append(ids, e.Arena.NewConstant(site, v))
		vals = append(vals, v)
	}
	ids = append(ids, argIDs...)
	vals = append(vals, args...)

	ref := l.Impl.Ref
	switch l.Impl.Kind {
	case bytecode.HandleStatic:
		return c.invokeMethod(f, site, bytecode.INVOKESTATIC, ref, result.None, nil, ids, vals)
	case bytecode.HandleConstructor:
		return c.construct(f, site, ref, ids, vals)
	}
	if len(ids) == 0 {
		return result.None, result.Errorf(result.ErrIllegalInvocation, result.None, "lambda %s has no receiver", ref)
	}
	op := bytecode.INVOKEVIRTUAL
	switch l.Impl.Kind {
	case bytecode.HandleInterface:
		op = bytecode.INVOKEINTERFACE
	case bytecode.HandleSpecial:
		op = bytecode.INVOKESPECIAL
	}
	return c.invokeMethod(f, site, op, ref, ids[0], vals[0], ids[1:], vals[1:])
}
