package eval

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/cache"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/result"
)

// InvokeHandler handles value-returning method calls.
//
// A call is evaluated once per argument row. Each row is dispatched, in
// order, to:
//  1. the host library, by runtime class of the receiver, then the declared
//     owner, then java/lang/Object
//  2. a method of the program, evaluated inline with the row as fixed
//     arguments
//  3. the implementation of a lambda receiver
//  4. the live application
//
// A receiver that cannot be resolved becomes a stub when the program
// declares a target for the call, so methods that do not depend on their
// receiver still evaluate.
type InvokeHandler struct{}

// CanHandle returns true for invokevirtual, invokespecial, invokestatic and
// invokeinterface.
func (h *InvokeHandler) CanHandle(in *bytecode.Instruction) bool {
	return in.Kind() == bytecode.KindInvoke
}

// Handle records the call expression.
func (h *InvokeHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	pop, push, ok := bytecode.StackEffect(in)
	if !ok {
		return result.None, result.Errorf(result.ErrBadEval, result.None, "malformed call %s", in)
	}
	if push == 0 {
		return result.None, result.Errorf(result.ErrBadEval, result.None, "%s returns no value", in)
	}
	ops, err := c.Operands(in.Pos, pop)
	if err != nil {
		return result.None, err
	}
	call := result.CallInfo{Op: in.Op, Ref: *in.Member, Args: ops}
	if in.Op != bytecode.INVOKESTATIC {
		call.Receiver, call.Args = ops[0], ops[1:]
	}
	return c.env.Arena.NewInvoke(c.site(in.Pos), in, call, func(f *result.Forcer) (result.ID, error) {
		return c.invoke(f, in, call)
	}), nil
}

func (c *Context) invoke(f *result.Forcer, in *bytecode.Instruction, call result.CallInfo) (result.ID, error) {
	e := c.env
	site := c.site(in.Pos)

	var lists [][]cand
	if !call.Receiver.IsZero() {
		recv, err := e.expand(f, call.Receiver, false)
		if result.IsFatal(err) {
			return result.None, err
		}
		if len(recv) == 0 {
			if len(e.programTargets(in.Op, call.Ref)) == 0 {
				return result.None, err
			}
			log.Debugf("%s: stubbing unresolved receiver of %s", c.key, call.Ref)
			recv = []cand{{id: e.Arena.NewStub(site, call.Receiver)}}
		}
		lists = append(lists, recv)
	}
	for _, a := range call.Args {
		cands, err := e.expand(f, a, true)
		if len(cands) == 0 || result.IsFatal(err) {
			return result.None, err
		}
		lists = append(lists, cands)
	}

	var out []result.ID
	var tags []result.Choices
	var errs []error
	for _, r := range e.rows(lists) {
		id, err := c.callRow(f, in, call, r)
		if result.IsFatal(err) {
			return result.None, err
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, id)
		tags = append(tags, r.tags)
	}
	if len(out) == 0 {
		return result.None, result.Aggregate(result.ErrNoCallSucceeded, result.None, call.Ref.String(), errs)
	}
	return e.Arena.NewMultiple(site, out, tags)
}

// callRow evaluates a call for one argument row, going through the cache.
func (c *Context) callRow(f *result.Forcer, in *bytecode.Instruction, call result.CallInfo, r row) (result.ID, error) {
	e := c.env
	key := cache.Key{Scope: c.key, Pos: in.Pos, Params: e.fingerprint(r.cands)}
	if e.Cache != nil {
		if id, ok := e.Cache.Get(key); ok {
			return id, nil
		}
	}

	ids := make([]result.ID, len(r.cands))
	vals := make([]any, len(r.cands))
	stub := false
	for i, cd := range r.cands {
		ids[i] = cd.id
		if e.Arena.KindOf(cd.id) == result.Stub {
			stub = i == 0 && !call.Receiver.IsZero()
			continue
		}
		v, err := e.value(cd.id)
		if err != nil {
			return result.None, err
		}
		vals[i] = v
	}

	site := c.site(in.Pos)
	var id result.ID
	var err error
	truncated := f.Watch()
	switch {
	case stub:
		id, err = c.callStubbed(f, site, in.Op, call.Ref, ids[0], ids[1:])
	case call.Receiver.IsZero():
		id, err = c.invokeMethod(f, site, in.Op, call.Ref, result.None, nil, ids, vals)
	default:
		id, err = c.invokeMethod(f, site, in.Op, call.Ref, ids[0], vals[0], ids[1:], vals[1:])
	}
	if truncated() || err != nil {
		return id, err
	}
	if e.Cache != nil {
		return e.Cache.Put(key, id)
	}
	return id, nil
}

// fingerprint renders the values of a row for the call cache.
func (e *Env) fingerprint(cands []cand) string {
	var b strings.Builder
	for i, cd := range cands {
		if i > 0 {
			b.WriteByte(';')
		}
		n, err := e.Arena.Get(cd.id)
		if err == nil && n.Kind == result.Constant {
			if k, ok := constKey(n.Value); ok {
				b.WriteString(k)
				continue
			}
		}
		if err == nil && n.Kind == result.Stub {
			b.WriteString("stub")
			continue
		}
		b.WriteString(cd.id.String())
	}
	return b.String()
}

func constKey(v any) (string, bool) {
	if v == nil {
		return "null", true
	}
	t := reflect.TypeOf(v)
	if !t.Comparable() || t.Kind() == reflect.Pointer {
		return "", false
	}
	return fmt.Sprintf("%T:%v", v, v), true
}

// =============================================================================
// Dispatch
// =============================================================================

// invokeMethod dispatches a call on concrete values.
func (c *Context) invokeMethod(f *result.Forcer, site result.Site, op bytecode.Opcode, ref bytecode.MemberRef,
	recvID result.ID, recv any, argIDs []result.ID, args []any,
) (result.ID, error) {
	e := c.env
	static := op == bytecode.INVOKESTATIC

	if !static && recv == nil {
		return result.None, result.Errorf(result.ErrIllegalInvocation, result.None, "%s on null receiver", ref)
	}
	if l, ok := recv.(host.Lambda); ok && ref.Name == l.Method {
		return c.callLambda(f, site, l, argIDs, args)
	}

	class := ref.Owner
	if !static {
		if rc := host.ClassOf(recv); rc != "" {
			class = rc
		}
	}

	// Host library
	var fn host.Func
	var found bool
	if static || op == bytecode.INVOKESPECIAL {
		fn, found = e.Host.Lookup(ref.Owner, ref.Name, ref.Desc)
	} else {
		fn, found = e.Host.Resolve([]string{class, ref.Owner}, ref.Name, ref.Desc)
	}
	if found {
		out, err := host.Call(fn, host.Key{Owner: class, Name: ref.Name, Desc: ref.Desc}, recv, args)
		if err != nil {
			return result.None, result.Aggregate(result.ErrIllegalInvocation, result.None, ref.String(), []error{err})
		}
		return e.Arena.NewConstant(site, out, relations(recvID, argIDs)...), nil
	}

	// Program methods
	lookup := ref.Owner
	if !static && op != bytecode.INVOKESPECIAL {
		if _, ok := e.Program.Class(class); ok {
			lookup = class
		}
	}
	if m, ok := e.Program.ResolveMethod(lookup, ref.Name, ref.Desc); ok && !m.IsAbstract() {
		return c.inline(f, site, m, recvID, argIDs)
	}

	// Live application
	if e.Live != nil {
		out, err := e.Live.Invoke(recv, ref, args)
		switch {
		case err == nil:
			return e.Arena.NewConstant(site, out, relations(recvID, argIDs)...), nil
		case !errors.Is(err, host.ErrNotLive):
			return result.None, result.Aggregate(result.ErrIllegalInvocation, result.None, ref.String(), []error{err})
		}
	}
	return result.None, result.Errorf(result.ErrMemberNotFound, result.None, "%s for %s", ref, class)
}

// programTargets returns the program methods a call may run when its
// receiver is unknown.
func (e *Env) programTargets(op bytecode.Opcode, ref bytecode.MemberRef) []*bytecode.Method {
	m, ok := e.Program.ResolveMethod(ref.Owner, ref.Name, ref.Desc)
	if ok && !m.IsAbstract() {
		return []*bytecode.Method{m}
	}
	if op == bytecode.INVOKESPECIAL || op == bytecode.INVOKESTATIC {
		return nil
	}
	return e.Program.Implementations(ref.Owner, ref.Name, ref.Desc)
}

// callStubbed evaluates every program target of a call whose receiver is a
// stub.
func (c *Context) callStubbed(f *result.Forcer, site result.Site, op bytecode.Opcode, ref bytecode.MemberRef,
	stub result.ID, argIDs []result.ID,
) (result.ID, error) {
	targets := c.env.programTargets(op, ref)
	var out []result.ID
	var errs []error
	for _, m := range targets {
		id, err := c.inline(f, site, m, stub, argIDs)
		if result.IsFatal(err) {
			return result.None, err
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return result.None, result.Aggregate(result.ErrNoCallSucceeded, stub, ref.String(), errs)
	}
	return c.env.Arena.NewMultiple(site, out, nil)
}

// inline evaluates a program method with fixed arguments and returns the
// union of the values it can return.
func (c *Context) inline(f *result.Forcer, site result.Site, m *bytecode.Method, this result.ID, argIDs []result.ID) (result.ID, error) {
	e := c.env
	if m.IsAbstract() {
		return result.None, result.Errorf(result.ErrMemberNotFound, result.None, "%s has no body", m)
	}
	slots := m.ParamSlots()
	if len(slots) != len(argIDs) {
		return result.None, result.Errorf(result.ErrBadEval, result.None, "%s called with %d arguments", m, len(argIDs))
	}
	args := make(map[int]result.ID, len(slots)+1)
	if !m.IsStatic() {
		args[0] = this
	}
	for i, s := range slots {
		args[s] = argIDs[i]
	}
	comp, _ := e.Program.ComponentOfType(m.Owner)
	callee, err := e.Context(m, comp, args)
	if err != nil {
		return result.None, err
	}

	if f.Depth() >= e.maxCallDepth() {
		f.Cut(0)
		return result.None, result.Errorf(result.ErrIllegalInvocation, result.None, "call depth %d exceeded at %s", e.maxCallDepth(), m)
	}
	if !f.Push(callee.Key()) {
		return result.None, result.Errorf(result.ErrIllegalInvocation, result.None, "recursive call of %s", m)
	}
	defer f.Pop()

	rets, rtags, err := callee.ReturnValues()
	if err != nil {
		return result.None, err
	}
	if len(rets) == 0 {
		return result.None, result.Errorf(result.ErrIllegalInvocation, result.None, "%s never returns a value", m)
	}

	var out []result.ID
	var tags []result.Choices
	var errs []error
	for i, r := range rets {
		cands, err := e.expand(f, r, true)
		if result.IsFatal(err) {
			return result.None, err
		}
		if err != nil {
			errs = append(errs, err)
		}
		for _, cd := range cands {
			out = append(out, cd.id)
			tags = append(tags, cd.tags.Union(rtags[i]))
		}
	}
	if len(out) == 0 {
		return result.None, alternatives(result.None, errs)
	}
	return e.Arena.NewMultiple(site, out, tags)
}

func relations(recv result.ID, args []result.ID) []result.ID {
	out := make([]result.ID, 0, len(args)+1)
	if !recv.IsZero() {
		out = append(out, recv)
	}
	return append(out, args...)
}
