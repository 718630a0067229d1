package eval

import (
	"errors"
	"fmt"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/result"
	"github.com/mpyw/bceval/internal/typeutil"
)

// Instance is an object of a program class created by the evaluated code.
// Its fields are read from the constructor that initialized it.
type Instance struct {
	Class string
	Ctor  *Context // constructor context with this instance as receiver
}

// JavaClass implements host.Classed.
func (i *Instance) JavaClass() string { return i.Class }

func (i *Instance) String() string {
	return typeutil.JavaName(i.Class) + "(new)"
}

// NewHandler handles object creation. The value of new is the object its
// matching constructor call initializes.
type NewHandler struct{}

// CanHandle returns true for new.
func (h *NewHandler) CanHandle(in *bytecode.Instruction) bool {
	return in.Kind() == bytecode.KindNew
}

// Handle records the creation together with its constructor arguments.
func (h *NewHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	e := c.env
	site := c.site(in.Pos)
	init, err := c.findInit(in)
	if err != nil {
		return result.None, err
	}
	if init == nil {
		// never initialized on the paths we can see
		return e.Arena.NewConstant(site, host.NewObject(in.Type)), nil
	}
	sig, err := typeutil.ParseMethod(init.Member.Desc)
	if err != nil {
		return result.None, result.Errorf(result.ErrBadEval, result.None, "%s: %v", init, err)
	}
	args := make([]result.ID, len(sig.Params))
	for i := range args {
		if args[i], err = c.Operand(init.Pos, i+1); err != nil {
			return result.None, err
		}
	}
	ref := *init.Member
	call := result.CallInfo{Op: init.Op, Ref: ref, Args: args}
	return e.Arena.NewInvoke(site, in, call, func(f *result.Forcer) (result.ID, error) {
		if _, ok := e.Program.Class(ref.Owner); ok {
			return c.instantiate(site, ref, args)
		}
		return c.combineCall(f, site, args, func(ids []result.ID, vals []any) (result.ID, error) {
			return c.construct(f, site, ref, ids, vals)
		})
	}), nil
}

// findInit returns the constructor call consuming the object created at in.
func (c *Context) findInit(in *bytecode.Instruction) (*bytecode.Instruction, error) {
	code := c.Tree.Code()
	for pos, ok := code.Next(in.Pos); ok; pos, ok = code.Next(pos) {
		next, _ := code.At(pos)
		if next.Op != bytecode.INVOKESPECIAL || next.Member == nil || next.Member.Name != "<init>" || next.Member.Owner != in.Type {
			continue
		}
		if _, ok := c.Tree.SegmentOf(pos); !ok {
			continue
		}
		sig, err := typeutil.ParseMethod(next.Member.Desc)
		if err != nil {
			return nil, result.Errorf(result.ErrBadEval, result.None, "%s: %v", next, err)
		}
		ps, err := c.producers(pos, len(sig.Params))
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if p.pos == in.Pos && !p.handler {
				return next, nil
			}
		}
	}
	return nil, nil
}

// instantiate creates an Instance of a program class whose constructor runs
// with the given arguments.
func (c *Context) instantiate(site result.Site, ref bytecode.MemberRef, args []result.ID) (result.ID, error) {
	e := c.env
	m, ok := e.Program.ResolveMethod(ref.Owner, ref.Name, ref.Desc)
	if !ok || m.Owner != ref.Owner {
		return e.Arena.NewIllegal(site, result.StatusNotFound, result.None, fmt.Errorf("constructor %s", ref)), nil
	}
	inst := &Instance{Class: ref.Owner}
	this := e.Arena.NewConstant(site, inst)
	fixed := map[int]result.ID{0: this}
	for i, s := range m.ParamSlots() {
		fixed[s] = args[i]
	}
	ctor, err := e.Context(m, nil, fixed)
	if err != nil {
		return result.None, err
	}
	inst.Ctor = ctor
	return this, nil
}

// construct calls a host constructor.
func (c *Context) construct(f *result.Forcer, site result.Site, ref bytecode.MemberRef, ids []result.ID, vals []any) (result.ID, error) {
	e := c.env
	if fn, ok := e.Host.Lookup(ref.Owner, "<init>", ref.Desc); ok {
		out, err := host.Call(fn, host.Key{Owner: ref.Owner, Name: "<init>", Desc: ref.Desc}, nil, vals)
		if err != nil {
			return result.None, result.Aggregate(result.ErrIllegalInvocation, result.None, ref.String(), []error{err})
		}
		return e.Arena.NewConstant(site, out, ids...), nil
	}
	if _, ok := e.Program.Class(ref.Owner); ok {
		return c.instantiate(site, ref, ids)
	}
	if e.Live != nil {
		out, err := e.Live.Invoke(nil, bytecode.MemberRef{Owner: ref.Owner, Name: "<init>", Desc: ref.Desc}, vals)
		if err == nil {
			return e.Arena.NewConstant(site, out, ids...), nil
		}
		if !errors.Is(err, host.ErrNotLive) {
			return result.None, result.Aggregate(result.ErrIllegalInvocation, result.None, ref.String(), []error{err})
		}
	}
	return e.Arena.NewConstant(site, host.NewObject(ref.Owner), ids...), nil
}

// combineCall expands arguments with the resolver and calls fn once per
// argument row.
func (c *Context) combineCall(f *result.Forcer, site result.Site, args []result.ID, fn func([]result.ID, []any) (result.ID, error)) (result.ID, error) {
	e := c.env
	lists := make([][]cand, len(args))
	for i, a := range args {
		cands, err := e.expand(f, a, true)
		if len(cands) == 0 || result.IsFatal(err) {
			return result.None, err
		}
		lists[i] = cands
	}
	var out []result.ID
	var tags []result.Choices
	var errs []error
	for _, r := range e.rows(lists) {
		ids := make([]result.ID, len(r.cands))
		vals := make([]any, len(r.cands))
		for i, cd := range r.cands {
			v, err := e.value(cd.id)
			if err != nil {
				return result.None, err
			}
			ids[i], vals[i] = cd.id, v
		}
		id, err := fn(ids, vals)
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
		return result.None, result.Aggregate(result.ErrNoCallSucceeded, result.None, "no argument row succeeded", errs)
	}
	return e.Arena.NewMultiple(site, out, tags)
}

// =============================================================================
// Fields
// =============================================================================

// FieldHandler handles getfield and getstatic.
//
// A field is read from, in order: a known object (image instance, live
// instance or an Instance created by evaluated code), the live application,
// a constant initializer, and the values stored by the constructors or the
// static initializer of the declaring class.
type FieldHandler struct{}

// CanHandle returns true for field reads.
func (h *FieldHandler) CanHandle(in *bytecode.Instruction) bool {
	return in.Kind() == bytecode.KindGetField
}

// Handle records the field read.
func (h *FieldHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	e := c.env
	site := c.site(in.Pos)
	ref := *in.Member
	if in.Op == bytecode.GETSTATIC {
		return e.Arena.NewDelay(site, in, nil, func(f *result.Forcer) (result.ID, error) {
			return c.staticField(f, site, ref)
		}), nil
	}
	obj, err := c.Operand(in.Pos, 0)
	if err != nil {
		return result.None, err
	}
	return e.Arena.NewDelay(site, in, []result.ID{obj}, func(f *result.Forcer) (result.ID, error) {
		cands, err := e.expand(f, obj, false)
		if result.IsFatal(err) {
			return result.None, err
		}
		if len(cands) == 0 {
			return c.inferField(f, site, ref.Owner, ref.Name)
		}
		var out []result.ID
		var tags []result.Choices
		for _, cd := range cands {
			v, err := e.value(cd.id)
			if err != nil {
				return result.None, err
			}
			id, err := c.objectField(f, site, ref, cd.id, v)
			if err != nil {
				return result.None, err
			}
			out = append(out, id)
			tags = append(tags, cd.tags)
		}
		return e.Arena.NewMultiple(site, out, tags)
	}), nil
}

func (c *Context) objectField(f *result.Forcer, site result.Site, ref bytecode.MemberRef, objID result.ID, obj any) (result.ID, error) {
	e := c.env
	switch o := obj.(type) {
	case nil:
		return e.Arena.NewIllegal(site, result.StatusInvocationFailed, objID, fmt.Errorf("read of %s on null", ref)), nil
	case *host.Object:
		if v, ok := o.Fields[ref.Name]; ok {
			return e.Arena.NewConstant(site, v, objID), nil
		}
	case *Instance:
		if o.Ctor != nil {
			return c.ctorField(f, site, o, ref.Name)
		}
	}
	if e.Live != nil {
		if v, ok := e.Live.Field(obj, ref.Name); ok {
			return e.Arena.NewConstant(site, v, objID), nil
		}
	}
	class := ref.Owner
	if rc := host.ClassOf(obj); rc != "" {
		if _, ok := e.Program.Class(rc); ok {
			class = rc
		}
	}
	return c.inferField(f, site, class, ref.Name)
}

// inferField reads a field of an unknown object of class from the stores
// its constructors make.
func (c *Context) inferField(f *result.Forcer, site result.Site, class, name string) (result.ID, error) {
	e := c.env
	fd, ok := e.Program.ResolveField(class, name)
	if !ok {
		return e.Arena.NewIllegal(site, result.StatusNotFound, result.None, fmt.Errorf("field %s.%s", class, name)), nil
	}
	if fd.IsStatic() {
		return c.staticField(f, site, bytecode.MemberRef{Owner: fd.Owner, Name: name, Desc: fd.Desc})
	}
	cls, _ := e.Program.Class(fd.Owner)
	var out []result.ID
	for _, m := range cls.MethodsNamed("<init>") {
		if m.IsAbstract() {
			continue
		}
		ctx, err := e.Context(m, nil, nil)
		if err != nil {
			return result.None, err
		}
		ids, _, err := ctx.storedFields(bytecode.PUTFIELD, fd.Owner, name)
		if err != nil {
			return result.None, err
		}
		out = append(out, ids...)
	}
	if len(out) == 0 {
		return e.Arena.NewIllegal(site, result.StatusNotAccessible, result.None,
			fmt.Errorf("no constructor of %s assigns %s", fd.Owner, name)), nil
	}
	return e.Arena.NewMultiple(site, out, nil)
}

// ctorField reads a field of an Instance from the constructor that created
// it, following this(...) and super(...) calls.
func (c *Context) ctorField(f *result.Forcer, site result.Site, inst *Instance, name string) (result.ID, error) {
	e := c.env
	ctor := inst.Ctor
	for depth := 0; ctor != nil && depth < e.maxCallDepth(); depth++ {
		ids, tags, err := ctor.storedFields(bytecode.PUTFIELD, "", name)
		if err != nil {
			return result.None, err
		}
		if len(ids) > 0 {
			return e.Arena.NewMultiple(site, ids, tags)
		}
		next, err := ctor.delegate()
		if err != nil {
			return result.None, err
		}
		ctor = next
	}
	return c.inferField(f, site, inst.Class, name)
}

// delegate returns the context of the this(...) or super(...) constructor
// call made by a constructor context, with the same receiver.
func (c *Context) delegate() (*Context, error) {
	this, ok := c.Arg(0)
	if !ok {
		return nil, nil
	}
	for _, in := range c.Tree.Code().Instructions() {
		if in.Op != bytecode.INVOKESPECIAL || in.Member == nil || in.Member.Name != "<init>" {
			continue
		}
		if _, ok := c.Tree.SegmentOf(in.Pos); !ok {
			continue
		}
		m, ok := c.env.Program.ResolveMethod(in.Member.Owner, "<init>", in.Member.Desc)
		if !ok || m.IsAbstract() || m.Owner != in.Member.Owner {
			return nil, nil
		}
		fixed := map[int]result.ID{0: this}
		for i, s := range m.ParamSlots() {
			a, err := c.Operand(in.Pos, i+1)
			if err != nil {
				return nil, err
			}
			fixed[s] = a
		}
		return c.env.Context(m, nil, fixed)
	}
	return nil, nil
}

// storedFields returns the values the context stores to field name, keeping
// the last store of each segment.
func (c *Context) storedFields(op bytecode.Opcode, owner, name string) ([]result.ID, []result.Choices, error) {
	last := make(map[int]*bytecode.Instruction)
	var order []int
	for _, in := range c.Tree.Code().Instructions() {
		if in.Op != op || in.Member == nil || in.Member.Name != name {
			continue
		}
		if owner != "" && !typeutil.IsAssignable(c.env.Program, owner, in.Member.Owner) &&
			!typeutil.IsAssignable(c.env.Program, in.Member.Owner, owner) {
			continue
		}
		s, ok := c.Tree.SegmentOf(in.Pos)
		if !ok {
			continue
		}
		if _, seen := last[s.ID]; !seen {
			order = append(order, s.ID)
		}
		last[s.ID] = in
	}
	var ids []result.ID
	var tags []result.Choices
	for _, sid := range order {
		in := last[sid]
		operand := 1
		if op == bytecode.PUTSTATIC {
			operand = 0
		}
		v, err := c.Operand(in.Pos, operand)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, v)
		tags = append(tags, c.segChoice(in.Pos))
	}
	return ids, tags, nil
}

// staticField reads a static field.
func (c *Context) staticField(f *result.Forcer, site result.Site, ref bytecode.MemberRef) (result.ID, error) {
	e := c.env
	owner := ref.Owner
	fd, declared := e.Program.ResolveField(ref.Owner, ref.Name)
	if declared {
		owner = fd.Owner
	}
	if e.Live != nil {
		if v, ok := e.Live.StaticField(owner, ref.Name); ok {
			return e.Arena.NewConstant(site, v), nil
		}
	}
	if !declared {
		return e.Arena.NewIllegal(site, result.StatusNotFound, result.None, fmt.Errorf("static field %s", ref)), nil
	}
	if fd.Constant != nil {
		return e.Arena.NewConstant(site, fd.Constant), nil
	}
	cls, _ := e.Program.Class(owner)
	if m, ok := cls.Method("<clinit>", "()V"); ok && !m.IsAbstract() {
		ctx, err := e.Context(m, nil, nil)
		if err != nil {
			return result.None, err
		}
		ids, tags, err := ctx.storedFields(bytecode.PUTSTATIC, owner, ref.Name)
		if err != nil {
			return result.None, err
		}
		if len(ids) > 0 {
			return e.Arena.NewMultiple(site, ids, tags)
		}
	}
	return e.Arena.NewIllegal(site, result.StatusNotAccessible, result.None, fmt.Errorf("static field %s is never assigned", ref)), nil
}
