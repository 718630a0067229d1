package eval

import (
	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/result"
	"github.com/mpyw/bceval/internal/typeutil"
)

// =============================================================================
// Handler Interface (Strategy Pattern)
//
// Each handler builds the result of the value pushed by one group of
// instructions. Context.Evaluate delegates to the first handler accepting the
// instruction.
// =============================================================================

// Handler builds the result pushed by an instruction.
type Handler interface {
	// CanHandle returns true if this handler can evaluate the instruction.
	CanHandle(in *bytecode.Instruction) bool

	// Handle returns the result of the value the instruction pushes.
	Handle(c *Context, in *bytecode.Instruction) (result.ID, error)
}

// DefaultHandlers returns the handlers for every value-producing instruction.
func DefaultHandlers() []Handler {
	return []Handler{
		&ConstHandler{},
		&LoadHandler{},
		&StackHandler{},
		&ArithmeticHandler{},
		&FieldHandler{},
		&InvokeHandler{},
		&DynamicHandler{},
		&NewHandler{},
		&ArrayHandler{},
		&TypeHandler{},
	}
}

func (c *Context) dispatch(in *bytecode.Instruction) (result.ID, error) {
	for _, h := range c.env.Handlers {
		if h.CanHandle(in) {
			return h.Handle(c, in)
		}
	}
	return result.None, result.Errorf(result.ErrBadEval, result.None, "%s pushes no value", in)
}

// =============================================================================
// Handler Implementations
// =============================================================================

// ConstHandler handles constant pushes.
type ConstHandler struct{}

// CanHandle returns true for constant pushes.
func (h *ConstHandler) CanHandle(in *bytecode.Instruction) bool {
	return in.Kind() == bytecode.KindConst
}

// Handle returns the constant.
func (h *ConstHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	return c.env.Arena.NewConstant(c.site(in.Pos), in.Const), nil
}

// StackHandler handles dup and swap forms. The top value they push is an
// alias of one of their inputs.
type StackHandler struct{}

// CanHandle returns true for stack shuffles.
func (h *StackHandler) CanHandle(in *bytecode.Instruction) bool {
	return in.Kind() == bytecode.KindStack
}

// Handle returns a duplicate of the input copied to the top of the stack.
func (h *StackHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	outs, _, err := c.shuffle(in)
	if err != nil {
		return result.None, err
	}
	if len(outs) == 0 {
		return result.None, result.Errorf(result.ErrBadEval, result.None, "%s pushes no value", in)
	}
	v, err := c.valueBefore(in.Pos, outs[0])
	if err != nil {
		return result.None, err
	}
	return c.env.Arena.NewDuplicate(c.site(in.Pos), v), nil
}

// TypeHandler handles checkcast and instanceof.
type TypeHandler struct{}

// CanHandle returns true for type checks.
func (h *TypeHandler) CanHandle(in *bytecode.Instruction) bool {
	return in.Kind() == bytecode.KindCheckCast || in.Kind() == bytecode.KindInstanceOf
}

// Handle passes a checked value through unchanged and evaluates instanceof
// against the runtime class of every candidate.
func (h *TypeHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	obj, err := c.Operand(in.Pos, 0)
	if err != nil {
		return result.None, err
	}
	if in.Op == bytecode.CHECKCAST {
		return c.env.Arena.NewDuplicate(c.site(in.Pos), obj), nil
	}
	e := c.env
	return e.Arena.NewDelay(c.site(in.Pos), in, []result.ID{obj}, func(f *result.Forcer) (result.ID, error) {
		cands, err := e.expand(f, obj, false)
		if len(cands) == 0 {
			return result.None, err
		}
		var ids []result.ID
		var tags []result.Choices
		for _, cd := range cands {
			v, err := e.value(cd.id)
			if err != nil {
				return result.None, err
			}
			var r int32
			if v != nil && typeutil.IsAssignable(e.Program, host.ClassOf(v), in.Type) {
				r = 1
			}
			ids = append(ids, e.Arena.NewConstant(c.site(in.Pos), r, cd.id))
			tags = append(tags, cd.tags)
		}
		return e.Arena.NewMultiple(c.site(in.Pos), ids, tags)
	}), nil
}
