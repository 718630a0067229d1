package eval

import (
	"sync"

	"github.com/mpyw/bceval/internal/branch"
	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/result"
	"github.com/mpyw/bceval/internal/typeutil"
)

// Context evaluates one method body. Results built from it carry its key as
// their scope. A Context is safe for concurrent use.
type Context struct {
	env       *Env
	key       string
	Method    *bytecode.Method
	Component *bytecode.Component
	Tree      *branch.Tree

	args map[int]result.ID

	mu       sync.Mutex
	values   map[bytecode.Pos]result.ID
	operands map[[2]int]result.ID

	bindOnce sync.Once
	bindings []Binding
	bindErr  error
}

// Key returns the identity of the context.
func (c *Context) Key() string {
	return c.key
}

// Env returns the environment the context belongs to.
func (c *Context) Env() *Env {
	return c.env
}

// Arg returns the fixed argument bound to slot.
func (c *Context) Arg(slot int) (result.ID, bool) {
	id, ok := c.args[slot]
	return id, ok
}

// HasArgs reports whether the context runs with fixed arguments.
func (c *Context) HasArgs() bool {
	return len(c.args) > 0
}

// Bindings returns the call sites binding the parameters of the context.
// They are looked up once.
func (c *Context) Bindings() ([]Binding, error) {
	c.bindOnce.Do(func() {
		if c.env.Binder == nil {
			return
		}
		c.bindings, c.bindErr = c.env.Binder.Bindings(c)
		log.Debugf("%s: %d bindings", c.key, len(c.bindings))
	})
	return c.bindings, c.bindErr
}

func (c *Context) site(pos bytecode.Pos) result.Site {
	return result.At(c.key, c.Method.Key(), pos)
}

func (c *Context) instr(pos bytecode.Pos) (*bytecode.Instruction, error) {
	in, ok := c.Tree.Code().At(pos)
	if !ok {
		return nil, result.Errorf(result.ErrBadEval, result.None, "no instruction at %d in %s", pos, c.Method)
	}
	return in, nil
}

// segChoice tags a value produced at pos with the segment holding pos.
func (c *Context) segChoice(pos bytecode.Pos) result.Choices {
	s, ok := c.Tree.SegmentOf(pos)
	if !ok {
		return nil
	}
	return result.Of(result.Choice{Scope: c.key, Kind: result.ChoiceSegment, Index: s.ID})
}

// =============================================================================
// Evaluation entry points
// =============================================================================

// Evaluate returns the result of the value pushed by the instruction at pos.
func (c *Context) Evaluate(pos bytecode.Pos) (result.ID, error) {
	c.mu.Lock()
	id, ok := c.values[pos]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	in, err := c.instr(pos)
	if err != nil {
		return result.None, err
	}
	id, err = c.dispatch(in)
	if err != nil {
		return result.None, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.values[pos]; ok {
		return prev, nil
	}
	c.values[pos] = id
	return id, nil
}

// Operand returns the result of the i-th value consumed by the instruction
// at pos, counted in push order: the receiver of a call is operand 0.
func (c *Context) Operand(pos bytecode.Pos, i int) (result.ID, error) {
	key := [2]int{int(pos), i}
	c.mu.Lock()
	id, ok := c.operands[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	in, err := c.instr(pos)
	if err != nil {
		return result.None, err
	}
	pop, _, ok := bytecode.StackEffect(in)
	if !ok {
		return result.None, result.Errorf(result.ErrBadEval, result.None, "operands of %s depend on the stack", in)
	}
	if i < 0 || i >= pop {
		return result.None, result.Errorf(result.ErrBadEval, result.None, "%s has no operand %d", in, i)
	}
	id, err = c.valueBefore(pos, pop-1-i)
	if err != nil {
		return result.None, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.operands[key]; ok {
		return prev, nil
	}
	c.operands[key] = id
	return id, nil
}

// Operands returns every operand of the instruction at pos in push order.
func (c *Context) Operands(pos bytecode.Pos, n int) ([]result.ID, error) {
	out := make([]result.ID, n)
	for i := range out {
		id, err := c.Operand(pos, i)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// ReturnValues returns the results of every value-returning instruction of
// the method, each tagged with its segment.
func (c *Context) ReturnValues() ([]result.ID, []result.Choices, error) {
	var ids []result.ID
	var tags []result.Choices
	for _, in := range c.Tree.Code().Instructions() {
		if !bytecode.ReturnsValue(in) {
			continue
		}
		if _, ok := c.Tree.SegmentOf(in.Pos); !ok {
			continue // unreachable
		}
		id, err := c.Operand(in.Pos, 0)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		tags = append(tags, c.segChoice(in.Pos))
	}
	return ids, tags, nil
}

// =============================================================================
// Producers
// =============================================================================

// valueBefore returns the value at depth (0 is the top) of the operand stack
// just before pos executes. Values reaching pos along several paths become a
// union tagged with the segment of each producer.
func (c *Context) valueBefore(pos bytecode.Pos, depth int) (result.ID, error) {
	ps, err := c.producers(pos, depth)
	if err != nil {
		return result.None, err
	}
	if len(ps) == 1 {
		return c.producerValue(ps[0])
	}
	ids := make([]result.ID, 0, len(ps))
	tags := make([]result.Choices, 0, len(ps))
	for _, p := range ps {
		id, err := c.producerValue(p)
		if err != nil {
			return result.None, err
		}
		ids = append(ids, id)
		tags = append(tags, c.segChoice(p.pos))
	}
	return c.env.Arena.NewMultiple(c.site(pos), ids, tags)
}

type producer struct {
	pos     bytecode.Pos
	via     bytecode.Pos // last stack shuffle on the way, NoPos if none
	handler bool         // the caught exception of the handler at pos
}

func (c *Context) producerValue(p producer) (result.ID, error) {
	var id result.ID
	var err error
	if p.handler {
		id, err = c.caught(p.pos)
	} else {
		id, err = c.Evaluate(p.pos)
	}
	if err != nil || p.via == bytecode.NoPos {
		return id, err
	}
	return c.env.Arena.NewDuplicate(c.site(p.via), id), nil
}

// producers finds the instructions that push the value at depth before pos.
//
// Stack shuffles are transparent: the walk follows the shuffled value to the
// input it copies. Loops contribute nothing since back-edges are not part of
// the tree.
func (c *Context) producers(at bytecode.Pos, depth int) ([]producer, error) {
	var out []producer
	seen := make(map[[2]int]bool)

	var walk func(pos bytecode.Pos, need int, via bytecode.Pos) error
	back := func(pos bytecode.Pos, need int, via bytecode.Pos) error {
		preds := c.Tree.Preds(pos)
		if len(preds) == 0 {
			if need == 0 && c.Tree.IsHandlerEntry(pos) {
				out = append(out, producer{pos: pos, via: via, handler: true})
				return nil
			}
			return result.Errorf(result.ErrBadEval, result.None, "stack underflow before %d in %s", pos, c.Method)
		}
		for _, p := range preds {
			if err := walk(p, need, via); err != nil {
				return err
			}
		}
		return nil
	}
	walk = func(pos bytecode.Pos, need int, via bytecode.Pos) error {
		k := [2]int{int(pos), need}
		if seen[k] {
			return nil
		}
		seen[k] = true

		in, err := c.instr(pos)
		if err != nil {
			return err
		}
		if in.Kind() == bytecode.KindStack {
			outs, pop, err := c.shuffle(in)
			if err != nil {
				return err
			}
			if need < len(outs) {
				return back(pos, outs[need], pos)
			}
			return back(pos, need-len(outs)+pop, via)
		}
		pop, push, ok := bytecode.StackEffect(in)
		if !ok {
			return result.Errorf(result.ErrBadEval, result.None, "unknown stack effect of %s", in)
		}
		if need < push {
			out = append(out, producer{pos: pos, via: via})
			return nil
		}
		return back(pos, need-push+pop, via)
	}

	if err := back(at, depth, bytecode.NoPos); err != nil {
		return nil, err
	}
	return out, nil
}

// category returns the category of the value at depth before pos.
func (c *Context) category(pos bytecode.Pos, depth int) (int, error) {
	ps, err := c.producers(pos, depth)
	if err != nil {
		return 0, err
	}
	for _, p := range ps {
		if p.handler {
			return 1, nil
		}
		in, err := c.instr(p.pos)
		if err != nil {
			return 0, err
		}
		if d, ok := bytecode.ValueDesc(in); ok {
			return typeutil.Category(d), nil
		}
	}
	return 1, nil
}

// shuffle describes a stack instruction: outs[i] is the input depth copied
// to output depth i, pop the number of inputs consumed.
func (c *Context) shuffle(in *bytecode.Instruction) (outs []int, pop int, err error) {
	cat := func(depth int) int {
		if err != nil {
			return 1
		}
		var n int
		n, err = c.category(in.Pos, depth)
		return n
	}
	switch in.Op {
	case bytecode.POP:
		return nil, 1, nil
	case bytecode.POP2:
		if cat(0) == 2 {
			return nil, 1, err
		}
		return nil, 2, err
	case bytecode.DUP:
		return []int{0, 0}, 1, nil
	case bytecode.DUP_X1:
		return []int{0, 1, 0}, 2, nil
	case bytecode.DUP_X2:
		if cat(1) == 2 {
			return []int{0, 1, 0}, 2, err
		}
		return []int{0, 1, 2, 0}, 3, err
	case bytecode.DUP2:
		if cat(0) == 2 {
			return []int{0, 0}, 1, err
		}
		return []int{0, 1, 0, 1}, 2, err
	case bytecode.DUP2_X1:
		if cat(0) == 2 {
			return []int{0, 1, 0}, 2, err
		}
		return []int{0, 1, 2, 0, 1}, 3, err
	case bytecode.DUP2_X2:
		if cat(0) == 2 {
			if cat(1) == 2 {
				return []int{0, 1, 0}, 2, err
			}
			return []int{0, 1, 2, 0}, 3, err
		}
		if cat(2) == 2 {
			return []int{0, 1, 2, 0, 1}, 3, err
		}
		return []int{0, 1, 2, 3, 0, 1}, 4, err
	case bytecode.SWAP:
		return []int{1, 0}, 2, nil
	}
	return nil, 0, result.Errorf(result.ErrBadEval, result.None, "%s is not a stack shuffle", in)
}

// caught returns the variable standing for the exception a handler receives.
func (c *Context) caught(pos bytecode.Pos) (result.ID, error) {
	key := [2]int{int(pos), -1}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.operands[key]; ok {
		return id, nil
	}
	class := "java/lang/Throwable"
	if h, ok := c.Method.HandlerAt(pos); ok && h.Type != "" {
		class = h.Type
	}
	id := c.env.Arena.NewVariable(c.site(pos), result.VarInfo{
		Kind:   result.VarLocal,
		Slot:   -1,
		Index:  -1,
		Desc:   typeutil.Descriptor(class),
		Name:   "caught " + typeutil.SimpleName(class),
		Method: c.Method.Key(),
		Owner:  c.Method.Owner,
	})
	c.operands[key] = id
	return id, nil
}
