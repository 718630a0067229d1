package eval

import (
	"fmt"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/result"
)

// ArrayHandler handles array creation, element loads and arraylength.
//
// A created array is realized by replaying the element stores the method
// makes into it, so varargs arrays built inline carry their elements:
//
//	iconst_1
//	anewarray java/lang/Object
//	dup
//	iconst_0
//	aload_1
//	aastore                     // element 0 = value of slot 1
type ArrayHandler struct{}

// CanHandle returns true for newarray forms, array loads and arraylength.
func (h *ArrayHandler) CanHandle(in *bytecode.Instruction) bool {
	switch in.Kind() {
	case bytecode.KindNewArray, bytecode.KindArrayLoad, bytecode.KindArrayLength:
		return true
	}
	return false
}

// Handle records the array operation.
func (h *ArrayHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	switch in.Kind() {
	case bytecode.KindNewArray:
		return c.newArray(in)
	case bytecode.KindArrayLength:
		arr, err := c.Operand(in.Pos, 0)
		if err != nil {
			return result.None, err
		}
		return c.env.Arena.NewDelay(c.site(in.Pos), in, []result.ID{arr}, func(f *result.Forcer) (result.ID, error) {
			return c.env.mapValues(f, c.site(in.Pos), []result.ID{arr}, func(vs []any) (any, error) {
				a, err := asArray(vs[0])
				if err != nil {
					return nil, err
				}
				return int32(len(a.Values)), nil
			})
		}), nil
	}

	ops, err := c.Operands(in.Pos, 2)
	if err != nil {
		return result.None, err
	}
	e := c.env
	return e.Arena.NewDelay(c.site(in.Pos), in, ops, func(f *result.Forcer) (result.ID, error) {
		return e.mapValues(f, c.site(in.Pos), ops, func(vs []any) (any, error) {
			a, err := asArray(vs[0])
			if err != nil {
				return nil, err
			}
			i, err := toInt(vs[1])
			if err != nil {
				return nil, err
			}
			if i < 0 || int(i) >= len(a.Values) {
				return nil, fmt.Errorf("index %d out of bounds for length %d", i, len(a.Values))
			}
			return a.Values[i], nil
		})
	}), nil
}

func asArray(v any) (*host.Array, error) {
	a, ok := v.(*host.Array)
	if !ok {
		return nil, fmt.Errorf("%s is not an array", describeValue(v))
	}
	return a, nil
}

func (c *Context) newArray(in *bytecode.Instruction) (result.ID, error) {
	e := c.env
	site := c.site(in.Pos)
	dims := 1
	if in.Op == bytecode.MULTIANEWARRAY {
		dims = in.Dims
	}
	lens, err := c.Operands(in.Pos, dims)
	if err != nil {
		return result.None, err
	}
	// in.Type is the element descriptor; multianewarray carries the
	// component descriptor of the outermost array.
	elem := in.Type

	return e.Arena.NewDelay(site, in, lens, func(f *result.Forcer) (result.ID, error) {
		var stores []*bytecode.Instruction
		if dims == 1 {
			var err error
			if stores, err = c.arrayStores(in.Pos); err != nil {
				return result.None, err
			}
		}
		return e.mapValues(f, site, lens, func(vs []any) (any, error) {
			ns := make([]int, len(vs))
			for i, v := range vs {
				n, err := toInt(v)
				if err != nil {
					return nil, err
				}
				if n < 0 {
					return nil, fmt.Errorf("negative array size %d", n)
				}
				ns[i] = int(n)
			}
			arr := makeArray(elem, ns)
			for _, st := range stores {
				if err := c.replayStore(f, arr, st); err != nil {
					log.Debugf("%s: element store at %d skipped: %v", c.key, st.Pos, err)
				}
			}
			return arr, nil
		})
	}), nil
}

func makeArray(elem string, ns []int) *host.Array {
	if len(ns) == 1 {
		return host.NewArray(elem, ns[0])
	}
	a := &host.Array{Elem: elem, Values: make([]any, ns[0])}
	for i := range a.Values {
		a.Values[i] = makeArray(elem[1:], ns[1:])
	}
	return a
}

// arrayStores returns the element stores whose array operand is the array
// created at pos.
func (c *Context) arrayStores(pos bytecode.Pos) ([]*bytecode.Instruction, error) {
	var out []*bytecode.Instruction
	for _, in := range c.Tree.Code().Instructions() {
		if in.Kind() != bytecode.KindArrayStore {
			continue
		}
		if _, ok := c.Tree.SegmentOf(in.Pos); !ok {
			continue
		}
		ps, err := c.producers(in.Pos, 2)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if p.pos == pos && !p.handler {
				out = append(out, in)
				break
			}
		}
	}
	return out, nil
}

func (c *Context) replayStore(f *result.Forcer, arr *host.Array, st *bytecode.Instruction) error {
	e := c.env
	idx, err := c.Operand(st.Pos, 1)
	if err != nil {
		return err
	}
	val, err := c.Operand(st.Pos, 2)
	if err != nil {
		return err
	}
	is, err := e.expand(f, idx, false)
	if len(is) == 0 {
		return err
	}
	vs, err := e.expand(f, val, true)
	if len(vs) == 0 {
		return err
	}
	iv, err := e.value(is[0].id)
	if err != nil {
		return err
	}
	i, err := toInt(iv)
	if err != nil {
		return err
	}
	if i < 0 || int(i) >= len(arr.Values) {
		return fmt.Errorf("index %d out of bounds for length %d", i, len(arr.Values))
	}
	v, err := e.value(vs[0].id)
	if err != nil {
		return err
	}
	arr.Values[i] = v
	return nil
}
