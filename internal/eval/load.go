package eval

import (
	"golang.org/x/tools/container/intsets"

	"github.com/mpyw/bceval/internal/branch"
	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/result"
	"github.com/mpyw/bceval/internal/typeutil"
)

// LoadHandler handles local variable loads.
//
// Example scenarios:
//
//	Scenario 1: store on every path
//	  if (c) { x = "A"; } else { x = "B"; }
//	  use(x)              // load -> union {A@s1, B@s2}
//
//	Scenario 2: parameter never reassigned
//	  void send(String dest) { use(dest); }   // load -> Variable dest
//
//	Scenario 3: parameter reassigned on one path
//	  if (c) { dest = "X"; } use(dest)         // load -> union {X, Variable dest}
type LoadHandler struct{}

// CanHandle returns true for loads.
func (h *LoadHandler) CanHandle(in *bytecode.Instruction) bool {
	return in.Kind() == bytecode.KindLoad
}

// Handle returns the value last stored to the slot on every path reaching
// the load.
func (h *LoadHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	return c.load(in.Pos, in.Local)
}

// store is a definition of a local slot reaching a load. path holds the
// segments that every route from the definition to the load passes through,
// so the value is only combined with values of compatible routes.
type store struct {
	pos  bytecode.Pos
	path []int
}

func (s store) choices(scope string) result.Choices {
	cs := make([]result.Choice, len(s.path))
	for i, id := range s.path {
		cs[i] = result.Choice{Scope: scope, Kind: result.ChoiceSegment, Index: id}
	}
	return result.Of(cs...)
}

func (c *Context) load(pos bytecode.Pos, slot int) (result.ID, error) {
	if slot == 0 && !c.Method.IsStatic() {
		if this, ok, err := c.receiver(pos); ok || err != nil {
			return this, err
		}
	}

	stores, entry := c.reachingStores(pos, slot)
	param := entry != nil && c.isParamSlot(slot)
	if len(stores) == 0 {
		if a, ok := c.Arg(slot); ok && param {
			return a, nil
		}
		return c.variable(pos, slot, param), nil
	}

	var ids []result.ID
	var tags []result.Choices
	for _, s := range stores {
		v, err := c.storedValue(s.pos)
		if err != nil {
			return result.None, err
		}
		ids = append(ids, v)
		tags = append(tags, s.choices(c.key))
	}
	if param {
		if a, ok := c.Arg(slot); ok {
			ids = append(ids, a)
		} else {
			ids = append(ids, c.variable(pos, slot, true))
		}
		tags = append(tags, entry.choices(c.key))
	}
	if len(ids) == 1 {
		return ids[0], nil
	}

	e := c.env
	in, _ := c.instr(pos)
	return e.Arena.NewDelay(c.site(pos), in, ids, func(*result.Forcer) (result.ID, error) {
		return e.Arena.NewMultiple(c.site(pos), ids, tags)
	}), nil
}

// receiver resolves slot 0 of an instance method: the fixed receiver, the
// component instance or a parameter-like variable bound by callers.
func (c *Context) receiver(pos bytecode.Pos) (result.ID, bool, error) {
	stores, _ := c.reachingStores(pos, 0)
	if len(stores) > 0 {
		return result.None, false, nil
	}
	if a, ok := c.Arg(0); ok {
		return a, true, nil
	}
	if c.Component != nil && c.env.Live != nil {
		if inst, ok := c.env.Live.Instance(c.Component.Name); ok {
			return c.env.Arena.NewConstant(c.site(pos), inst), true, nil
		}
	}
	return c.variable(pos, 0, true), true, nil
}

func (c *Context) isParamSlot(slot int) bool {
	if slot == 0 && !c.Method.IsStatic() {
		return true
	}
	_, ok := c.Method.ParamIndex(slot)
	return ok
}

// variable returns the Variable standing for slot at pos. One variable is
// kept per parameter so that every load of it shares binding decisions.
func (c *Context) variable(pos bytecode.Pos, slot int, param bool) result.ID {
	key := [2]int{-2 - slot, 0}
	site := c.site(pos)
	if param {
		site = c.site(c.Tree.Code().First())
		c.mu.Lock()
		defer c.mu.Unlock()
		if id, ok := c.operands[key]; ok {
			return id
		}
	}

	info := result.VarInfo{
		Kind:   result.VarLocal,
		Slot:   slot,
		Index:  -1,
		Method: c.Method.Key(),
		Owner:  c.Method.Owner,
		Name:   c.Method.VarName(slot, pos),
	}
	if lv, ok := c.Method.LocalVar(slot, pos); ok {
		info.Desc = lv.Desc
	}
	if param {
		info.Kind = result.VarParam
		if i, ok := c.Method.ParamIndex(slot); ok {
			info.Index = i
			if info.Desc == "" {
				info.Desc = c.Method.Params()[i]
			}
		} else {
			info.Desc = typeutil.Descriptor(c.Method.Owner)
		}
	}
	id := c.env.Arena.NewVariable(site, info)
	if param {
		c.operands[key] = id
	}
	return id
}

// reaching is the outcome of scanning backward from one segment: the
// definitions found, keyed by position, with the segments common to every
// route to them. The method entry is keyed by NoPos.
type reaching struct {
	order []bytecode.Pos
	paths map[bytecode.Pos]*intsets.Sparse
}

// merge adds the definitions of sub as seen through segment id.
func (r *reaching) merge(sub *reaching, id int) {
	for _, p := range sub.order {
		var path intsets.Sparse
		path.Copy(sub.paths[p])
		path.Insert(id)
		if cur, ok := r.paths[p]; ok {
			cur.IntersectionWith(&path)
			continue
		}
		r.order = append(r.order, p)
		r.paths[p] = &path
	}
}

func (r *reaching) add(p bytecode.Pos, id int) {
	var path intsets.Sparse
	path.Insert(id)
	r.order = append(r.order, p)
	r.paths[p] = &path
}

// reachingStores returns the stores to slot that reach pos, nearest per
// route, and the method entry when some route reaches it without a store.
func (c *Context) reachingStores(pos bytecode.Pos, slot int) ([]store, *store) {
	memo := make(map[int]*reaching)

	var scan func(s *branch.Segment, before bytecode.Pos) *reaching
	scan = func(s *branch.Segment, before bytecode.Pos) *reaching {
		whole := before == bytecode.NoPos
		if whole {
			if r, ok := memo[s.ID]; ok {
				if r == nil {
					return &reaching{paths: map[bytecode.Pos]*intsets.Sparse{}}
				}
				return r
			}
			memo[s.ID] = nil
		}
		r := &reaching{paths: make(map[bytecode.Pos]*intsets.Sparse)}
		defer func() {
			if whole {
				memo[s.ID] = r
			}
		}()

		for _, p := range c.Tree.Before(s, before) {
			in, _ := c.Tree.Code().At(p)
			if bytecode.IsStore(in, slot) {
				r.add(p, s.ID)
				return r
			}
		}
		srcs := s.Sources()
		if len(srcs) == 0 {
			if s.Handler {
				// Locals visible in a handler are those defined before the
				// protected range starts.
				if h, ok := c.Method.HandlerAt(s.Start); ok {
					if hs, ok := c.Tree.SegmentOf(h.Start); ok && hs != s {
						r.merge(scan(hs, h.Start), s.ID)
						return r
					}
				}
			}
			r.add(bytecode.NoPos, s.ID)
			return r
		}
		for _, src := range srcs {
			r.merge(scan(src, bytecode.NoPos), s.ID)
		}
		return r
	}

	s, ok := c.Tree.SegmentOf(pos)
	if !ok {
		return nil, &store{pos: bytecode.NoPos}
	}
	r := scan(s, pos)
	var out []store
	var entry *store
	for _, p := range r.order {
		st := store{pos: p, path: r.paths[p].AppendTo(nil)}
		if p == bytecode.NoPos {
			entry = &st
			continue
		}
		out = append(out, st)
	}
	return out, entry
}

// storedValue returns the value written by the store or increment at pos.
func (c *Context) storedValue(pos bytecode.Pos) (result.ID, error) {
	in, err := c.instr(pos)
	if err != nil {
		return result.None, err
	}
	if in.Kind() != bytecode.KindIncrement {
		return c.Operand(pos, 0)
	}

	key := [2]int{int(pos), -3}
	c.mu.Lock()
	id, ok := c.operands[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	before, err := c.load(pos, in.Local)
	if err != nil {
		return result.None, err
	}
	e := c.env
	id = e.Arena.NewDelay(c.site(pos), in, []result.ID{before}, func(f *result.Forcer) (result.ID, error) {
		return e.mapValues(f, c.site(pos), []result.ID{before}, func(vs []any) (any, error) {
			n, err := toInt(vs[0])
			if err != nil {
				return nil, err
			}
			return n + in.Inc, nil
		})
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.operands[key]; ok {
		return prev, nil
	}
	c.operands[key] = id
	return id, nil
}
