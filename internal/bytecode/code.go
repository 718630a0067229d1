package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// Code - addressable instruction stream
// =============================================================================

// Code is the instruction stream of one method body. It is immutable once
// built and safe for concurrent reads.
type Code struct {
	instrs []*Instruction
	index  map[Pos]int
}

// NewCode builds a Code from instructions. Instructions are ordered by
// position; duplicate positions are rejected.
func NewCode(instrs []*Instruction) (*Code, error) {
	sorted := make([]*Instruction, len(instrs))
	copy(sorted, instrs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Pos < sorted[j].Pos })

	c := &Code{instrs: sorted, index: make(map[Pos]int, len(sorted))}
	for i, in := range sorted {
		if _, dup := c.index[in.Pos]; dup {
			return nil, fmt.Errorf("duplicate instruction position %d", in.Pos)
		}
		c.index[in.Pos] = i
	}
	for _, in := range sorted {
		for _, t := range in.Targets() {
			if _, ok := c.index[t]; !ok {
				return nil, fmt.Errorf("instruction %s jumps to unknown position %d", in, t)
			}
		}
	}
	return c, nil
}

// Len returns the number of instructions.
func (c *Code) Len() int {
	if c == nil {
		return 0
	}
	return len(c.instrs)
}

// Instructions returns the instructions in position order.
func (c *Code) Instructions() []*Instruction {
	if c == nil {
		return nil
	}
	return c.instrs
}

// At returns the instruction at pos.
func (c *Code) At(pos Pos) (*Instruction, bool) {
	if c == nil {
		return nil, false
	}
	i, ok := c.index[pos]
	if !ok {
		return nil, false
	}
	return c.instrs[i], true
}

// First returns the position of the first instruction, or NoPos.
func (c *Code) First() Pos {
	if c.Len() == 0 {
		return NoPos
	}
	return c.instrs[0].Pos
}

// Next returns the position following pos in stream order.
func (c *Code) Next(pos Pos) (Pos, bool) {
	i, ok := c.index[pos]
	if !ok || i+1 >= len(c.instrs) {
		return NoPos, false
	}
	return c.instrs[i+1].Pos, true
}

// Prev returns the position preceding pos in stream order.
func (c *Code) Prev(pos Pos) (Pos, bool) {
	i, ok := c.index[pos]
	if !ok || i == 0 {
		return NoPos, false
	}
	return c.instrs[i-1].Pos, true
}

// Find returns the instructions matching pred, in stream order.
func (c *Code) Find(pred func(*Instruction) bool) []*Instruction {
	var out []*Instruction
	for _, in := range c.Instructions() {
		if pred(in) {
			out = append(out, in)
		}
	}
	return out
}

// String disassembles the stream, one instruction per line.
func (c *Code) String() string {
	var b strings.Builder
	for _, in := range c.Instructions() {
		b.WriteString(in.String())
		b.WriteByte('\n')
	}
	return b.String()
}
