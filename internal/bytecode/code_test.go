package bytecode

import "testing"

func newTestCode(t *testing.T, instrs ...*Instruction) *Code {
	t.Helper()
	c, err := NewCode(instrs)
	if err != nil {
		t.Fatalf("NewCode: %v", err)
	}
	return c
}

func TestCode_Navigation(t *testing.T) {
	c := newTestCode(t,
		&Instruction{Pos: 4, Op: RETURN},
		&Instruction{Pos: 0, Op: ICONST_1, Const: int32(1)},
		&Instruction{Pos: 2, Op: POP},
	)

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if c.First() != 0 {
		t.Errorf("First = %d, want 0", c.First())
	}
	if next, ok := c.Next(0); !ok || next != 2 {
		t.Errorf("Next(0) = %d, %v", next, ok)
	}
	if prev, ok := c.Prev(4); !ok || prev != 2 {
		t.Errorf("Prev(4) = %d, %v", prev, ok)
	}
	if _, ok := c.Next(4); ok {
		t.Error("Next(last) should not exist")
	}
	if _, ok := c.Prev(0); ok {
		t.Error("Prev(first) should not exist")
	}
	if _, ok := c.At(1); ok {
		t.Error("At(1) should not exist")
	}
}

func TestNewCode_Errors(t *testing.T) {
	t.Run("duplicate position", func(t *testing.T) {
		_, err := NewCode([]*Instruction{{Pos: 0, Op: NOP}, {Pos: 0, Op: NOP}})
		if err == nil {
			t.Error("expected duplicate position error")
		}
	})
	t.Run("dangling jump", func(t *testing.T) {
		_, err := NewCode([]*Instruction{{Pos: 0, Op: GOTO, Target: 9}})
		if err == nil {
			t.Error("expected unknown target error")
		}
	})
}

func TestInstruction_Targets(t *testing.T) {
	sw := &Instruction{Op: LOOKUPSWITCH, Default: 9, Cases: []SwitchCase{{1, 5}, {2, 7}, {3, 5}}}
	got := sw.Targets()
	want := []Pos{5, 7, 9}
	if len(got) != len(want) {
		t.Fatalf("Targets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Targets = %v, want %v", got, want)
		}
	}
}

func TestStackEffect(t *testing.T) {
	tests := []struct {
		name      string
		in        *Instruction
		pop, push int
		ok        bool
	}{
		{"iadd", &Instruction{Op: IADD}, 2, 1, true},
		{"astore", &Instruction{Op: ASTORE, Local: 1}, 1, 0, true},
		{"virtual", &Instruction{Op: INVOKEVIRTUAL, Member: &MemberRef{"a/B", "m", "(IJ)Ljava/lang/String;", false}}, 3, 1, true},
		{"static void", &Instruction{Op: INVOKESTATIC, Member: &MemberRef{"a/B", "m", "(I)V", false}}, 1, 0, true},
		{"dynamic", &Instruction{Op: INVOKEDYNAMIC, Dynamic: &DynamicRef{Name: "x", Desc: "(Ljava/lang/String;I)Ljava/lang/String;"}}, 2, 1, true},
		{"multianewarray", &Instruction{Op: MULTIANEWARRAY, Type: "[I", Dims: 2}, 2, 1, true},
		{"dup2 depends on categories", &Instruction{Op: DUP2}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pop, push, ok := StackEffect(tt.in)
			if pop != tt.pop || push != tt.push || ok != tt.ok {
				t.Errorf("StackEffect = (%d, %d, %v), want (%d, %d, %v)", pop, push, ok, tt.pop, tt.push, tt.ok)
			}
		})
	}
}

func TestValueDesc(t *testing.T) {
	tests := []struct {
		in   *Instruction
		want string
	}{
		{&Instruction{Op: LDC2_W, Const: int64(1)}, "J"},
		{&Instruction{Op: LDC, Const: "s"}, "Ljava/lang/String;"},
		{&Instruction{Op: DMUL}, "D"},
		{&Instruction{Op: I2L}, "J"},
		{&Instruction{Op: GETFIELD, Member: &MemberRef{"a/B", "f", "J", false}}, "J"},
	}
	for _, tt := range tests {
		got, ok := ValueDesc(tt.in)
		if !ok || got != tt.want {
			t.Errorf("ValueDesc(%s) = %q, %v, want %q", tt.in, got, ok, tt.want)
		}
	}
	if _, ok := ValueDesc(&Instruction{Op: DUP}); ok {
		t.Error("ValueDesc(dup) should be unknown")
	}
}

func TestLookup(t *testing.T) {
	op, ok := Lookup("invokevirtual")
	if !ok || op != INVOKEVIRTUAL {
		t.Errorf("Lookup(invokevirtual) = %v, %v", op, ok)
	}
	if _, ok := Lookup("bogus"); ok {
		t.Error("Lookup(bogus) should fail")
	}
	if !GOTO.IsUnconditional() || IFEQ.IsUnconditional() {
		t.Error("IsUnconditional misclassifies goto/ifeq")
	}
}
