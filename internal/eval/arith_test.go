package eval_test

import (
	"math"
	"reflect"
	"testing"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/eval"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		op      bytecode.Opcode
		args    []any
		want    any
		wantErr bool
	}{
		{"iadd wraps", bytecode.IADD, []any{int32(math.MaxInt32), int32(1)}, int32(math.MinInt32), false},
		{"ishl masks to 5 bits", bytecode.ISHL, []any{int32(1), int32(40)}, int32(256), false},
		{"lshl masks to 6 bits", bytecode.LSHL, []any{int64(1), int32(70)}, int64(64), false},
		{"iushr", bytecode.IUSHR, []any{int32(-1), int32(28)}, int32(15), false},
		{"idiv by zero", bytecode.IDIV, []any{int32(1), int32(0)}, nil, true},
		{"irem by zero", bytecode.IREM, []any{int32(1), int32(0)}, nil, true},
		{"idiv overflow", bytecode.IDIV, []any{int32(math.MinInt32), int32(-1)}, int32(math.MinInt32), false},
		{"ddiv by zero", bytecode.DDIV, []any{float64(1), float64(0)}, math.Inf(1), false},
		{"char operand", bytecode.IADD, []any{int32('a'), int32(1)}, int32('b'), false},
		{"d2i saturates", bytecode.D2I, []any{float64(1e20)}, int32(math.MaxInt32), false},
		{"d2i NaN", bytecode.D2I, []any{math.NaN()}, int32(0), false},
		{"i2b", bytecode.I2B, []any{int32(200)}, int32(-56), false},
		{"lcmp", bytecode.LCMP, []any{int64(1), int64(2)}, int32(-1), false},
		{"dcmpg NaN", bytecode.DCMPG, []any{math.NaN(), float64(0)}, int32(1), false},
		{"dcmpl NaN", bytecode.DCMPL, []any{math.NaN(), float64(0)}, int32(-1), false},
		{"not a number", bytecode.IADD, []any{"x", int32(1)}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Compute(tt.op, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Compute error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("Compute = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestInterleave(t *testing.T) {
	tests := []struct {
		name  string
		sizes []int
		want  [][]int
	}{
		{"no operands", nil, [][]int{{}}},
		{"one", []int{3}, [][]int{{0}, {1}, {2}}},
		{"two", []int{2, 3}, [][]int{{0, 0}, {1, 1}, {1, 2}, {1, 2}, {1, 2}, {1, 2}}},
		{"three", []int{1, 2, 2}, [][]int{{0, 0, 0}, {0, 1, 1}, {0, 1, 1}, {0, 1, 1}}},
		{"empty operand", []int{2, 0}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eval.Interleave(tt.sizes); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Interleave(%v) = %v, want %v", tt.sizes, got, tt.want)
			}
		})
	}
}

func TestInterleave_CoversEveryAlternative(t *testing.T) {
	for _, sizes := range [][]int{{5, 7}, {3, 5, 7}, {2, 11}} {
		rows := eval.Interleave(sizes)
		for i, s := range sizes {
			seen := make(map[int]bool)
			for _, r := range rows {
				seen[r[i]] = true
			}
			if len(seen) != s {
				t.Errorf("Interleave(%v): operand %d covers %d of %d alternatives", sizes, i, len(seen), s)
			}
		}
	}
}
