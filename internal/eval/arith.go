package eval

import (
	"fmt"
	"math"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/result"
)

// ArithmeticHandler handles arithmetic, conversions and comparisons.
//
// Integer arithmetic wraps at the operand width and shift distances are
// masked (& 31 for int, & 63 for long). Integer division by zero is an
// illegal invocation.
type ArithmeticHandler struct{}

// CanHandle returns true for arithmetic, conversions and comparisons.
func (h *ArithmeticHandler) CanHandle(in *bytecode.Instruction) bool {
	switch in.Kind() {
	case bytecode.KindArithmetic, bytecode.KindConvert, bytecode.KindCompare:
		return true
	}
	return false
}

// Handle records the operation over its operands.
func (h *ArithmeticHandler) Handle(c *Context, in *bytecode.Instruction) (result.ID, error) {
	pop, _, _ := bytecode.StackEffect(in)
	ops, err := c.Operands(in.Pos, pop)
	if err != nil {
		return result.None, err
	}
	e := c.env
	return e.Arena.NewDelay(c.site(in.Pos), in, ops, func(f *result.Forcer) (result.ID, error) {
		return e.mapValues(f, c.site(in.Pos), ops, func(vs []any) (any, error) {
			return Compute(in.Op, vs)
		})
	}), nil
}

// mapValues expands ids without the resolver, combines their alternatives
// into rows and applies fn to the values of every row.
func (e *Env) mapValues(f *result.Forcer, site result.Site, ids []result.ID, fn func([]any) (any, error)) (result.ID, error) {
	return e.combine(f, site, ids, false, fn)
}

func (e *Env) combine(f *result.Forcer, site result.Site, ids []result.ID, resolve bool, fn func([]any) (any, error)) (result.ID, error) {
	lists := make([][]cand, len(ids))
	for i, id := range ids {
		cands, err := e.expand(f, id, resolve)
		if len(cands) == 0 || result.IsFatal(err) {
			return result.None, err
		}
		lists[i] = cands
	}

	var out []result.ID
	var tags []result.Choices
	var errs []error
	for _, r := range e.rows(lists) {
		vs := make([]any, len(r.cands))
		for i, cd := range r.cands {
			v, err := e.value(cd.id)
			if err != nil {
				return result.None, err
			}
			vs[i] = v
		}
		v, err := fn(vs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, e.Arena.NewConstant(site, v, ids...))
		tags = append(tags, r.tags)
	}
	if len(out) == 0 {
		if len(errs) == 0 {
			return result.None, result.Errorf(result.ErrBadEval, result.None, "no operand combination")
		}
		return result.None, result.Aggregate(result.ErrIllegalInvocation, result.None, "operation failed for every operand combination", errs)
	}
	return e.Arena.NewMultiple(site, out, tags)
}

// =============================================================================
// Operations
// =============================================================================

var errDivZero = fmt.Errorf("/ by zero")

// Compute applies an arithmetic, conversion or comparison opcode to stack
// values.
func Compute(op bytecode.Opcode, vs []any) (any, error) {
	switch op {
	case bytecode.IADD, bytecode.ISUB, bytecode.IMUL, bytecode.IDIV, bytecode.IREM,
		bytecode.ISHL, bytecode.ISHR, bytecode.IUSHR, bytecode.IAND, bytecode.IOR, bytecode.IXOR:
		a, err := toInt(vs[0])
		if err != nil {
			return nil, err
		}
		b, err := toInt(vs[1])
		if err != nil {
			return nil, err
		}
		return intOp(op, a, b)
	case bytecode.LADD, bytecode.LSUB, bytecode.LMUL, bytecode.LDIV, bytecode.LREM,
		bytecode.LAND, bytecode.LOR, bytecode.LXOR:
		a, err := toLong(vs[0])
		if err != nil {
			return nil, err
		}
		b, err := toLong(vs[1])
		if err != nil {
			return nil, err
		}
		return longOp(op, a, b)
	case bytecode.LSHL, bytecode.LSHR, bytecode.LUSHR:
		a, err := toLong(vs[0])
		if err != nil {
			return nil, err
		}
		b, err := toInt(vs[1])
		if err != nil {
			return nil, err
		}
		return longShift(op, a, b), nil
	case bytecode.FADD, bytecode.FSUB, bytecode.FMUL, bytecode.FDIV, bytecode.FREM:
		a, err := toDouble(vs[0])
		if err != nil {
			return nil, err
		}
		b, err := toDouble(vs[1])
		if err != nil {
			return nil, err
		}
		return float32(floatOp(op, float64(float32(a)), float64(float32(b)))), nil
	case bytecode.DADD, bytecode.DSUB, bytecode.DMUL, bytecode.DDIV, bytecode.DREM:
		a, err := toDouble(vs[0])
		if err != nil {
			return nil, err
		}
		b, err := toDouble(vs[1])
		if err != nil {
			return nil, err
		}
		return floatOp(op, a, b), nil
	case bytecode.INEG:
		a, err := toInt(vs[0])
		return -a, err
	case bytecode.LNEG:
		a, err := toLong(vs[0])
		return -a, err
	case bytecode.FNEG:
		a, err := toDouble(vs[0])
		return -float32(a), err
	case bytecode.DNEG:
		a, err := toDouble(vs[0])
		return -a, err
	}

	switch op.Kind() {
	case bytecode.KindConvert:
		return convert(op, vs[0])
	case bytecode.KindCompare:
		return compare(op, vs[0], vs[1])
	}
	return nil, fmt.Errorf("%s is not an arithmetic instruction", op)
}

func intOp(op bytecode.Opcode, a, b int32) (any, error) {
	switch op {
	case bytecode.IADD:
		return a + b, nil
	case bytecode.ISUB:
		return a - b, nil
	case bytecode.IMUL:
		return a * b, nil
	case bytecode.IDIV:
		if b == 0 {
			return nil, errDivZero
		}
		if a == math.MinInt32 && b == -1 {
			return a, nil
		}
		return a / b, nil
	case bytecode.IREM:
		if b == 0 {
			return nil, errDivZero
		}
		if b == -1 {
			return int32(0), nil
		}
		return a % b, nil
	case bytecode.ISHL:
		return a << uint(b&31), nil
	case bytecode.ISHR:
		return a >> uint(b&31), nil
	case bytecode.IUSHR:
		return int32(uint32(a) >> uint(b&31)), nil
	case bytecode.IAND:
		return a & b, nil
	case bytecode.IOR:
		return a | b, nil
	case bytecode.IXOR:
		return a ^ b, nil
	}
	return nil, fmt.Errorf("%s is not an int operation", op)
}

func longOp(op bytecode.Opcode, a, b int64) (any, error) {
	switch op {
	case bytecode.LADD:
		return a + b, nil
	case bytecode.LSUB:
		return a - b, nil
	case bytecode.LMUL:
		return a * b, nil
	case bytecode.LDIV:
		if b == 0 {
			return nil, errDivZero
		}
		if a == math.MinInt64 && b == -1 {
			return a, nil
		}
		return a / b, nil
	case bytecode.LREM:
		if b == 0 {
			return nil, errDivZero
		}
		if b == -1 {
			return int64(0), nil
		}
		return a % b, nil
	case bytecode.LAND:
		return a & b, nil
	case bytecode.LOR:
		return a | b, nil
	case bytecode.LXOR:
		return a ^ b, nil
	}
	return nil, fmt.Errorf("%s is not a long operation", op)
}

func longShift(op bytecode.Opcode, a int64, b int32) int64 {
	n := uint(b & 63)
	switch op {
	case bytecode.LSHL:
		return a << n
	case bytecode.LSHR:
		return a >> n
	}
	return int64(uint64(a) >> n)
}

func floatOp(op bytecode.Opcode, a, b float64) float64 {
	switch op {
	case bytecode.FADD, bytecode.DADD:
		return a + b
	case bytecode.FSUB, bytecode.DSUB:
		return a - b
	case bytecode.FMUL, bytecode.DMUL:
		return a * b
	case bytecode.FDIV, bytecode.DDIV:
		return a / b
	}
	return math.Mod(a, b)
}

func convert(op bytecode.Opcode, v any) (any, error) {
	switch op {
	case bytecode.I2L, bytecode.I2F, bytecode.I2D, bytecode.I2B, bytecode.I2C, bytecode.I2S:
		a, err := toInt(v)
		if err != nil {
			return nil, err
		}
		switch op {
		case bytecode.I2L:
			return int64(a), nil
		case bytecode.I2F:
			return float32(a), nil
		case bytecode.I2D:
			return float64(a), nil
		case bytecode.I2B:
			return int32(int8(a)), nil
		case bytecode.I2C:
			return int32(uint16(a)), nil
		}
		return int32(int16(a)), nil
	case bytecode.L2I, bytecode.L2F, bytecode.L2D:
		a, err := toLong(v)
		if err != nil {
			return nil, err
		}
		switch op {
		case bytecode.L2I:
			return int32(a), nil
		case bytecode.L2F:
			return float32(a), nil
		}
		return float64(a), nil
	case bytecode.F2I, bytecode.D2I:
		a, err := toDouble(v)
		return saturateInt(a), err
	case bytecode.F2L, bytecode.D2L:
		a, err := toDouble(v)
		return saturateLong(a), err
	case bytecode.F2D:
		a, err := toDouble(v)
		return a, err
	case bytecode.D2F:
		a, err := toDouble(v)
		return float32(a), err
	}
	return nil, fmt.Errorf("%s is not a conversion", op)
}

func saturateInt(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func saturateLong(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func compare(op bytecode.Opcode, x, y any) (any, error) {
	if op == bytecode.LCMP {
		a, err := toLong(x)
		if err != nil {
			return nil, err
		}
		b, err := toLong(y)
		if err != nil {
			return nil, err
		}
		switch {
		case a < b:
			return int32(-1), nil
		case a > b:
			return int32(1), nil
		}
		return int32(0), nil
	}
	a, err := toDouble(x)
	if err != nil {
		return nil, err
	}
	b, err := toDouble(y)
	if err != nil {
		return nil, err
	}
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		if op == bytecode.FCMPG || op == bytecode.DCMPG {
			return int32(1), nil
		}
		return int32(-1), nil
	case a < b:
		return int32(-1), nil
	case a > b:
		return int32(1), nil
	}
	return int32(0), nil
}

// =============================================================================
// Numeric coercions
// =============================================================================

func toInt(v any) (int32, error) {
	switch x := v.(type) {
	case int32:
		return x, nil
	case host.Char:
		return int32(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%s is not an int", describeValue(v))
}

func toLong(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case host.Char:
		return int64(x), nil
	}
	return 0, fmt.Errorf("%s is not a long", describeValue(v))
}

func toDouble(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("%s is not a floating point number", describeValue(v))
}

func describeValue(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%s %s", host.ClassOf(v), bytecode.FormatConst(v))
}
