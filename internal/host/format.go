package host

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/typeutil"
)

// ToString renders v the way String.valueOf(Object) does.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return FormatFloat(float64(x), 32)
	case float64:
		return FormatFloat(x, 64)
	case bool:
		return strconv.FormatBool(x)
	case Char:
		return string(utf16.Decode([]uint16{uint16(x)}))
	case *StringBuilder:
		return x.Text
	case bytecode.ClassConst:
		return "class " + typeutil.JavaName(x.Name)
	case *Object:
		return identity(x.Class)
	case *Array:
		return identity("[" + x.Elem)
	case Lambda:
		return identity(x.Interface + "$$Lambda")
	}
	return fmt.Sprint(v)
}

// FormatFloat renders a float the way Float.toString / Double.toString do:
// plain notation in [1e-3, 1e7), computerized scientific notation otherwise,
// and always at least one fractional digit.
func FormatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	abs := math.Abs(f)
	if abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(f, 'f', -1, bits)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(f, 'E', -1, bits)
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	exp = strings.TrimPrefix(exp, "+")
	neg := strings.HasPrefix(exp, "-")
	exp = strings.TrimLeft(strings.TrimPrefix(exp, "-"), "0")
	if exp == "" {
		exp = "0"
	}
	if neg {
		exp = "-" + exp
	}
	return mant + "E" + exp
}

// HashCode returns Object.hashCode for values with a defined hash.
func HashCode(v any) int32 {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		var h int32
		for _, u := range utf16.Encode([]rune(x)) {
			h = 31*h + int32(u)
		}
		return h
	case int32:
		return x
	case int64:
		return int32(x ^ int64(uint64(x)>>32))
	case bool:
		if x {
			return 1231
		}
		return 1237
	case Char:
		return int32(x)
	case float32:
		return int32(math.Float32bits(x))
	case float64:
		b := math.Float64bits(x)
		return int32(b ^ (b >> 32))
	}
	return HashCode(ToString(v))
}

// Equals implements Object.equals for value types and identity for the rest.
func Equals(a, b any) bool {
	switch x := a.(type) {
	case *StringBuilder:
		return a == b
	case *Object, *Array:
		return a == b
	case Lambda:
		y, ok := b.(Lambda)
		return ok && x.Interface == y.Interface && x.Impl == y.Impl && len(x.Captured) == 0 && len(y.Captured) == 0
	}
	return a == b
}

// =============================================================================
// String concatenation recipes
// =============================================================================

const (
	// RecipeArg marks an argument slot in a makeConcatWithConstants recipe.
	RecipeArg = '\u0001'
	// RecipeConst marks a constant slot in a makeConcatWithConstants recipe.
	RecipeConst = '\u0002'
)

// Concat evaluates a makeConcatWithConstants recipe. args are typed with
// descs, consts are the remaining bootstrap arguments.
func Concat(recipe string, args []any, descs []string, consts []any) (string, error) {
	var b strings.Builder
	ai, ci := 0, 0
	for _, r := range recipe {
		switch r {
		case RecipeArg:
			if ai >= len(args) {
				return "", fmt.Errorf("recipe %q needs more than %d arguments", recipe, len(args))
			}
			v := args[ai]
			if ai < len(descs) {
				v = Typed(v, descs[ai])
			}
			b.WriteString(ToString(v))
			ai++
		case RecipeConst:
			if ci >= len(consts) {
				return "", fmt.Errorf("recipe %q needs more than %d constants", recipe, len(consts))
			}
			b.WriteString(ToString(consts[ci]))
			ci++
		default:
			b.WriteRune(r)
		}
	}
	if ai != len(args) {
		return "", fmt.Errorf("recipe %q uses %d of %d arguments", recipe, ai, len(args))
	}
	return b.String(), nil
}

// =============================================================================
// String.format
// =============================================================================

// Format implements the common subset of java.util.Formatter: flags, width
// and precision followed by one of s S d x X o f e E g b c n %.
func Format(format string, args []any) (string, error) {
	var b strings.Builder
	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(format) && strings.IndexByte("-#+ 0,.123456789", format[j]) >= 0 {
			j++
		}
		if j >= len(format) {
			return "", fmt.Errorf("format %q ends inside a specifier", format)
		}
		spec := strings.ReplaceAll(format[i+1:j], ",", "")
		conv := format[j]
		i = j

		switch conv {
		case '%':
			b.WriteByte('%')
			continue
		case 'n':
			b.WriteByte('\n')
			continue
		}
		if next >= len(args) {
			return "", fmt.Errorf("format %q: missing argument %d", format, next+1)
		}
		arg := args[next]
		next++

		switch conv {
		case 's', 'S':
			s := fmt.Sprintf("%"+spec+"s", ToString(arg))
			if conv == 'S' {
				s = strings.ToUpper(s)
			}
			b.WriteString(s)
		case 'd', 'x', 'X', 'o':
			n, ok := asInt(arg)
			if !ok {
				return "", fmt.Errorf("format %q: %%%c given %s", format, conv, ClassOf(arg))
			}
			fmt.Fprintf(&b, "%"+spec+string(conv), n)
		case 'f', 'e', 'E', 'g':
			f, ok := asFloat(arg)
			if !ok {
				return "", fmt.Errorf("format %q: %%%c given %s", format, conv, ClassOf(arg))
			}
			fmt.Fprintf(&b, "%"+spec+string(conv), f)
		case 'b', 'B':
			v := arg != nil
			if x, ok := arg.(bool); ok {
				v = x
			}
			s := fmt.Sprintf("%"+spec+"t", v)
			if conv == 'B' {
				s = strings.ToUpper(s)
			}
			b.WriteString(s)
		case 'c':
			switch x := arg.(type) {
			case Char:
				b.WriteString(ToString(x))
			case int32:
				b.WriteRune(rune(x))
			default:
				return "", fmt.Errorf("format %q: %%c given %s", format, ClassOf(arg))
			}
		default:
			return "", fmt.Errorf("format %q: unsupported conversion %%%c", format, conv)
		}
	}
	return b.String(), nil
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case Char:
		return int64(x), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
