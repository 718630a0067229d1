package host

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	classObject  = "java/lang/Object"
	classString  = "java/lang/String"
	classBuilder = "java/lang/StringBuilder"
	classBuffer  = "java/lang/StringBuffer"
	classInteger = "java/lang/Integer"
	classLong    = "java/lang/Long"
	classBoolean = "java/lang/Boolean"
	classObjects = "java/util/Objects"

	descString = "Ljava/lang/String;"
	descObject = "Ljava/lang/Object;"
	descSeq    = "Ljava/lang/CharSequence;"
)

// Builtins returns a registry holding the library methods the evaluator knows:
// String, StringBuilder/StringBuffer, Integer, Long, Boolean, Objects and
// Object.
func Builtins() *Registry {
	r := NewRegistry()
	registerObject(r)
	registerString(r)
	registerBuilder(r, classBuilder)
	registerBuilder(r, classBuffer)
	registerBoxes(r)
	registerObjects(r)
	return r
}

func str(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case *StringBuilder:
		return x.Text, nil
	case nil:
		return "", ErrNullReceiver
	}
	return "", fmt.Errorf("%s is not a string", ClassOf(v))
}

func units(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

func fromUnits(u []uint16) string {
	return string(utf16.Decode(u))
}

func stringArray(v any) ([]any, error) {
	arr, ok := v.(*Array)
	if !ok {
		return nil, fmt.Errorf("%s is not an array", ClassOf(v))
	}
	return arr.Values, nil
}

func registerObject(r *Registry) {
	r.Register(classObject, "<init>", "()V", func(any, []any) (any, error) {
		return NewObject(classObject), nil
	})
	r.Register(classObject, "toString", "()"+descString, func(recv any, _ []any) (any, error) {
		if recv == nil {
			return nil, ErrNullReceiver
		}
		return ToString(recv), nil
	})
	r.Register(classObject, "equals", "("+descObject+")Z", func(recv any, args []any) (any, error) {
		if recv == nil {
			return nil, ErrNullReceiver
		}
		return Equals(recv, args[0]), nil
	})
	r.Register(classObject, "hashCode", "()I", func(recv any, _ []any) (any, error) {
		if recv == nil {
			return nil, ErrNullReceiver
		}
		return HashCode(recv), nil
	})
}

func registerString(r *Registry) {
	method := func(name, desc string, fn func(s string, args []any) (any, error)) {
		r.Register(classString, name, desc, func(recv any, args []any) (any, error) {
			s, err := str(recv)
			if err != nil {
				return nil, err
			}
			return fn(s, args)
		})
	}

	r.Register(classString, "<init>", "()V", func(any, []any) (any, error) { return "", nil })
	r.Register(classString, "<init>", "("+descString+")V", func(_ any, args []any) (any, error) {
		return str(args[0])
	})

	method("length", "()I", func(s string, _ []any) (any, error) { return int32(len(units(s))), nil })
	method("isEmpty", "()Z", func(s string, _ []any) (any, error) { return s == "", nil })
	method("isBlank", "()Z", func(s string, _ []any) (any, error) { return strings.TrimSpace(s) == "", nil })
	method("toString", "()"+descString, func(s string, _ []any) (any, error) { return s, nil })
	method("intern", "()"+descString, func(s string, _ []any) (any, error) { return s, nil })
	method("toUpperCase", "()"+descString, func(s string, _ []any) (any, error) { return strings.ToUpper(s), nil })
	method("toLowerCase", "()"+descString, func(s string, _ []any) (any, error) { return strings.ToLower(s), nil })
	method("trim", "()"+descString, func(s string, _ []any) (any, error) { return strings.Trim(s, " \t\n\r\f\v\x00"), nil })
	method("strip", "()"+descString, func(s string, _ []any) (any, error) { return strings.TrimSpace(s), nil })
	method("hashCode", "()I", func(s string, _ []any) (any, error) { return HashCode(s), nil })
	method("equals", "("+descObject+")Z", func(s string, args []any) (any, error) { return args[0] == any(s), nil })
	method("equalsIgnoreCase", "("+descString+")Z", func(s string, args []any) (any, error) {
		o, ok := args[0].(string)
		return ok && strings.EqualFold(s, o), nil
	})
	method("concat", "("+descString+")"+descString, func(s string, args []any) (any, error) {
		o, err := str(args[0])
		return s + o, err
	})
	method("repeat", "(I)"+descString, func(s string, args []any) (any, error) {
		n := args[0].(int32)
		if n < 0 {
			return nil, fmt.Errorf("count is negative: %d", n)
		}
		return strings.Repeat(s, int(n)), nil
	})
	method("charAt", "(I)C", func(s string, args []any) (any, error) {
		u, i := units(s), int(args[0].(int32))
		if i < 0 || i >= len(u) {
			return nil, fmt.Errorf("index %d out of bounds for length %d", i, len(u))
		}
		return Char(u[i]), nil
	})
	substring := func(s string, begin, end int) (any, error) {
		u := units(s)
		if begin < 0 || end > len(u) || begin > end {
			return nil, fmt.Errorf("begin %d, end %d, length %d", begin, end, len(u))
		}
		return fromUnits(u[begin:end]), nil
	}
	method("substring", "(I)"+descString, func(s string, args []any) (any, error) {
		return substring(s, int(args[0].(int32)), len(units(s)))
	})
	method("substring", "(II)"+descString, func(s string, args []any) (any, error) {
		return substring(s, int(args[0].(int32)), int(args[1].(int32)))
	})
	predicate := func(name string, fn func(s, o string) bool) {
		method(name, "("+descString+")Z", func(s string, args []any) (any, error) {
			o, err := str(args[0])
			return err == nil && fn(s, o), err
		})
	}
	predicate("startsWith", strings.HasPrefix)
	predicate("endsWith", strings.HasSuffix)
	method("contains", "("+descSeq+")Z", func(s string, args []any) (any, error) {
		o, err := str(args[0])
		return err == nil && strings.Contains(s, o), err
	})
	method("indexOf", "("+descString+")I", func(s string, args []any) (any, error) {
		o, err := str(args[0])
		if err != nil {
			return nil, err
		}
		i := strings.Index(s, o)
		if i < 0 {
			return int32(-1), nil
		}
		return int32(len(units(s[:i]))), nil
	})
	method("replace", "("+descSeq+descSeq+")"+descString, func(s string, args []any) (any, error) {
		from, err := str(args[0])
		if err != nil {
			return nil, err
		}
		to, err := str(args[1])
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(s, from, to), nil
	})
	method("replace", "(CC)"+descString, func(s string, args []any) (any, error) {
		return strings.ReplaceAll(s, ToString(args[0]), ToString(args[1])), nil
	})
	method("formatted", "([Ljava/lang/Object;)"+descString, func(s string, args []any) (any, error) {
		vals, err := stringArray(args[0])
		if err != nil {
			return nil, err
		}
		return Format(s, vals)
	})

	static := func(name, desc string, fn Func) {
		r.Register(classString, name, desc, func(_ any, args []any) (any, error) { return fn(nil, args) })
	}
	for _, d := range []string{descObject, "I", "J", "F", "D", "Z", "C"} {
		static("valueOf", "("+d+")"+descString, func(_ any, args []any) (any, error) {
			return ToString(args[0]), nil
		})
	}
	static("format", "("+descString+"[Ljava/lang/Object;)"+descString, func(_ any, args []any) (any, error) {
		f, err := str(args[0])
		if err != nil {
			return nil, err
		}
		vals, err := stringArray(args[1])
		if err != nil {
			return nil, err
		}
		return Format(f, vals)
	})
	static("join", "("+descSeq+"[Ljava/lang/CharSequence;)"+descString, func(_ any, args []any) (any, error) {
		sep, err := str(args[0])
		if err != nil {
			return nil, err
		}
		vals, err := stringArray(args[1])
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = ToString(v)
		}
		return strings.Join(parts, sep), nil
	})
}

func registerBuilder(r *Registry, class string) {
	self := "L" + class + ";"
	r.Register(class, "<init>", "()V", func(any, []any) (any, error) {
		return &StringBuilder{Class: class}, nil
	})
	r.Register(class, "<init>", "(I)V", func(any, []any) (any, error) {
		return &StringBuilder{Class: class}, nil
	})
	r.Register(class, "<init>", "("+descString+")V", func(_ any, args []any) (any, error) {
		s, err := str(args[0])
		return &StringBuilder{Class: class, Text: s}, err
	})
	r.Register(class, "<init>", "("+descSeq+")V", func(_ any, args []any) (any, error) {
		return &StringBuilder{Class: class, Text: ToString(args[0])}, nil
	})

	builder := func(recv any) (*StringBuilder, error) {
		b, ok := recv.(*StringBuilder)
		if !ok {
			if recv == nil {
				return nil, ErrNullReceiver
			}
			return nil, fmt.Errorf("%s is not a %s", ClassOf(recv), class)
		}
		return b, nil
	}
	for _, d := range []string{descString, descObject, descSeq, "I", "J", "F", "D", "Z", "C"} {
		r.Register(class, "append", "("+d+")"+self, func(recv any, args []any) (any, error) {
			b, err := builder(recv)
			if err != nil {
				return nil, err
			}
			return &StringBuilder{Class: class, Text: b.Text + ToString(args[0])}, nil
		})
	}
	r.Register(class, "toString", "()"+descString, func(recv any, _ []any) (any, error) {
		b, err := builder(recv)
		if err != nil {
			return nil, err
		}
		return b.Text, nil
	})
	r.Register(class, "length", "()I", func(recv any, _ []any) (any, error) {
		b, err := builder(recv)
		if err != nil {
			return nil, err
		}
		return int32(len(units(b.Text))), nil
	})
	r.Register(class, "reverse", "()"+self, func(recv any, _ []any) (any, error) {
		b, err := builder(recv)
		if err != nil {
			return nil, err
		}
		u := units(b.Text)
		for i, j := 0, len(u)-1; i < j; i, j = i+1, j-1 {
			u[i], u[j] = u[j], u[i]
		}
		return &StringBuilder{Class: class, Text: fromUnits(u)}, nil
	})
}

func registerBoxes(r *Registry) {
	type box struct {
		class, prim string
		parse       func(string) (any, error)
	}
	boxes := []box{
		{classInteger, "I", func(s string) (any, error) {
			n, err := strconv.ParseInt(s, 10, 32)
			return int32(n), err
		}},
		{classLong, "J", func(s string) (any, error) {
			return strconv.ParseInt(s, 10, 64)
		}},
		{classBoolean, "Z", func(s string) (any, error) {
			return strings.EqualFold(s, "true"), nil
		}},
	}
	parsers := map[string]string{classInteger: "parseInt", classLong: "parseLong", classBoolean: "parseBoolean"}
	unboxers := map[string]string{classInteger: "intValue", classLong: "longValue", classBoolean: "booleanValue"}

	for _, b := range boxes {
		b := b
		self := "L" + b.class + ";"
		identityFn := func(_ any, args []any) (any, error) { return args[0], nil }
		parse := func(_ any, args []any) (any, error) {
			s, err := str(args[0])
			if err != nil {
				return nil, err
			}
			v, err := b.parse(s)
			if err != nil {
				return nil, fmt.Errorf("for input string %q", s)
			}
			return v, nil
		}
		r.Register(b.class, "valueOf", "("+b.prim+")"+self, identityFn)
		r.Register(b.class, "valueOf", "("+descString+")"+self, parse)
		r.Register(b.class, parsers[b.class], "("+descString+")"+b.prim, parse)
		r.Register(b.class, "toString", "("+b.prim+")"+descString, func(_ any, args []any) (any, error) {
			return ToString(args[0]), nil
		})
		r.Register(b.class, "toString", "()"+descString, func(recv any, _ []any) (any, error) {
			if recv == nil {
				return nil, ErrNullReceiver
			}
			return ToString(recv), nil
		})
		r.Register(b.class, unboxers[b.class], "()"+b.prim, func(recv any, _ []any) (any, error) {
			if recv == nil {
				return nil, ErrNullReceiver
			}
			return recv, nil
		})
	}
}

func registerObjects(r *Registry) {
	r.Register(classObjects, "toString", "("+descObject+")"+descString, func(_ any, args []any) (any, error) {
		return ToString(args[0]), nil
	})
	r.Register(classObjects, "toString", "("+descObject+descString+")"+descString, func(_ any, args []any) (any, error) {
		if args[0] == nil {
			return args[1], nil
		}
		return ToString(args[0]), nil
	})
	r.Register(classObjects, "requireNonNull", "("+descObject+")"+descObject, func(_ any, args []any) (any, error) {
		if args[0] == nil {
			return nil, ErrNullReceiver
		}
		return args[0], nil
	})
	r.Register(classObjects, "requireNonNull", "("+descObject+descString+")"+descObject, func(_ any, args []any) (any, error) {
		if args[0] == nil {
			return nil, fmt.Errorf("%s", ToString(args[1]))
		}
		return args[0], nil
	})
	r.Register(classObjects, "requireNonNullElse", "("+descObject+descObject+")"+descObject, func(_ any, args []any) (any, error) {
		if args[0] != nil {
			return args[0], nil
		}
		return args[1], nil
	})
	r.Register(classObjects, "equals", "("+descObject+descObject+")Z", func(_ any, args []any) (any, error) {
		if args[0] == nil {
			return args[1] == nil, nil
		}
		return Equals(args[0], args[1]), nil
	})
	r.Register(classObjects, "isNull", "("+descObject+")Z", func(_ any, args []any) (any, error) {
		return args[0] == nil, nil
	})
	r.Register(classObjects, "nonNull", "("+descObject+")Z", func(_ any, args []any) (any, error) {
		return args[0] != nil, nil
	})
	r.Register(classObjects, "hashCode", "("+descObject+")I", func(_ any, args []any) (any, error) {
		return HashCode(args[0]), nil
	})
}
