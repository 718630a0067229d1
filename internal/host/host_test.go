package host_test

import (
	"errors"
	"math"
	"testing"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/host"
)

func TestToString(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"null", nil, "null"},
		{"string", "q", "q"},
		{"int", int32(-7), "-7"},
		{"long", int64(1) << 40, "1099511627776"},
		{"bool", true, "true"},
		{"char", host.Char('x'), "x"},
		{"double integral", float64(1), "1.0"},
		{"double fraction", 1.5, "1.5"},
		{"double large", 1e10, "1.0E10"},
		{"double small", 0.0001, "1.0E-4"},
		{"float", float32(2.5), "2.5"},
		{"nan", math.NaN(), "NaN"},
		{"negative infinity", math.Inf(-1), "-Infinity"},
		{"builder", &host.StringBuilder{Text: "ab"}, "ab"},
		{"class", bytecode.ClassConst{Name: "java/lang/String"}, "class java.lang.String"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := host.ToString(tt.v); got != tt.want {
				t.Errorf("ToString(%#v) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}
}

func TestHashCode(t *testing.T) {
	tests := []struct {
		v    any
		want int32
	}{
		{"", 0},
		{"a", 97},
		{"hello", 99162322},
		{true, 1231},
		{int64(1) << 32, 1},
	}
	for _, tt := range tests {
		if got := host.HashCode(tt.v); got != tt.want {
			t.Errorf("HashCode(%#v) = %d, want %d", tt.v, got, tt.want)
		}
	}
}

func TestConcat(t *testing.T) {
	got, err := host.Concat("q-\u0001.\u0002-\u0001", []any{"orders", int32(65)}, []string{"Ljava/lang/String;", "C"}, []any{"v1"})
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if want := "q-orders.v1-A"; got != want {
		t.Errorf("Concat = %q, want %q", got, want)
	}
	if _, err := host.Concat("\u0001\u0001", []any{"x"}, nil, nil); err == nil {
		t.Errorf("Concat with missing argument should fail")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		format string
		args   []any
		want   string
	}{
		{"%s/%d", []any{"a", int32(3)}, "a/3"},
		{"%5s|%-3d|", []any{"ab", int32(7)}, "   ab|7  |"},
		{"%.2f%%", []any{1.5}, "1.50%"},
		{"%x%n", []any{int64(255)}, "ff\n"},
		{"%b %S", []any{nil, "up"}, "false UP"},
		{"%c", []any{host.Char('z')}, "z"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := host.Format(tt.format, tt.args)
			if err != nil {
				t.Fatalf("Format: %v", err)
			}
			if got != tt.want {
				t.Errorf("Format = %q, want %q", got, tt.want)
			}
		})
	}
	if _, err := host.Format("%d", []any{"x"}); err == nil {
		t.Errorf("%%d with a string should fail")
	}
	if _, err := host.Format("%s %s", []any{"x"}); err == nil {
		t.Errorf("missing argument should fail")
	}
}

func TestBuiltins(t *testing.T) {
	r := host.Builtins()
	call := func(owner, name, desc string, recv any, args ...any) (any, error) {
		t.Helper()
		fn, ok := r.Lookup(owner, name, desc)
		if !ok {
			t.Fatalf("%s.%s%s not registered", owner, name, desc)
		}
		return host.Call(fn, host.Key{Owner: owner, Name: name, Desc: desc}, recv, args)
	}

	sb, err := call("java/lang/StringBuilder", "<init>", "(Ljava/lang/String;)V", nil, "a")
	if err != nil {
		t.Fatal(err)
	}
	sb2, err := call("java/lang/StringBuilder", "append", "(I)Ljava/lang/StringBuilder;", sb, int32(1))
	if err != nil {
		t.Fatal(err)
	}
	sb3, err := call("java/lang/StringBuilder", "append", "(C)Ljava/lang/StringBuilder;", sb2, int32('z'))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := call("java/lang/StringBuilder", "toString", "()Ljava/lang/String;", sb3); got != "a1z" {
		t.Errorf("builder = %v, want a1z", got)
	}
	if got, _ := call("java/lang/StringBuilder", "toString", "()Ljava/lang/String;", sb); got != "a" {
		t.Errorf("append must not mutate the receiver, got %v", got)
	}

	if got, _ := call("java/lang/String", "length", "()I", "héllo"); got != int32(5) {
		t.Errorf("length = %v, want 5", got)
	}
	if got, _ := call("java/lang/String", "isEmpty", "()Z", ""); got != int32(1) {
		t.Errorf("isEmpty = %v, want stack int 1", got)
	}
	if got, _ := call("java/lang/String", "valueOf", "(Z)Ljava/lang/String;", nil, int32(0)); got != "false" {
		t.Errorf("valueOf(Z) = %v, want false", got)
	}
	if got, _ := call("java/lang/Integer", "parseInt", "(Ljava/lang/String;)I", nil, "42"); got != int32(42) {
		t.Errorf("parseInt = %v, want 42", got)
	}
	if _, err := call("java/lang/Integer", "parseInt", "(Ljava/lang/String;)I", nil, "x"); err == nil {
		t.Errorf("parseInt(x) should fail")
	}
	if _, err := call("java/lang/String", "length", "()I", nil); !errors.Is(err, host.ErrNullReceiver) {
		t.Errorf("null receiver error = %v", err)
	}

	arr := &host.Array{Elem: "Ljava/lang/Object;", Values: []any{"q", int32(2)}}
	if got, _ := call("java/lang/String", "format", "(Ljava/lang/String;[Ljava/lang/Object;)Ljava/lang/String;", nil, "%s-%d", arr); got != "q-2" {
		t.Errorf("format = %v, want q-2", got)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := host.Builtins()
	if _, ok := r.Resolve([]string{"app/Thing"}, "hashCode", "()I"); !ok {
		t.Errorf("Object methods should resolve for any class")
	}
	if _, ok := r.Resolve([]string{"app/Thing"}, "send", "()V"); ok {
		t.Errorf("unknown methods should not resolve")
	}
	if !r.HasClass("java/lang/StringBuilder") || r.HasClass("app/Thing") {
		t.Errorf("HasClass mismatch")
	}
}

func TestSnapshot(t *testing.T) {
	obj := host.NewObject("app/Svc")
	obj.Fields["queue"] = "orders"
	s := host.NewSnapshot([]*bytecode.Component{{Name: "svc", Type: "app/Svc", Instance: obj}})
	s.SetStatic("app/Cfg", "PREFIX", "p-")

	if got, ok := s.Instance("svc"); !ok || got != obj {
		t.Errorf("Instance(svc) = %v, %v", got, ok)
	}
	if got, ok := s.Field(obj, "queue"); !ok || got != "orders" {
		t.Errorf("Field(queue) = %v, %v", got, ok)
	}
	if _, ok := s.Field("not an object", "queue"); ok {
		t.Errorf("Field on a string should be unknown")
	}
	if got, ok := s.StaticField("app/Cfg", "PREFIX"); !ok || got != "p-" {
		t.Errorf("StaticField = %v, %v", got, ok)
	}
	if _, err := s.Invoke(obj, bytecode.MemberRef{}, nil); !errors.Is(err, host.ErrNotLive) {
		t.Errorf("Invoke error = %v", err)
	}
}
