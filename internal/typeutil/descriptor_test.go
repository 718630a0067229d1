package typeutil_test

import (
	"reflect"
	"testing"

	"github.com/mpyw/bceval/internal/typeutil"
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		name   string
		desc   string
		params []string
		ret    string
		err    bool
	}{
		{"no params", "()V", nil, "V", false},
		{"primitives", "(IJZ)D", []string{"I", "J", "Z"}, "D", false},
		{"classes", "(Ljava/lang/String;I)Ljava/lang/Object;", []string{"Ljava/lang/String;", "I"}, "Ljava/lang/Object;", false},
		{"arrays", "([I[[Ljava/lang/String;)V", []string{"[I", "[[Ljava/lang/String;"}, "V", false},
		{"missing paren", "IV", nil, "", true},
		{"unterminated class", "(Ljava/lang/String)V", nil, "", true},
		{"bad char", "(Q)V", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := typeutil.ParseMethod(tt.desc)
			if tt.err {
				if err == nil {
					t.Errorf("ParseMethod(%q) expected error", tt.desc)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMethod(%q) error: %v", tt.desc, err)
			}
			if !reflect.DeepEqual(md.Params, tt.params) {
				t.Errorf("Params = %v, want %v", md.Params, tt.params)
			}
			if md.Return != tt.ret {
				t.Errorf("Return = %q, want %q", md.Return, tt.ret)
			}
		})
	}
}

func TestFieldLen(t *testing.T) {
	n, err := typeutil.FieldLen("[[Ljava/lang/String;I")
	if err != nil {
		t.Fatal(err)
	}
	if n != len("[[Ljava/lang/String;") {
		t.Errorf("FieldLen = %d", n)
	}
	if _, err := typeutil.FieldLen(""); err == nil {
		t.Error("FieldLen(\"\") should fail")
	}
}

func TestParamSlots(t *testing.T) {
	params := []string{"I", "J", "Ljava/lang/String;", "D", "Z"}

	if got, want := typeutil.ParamSlots(params, true), []int{0, 1, 3, 4, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("static slots = %v, want %v", got, want)
	}
	if got, want := typeutil.ParamSlots(params, false), []int{1, 2, 4, 5, 7}; !reflect.DeepEqual(got, want) {
		t.Errorf("instance slots = %v, want %v", got, want)
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		in, simple, java, class string
	}{
		{"java/lang/String", "String", "java.lang.String", "java/lang/String"},
		{"Ljava/lang/String;", "String", "java.lang.String", "java/lang/String"},
		{"app/Outer$Inner", "Inner", "app.Outer$Inner", "app/Outer$Inner"},
		{"Plain", "Plain", "Plain", "Plain"},
	}
	for _, tt := range tests {
		if got := typeutil.SimpleName(tt.in); got != tt.simple {
			t.Errorf("SimpleName(%q) = %q, want %q", tt.in, got, tt.simple)
		}
		if got := typeutil.JavaName(tt.in); got != tt.java {
			t.Errorf("JavaName(%q) = %q, want %q", tt.in, got, tt.java)
		}
		if got := typeutil.ClassName(tt.in); got != tt.class {
			t.Errorf("ClassName(%q) = %q, want %q", tt.in, got, tt.class)
		}
	}
	if got := typeutil.Descriptor("java/lang/String"); got != "Ljava/lang/String;" {
		t.Errorf("Descriptor = %q", got)
	}
	if got := typeutil.Descriptor("[I"); got != "[I" {
		t.Errorf("Descriptor([I) = %q", got)
	}
}

func TestSameParams(t *testing.T) {
	if !typeutil.SameParams("(ILjava/lang/String;)V", "(ILjava/lang/String;)Ljava/lang/Object;") {
		t.Error("same parameters with different returns should match")
	}
	if typeutil.SameParams("(I)V", "(J)V") {
		t.Error("different parameters should not match")
	}
}

func TestCategory(t *testing.T) {
	for _, d := range []string{"J", "D"} {
		if typeutil.Category(d) != 2 {
			t.Errorf("Category(%s) should be 2", d)
		}
	}
	for _, d := range []string{"I", "F", "Ljava/lang/Object;", "[J"} {
		if typeutil.Category(d) != 1 {
			t.Errorf("Category(%s) should be 1", d)
		}
	}
}

type fakeHierarchy map[string][]string // name -> [super, interfaces...]

func (h fakeHierarchy) SuperOf(name string) (string, bool) {
	e, ok := h[name]
	if !ok || len(e) == 0 || e[0] == "" {
		return "", false
	}
	return e[0], true
}

func (h fakeHierarchy) InterfacesOf(name string) []string {
	e := h[name]
	if len(e) < 2 {
		return nil
	}
	return e[1:]
}

func TestIsAssignable(t *testing.T) {
	h := fakeHierarchy{
		"app/KafkaClient": {"app/AbstractClient", "app/Sender"},
		"app/AbstractClient": {"java/lang/Object", "java/io/Closeable"},
		"app/Sender":         {""},
	}

	tests := []struct {
		from, to string
		want     bool
	}{
		{"app/KafkaClient", "app/KafkaClient", true},
		{"app/KafkaClient", "app/AbstractClient", true},
		{"app/KafkaClient", "app/Sender", true},
		{"app/KafkaClient", "java/io/Closeable", true},
		{"app/KafkaClient", "java/lang/Object", true},
		{"app/AbstractClient", "app/KafkaClient", false},
		{"app/Sender", "app/AbstractClient", false},
		{"unknown/Type", "app/Sender", false},
	}
	for _, tt := range tests {
		if got := typeutil.IsAssignable(h, tt.from, tt.to); got != tt.want {
			t.Errorf("IsAssignable(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	got := typeutil.Supertypes(h, "app/KafkaClient")
	want := []string{"app/KafkaClient", "app/AbstractClient", "app/Sender", "java/lang/Object", "java/io/Closeable"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Supertypes = %v, want %v", got, want)
	}
}
