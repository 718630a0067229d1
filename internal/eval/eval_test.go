package eval_test

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/eval"
	"github.com/mpyw/bceval/internal/image"
	"github.com/mpyw/bceval/internal/result"
)

const sink = `
[[class]]
name = "app/Sink"

  [[class.method]]
  name = "accept"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = "return"

  [[class.method]]
  name = "count"
  desc = "(I)V"
  access = ["static"]
  code = "return"
`

type fixture struct {
	im  *image.Image
	env *eval.Env
}

func load(t *testing.T, src string) *fixture {
	t.Helper()
	f, err := image.Parse([]byte(src + sink))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	im, err := f.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return &fixture{im: im, env: eval.NewEnv(im.Program, result.NewArena())}
}

// operand returns the first operand of the instruction labelled "call" in
// method.
func (fx *fixture) operand(t *testing.T, method string) (*eval.Context, result.ID) {
	t.Helper()
	m, ok := fx.im.Program.Method(method)
	if !ok {
		t.Fatalf("method %s missing", method)
	}
	c, err := fx.env.ComponentContext(m)
	if err != nil {
		t.Fatalf("ComponentContext: %v", err)
	}
	pos, ok := fx.im.Label(method, "call")
	if !ok {
		t.Fatalf("label call missing in %s", method)
	}
	id, err := c.Operand(pos, 0)
	if err != nil {
		t.Fatalf("Operand: %v", err)
	}
	return c, id
}

func (fx *fixture) valuesAt(t *testing.T, method string) ([]any, error) {
	t.Helper()
	c, id := fx.operand(t, method)
	return fx.env.ConcreteValues(fx.env.NewForcer(c), id)
}

func sorted(vs []any) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = fmt.Sprint(v)
	}
	sort.Strings(out)
	return out
}

func TestBranches(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []string
	}{
		{
			name: "stores on both arms",
			code: `
	iload_0
	ifeq other
	ldc "A"
	astore_1
	goto done
other:
	ldc "B"
	astore_1
done:
	aload_1
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
`,
			want: []string{"A", "B"},
		},
		{
			name: "ternary on the stack",
			code: `
	iload_0
	ifeq q2
	ldc "Q1"
	goto call
q2:
	ldc "Q2"
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
`,
			want: []string{"Q1", "Q2"},
		},
		{
			name: "values from one arm stay together",
			code: `
	iload_0
	ifeq other
	ldc "a"
	astore_1
	ldc "c"
	astore_2
	goto done
other:
	ldc "b"
	astore_1
	ldc "d"
	astore_2
done:
	aload_1
	aload_2
	invokedynamic makeConcatWithConstants(Ljava/lang/String;Ljava/lang/String;)Ljava/lang/String; concat "\u0001\u0001"
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
`,
			want: []string{"ac", "bd"},
		},
		{
			name: "independent decisions combine",
			code: `
	iload_0
	ifeq b
	ldc "a"
	astore_1
	goto second
b:
	ldc "b"
	astore_1
second:
	iload_0
	ifne d
	ldc "c"
	astore_2
	goto done
d:
	ldc "d"
	astore_2
done:
	aload_1
	aload_2
	invokedynamic makeConcatWithConstants(Ljava/lang/String;Ljava/lang/String;)Ljava/lang/String; concat "\u0001\u0001"
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
`,
			want: []string{"ac", "ad", "bc", "bd"},
		},
		{
			name: "store before the fork only reaches through the other arm",
			code: `
	ldc "1"
	astore_1
	iload_0
	ifeq other
	ldc "2"
	astore_1
	ldc "C"
	astore_2
	goto done
other:
	ldc "D"
	astore_2
done:
	aload_1
	aload_2
	invokedynamic makeConcatWithConstants(Ljava/lang/String;Ljava/lang/String;)Ljava/lang/String; concat "\u0001\u0001"
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
`,
			want: []string{"1D", "2C"},
		},
		{
			name: "store before nested forks keeps both outer arms",
			code: `
	ldc "1"
	astore_1
	iload_0
	ifeq left
	ldc "L"
	astore_2
	goto join
left:
	ldc "R"
	astore_2
join:
	iload_0
	ifne skip
	ldc "2"
	astore_1
skip:
	aload_1
	aload_2
	invokedynamic makeConcatWithConstants(Ljava/lang/String;Ljava/lang/String;)Ljava/lang/String; concat "\u0001\u0001"
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
`,
			want: []string{"1L", "1R", "2L", "2R"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := load(t, `
[[class]]
name = "app/Svc"

  [[class.method]]
  name = "run"
  desc = "(Z)V"
  access = ["static"]
  code = '''`+tt.code+`'''
`)
			got, err := fx.valuesAt(t, "app/Svc.run(Z)V")
			if err != nil {
				t.Fatalf("ConcreteValues: %v", err)
			}
			if s := sorted(got); !reflect.DeepEqual(s, tt.want) {
				t.Errorf("values = %v, want %v", s, tt.want)
			}
		})
	}
}

func TestCalls(t *testing.T) {
	const src = `
[[class]]
name = "app/Box"

  [[class.field]]
  name = "v"
  desc = "Ljava/lang/String;"

  [[class.method]]
  name = "<init>"
  desc = "(Ljava/lang/String;)V"
  code = '''
	aload_0
	invokespecial java/lang/Object.<init>()V
	aload_0
	aload_1
	putfield app/Box.v:Ljava/lang/String;
	return
'''

[[class]]
name = "app/Svc"

  [[class.method]]
  name = "prefix"
  desc = "(Ljava/lang/String;)Ljava/lang/String;"
  access = ["static"]
  code = '''
	aload_0
	invokedynamic makeConcatWithConstants(Ljava/lang/String;)Ljava/lang/String; concat "q-\u0001"
	areturn
'''

  [[class.method]]
  name = "inlined"
  desc = "()V"
  access = ["static"]
  code = '''
	ldc "orders"
	invokestatic app/Svc.prefix(Ljava/lang/String;)Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "host"
  desc = "()V"
  access = ["static"]
  code = '''
	ldc "Mixed"
	invokevirtual java/lang/String.toLowerCase()Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "lambda$0"
  desc = "()Ljava/lang/String;"
  access = ["static"]
  code = '''
	ldc "from-lambda"
	areturn
'''

  [[class.method]]
  name = "supplier"
  desc = "()V"
  access = ["static"]
  code = '''
	invokedynamic get()Ljava/util/function/Supplier; lambda type:()Ljava/lang/Object; static:app/Svc.lambda$0()Ljava/lang/String; type:()Ljava/lang/String;
	invokeinterface java/util/function/Supplier.get()Ljava/lang/Object;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "field"
  desc = "()V"
  access = ["static"]
  code = '''
	new app/Box
	dup
	ldc "boxed"
	invokespecial app/Box.<init>(Ljava/lang/String;)V
	getfield app/Box.v:Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "array"
  desc = "()V"
  access = ["static"]
  code = '''
	iconst_2
	anewarray java/lang/String
	dup
	iconst_0
	ldc "x"
	aastore
	dup
	iconst_1
	ldc "y"
	aastore
	iconst_1
	aaload
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "builder"
  desc = "()V"
  access = ["static"]
  code = '''
	new java/lang/StringBuilder
	dup
	invokespecial java/lang/StringBuilder.<init>()V
	ldc "a"
	invokevirtual java/lang/StringBuilder.append(Ljava/lang/String;)Ljava/lang/StringBuilder;
	iconst_1
	invokevirtual java/lang/StringBuilder.append(I)Ljava/lang/StringBuilder;
	invokevirtual java/lang/StringBuilder.toString()Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''
`
	tests := []struct {
		method string
		want   []any
	}{
		{"app/Svc.inlined()V", []any{"q-orders"}},
		{"app/Svc.host()V", []any{"mixed"}},
		{"app/Svc.supplier()V", []any{"from-lambda"}},
		{"app/Svc.field()V", []any{"boxed"}},
		{"app/Svc.array()V", []any{"y"}},
		{"app/Svc.builder()V", []any{"a1"}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			fx := load(t, src)
			got, err := fx.valuesAt(t, tt.method)
			if err != nil {
				t.Fatalf("ConcreteValues: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("values = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRecursion(t *testing.T) {
	const src = `
[[class]]
name = "app/Rec"

  [[class.method]]
  name = "same"
  desc = "(I)I"
  access = ["static"]
  code = '''
	iload_0
	invokestatic app/Rec.same(I)I
	ireturn
'''

  [[class.method]]
  name = "deeper"
  desc = "(I)I"
  access = ["static"]
  code = '''
	iload_0
	iconst_1
	iadd
	invokestatic app/Rec.deeper(I)I
	ireturn
'''

  [[class.method]]
  name = "runSame"
  desc = "()V"
  access = ["static"]
  code = '''
	iconst_1
	invokestatic app/Rec.same(I)I
call:
	invokestatic app/Sink.count(I)V
	return
'''

  [[class.method]]
  name = "runDeeper"
  desc = "()V"
  access = ["static"]
  code = '''
	iconst_1
	invokestatic app/Rec.deeper(I)I
call:
	invokestatic app/Sink.count(I)V
	return
'''
`
	for _, method := range []string{"app/Rec.runSame()V", "app/Rec.runDeeper()V"} {
		t.Run(method, func(t *testing.T) {
			fx := load(t, src)
			type outcome struct {
				vs  []any
				err error
			}
			c, id := fx.operand(t, method)
			done := make(chan outcome, 1)
			go func() {
				vs, err := fx.env.ConcreteValues(fx.env.NewForcer(c), id)
				done <- outcome{vs, err}
			}()
			select {
			case o := <-done:
				if len(o.vs) != 0 {
					t.Errorf("values = %#v, want none", o.vs)
				}
				if !errors.Is(o.err, result.ErrNoCallSucceeded) {
					t.Errorf("error = %v, want %v", o.err, result.ErrNoCallSucceeded)
				}
			case <-time.After(10 * time.Second):
				t.Fatal("evaluation did not terminate")
			}
		})
	}
}

func TestCallDepth_NotReusedAcrossStacks(t *testing.T) {
	const src = `
[[class]]
name = "app/Chain"

  [[class.field]]
  name = "FLAG"
  desc = "I"
  access = ["static"]

  [[class.method]]
  name = "leaf"
  desc = "()Ljava/lang/String;"
  access = ["static"]
  code = '''
	ldc "deep"
	areturn
'''

  [[class.method]]
  name = "mid"
  desc = "()Ljava/lang/String;"
  access = ["static"]
  code = '''
	getstatic app/Chain.FLAG:I
	ifeq deep
	ldc "near"
	areturn
deep:
	invokestatic app/Chain.leaf()Ljava/lang/String;
	areturn
'''

  [[class.method]]
  name = "wrap"
  desc = "()Ljava/lang/String;"
  access = ["static"]
  code = '''
	invokestatic app/Chain.mid()Ljava/lang/String;
	areturn
'''

  [[class.method]]
  name = "hop"
  desc = "()Ljava/lang/String;"
  access = ["static"]
  code = '''
	invokestatic app/Chain.wrap()Ljava/lang/String;
	areturn
'''

  [[class.method]]
  name = "far"
  desc = "()V"
  access = ["static"]
  code = '''
	invokestatic app/Chain.hop()Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "close"
  desc = "()V"
  access = ["static"]
  code = '''
	invokestatic app/Chain.wrap()Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''
`
	fx := load(t, src)
	fx.env.MaxCallDepth = 4

	// far reaches leaf one frame past the bound, so only "near" survives.
	got, _ := fx.valuesAt(t, "app/Chain.far()V")
	if want := []string{"near"}; !reflect.DeepEqual(sorted(got), want) {
		t.Errorf("far = %v, want %v", sorted(got), want)
	}

	got, err := fx.valuesAt(t, "app/Chain.close()V")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if want := []string{"deep", "near"}; !reflect.DeepEqual(sorted(got), want) {
		t.Errorf("close = %v, want %v", sorted(got), want)
	}
}

func TestDeterminism(t *testing.T) {
	const src = `
[[class]]
name = "app/Svc"

  [[class.method]]
  name = "run"
  desc = "(I)V"
  access = ["static"]
  code = '''
	iload_0
	tableswitch 0:a 1:b default:c
a:
	ldc "zero"
	astore_1
	goto done
b:
	ldc "one"
	astore_1
	goto done
c:
	ldc "many"
	astore_1
done:
	aload_1
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''
`
	var first []any
	for i := 0; i < 5; i++ {
		fx := load(t, src)
		got, err := fx.valuesAt(t, "app/Svc.run(I)V")
		if err != nil {
			t.Fatalf("ConcreteValues: %v", err)
		}
		if i == 0 {
			first = got
			continue
		}
		if !reflect.DeepEqual(got, first) {
			t.Errorf("run %d = %#v, want %#v", i, got, first)
		}
	}
	if len(first) != 3 {
		t.Errorf("values = %#v, want 3 values", first)
	}
}

func TestUnboundParameter(t *testing.T) {
	fx := load(t, `
[[class]]
name = "app/Svc"

  [[class.method]]
  name = "send"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = '''
	aload_0
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''
`)
	got, err := fx.valuesAt(t, "app/Svc.send(Ljava/lang/String;)V")
	if len(got) != 0 {
		t.Errorf("values = %#v, want none", got)
	}
	if !errors.Is(err, result.ErrNoParameterVariants) {
		t.Errorf("error = %v, want %v", err, result.ErrNoParameterVariants)
	}
}

func TestConcreteValues_FlattensUnions(t *testing.T) {
	p, err := bytecode.NewProgram(nil, nil)
	if err != nil {
		t.Fatalf("NewProgram: %v", err)
	}
	a := result.NewArena()
	env := eval.NewEnv(p, a)
	site := result.Site{Scope: "test"}

	x := a.NewConstant(site, "x")
	y := a.NewConstant(site, "y")
	inner, err := a.NewMultiple(site, []result.ID{x, y}, nil)
	if err != nil {
		t.Fatalf("NewMultiple: %v", err)
	}
	outer, err := a.NewMultiple(site, []result.ID{inner, a.NewConstant(site, "x"), a.NewDuplicate(site, y)}, nil)
	if err != nil {
		t.Fatalf("NewMultiple: %v", err)
	}

	got, err := env.ConcreteValues(result.NewForcer("test"), outer)
	if err != nil {
		t.Fatalf("ConcreteValues: %v", err)
	}
	if want := []any{"x", "y"}; !reflect.DeepEqual(got, want) {
		t.Errorf("values = %#v, want %#v", got, want)
	}
}

func TestMemberFailures(t *testing.T) {
	const src = `
[[class]]
name = "app/Box"

  [[class.field]]
  name = "v"
  desc = "Ljava/lang/String;"

  [[class.field]]
  name = "w"
  desc = "Ljava/lang/String;"

  [[class.method]]
  name = "<init>"
  desc = "(Ljava/lang/String;)V"
  code = '''
	aload_0
	invokespecial java/lang/Object.<init>()V
	aload_0
	aload_1
	putfield app/Box.v:Ljava/lang/String;
	return
'''

[[class]]
name = "app/Cfg"

  [[class.field]]
  name = "EMPTY"
  desc = "Ljava/lang/String;"
  access = ["static"]

[[class]]
name = "app/Svc"

  [[class.method]]
  name = "missingStatic"
  desc = "()V"
  access = ["static"]
  code = '''
	getstatic app/Cfg.MISSING:Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "emptyStatic"
  desc = "()V"
  access = ["static"]
  code = '''
	getstatic app/Cfg.EMPTY:Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "missingField"
  desc = "(Lapp/Box;)V"
  access = ["static"]
  code = '''
	aload_0
	getfield app/Box.nope:Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "unassignedField"
  desc = "(Lapp/Box;)V"
  access = ["static"]
  code = '''
	aload_0
	getfield app/Box.w:Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''
`
	tests := []struct {
		method string
		want   error
	}{
		{"app/Svc.missingStatic()V", result.ErrMemberNotFound},
		{"app/Svc.emptyStatic()V", result.ErrNotAccessible},
		{"app/Svc.missingField(Lapp/Box;)V", result.ErrMemberNotFound},
		{"app/Svc.unassignedField(Lapp/Box;)V", result.ErrNotAccessible},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			fx := load(t, src)
			got, err := fx.valuesAt(t, tt.method)
			if len(got) != 0 {
				t.Errorf("values = %#v, want none", got)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
