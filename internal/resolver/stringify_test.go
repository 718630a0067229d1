package resolver_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mpyw/bceval/internal/eval"
	"github.com/mpyw/bceval/internal/image"
	"github.com/mpyw/bceval/internal/resolver"
	"github.com/mpyw/bceval/internal/result"
)

const program = `
[[class]]
name = "app/Svc"

  [[class.method]]
  name = "send"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = '''
	aload_0
	invokedynamic makeConcatWithConstants(Ljava/lang/String;)Ljava/lang/String; concat "q-\u0001"
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''
    [[class.method.local]]
    slot = 0
    name = "dest"
    desc = "Ljava/lang/String;"

  [[class.method]]
  name = "shift"
  desc = "(I)V"
  access = ["static"]
  code = '''
	iload_0
	iconst_1
	iadd
call:
	invokestatic app/Sink.count(I)V
	return
'''
    [[class.method.local]]
    slot = 0
    name = "n"
    desc = "I"

  [[class.method]]
  name = "upper"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = '''
	aload_0
	invokevirtual java/lang/String.toUpperCase()Ljava/lang/String;
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''
    [[class.method.local]]
    slot = 0
    name = "topic"
    desc = "Ljava/lang/String;"

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

func operandValues(t *testing.T, r resolver.Resolver, method string) ([]any, error) {
	t.Helper()
	f, err := image.Parse([]byte(program))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	im, err := f.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	env := eval.NewEnv(im.Program, result.NewArena())
	env.Resolver = r

	m, ok := im.Program.Method(method)
	if !ok {
		t.Fatalf("method %s missing", method)
	}
	c, err := env.ComponentContext(m)
	if err != nil {
		t.Fatalf("ComponentContext: %v", err)
	}
	pos, ok := im.Label(method, "call")
	if !ok {
		t.Fatalf("label call missing in %s", method)
	}
	id, err := c.Operand(pos, 0)
	if err != nil {
		t.Fatalf("Operand: %v", err)
	}
	return env.ConcreteValues(env.NewForcer(c), id)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name   string
		method string
		level  resolver.Level
		want   []any
	}{
		{
			name:   "concat var only",
			method: "app/Svc.send(Ljava/lang/String;)V",
			level:  resolver.VarOnly,
			want:   []any{"q-{dest}"},
		},
		{
			name:   "concat full",
			method: "app/Svc.send(Ljava/lang/String;)V",
			level:  resolver.Full,
			want:   []any{"q-{Svc.send({dest})}"},
		},
		{
			name:   "arithmetic var only keeps the rendered operand",
			method: "app/Svc.shift(I)V",
			level:  resolver.VarOnly,
			want:   []any{"{n}"},
		},
		{
			name:   "arithmetic full",
			method: "app/Svc.shift(I)V",
			level:  resolver.Full,
			want:   []any{"{Svc.shift({n})} + 1"},
		},
		{
			name:   "call on rendered receiver",
			method: "app/Svc.upper(Ljava/lang/String;)V",
			level:  resolver.VarOnly,
			want:   []any{"{topic}"},
		},
		{
			name:   "call full",
			method: "app/Svc.upper(Ljava/lang/String;)V",
			level:  resolver.Full,
			want:   []any{"{{Svc.upper({topic})}.toUpperCase()}"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := operandValues(t, &resolver.Stringify{Level: tt.level}, tt.method)
			if err != nil {
				t.Fatalf("ConcreteValues: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("values = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestStringify_FailFast(t *testing.T) {
	got, err := operandValues(t, &resolver.Stringify{FailFast: true}, "app/Svc.send(Ljava/lang/String;)V")
	if len(got) != 0 {
		t.Errorf("values = %#v, want none", got)
	}
	if !errors.Is(err, result.ErrNoParameterVariants) {
		t.Errorf("error = %v, want %v", err, result.ErrNoParameterVariants)
	}
}

func TestWithoutResolver(t *testing.T) {
	_, err := operandValues(t, nil, "app/Svc.send(Ljava/lang/String;)V")
	if err == nil {
		t.Fatal("expected an error for an unbound parameter")
	}
}

func TestFunc(t *testing.T) {
	calls := 0
	r := resolver.Func(func(s resolver.Scope, id result.ID, cause error) (result.ID, error) {
		calls++
		n, err := s.Arena().Get(id)
		if err != nil {
			return result.None, err
		}
		return s.Arena().NewResolved(n.Site, "fixed", "test", id), nil
	})
	got, err := operandValues(t, r, "app/Svc.send(Ljava/lang/String;)V")
	if err != nil {
		t.Fatalf("ConcreteValues: %v", err)
	}
	if want := []any{"q-fixed"}; !reflect.DeepEqual(got, want) {
		t.Errorf("values = %#v, want %#v", got, want)
	}
	if calls != 1 {
		t.Errorf("resolver called %d times, want 1", calls)
	}
}
