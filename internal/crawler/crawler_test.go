package crawler_test

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/crawler"
	"github.com/mpyw/bceval/internal/eval"
	"github.com/mpyw/bceval/internal/image"
	"github.com/mpyw/bceval/internal/result"
)

const program = `
[[class]]
name = "app/Client"

  [[class.method]]
  name = "send"
  desc = "(Ljava/lang/String;)V"
  code = '''
	aload_1
call:
	invokestatic app/Client.emit(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "emit"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = "return"

  [[class.method]]
  name = "loop"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = '''
	aload_0
call:
	invokestatic app/Client.loop(Ljava/lang/String;)V
	return
'''

[[class]]
name = "app/Other"

  [[class.method]]
  name = "loop"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = "return"

[[class]]
name = "app/Svc"

  [[class.field]]
  name = "client"
  desc = "Lapp/Client;"

  [[class.method]]
  name = "run"
  desc = "()V"
  code = '''
	aload_0
	getfield app/Svc.client:Lapp/Client;
	ldc "orders"
	invokevirtual app/Client.send(Ljava/lang/String;)V
	ldc "x"
	invokestatic app/Client.loop(Ljava/lang/String;)V
	ldc "ignored"
	invokestatic app/Other.loop(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "pick"
  desc = "(Z)V"
  code = '''
	aload_0
	getfield app/Svc.client:Lapp/Client;
	iload_1
	ifeq b
	ldc "a"
	goto send
b:
	ldc "b"
send:
	invokevirtual app/Client.send(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "relay"
  desc = "(Ljava/lang/String;)V"
  code = '''
	aload_0
	getfield app/Svc.client:Lapp/Client;
	aload_1
	invokevirtual app/Client.send(Ljava/lang/String;)V
	return
'''

[[class]]
name = "app/Api"

  [[class.field]]
  name = "svc"
  desc = "Lapp/Svc;"

  [[class.method]]
  name = "handle"
  desc = "()V"
  code = '''
	aload_0
	getfield app/Api.svc:Lapp/Svc;
	ldc "deep"
	invokevirtual app/Svc.relay(Ljava/lang/String;)V
	return
'''

[[component]]
name = "client"
type = "app/Client"

[[component]]
name = "svc"
type = "app/Svc"
depends_on = ["client"]

[[component]]
name = "api"
type = "app/Api"
depends_on = ["svc"]
`

type fixture struct {
	im  *image.Image
	env *eval.Env
	c   *crawler.Crawler
}

func setup(t *testing.T) *fixture {
	t.Helper()
	return setupProgram(t, program)
}

func setupProgram(t *testing.T, src string) *fixture {
	t.Helper()
	f, err := image.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	im, err := f.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	env := eval.NewEnv(im.Program, result.NewArena())
	c := crawler.New(env, 2)
	env.Binder = c
	return &fixture{im: im, env: env, c: c}
}

func (fx *fixture) values(t *testing.T, method string) []string {
	t.Helper()
	out, err := fx.concrete(fx.operand(t, method))
	if err != nil {
		t.Fatalf("ConcreteValues: %v", err)
	}
	return out
}

// operand returns the first operand of the instruction labelled "call" in
// method.
func (fx *fixture) operand(t *testing.T, method string) (*eval.Context, result.ID) {
	t.Helper()
	m, ok := fx.im.Program.Method(method)
	if !ok {
		t.Fatalf("method %s missing", method)
	}
	ctx, err := fx.env.ComponentContext(m)
	if err != nil {
		t.Fatalf("ComponentContext: %v", err)
	}
	pos, ok := fx.im.Label(method, "call")
	if !ok {
		t.Fatalf("label call missing in %s", method)
	}
	id, err := ctx.Operand(pos, 0)
	if err != nil {
		t.Fatalf("Operand: %v", err)
	}
	return ctx, id
}

func (fx *fixture) concrete(ctx *eval.Context, id result.ID) ([]string, error) {
	vs, err := fx.env.ConcreteValues(fx.env.NewForcer(ctx), id)
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = fmt.Sprint(v)
	}
	sort.Strings(out)
	return out, err
}

func TestBindings(t *testing.T) {
	tests := []struct {
		name   string
		method string
		want   []string
	}{
		{
			name:   "direct, branching and transitive callers",
			method: "app/Client.send(Ljava/lang/String;)V",
			want:   []string{"a", "b", "deep", "orders"},
		},
		{
			name:   "self call is excluded",
			method: "app/Client.loop(Ljava/lang/String;)V",
			want:   []string{"x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := setup(t)
			if got := fx.values(t, tt.method); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("values = %v, want %v", got, tt.want)
			}
		})
	}
}

const pingPong = `
[[class]]
name = "app/Ping"

  [[class.method]]
  name = "a"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = '''
	aload_0
	invokestatic app/Ping.b(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "b"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = '''
	aload_0
	invokestatic app/Ping.a(Ljava/lang/String;)V
	aload_0
call:
	invokestatic app/Sink.accept(Ljava/lang/String;)V
	return
'''

  [[class.method]]
  name = "start"
  desc = "()V"
  access = ["static"]
  code = '''
	ldc "go"
	invokestatic app/Ping.a(Ljava/lang/String;)V
	return
'''

[[class]]
name = "app/Sink"

  [[class.method]]
  name = "accept"
  desc = "(Ljava/lang/String;)V"
  access = ["static"]
  code = "return"
`

func TestBindings_MutualRecursion(t *testing.T) {
	fx := setupProgram(t, pingPong)
	ctx, id := fx.operand(t, "app/Ping.b(Ljava/lang/String;)V")
	type outcome struct {
		got []string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		got, err := fx.concrete(ctx, id)
		done <- outcome{got, err}
	}()
	select {
	case o := <-done:
		if want := []string{"go"}; !reflect.DeepEqual(o.got, want) {
			t.Errorf("values = %v, want %v", o.got, want)
		}
		if !errors.Is(o.err, result.ErrUnresolvedVariable) {
			t.Errorf("error = %v, want %v", o.err, result.ErrUnresolvedVariable)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("binding a cycle of callers did not terminate")
	}
}

func TestCallers(t *testing.T) {
	fx := setup(t)
	tests := []struct {
		method string
		want   []string
	}{
		{"app/Client.send(Ljava/lang/String;)V", []string{
			"app/Svc.pick(Z)V", "app/Svc.relay(Ljava/lang/String;)V", "app/Svc.run()V",
		}},
		{"app/Client.loop(Ljava/lang/String;)V", []string{"app/Svc.run()V"}},
		{"app/Svc.relay(Ljava/lang/String;)V", []string{"app/Api.handle()V"}},
		{"app/Api.handle()V", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			m, _ := fx.im.Program.Method(tt.method)
			cps, err := fx.c.Callers(m)
			if err != nil {
				t.Fatalf("Callers: %v", err)
			}
			var got []string
			for _, cp := range cps {
				got = append(got, cp.Method.Key())
			}
			sort.Strings(got)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Callers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScope(t *testing.T) {
	fx := setup(t)
	m, _ := fx.im.Program.Method("app/Client.send(Ljava/lang/String;)V")
	if got, want := fx.c.Scope(m), []string{"app/Client", "app/Svc"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Scope = %v, want %v", got, want)
	}

	other, _ := fx.im.Program.Method("app/Other.loop(Ljava/lang/String;)V")
	if got := fx.c.Scope(other); len(got) != 4 {
		t.Errorf("Scope of a non-component = %v, want every class", got)
	}
}

func TestCallPointsOf(t *testing.T) {
	fx := setup(t)
	first, err := fx.c.CallPointsOf("app/Svc")
	if err != nil {
		t.Fatalf("CallPointsOf: %v", err)
	}
	if len(first) != 5 {
		t.Errorf("len = %d, want 5", len(first))
	}
	for _, cp := range first {
		if cp.Instr.Kind() != bytecode.KindInvoke {
			t.Errorf("%s is not a call", cp)
		}
	}
	again, _ := fx.c.CallPointsOf("app/Svc")
	if len(again) != len(first) || &again[0] != &first[0] {
		t.Error("call points were indexed twice")
	}

	if _, err := fx.c.CallPointsOf("app/Missing"); err == nil {
		t.Error("expected an error for an unknown class")
	}
}
