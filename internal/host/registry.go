package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mpyw/bceval/internal/typeutil"
)

// =============================================================================
// Registry
//
// A Registry maps library methods to Go implementations. The evaluator looks
// a call up here before falling back to symbolic evaluation, so a builtin is
// the host's answer to "what does this library method return".
// =============================================================================

// Func implements one library method. recv is nil for static methods and
// constructors. Arguments arrive typed per the method descriptor.
type Func func(recv any, args []any) (any, error)

// ErrNullReceiver is returned when an instance method is invoked on null.
var ErrNullReceiver = errors.New("null receiver")

// Key identifies a library method.
type Key struct {
	Owner string
	Name  string
	Desc  string
}

func (k Key) String() string {
	return k.Owner + "." + k.Name + k.Desc
}

// Registry is a set of builtin methods. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	methods map[Key]Func
	classes map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[Key]Func), classes: make(map[string]bool)}
}

// Register adds or replaces a method.
func (r *Registry) Register(owner, name, desc string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[Key{owner, name, desc}] = fn
	r.classes[owner] = true
}

// Lookup finds an exact method.
func (r *Registry) Lookup(owner, name, desc string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.methods[Key{owner, name, desc}]
	return fn, ok
}

// Resolve finds name+desc on the first of owners that declares it, then on
// java/lang/Object.
func (r *Registry) Resolve(owners []string, name, desc string) (Func, bool) {
	candidates := append(append([]string(nil), owners...), "java/lang/Object")
	for _, o := range candidates {
		if o == "" {
			continue
		}
		if fn, ok := r.Lookup(o, name, desc); ok {
			return fn, true
		}
	}
	return nil, false
}

// HasClass reports whether any method of class is registered.
func (r *Registry) HasClass(class string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classes[class]
}

// Keys returns the registered methods, sorted.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]Key, 0, len(r.methods))
	for k := range r.methods {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Call invokes fn with stack-form arguments, converting them to their typed
// form and the return value back to stack form.
func Call(fn Func, key Key, recv any, args []any) (any, error) {
	sig, err := typeutil.ParseMethod(key.Desc)
	if err != nil {
		return nil, err
	}
	if len(sig.Params) != len(args) {
		return nil, fmt.Errorf("%s: got %d arguments", key, len(args))
	}
	typed := make([]any, len(args))
	for i, a := range args {
		typed[i] = Typed(a, sig.Params[i])
	}
	out, err := fn(recv, typed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return Stack(out, sig.Return), nil
}
