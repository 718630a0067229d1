package host

import (
	"errors"

	"github.com/mpyw/bceval/internal/bytecode"
)

// ErrNotLive is returned by Live implementations that cannot run code.
var ErrNotLive = errors.New("no live instance access")

// Live gives the evaluator access to real instances of the analysed
// application. Every method may report "unknown"; evaluation then proceeds
// symbolically.
type Live interface {
	// Instance returns the managed instance of a component.
	Instance(component string) (any, bool)
	// Field reads an instance field.
	Field(obj any, name string) (any, bool)
	// StaticField reads a static field.
	StaticField(class, name string) (any, bool)
	// Invoke runs a method on a real instance.
	Invoke(recv any, ref bytecode.MemberRef, args []any) (any, error)
}

// Snapshot is a Live backed by recorded values: component instances and
// static fields captured ahead of time. It never runs code.
type Snapshot struct {
	Instances map[string]any
	Statics   map[string]map[string]any
}

// NewSnapshot returns a snapshot holding the instances of components.
func NewSnapshot(components []*bytecode.Component) *Snapshot {
	s := &Snapshot{Instances: make(map[string]any), Statics: make(map[string]map[string]any)}
	for _, c := range components {
		if c.Instance != nil {
			s.Instances[c.Name] = c.Instance
		}
	}
	return s
}

// SetStatic records a static field value.
func (s *Snapshot) SetStatic(class, name string, v any) {
	if s.Statics[class] == nil {
		s.Statics[class] = make(map[string]any)
	}
	s.Statics[class][name] = v
}

// Instance implements Live.
func (s *Snapshot) Instance(component string) (any, bool) {
	v, ok := s.Instances[component]
	return v, ok
}

// Field implements Live.
func (s *Snapshot) Field(obj any, name string) (any, bool) {
	o, ok := obj.(*Object)
	if !ok || o == nil {
		return nil, false
	}
	v, ok := o.Fields[name]
	return v, ok
}

// StaticField implements Live.
func (s *Snapshot) StaticField(class, name string) (any, bool) {
	v, ok := s.Statics[class][name]
	return v, ok
}

// Invoke implements Live.
func (s *Snapshot) Invoke(any, bytecode.MemberRef, []any) (any, error) {
	return nil, ErrNotLive
}
