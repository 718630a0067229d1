package bytecode

import (
	"fmt"
	"sort"

	"github.com/mpyw/bceval/internal/typeutil"
)

// =============================================================================
// Program model
//
// The evaluator never loads classes itself: a Program is handed over fully
// built by an image reader (see internal/image).
// =============================================================================

// AccessFlags is the subset of access flags the evaluator consults.
type AccessFlags uint16

const (
	AccPublic    AccessFlags = 0x0001
	AccPrivate   AccessFlags = 0x0002
	AccStatic    AccessFlags = 0x0008
	AccFinal     AccessFlags = 0x0010
	AccInterface AccessFlags = 0x0200
	AccAbstract  AccessFlags = 0x0400
)

// LocalVar is one entry of a method's local variable table.
type LocalVar struct {
	Slot  int
	Name  string
	Desc  string
	Start Pos // inclusive
	End   Pos // exclusive; NoPos means until the end of the method
}

// Handler is one exception table entry.
type Handler struct {
	Start Pos
	End   Pos
	Entry Pos
	Type  string // empty for catch-all
}

// Method is a method declaration with its body.
type Method struct {
	Owner     string
	Name      string
	Desc      string
	Access    AccessFlags
	Code      *Code
	LocalVars []LocalVar
	Handlers  []Handler

	sig typeutil.MethodDesc
}

// NewMethod validates the descriptor and returns a method.
func NewMethod(owner, name, desc string, access AccessFlags, code *Code) (*Method, error) {
	sig, err := typeutil.ParseMethod(desc)
	if err != nil {
		return nil, fmt.Errorf("method %s.%s: %w", owner, name, err)
	}
	return &Method{Owner: owner, Name: name, Desc: desc, Access: access, Code: code, sig: sig}, nil
}

// Key identifies the method uniquely inside a program.
func (m *Method) Key() string {
	return m.Owner + "." + m.Name + m.Desc
}

// Ref returns a member reference to the method.
func (m *Method) Ref() MemberRef {
	return MemberRef{Owner: m.Owner, Name: m.Name, Desc: m.Desc}
}

func (m *Method) String() string {
	return m.Key()
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool {
	return m.Access&AccStatic != 0
}

// IsAbstract reports whether the method has no body.
func (m *Method) IsAbstract() bool {
	return m.Access&AccAbstract != 0 || m.Code.Len() == 0
}

// IsConstructor reports whether the method is an instance initializer.
func (m *Method) IsConstructor() bool {
	return m.Name == "<init>"
}

// Params returns the parameter descriptors, excluding the receiver.
func (m *Method) Params() []string {
	return m.sig.Params
}

// Return returns the return descriptor.
func (m *Method) Return() string {
	return m.sig.Return
}

// ParamSlots returns the local slot of each parameter.
func (m *Method) ParamSlots() []int {
	return typeutil.ParamSlots(m.sig.Params, m.IsStatic())
}

// ParamIndex maps a local slot to a parameter index. It returns false for
// the receiver slot and for slots past the parameters.
func (m *Method) ParamIndex(slot int) (int, bool) {
	for i, s := range m.ParamSlots() {
		if s == slot {
			return i, true
		}
	}
	return -1, false
}

// LocalVar returns the local variable table entry for slot that is live at
// pos. When several entries match, the narrowest range wins.
func (m *Method) LocalVar(slot int, pos Pos) (LocalVar, bool) {
	var best LocalVar
	found := false
	for _, lv := range m.LocalVars {
		if lv.Slot != slot {
			continue
		}
		if pos != NoPos && (pos < lv.Start || (lv.End != NoPos && pos >= lv.End)) {
			continue
		}
		if !found || lv.Start > best.Start {
			best, found = lv, true
		}
	}
	return best, found
}

// VarName returns the source name of slot at pos, falling back to a
// synthetic name.
func (m *Method) VarName(slot int, pos Pos) string {
	if lv, ok := m.LocalVar(slot, pos); ok && lv.Name != "" {
		return lv.Name
	}
	if !m.IsStatic() && slot == 0 {
		return "this"
	}
	if i, ok := m.ParamIndex(slot); ok {
		return fmt.Sprintf("arg%d", i)
	}
	return fmt.Sprintf("local%d", slot)
}

// HandlerAt returns the exception handler whose entry is pos.
func (m *Method) HandlerAt(pos Pos) (Handler, bool) {
	for _, h := range m.Handlers {
		if h.Entry == pos {
			return h, true
		}
	}
	return Handler{}, false
}

// Field is a field declaration. Constant holds the ConstantValue attribute of
// static final fields, when present.
type Field struct {
	Owner    string
	Name     string
	Desc     string
	Access   AccessFlags
	Constant any
}

// IsStatic reports whether the field is static.
func (f *Field) IsStatic() bool {
	return f.Access&AccStatic != 0
}

// Class is a class or interface declaration.
type Class struct {
	Name       string
	Super      string
	Interfaces []string
	Access     AccessFlags
	Fields     []*Field
	Methods    []*Method
}

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool {
	return c.Access&AccInterface != 0
}

// Method returns the method declared by c with the given name and descriptor.
func (c *Class) Method(name, desc string) (*Method, bool) {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m, true
		}
	}
	return nil, false
}

// MethodsNamed returns the declared methods with the given name.
func (c *Class) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Field returns the field declared by c with the given name.
func (c *Class) Field(name string) (*Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Component is a managed application component: a named instance of a class
// that depends on other components.
type Component struct {
	Name      string
	Type      string
	DependsOn []string
	// Instance is a live or image-declared instance, if one is known.
	Instance any
}

// =============================================================================
// Program
// =============================================================================

// Program is the set of classes and components under analysis.
type Program struct {
	classes    map[string]*Class
	names      []string
	components []*Component
	byName     map[string]*Component
}

// NewProgram indexes classes and components. Class names must be unique.
func NewProgram(classes []*Class, components []*Component) (*Program, error) {
	p := &Program{
		classes: make(map[string]*Class, len(classes)),
		byName:  make(map[string]*Component, len(components)),
	}
	for _, c := range classes {
		if _, dup := p.classes[c.Name]; dup {
			return nil, fmt.Errorf("duplicate class %s", c.Name)
		}
		p.classes[c.Name] = c
		p.names = append(p.names, c.Name)
	}
	sort.Strings(p.names)
	for _, comp := range components {
		if _, dup := p.byName[comp.Name]; dup {
			return nil, fmt.Errorf("duplicate component %s", comp.Name)
		}
		p.byName[comp.Name] = comp
		p.components = append(p.components, comp)
	}
	for _, comp := range components {
		for _, dep := range comp.DependsOn {
			if _, ok := p.byName[dep]; !ok {
				return nil, fmt.Errorf("component %s depends on unknown component %s", comp.Name, dep)
			}
		}
	}
	return p, nil
}

// Class returns the class with the given internal name.
func (p *Program) Class(name string) (*Class, bool) {
	c, ok := p.classes[typeutil.ClassName(name)]
	return c, ok
}

// Classes returns all classes sorted by name.
func (p *Program) Classes() []*Class {
	out := make([]*Class, 0, len(p.names))
	for _, n := range p.names {
		out = append(out, p.classes[n])
	}
	return out
}

// SuperOf implements typeutil.Hierarchy.
func (p *Program) SuperOf(name string) (string, bool) {
	c, ok := p.Class(name)
	if !ok || c.Super == "" {
		return "", false
	}
	return c.Super, true
}

// InterfacesOf implements typeutil.Hierarchy.
func (p *Program) InterfacesOf(name string) []string {
	c, ok := p.Class(name)
	if !ok {
		return nil
	}
	return c.Interfaces
}

// Method returns the method identified by key (Owner.name(desc)).
func (p *Program) Method(key string) (*Method, bool) {
	for _, c := range p.classes {
		for _, m := range c.Methods {
			if m.Key() == key {
				return m, true
			}
		}
	}
	return nil, false
}

// ResolveMethod finds the implementation of name+desc visible from class,
// walking superclasses first and then interfaces (default methods).
func (p *Program) ResolveMethod(class, name, desc string) (*Method, bool) {
	var fallback *Method
	for _, t := range typeutil.Supertypes(p, class) {
		c, ok := p.Class(t)
		if !ok {
			continue
		}
		if m, ok := c.Method(name, desc); ok {
			if !m.IsAbstract() {
				return m, true
			}
			if fallback == nil {
				fallback = m
			}
		}
	}
	return fallback, fallback != nil
}

// Implementations returns the concrete implementations of name+desc in
// classes assignable to owner, sorted by class name.
func (p *Program) Implementations(owner, name, desc string) []*Method {
	var out []*Method
	for _, n := range p.names {
		c := p.classes[n]
		if c.IsInterface() || c.Access&AccAbstract != 0 {
			continue
		}
		if !typeutil.IsAssignable(p, n, owner) {
			continue
		}
		if m, ok := p.ResolveMethod(n, name, desc); ok && !m.IsAbstract() {
			dup := false
			for _, seen := range out {
				if seen == m {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, m)
			}
		}
	}
	return out
}

// ResolveField finds the field declaration visible from class.
func (p *Program) ResolveField(class, name string) (*Field, bool) {
	for _, t := range typeutil.Supertypes(p, class) {
		c, ok := p.Class(t)
		if !ok {
			continue
		}
		if f, ok := c.Field(name); ok {
			return f, true
		}
	}
	return nil, false
}

// Components returns all components in declaration order.
func (p *Program) Components() []*Component {
	return p.components
}

// Component returns the component with the given name.
func (p *Program) Component(name string) (*Component, bool) {
	c, ok := p.byName[name]
	return c, ok
}

// ComponentOfType returns the first component whose type is class.
func (p *Program) ComponentOfType(class string) (*Component, bool) {
	for _, c := range p.components {
		if c.Type == class {
			return c, true
		}
	}
	return nil, false
}

// DependentsOf returns the components that declare a dependency on name.
func (p *Program) DependentsOf(name string) []*Component {
	var out []*Component
	for _, c := range p.components {
		for _, dep := range c.DependsOn {
			if dep == name {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
