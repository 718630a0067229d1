// Package image reads program images: the classes and components under
// analysis, with method bodies written in a textual assembler syntax (TOML)
// or pre-assembled (CBOR).
package image

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/host"
)

var log = commonlog.GetLogger("bceval.image")

// File is the on-disk form of an image.
type File struct {
	Classes    []ClassDef     `toml:"class" cbor:"classes"`
	Components []ComponentDef `toml:"component" cbor:"components,omitempty"`
	Statics    []StaticDef    `toml:"static" cbor:"statics,omitempty"`
	Expect     []Expect       `toml:"expect" cbor:"expect,omitempty"`
}

// ClassDef declares a class or interface.
type ClassDef struct {
	Name       string      `toml:"name" cbor:"name"`
	Super      string      `toml:"super" cbor:"super,omitempty"`
	Interfaces []string    `toml:"interfaces" cbor:"interfaces,omitempty"`
	Access     []string    `toml:"access" cbor:"access,omitempty"`
	Fields     []FieldDef  `toml:"field" cbor:"fields,omitempty"`
	Methods    []MethodDef `toml:"method" cbor:"methods,omitempty"`
}

// FieldDef declares a field. Value is the constant value of static finals.
type FieldDef struct {
	Name   string   `toml:"name" cbor:"name"`
	Desc   string   `toml:"desc" cbor:"desc"`
	Access []string `toml:"access" cbor:"access,omitempty"`
	Value  any      `toml:"value" cbor:"value,omitempty"`
}

// MethodDef declares a method. Code is assembler text.
type MethodDef struct {
	Name     string       `toml:"name" cbor:"name"`
	Desc     string       `toml:"desc" cbor:"desc"`
	Access   []string     `toml:"access" cbor:"access,omitempty"`
	Code     string       `toml:"code" cbor:"code,omitempty"`
	Locals   []LocalDef   `toml:"local" cbor:"locals,omitempty"`
	Handlers []HandlerDef `toml:"handler" cbor:"handlers,omitempty"`
}

// LocalDef is a local variable table entry. From and To are labels; empty
// means the whole method.
type LocalDef struct {
	Slot int    `toml:"slot" cbor:"slot"`
	Name string `toml:"name" cbor:"name"`
	Desc string `toml:"desc" cbor:"desc"`
	From string `toml:"from" cbor:"from,omitempty"`
	To   string `toml:"to" cbor:"to,omitempty"`
}

// HandlerDef is an exception table entry, in labels.
type HandlerDef struct {
	From  string `toml:"from" cbor:"from"`
	To    string `toml:"to" cbor:"to"`
	Entry string `toml:"entry" cbor:"entry"`
	Type  string `toml:"type" cbor:"type,omitempty"`
}

// ComponentDef declares a managed component. Fields are the known field
// values of its instance.
type ComponentDef struct {
	Name      string         `toml:"name" cbor:"name"`
	Type      string         `toml:"type" cbor:"type"`
	DependsOn []string       `toml:"depends_on" cbor:"depends_on,omitempty"`
	Fields    map[string]any `toml:"fields" cbor:"fields,omitempty"`
}

// StaticDef records the value of a static field.
type StaticDef struct {
	Class string `toml:"class" cbor:"class"`
	Name  string `toml:"name" cbor:"name"`
	Value any    `toml:"value" cbor:"value"`
}

// Expect states the values an image's author expects at one call site.
// Tests and the CLI check images against them.
type Expect struct {
	Method  string   `toml:"method" cbor:"method"`
	At      string   `toml:"at" cbor:"at"`
	Operand int      `toml:"operand" cbor:"operand"`
	Values  []string `toml:"values" cbor:"values,omitempty"`
	Error   string   `toml:"error" cbor:"error,omitempty"`
	Level   string   `toml:"level" cbor:"level,omitempty"`
}

// Image is a built program plus the label positions of every method.
type Image struct {
	Program *bytecode.Program
	Labels  map[string]map[string]bytecode.Pos
	Statics []StaticDef
	Expect  []Expect
}

// Label returns the position of label in the method with the given key.
func (im *Image) Label(method, label string) (bytecode.Pos, bool) {
	pos, ok := im.Labels[method][label]
	return pos, ok
}

// Live returns the recorded state of the image: its component instances and
// static field values.
func (im *Image) Live() *host.Snapshot {
	s := host.NewSnapshot(im.Program.Components())
	for _, st := range im.Statics {
		s.SetStatic(st.Class, st.Name, st.Value)
	}
	return s
}

// =============================================================================
// Reading and writing
// =============================================================================

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Parse decodes a TOML image.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Encode serializes f to canonical CBOR.
func Encode(f *File) ([]byte, error) {
	return cborEncMode.Marshal(f)
}

// Decode deserializes a CBOR image.
func Decode(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	return &f, nil
}

// Load reads an image file. Files ending in .cbor are binary images,
// anything else is TOML.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if filepath.Ext(path) == ".cbor" {
		return Decode(data)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return f, nil
}

// =============================================================================
// Building
// =============================================================================

var accessNames = map[string]bytecode.AccessFlags{
	"public":    bytecode.AccPublic,
	"private":   bytecode.AccPrivate,
	"static":    bytecode.AccStatic,
	"final":     bytecode.AccFinal,
	"interface": bytecode.AccInterface,
	"abstract":  bytecode.AccAbstract,
}

func access(names []string) (bytecode.AccessFlags, error) {
	var flags bytecode.AccessFlags
	for _, n := range names {
		f, ok := accessNames[n]
		if !ok {
			return 0, fmt.Errorf("unknown access flag %q", n)
		}
		flags |= f
	}
	return flags, nil
}

// Build assembles every method and indexes the program.
func (f *File) Build() (*Image, error) {
	im := &Image{
		Labels:  make(map[string]map[string]bytecode.Pos),
		Statics: append([]StaticDef(nil), f.Statics...),
		Expect:  f.Expect,
	}

	classes := make([]*bytecode.Class, 0, len(f.Classes))
	for _, cd := range f.Classes {
		c, err := f.buildClass(cd, im)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", cd.Name, err)
		}
		classes = append(classes, c)
	}
	fieldDesc := func(class, name string) string {
		for _, c := range classes {
			if c.Name != class {
				continue
			}
			if fd, ok := c.Field(name); ok {
				return fd.Desc
			}
		}
		return ""
	}

	components := make([]*bytecode.Component, 0, len(f.Components))
	for _, cd := range f.Components {
		comp := &bytecode.Component{Name: cd.Name, Type: cd.Type, DependsOn: cd.DependsOn}
		if cd.Fields != nil {
			obj := host.NewObject(cd.Type)
			names := make([]string, 0, len(cd.Fields))
			for n := range cd.Fields {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				v, err := normalize(cd.Fields[n], fieldDesc(cd.Type, n))
				if err != nil {
					return nil, fmt.Errorf("component %s field %s: %w", cd.Name, n, err)
				}
				obj.Fields[n] = v
			}
			comp.Instance = obj
		}
		components = append(components, comp)
	}

	for i, s := range im.Statics {
		v, err := normalize(s.Value, fieldDesc(s.Class, s.Name))
		if err != nil {
			return nil, fmt.Errorf("static %s.%s: %w", s.Class, s.Name, err)
		}
		im.Statics[i].Value = v
	}

	prog, err := bytecode.NewProgram(classes, components)
	if err != nil {
		return nil, err
	}
	im.Program = prog
	log.Debugf("built image: %d classes, %d components", len(classes), len(components))
	return im, nil
}

func (f *File) buildClass(cd ClassDef, im *Image) (*bytecode.Class, error) {
	acc, err := access(cd.Access)
	if err != nil {
		return nil, err
	}
	super := cd.Super
	if super == "" && cd.Name != "java/lang/Object" && acc&bytecode.AccInterface == 0 {
		super = "java/lang/Object"
	}
	c := &bytecode.Class{Name: cd.Name, Super: super, Interfaces: cd.Interfaces, Access: acc}

	for _, fd := range cd.Fields {
		facc, err := access(fd.Access)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fd.Name, err)
		}
		v, err := normalize(fd.Value, fd.Desc)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fd.Name, err)
		}
		c.Fields = append(c.Fields, &bytecode.Field{Owner: cd.Name, Name: fd.Name, Desc: fd.Desc, Access: facc, Constant: v})
	}

	for _, md := range cd.Methods {
		m, labels, err := buildMethod(cd.Name, md)
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", md.Name, md.Desc, err)
		}
		c.Methods = append(c.Methods, m)
		im.Labels[m.Key()] = labels
	}
	return c, nil
}

func buildMethod(owner string, md MethodDef) (*bytecode.Method, map[string]bytecode.Pos, error) {
	acc, err := access(md.Access)
	if err != nil {
		return nil, nil, err
	}
	asm, err := Assemble(md.Code)
	if err != nil {
		return nil, nil, err
	}
	code, err := bytecode.NewCode(asm.Instructions)
	if err != nil {
		return nil, nil, err
	}
	m, err := bytecode.NewMethod(owner, md.Name, md.Desc, acc, code)
	if err != nil {
		return nil, nil, err
	}

	label := func(name string, def bytecode.Pos) (bytecode.Pos, error) {
		if name == "" {
			return def, nil
		}
		pos, ok := asm.Labels[name]
		if !ok {
			return 0, fmt.Errorf("unknown label %q", name)
		}
		return pos, nil
	}
	for _, ld := range md.Locals {
		start, err := label(ld.From, 0)
		if err != nil {
			return nil, nil, err
		}
		end, err := label(ld.To, bytecode.NoPos)
		if err != nil {
			return nil, nil, err
		}
		m.LocalVars = append(m.LocalVars, bytecode.LocalVar{Slot: ld.Slot, Name: ld.Name, Desc: ld.Desc, Start: start, End: end})
	}
	for _, hd := range md.Handlers {
		var h bytecode.Handler
		if h.Start, err = label(hd.From, 0); err != nil {
			return nil, nil, err
		}
		if h.End, err = label(hd.To, bytecode.NoPos); err != nil {
			return nil, nil, err
		}
		if h.Entry, err = label(hd.Entry, bytecode.NoPos); err != nil {
			return nil, nil, err
		}
		if h.Entry == bytecode.NoPos {
			return nil, nil, fmt.Errorf("handler without entry")
		}
		h.Type = hd.Type
		m.Handlers = append(m.Handlers, h)
	}
	return m, asm.Labels, nil
}

// normalize converts a decoded TOML or CBOR scalar to the stack value for
// desc. Without a descriptor, integers become int32 when they fit.
func normalize(v any, desc string) (any, error) {
	var n int64
	isInt := false
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int64:
		n, isInt = x, true
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows", x)
		}
		n, isInt = int64(x), true
	case bool:
		if desc == "Ljava/lang/Boolean;" || desc == "" {
			return x, nil
		}
		if x {
			return int32(1), nil
		}
		return int32(0), nil
	case float64:
		switch desc {
		case "F":
			return float32(x), nil
		case "I", "S", "B", "C", "J":
			return nil, fmt.Errorf("float %v for integral field %s", x, desc)
		}
		return x, nil
	case string:
		if desc == "C" {
			r := []rune(x)
			if len(r) != 1 {
				return nil, fmt.Errorf("char value %q must be one character", x)
			}
			return int32(r[0]), nil
		}
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}

	if isInt {
		switch desc {
		case "J", "Ljava/lang/Long;":
			return n, nil
		case "F":
			return float32(n), nil
		case "D":
			return float64(n), nil
		}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return int32(n), nil
		}
		if desc == "" {
			return n, nil
		}
		return nil, fmt.Errorf("integer %d overflows %s", n, desc)
	}
	return v, nil
}
