package bceval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mpyw/bceval/internal/config"
	"github.com/mpyw/bceval/internal/host"
	"github.com/mpyw/bceval/internal/image"
)

// Expectation levels beyond the resolver levels.
const (
	LevelNone     = "none"     // no resolver
	LevelFailFast = "failFast" // resolver that re-raises
)

// Mismatch is an image expectation the evaluation does not meet.
type Mismatch struct {
	Expect image.Expect
	Got    []string
	Err    error
}

func (m Mismatch) String() string {
	e := m.Expect
	var want string
	if e.Error != "" {
		want = "error containing " + fmt.Sprintf("%q", e.Error)
	} else {
		want = fmt.Sprintf("%q", e.Values)
	}
	got := fmt.Sprintf("%q", m.Got)
	if m.Err != nil {
		got += " (error: " + m.Err.Error() + ")"
	}
	return fmt.Sprintf("%s at %s operand %d: got %s, want %s", e.Method, e.At, e.Operand, got, want)
}

// Check evaluates the expectations of an image. Expectations naming a level
// run with their own resolver; the others use opts.
func Check(im *image.Image, opts Options) ([]Mismatch, error) {
	if opts.Live == nil {
		opts.Live = im.Live()
	}
	analyzers := make(map[string]*Analyzer)
	analyzer := func(level string) *Analyzer {
		if a, ok := analyzers[level]; ok {
			return a
		}
		o := opts
		switch level {
		case "":
		case LevelNone:
			o.Resolver = nil
		case LevelFailFast:
			o.Resolver = NewStringify(config.LevelVarOnly, true)
		default:
			o.Resolver = NewStringify(level, false)
		}
		a := New(im.Program, o)
		analyzers[level] = a
		return a
	}

	var out []Mismatch
	for _, e := range im.Expect {
		pos, ok := im.Label(e.Method, e.At)
		if !ok {
			return nil, fmt.Errorf("expectation on %s: no label %q", e.Method, e.At)
		}
		vs, err := analyzer(e.Level).ArgumentValues(e.Method, pos, e.Operand)
		got := Strings(vs)
		if !meets(e, got, err) {
			out = append(out, Mismatch{Expect: e, Got: got, Err: err})
		}
	}
	return out, nil
}

func meets(e image.Expect, got []string, err error) bool {
	if e.Error != "" {
		return mentions(err, e.Error)
	}
	want := append([]string(nil), e.Values...)
	sort.Strings(want)
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

// mentions reports whether err or any error it wraps contains text.
func mentions(err error, text string) bool {
	if err == nil {
		return false
	}
	if strings.Contains(err.Error(), text) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if mentions(e, text) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return mentions(u.Unwrap(), text)
	}
	return false
}

// Strings renders values the way the program would print them, sorted.
func Strings(vs []any) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = host.ToString(v)
	}
	sort.Strings(out)
	return out
}
