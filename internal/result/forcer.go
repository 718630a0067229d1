package result

import "math"

// Forcer carries the per-goroutine state of one evaluation: the deferred
// nodes being forced, the inline call frames and the variables whose
// bindings are being resolved. A Forcer must not be shared between
// goroutines; use Fork.
type Forcer struct {
	forcing map[ID]bool
	frames  []string
	vars    map[ID]bool
	cut     int
}

const noCut = math.MaxInt

// NewForcer returns a forcer whose call stack starts with frames.
func NewForcer(frames ...string) *Forcer {
	return &Forcer{
		forcing: make(map[ID]bool),
		frames:  append([]string(nil), frames...),
		vars:    make(map[ID]bool),
		cut:     noCut,
	}
}

// Fork copies the forcer for use by another goroutine.
func (f *Forcer) Fork() *Forcer {
	g := NewForcer(f.frames...)
	for id := range f.forcing {
		g.forcing[id] = true
	}
	for id := range f.vars {
		g.vars[id] = true
	}
	g.cut = f.cut
	return g
}

// Push enters an inline call frame. It returns false, leaving the stack
// untouched, when frame is already on the stack; the refusal is recorded as
// a cut at the existing frame.
func (f *Forcer) Push(frame string) bool {
	for i, x := range f.frames {
		if x == frame {
			f.Cut(i)
			return false
		}
	}
	f.frames = append(f.frames, frame)
	return true
}

// Pop leaves the innermost frame.
func (f *Forcer) Pop() {
	if len(f.frames) > 0 {
		f.frames = f.frames[:len(f.frames)-1]
	}
}

// OnStack reports whether frame is an active call frame.
func (f *Forcer) OnStack(frame string) bool {
	for _, x := range f.frames {
		if x == frame {
			return true
		}
	}
	return false
}

// Depth returns the number of active call frames.
func (f *Forcer) Depth() int {
	return len(f.frames)
}

// Frames returns a copy of the call stack, outermost first.
func (f *Forcer) Frames() []string {
	return append([]string(nil), f.frames...)
}

// Cut records that a call was refused because of the frame at index i.
// A refusal caused by the depth of the whole stack is a cut at 0.
func (f *Forcer) Cut(i int) {
	f.cut = min(f.cut, i)
}

// Watch starts a region of evaluation. The returned function ends it and
// reports whether a call in the region was refused because of a frame that
// was active when the region began; what the region computed then depends
// on the caller's stack.
func (f *Forcer) Watch() func() bool {
	outer, depth := f.cut, len(f.frames)
	f.cut = noCut
	return func() bool {
		inner := f.cut
		f.cut = min(outer, inner)
		return inner < depth
	}
}

// EnterVar marks a variable as being resolved. It returns false when the
// variable is already being resolved further up.
func (f *Forcer) EnterVar(id ID) bool {
	if f.vars[id] {
		return false
	}
	f.vars[id] = true
	return true
}

// LeaveVar clears the mark set by EnterVar.
func (f *Forcer) LeaveVar(id ID) {
	delete(f.vars, id)
}
