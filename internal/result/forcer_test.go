package result_test

import (
	"testing"

	"github.com/mpyw/bceval/internal/result"
)

func TestForcer_Watch(t *testing.T) {
	tests := []struct {
		name string
		run  func(f *result.Forcer)
		want bool
	}{
		{
			name: "no refusal",
			run: func(f *result.Forcer) {
				f.Push("inner")
				f.Pop()
			},
			want: false,
		},
		{
			name: "depth bound",
			run:  func(f *result.Forcer) { f.Cut(0) },
			want: true,
		},
		{
			name: "recursion into an outer frame",
			run:  func(f *result.Forcer) { f.Push("b") },
			want: true,
		},
		{
			name: "recursion inside the region",
			run: func(f *result.Forcer) {
				f.Push("inner")
				f.Push("inner")
				f.Pop()
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := result.NewForcer("a", "b")
			done := f.Watch()
			tt.run(f)
			if got := done(); got != tt.want {
				t.Errorf("truncated = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForcer_WatchNested(t *testing.T) {
	f := result.NewForcer("a")
	outer := f.Watch()
	f.Push("b")
	inner := f.Watch()
	f.Push("b")
	if !inner() {
		t.Error("inner region should see the refused call")
	}
	if outer() {
		t.Error("outer region should not: the refused frame was pushed inside it")
	}

	f = result.NewForcer("a")
	outer = f.Watch()
	f.Push("b")
	inner = f.Watch()
	f.Cut(0)
	inner()
	if !outer() {
		t.Error("a depth bound inside a nested region should reach the outer one")
	}
}
