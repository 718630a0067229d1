package result_test

import (
	"errors"
	"testing"

	"github.com/mpyw/bceval/internal/result"
)

func TestChoices_Compatible(t *testing.T) {
	seg := func(scope string, i int) result.Choice {
		return result.Choice{Scope: scope, Kind: result.ChoiceSegment, Index: i}
	}
	bind := func(scope string, i int) result.Choice {
		return result.Choice{Scope: scope, Kind: result.ChoiceBinding, Index: i}
	}
	// Segments 1 and 2 are exclusive, 0 reaches both.
	compat := func(scope string, a, b int) bool {
		return a == 0 || b == 0
	}

	tests := []struct {
		name string
		a, b result.Choices
		want bool
	}{
		{"empty", nil, result.Of(seg("m", 1)), true},
		{"same segment", result.Of(seg("m", 1)), result.Of(seg("m", 1)), true},
		{"exclusive segments", result.Of(seg("m", 1)), result.Of(seg("m", 2)), false},
		{"ancestor segment", result.Of(seg("m", 0)), result.Of(seg("m", 2)), true},
		{"other scope", result.Of(seg("m", 1)), result.Of(seg("n", 2)), true},
		{"same binding", result.Of(bind("m", 3)), result.Of(bind("m", 3)), true},
		{"different binding", result.Of(bind("m", 3)), result.Of(bind("m", 4)), false},
		{"mixed kinds", result.Of(bind("m", 1)), result.Of(seg("m", 2)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Compatible(tt.b, compat); got != tt.want {
				t.Errorf("Compatible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChoices_Of(t *testing.T) {
	c := result.Of(
		result.Choice{Scope: "b", Index: 1},
		result.Choice{Scope: "a", Index: 2},
		result.Choice{Scope: "b", Index: 1},
	)
	if got, want := c.Key(), "a@s2,b@s1"; got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}
}

func TestError(t *testing.T) {
	inner := result.Errorf(result.ErrIllegalInvocation, result.None, "null receiver")
	agg := result.Aggregate(result.ErrNoCallSucceeded, result.None, "send", []error{inner, nil})

	if !errors.Is(agg, result.ErrNoCallSucceeded) {
		t.Errorf("aggregate should match its kind")
	}
	if !errors.Is(agg, result.ErrIllegalInvocation) {
		t.Errorf("aggregate should match its causes")
	}
	if errors.Is(agg, result.ErrMemberNotFound) {
		t.Errorf("aggregate matched an unrelated kind")
	}
	if result.IsFatal(agg) {
		t.Errorf("aggregate without looped cause is not fatal")
	}
	if len(agg.Causes) != 1 {
		t.Errorf("nil causes should be dropped, got %d", len(agg.Causes))
	}
	if result.KindOf(agg) != result.ErrNoCallSucceeded {
		t.Errorf("KindOf = %v", result.KindOf(agg))
	}

	looped := result.Aggregate(result.ErrNoCallSucceeded, result.None, "", []error{
		result.Errorf(result.ErrLoopedEvaluation, result.None, "x"),
	})
	if !result.IsFatal(looped) {
		t.Errorf("looped cause should make the aggregate fatal")
	}
	if result.Join(result.ErrNoCallSucceeded, result.None, "", []error{nil}) != nil {
		t.Errorf("Join of nils should be nil")
	}
}
