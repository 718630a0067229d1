package debug_test

import (
	"strings"
	"testing"

	"github.com/mpyw/bceval/internal/debug"
	"github.com/mpyw/bceval/internal/result"
)

func TestFormat(t *testing.T) {
	a := result.NewArena()
	site := result.At("ctx", "app/Svc.run()V", 4)

	x := a.NewConstant(site, "a")
	y := a.NewConstant(site, "b")
	u, err := a.NewMultiple(site, []result.ID{x, y}, nil)
	if err != nil {
		t.Fatalf("NewMultiple: %v", err)
	}
	d := a.NewDuplicate(site, u)

	got := debug.Format(debug.Collect(a, d, 0))
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Format produced %d lines, want 4:\n%s", len(lines), got)
	}
	wantPrefix := []string{"", "└─ ", "   ├─ ", "   └─ "}
	for i, p := range wantPrefix {
		if !strings.HasPrefix(lines[i], p) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], p)
		}
	}
	if !strings.Contains(lines[0], "[app/Svc.run()V @4]") {
		t.Errorf("root line %q lacks the site", lines[0])
	}
	if !strings.Contains(lines[2], `"a"`) || !strings.Contains(lines[3], `"b"`) {
		t.Errorf("members rendered as:\n%s", got)
	}
}

func TestCollect(t *testing.T) {
	a := result.NewArena()
	site := result.At("ctx", "m", 0)
	shared := a.NewStub(site, a.NewConstant(site, int32(1)))
	first := a.NewDuplicate(site, shared)
	second := a.NewDuplicate(site, shared)
	u, err := a.NewMultiple(site, []result.ID{a.NewIllegal(site, result.StatusNotFound, first, nil), second}, nil)
	if err != nil {
		t.Fatalf("NewMultiple: %v", err)
	}

	info := debug.Collect(a, u, 0)
	if info.Kind != result.Multiple || len(info.Children) != 2 {
		t.Fatalf("root = %+v, want a multiple with 2 children", info)
	}
	// the union flattens the second duplicate to shared itself, which was
	// already expanded under the illegal result
	viaIllegal := info.Children[0].Children[0].Children[0]
	viaSecond := info.Children[1]
	if viaIllegal.Seen || len(viaIllegal.Children) != 1 {
		t.Errorf("first occurrence = %+v, want expanded", viaIllegal)
	}
	if !viaSecond.Seen || len(viaSecond.Children) != 0 {
		t.Errorf("second occurrence = %+v, want a back reference", viaSecond)
	}

	if shallow := debug.Collect(a, u, 1); !shallow.Children[0].Truncated {
		t.Error("depth bound not applied")
	}
}
