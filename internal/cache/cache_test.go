package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/mpyw/bceval/internal/cache"
	"github.com/mpyw/bceval/internal/result"
)

func TestPutGet(t *testing.T) {
	arena := result.NewArena()
	c := cache.New(arena, 4)
	k := cache.Key{Scope: "a.B.run()V||", Pos: 3, Params: "s:x"}

	if _, ok := c.Get(k); ok {
		t.Fatal("empty cache reported a hit")
	}
	id := arena.NewConstant(result.Site{}, "x")
	got, err := c.Put(k, id)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got != id {
		t.Errorf("Put returned %s, want %s", got, id)
	}
	if got, ok := c.Get(k); !ok || got != id {
		t.Errorf("Get = %s, %v; want %s, true", got, ok, id)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestPut_ConflictUpgradesToMultiple(t *testing.T) {
	arena := result.NewArena()
	c := cache.New(arena, 0)
	k := cache.Key{Scope: "s", Pos: 1}

	a := arena.NewConstant(result.Site{}, "a")
	b := arena.NewConstant(result.Site{}, "b")
	if _, err := c.Put(k, a); err != nil {
		t.Fatal(err)
	}
	u, err := c.Put(k, b)
	if err != nil {
		t.Fatal(err)
	}
	n, err := arena.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	if n.Kind != result.Multiple || len(n.Members) != 2 {
		t.Fatalf("got %s, want a union of two", arena.Describe(u))
	}
	if c.Stats().Upgrades != 1 {
		t.Errorf("Upgrades = %d, want 1", c.Stats().Upgrades)
	}

	// An equal constant does not widen the union.
	same := arena.NewConstant(result.Site{}, "a")
	again, err := c.Put(k, same)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := arena.Get(again); len(n.Members) != 2 {
		t.Errorf("union grew to %d members", len(n.Members))
	}
}

func TestPut_Concurrent(t *testing.T) {
	arena := result.NewArena()
	c := cache.New(arena, 8)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := cache.Key{Scope: "s", Pos: 0, Params: string(rune('a' + i%4))}
			if _, err := c.Put(k, arena.NewConstant(result.Site{}, int32(i%4))); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 4 {
		t.Errorf("Len = %d, want 4", c.Len())
	}
}

func TestPut_UpgradeWhileReadingStats(t *testing.T) {
	arena := result.NewArena()
	c := cache.New(arena, 1)
	k := cache.Key{Scope: "s", Pos: 0}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if _, err := c.Put(k, arena.NewConstant(result.Site{}, int32(i))); err != nil {
					t.Error(err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Stats()
			}
		}()
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Put and Stats did not finish")
	}
	if s := c.Stats(); s.Entries != 1 || s.Upgrades != 499 {
		t.Errorf("Stats = %+v, want 1 entry and 499 upgrades", s)
	}
}

func TestSnapshot(t *testing.T) {
	arena := result.NewArena()
	c := cache.New(arena, 2)
	for i, s := range []string{"b", "a"} {
		k := cache.Key{Scope: s, Pos: 0}
		if _, err := c.Put(k, arena.NewConstant(result.Site{}, int32(i))); err != nil {
			t.Fatal(err)
		}
	}

	snap := c.Snapshot("run-1")
	data, err := snap.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := cache.UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}
	if got.RunID != "run-1" {
		t.Errorf("RunID = %q", got.RunID)
	}
	if len(got.Entries) != 2 || got.Entries[0].Scope != "a" || got.Entries[1].Scope != "b" {
		t.Errorf("Entries = %+v, want sorted a, b", got.Entries)
	}
	if got.Entries[0].Kind != "constant" {
		t.Errorf("Kind = %q, want constant", got.Entries[0].Kind)
	}
}

func TestReset(t *testing.T) {
	arena := result.NewArena()
	c := cache.New(arena, 0)
	k := cache.Key{Scope: "s"}
	if _, err := c.Put(k, arena.NewConstant(result.Site{}, "v")); err != nil {
		t.Fatal(err)
	}
	c.Get(k)
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Len after Reset = %d", c.Len())
	}
	if s := c.Stats(); s.Hits != 0 || s.Misses != 0 {
		t.Errorf("Stats after Reset = %+v", s)
	}
}
