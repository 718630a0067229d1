// Package cache memoizes the outcome of calls made during evaluation.
//
// Entries are keyed by the evaluation context and instruction of the call
// together with a fingerprint of the bound arguments. The table is sharded so
// that concurrent evaluations only contend on the shard they touch.
package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"

	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/result"
)

var log = commonlog.GetLogger("bceval.cache")

// DefaultShards is the shard count used when New is given zero.
const DefaultShards = 16

// Key identifies one call with one set of bound arguments.
type Key struct {
	Scope  string // evaluation context of the call site
	Pos    bytecode.Pos
	Params string // fingerprint of the argument row
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d[%s]", k.Scope, k.Pos, k.Params)
}

type shard struct {
	mu      sync.RWMutex
	entries map[Key]result.ID
}

// Cache is a sharded call-result table. The zero value is not usable; use New.
type Cache struct {
	arena  *result.Arena
	shards []*shard

	// Counters are atomic: Put bumps upgrades while holding a shard lock.
	hits     atomic.Uint64
	misses   atomic.Uint64
	upgrades atomic.Uint64
}

// New returns an empty cache whose conflict unions are allocated in arena.
func New(arena *result.Arena, shards int) *Cache {
	if shards <= 0 {
		shards = DefaultShards
	}
	c := &Cache{arena: arena, shards: make([]*shard, shards)}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[Key]result.ID)}
	}
	return c
}

func (c *Cache) shard(k Key) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.Scope))
	_, _ = fmt.Fprintf(h, "@%d", k.Pos)
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the cached result of k.
func (c *Cache) Get(k Key) (result.ID, bool) {
	s := c.shard(k)
	s.mu.RLock()
	id, ok := s.entries[k]
	s.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return id, ok
}

// Put records id as the result of k and returns the stored result. When k
// already holds a different result, both are kept as a union.
func (c *Cache) Put(k Key, id result.ID) (result.ID, error) {
	s := c.shard(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.entries[k]
	if !ok || prev == id {
		s.entries[k] = id
		return id, nil
	}
	u, err := c.arena.NewMultiple(result.Site{Scope: k.Scope, First: k.Pos, Last: k.Pos}, []result.ID{prev, id}, nil)
	if err != nil {
		return prev, err
	}
	if u != prev {
		log.Debugf("call %s yielded a second result, keeping both", k)
		c.upgrades.Add(1)
	}
	s.entries[k] = u
	return u, nil
}

// Len returns the number of cached calls.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Reset drops every entry. Results allocated in the arena are untouched.
func (c *Cache) Reset() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[Key]result.ID)
		s.mu.Unlock()
	}
	c.hits.Store(0)
	c.misses.Store(0)
	c.upgrades.Store(0)
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries  int    `cbor:"entries" json:"entries"`
	Hits     uint64 `cbor:"hits" json:"hits"`
	Misses   uint64 `cbor:"misses" json:"misses"`
	Upgrades uint64 `cbor:"upgrades" json:"upgrades"`
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:  c.Len(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Upgrades: c.upgrades.Load(),
	}
}

// =============================================================================
// Snapshot
// =============================================================================

// Entry is one cached call as written to a snapshot.
type Entry struct {
	Scope  string `cbor:"scope"`
	Pos    int    `cbor:"pos"`
	Params string `cbor:"params"`
	Kind   string `cbor:"kind"`
	Result string `cbor:"result"`
}

// Snapshot is the serialized form of a cache.
type Snapshot struct {
	RunID   string  `cbor:"run_id"`
	Stats   Stats   `cbor:"stats"`
	Entries []Entry `cbor:"entries"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: cbor enc mode: %v", err))
	}
}

// Snapshot returns the entries sorted by key, tagged with runID.
func (c *Cache) Snapshot(runID string) Snapshot {
	snap := Snapshot{RunID: runID, Stats: c.Stats()}
	for _, s := range c.shards {
		s.mu.RLock()
		for k, id := range s.entries {
			snap.Entries = append(snap.Entries, Entry{
				Scope:  k.Scope,
				Pos:    int(k.Pos),
				Params: k.Params,
				Kind:   c.arena.KindOf(id).String(),
				Result: c.arena.Describe(id),
			})
		}
		s.mu.RUnlock()
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		a, b := snap.Entries[i], snap.Entries[j]
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.Pos != b.Pos {
			return a.Pos < b.Pos
		}
		return a.Params < b.Params
	})
	return snap
}

// Marshal encodes a snapshot as canonical CBOR.
func (s Snapshot) Marshal() ([]byte, error) {
	return encMode.Marshal(s)
}

// UnmarshalSnapshot decodes a snapshot written by Marshal.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode cache snapshot: %w", err)
	}
	return s, nil
}
