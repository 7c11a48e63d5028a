// Package prefetch implements the Fetching Strategy and the twin/triple
// caches of component I: a main cache of delivered chunks, a prefetch
// cache of completed-but-unconsumed speculative work, a failed-prefetch
// cache recording offsets not to retry speculatively, and the
// access-pattern classifier that decides what to prefetch next.
//
// Grounded on balanur-hts/bgzf.Reader's pluggable Get/Put Cache
// interface and on pgzip.Reader's read-ahead channel, but backed by
// github.com/hashicorp/golang-lru/v2 for real bounded LRU eviction
// instead of a hand-rolled map+list, per the domain-stack decision in
// SPEC_FULL.md section 1.
package prefetch

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"golang.org/x/exp/slices"
)

// Chunk is the cached unit: a decoded chunk's resolved bytes, keyed
// externally by its compressed-bit start offset. The payload type is
// left to the caller (chunkfetcher.Chunk) via a type parameter so this
// package does not need to import chunkfetcher.
type Chunk[T any] struct {
	Offset int64
	Value  T
}

// Caches bundles the three LRU caches component I names, each keyed by
// compressed-bit offset.
type Caches[T any] struct {
	main    *lru.Cache[int64, T]
	prefetch *lru.Cache[int64, T]
	failed  *lru.Cache[int64, struct{}]

	mu      sync.Mutex
	inflight map[int64]struct{}
}

// NewCaches builds the three caches. parallelism must be >= 1; the
// main cache's capacity is max(16, parallelism), the prefetch cache's
// is 2*parallelism, per the specification's sizing guidance.
func NewCaches[T any](parallelism int) (*Caches[T], error) {
	if parallelism < 1 {
		parallelism = 1
	}
	mainCap := parallelism
	if mainCap < 16 {
		mainCap = 16
	}
	main, err := lru.New[int64, T](mainCap)
	if err != nil {
		return nil, err
	}
	pf, err := lru.New[int64, T](2 * parallelism)
	if err != nil {
		return nil, err
	}
	failed, err := lru.New[int64, struct{}](2 * parallelism)
	if err != nil {
		return nil, err
	}
	return &Caches[T]{main: main, prefetch: pf, failed: failed, inflight: make(map[int64]struct{})}, nil
}

// Get looks up offset in the main cache, then the prefetch cache
// (promoting a hit there into the main cache, since it has now been
// consumed).
func (c *Caches[T]) Get(offset int64) (T, bool) {
	if v, ok := c.main.Get(offset); ok {
		return v, true
	}
	if v, ok := c.prefetch.Get(offset); ok {
		c.prefetch.Remove(offset)
		c.main.Add(offset, v)
		return v, true
	}
	var zero T
	return zero, false
}

// PutDelivered records a chunk the owning thread has consumed or is
// about to return to the caller.
func (c *Caches[T]) PutDelivered(offset int64, v T) {
	c.main.Add(offset, v)
}

// PutPrefetched records a chunk produced speculatively and not yet
// consumed.
func (c *Caches[T]) PutPrefetched(offset int64, v T) {
	c.prefetch.Add(offset, v)
}

// PutFailed records that a prefetch at offset raised an error, so it
// is not retried speculatively; the owning thread may still retry it
// on-demand.
func (c *Caches[T]) PutFailed(offset int64) {
	c.failed.Add(offset, struct{}{})
}

// Failed reports whether offset is recorded as a failed prefetch.
func (c *Caches[T]) Failed(offset int64) bool {
	return c.failed.Contains(offset)
}

// ClearMain drops the main cache, used on sequential access so
// already-consumed chunks are not pinned in memory.
func (c *Caches[T]) ClearMain() {
	c.main.Purge()
}

// TryMarkInflight records offset as in flight and returns true if it
// was not already; this is the single-task-maximum-inflight-per-offset
// invariant the specification requires. The caller must call
// ClearInflight(offset) once the task completes (success or failure).
func (c *Caches[T]) TryMarkInflight(offset int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[offset]; ok {
		return false
	}
	c.inflight[offset] = struct{}{}
	return true
}

// ClearInflight releases offset's inflight marker.
func (c *Caches[T]) ClearInflight(offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, offset)
}

// IsInflight reports whether offset currently has a task in flight.
func (c *Caches[T]) IsInflight(offset int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[offset]
	return ok
}

// IsCachedOrInflightOrFailed reports whether offset need not be
// prefetched: it is already in the main or prefetch cache, already
// in flight, or already recorded as a failed prefetch. Satisfies the
// interface Classifier.PrefetchList requires of its caches argument.
// Peek, not Get, is used so a mere prefetch-candidacy check does not
// itself promote a prefetch-cache hit into the main cache.
func (c *Caches[T]) IsCachedOrInflightOrFailed(offset int64) bool {
	if _, ok := c.main.Peek(offset); ok {
		return true
	}
	if _, ok := c.prefetch.Peek(offset); ok {
		return true
	}
	if c.Failed(offset) {
		return true
	}
	return c.IsInflight(offset)
}

// PrefetchOldestKey returns the prefetch cache's least-recently-used
// key -- the one an LRU-driven Add would evict next -- if the cache is
// non-empty. Callers use this together with EvictionSafe to decide
// whether inserting a new prefetched entry right now is safe.
func (c *Caches[T]) PrefetchOldestKey() (int64, bool) {
	keys := c.prefetch.Keys()
	if len(keys) == 0 {
		return 0, false
	}
	return keys[0], true
}

// AccessHistorySize is the default N of the access-pattern classifier.
const AccessHistorySize = 8

// Pattern classifies the recent access history as Sequential or
// Random.
type Pattern int

const (
	Random Pattern = iota
	Sequential
)

// Classifier tracks the last AccessHistorySize requested chunk indices
// and derives a sequential/random classification plus a prefetch list,
// per the specification's section 4.I.
type Classifier struct {
	mu      sync.Mutex
	history []int64
}

// NewClassifier returns an empty access-pattern classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Record appends index to the access history, keeping only the most
// recent AccessHistorySize entries.
func (c *Classifier) Record(index int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, index)
	if len(c.history) > AccessHistorySize {
		c.history = c.history[len(c.history)-AccessHistorySize:]
	}
}

// Pattern reports Sequential if the recorded history is strictly
// increasing by 1, Random otherwise (including when there is not yet
// enough history to tell).
func (c *Classifier) Pattern() Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) < 2 {
		return Random
	}
	for i := 1; i < len(c.history); i++ {
		if c.history[i] != c.history[i-1]+1 {
			return Random
		}
	}
	return Sequential
}

// PrefetchList returns {i+1, ..., i+2*parallelism} minus indices
// already present in caches, already failed, or already in flight,
// where i is the most recently recorded index.
func (c *Classifier) PrefetchList(parallelism int, caches interface {
	IsCachedOrInflightOrFailed(index int64) bool
}) []int64 {
	c.mu.Lock()
	var last int64 = -1
	if n := len(c.history); n > 0 {
		last = c.history[n-1]
	}
	c.mu.Unlock()
	if last < 0 {
		return nil
	}
	out := make([]int64, 0, 2*parallelism)
	for i := last + 1; i <= last+int64(2*parallelism); i++ {
		if caches.IsCachedOrInflightOrFailed(i) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// EvictionSafe reports whether evicting candidate from the prefetch
// cache is safe given pending, the current prefetch list: an entry
// that is itself queued for prefetch must not be evicted by another
// prefetch's insertion, which would otherwise livelock the two tasks
// evicting each other's results.
func EvictionSafe(candidate int64, pending []int64) bool {
	return !slices.Contains(pending, candidate)
}
