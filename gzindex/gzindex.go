// Package gzindex implements the Block/Window Map, the Window Map, and
// the in-memory Gzip Index (component H): the data structures that tie
// compressed-bit offsets to uncompressed-byte offsets and to the 32
// KiB windows a later random read needs to resume decoding.
//
// It is grounded on the vendored timpalpant/gzran.Index/Point design
// (dselans-mmmbop's vendor tree), generalized from "one gob-encoded
// decompressor-state blob per checkpoint" to the specification's
// (compressed-bit, uncompressed-byte, window) triple plus a sparse
// flag, and on gsip.Index's []*flate.Checkpoint shape (a plain slice
// mutated by one writer and read by many via a mutex, rather than
// gzran's unsynchronized slice).
package gzindex

import (
	"sync"

	"golang.org/x/exp/slices"

	"github.com/jonjohnsonjr/pargz/pgerr"
)

// WindowSize is the deflate window size every non-sparse Window holds.
const WindowSize = 1 << 15

// DefaultSpacing is the default minimum decompressed-byte distance
// between consecutive checkpoints, matching the specification's
// "configurable spacing target (>= 32 KiB)".
const DefaultSpacing = WindowSize

// Window is up to WindowSize bytes of uncompressed output immediately
// preceding a checkpoint's block start. A Window with Sparse set to
// true carries no payload: its preceding chunk provably emitted no
// backreferences into its own predecessor (its first block was
// marker-free), so nothing is needed to resume decoding there.
type Window struct {
	Bytes  []byte
	Sparse bool
}

// Checkpoint is one entry of the Block/Window Map: a point at which
// random access may begin, in both the compressed-bit and
// uncompressed-byte coordinate spaces, plus the window needed to
// decode forward from it.
type Checkpoint struct {
	CompressedBit    int64
	UncompressedByte int64
	Window           Window
}

// Map is the append-only Block/Window Map: a strictly increasing
// (by both coordinates) list of Checkpoints, finalized with a
// sentinel final entry once no further chunks will be added.
type Map struct {
	mu          sync.RWMutex
	checkpoints []Checkpoint
	finalized   bool
}

// NewMap returns an empty Block/Window Map.
func NewMap() *Map { return &Map{} }

// Insert appends a Checkpoint. It returns IndexInconsistent if cp does
// not strictly increase both coordinates relative to the last entry,
// or if the map is already finalized.
func (m *Map) Insert(cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return pgerr.Wrap(pgerr.IndexInconsistent, "gzindex: insert after finalize")
	}
	if n := len(m.checkpoints); n > 0 {
		last := m.checkpoints[n-1]
		if cp.CompressedBit <= last.CompressedBit || cp.UncompressedByte <= last.UncompressedByte {
			return pgerr.Wrap(pgerr.IndexInconsistent, "gzindex: non-increasing checkpoint (bit %d <= %d or byte %d <= %d)",
				cp.CompressedBit, last.CompressedBit, cp.UncompressedByte, last.UncompressedByte)
		}
	}
	m.checkpoints = append(m.checkpoints, cp)
	return nil
}

// Finalize appends the sentinel final entry (compressed offset
// compressedSizeBits, uncompressed offset uncompressedSize) and marks
// the map closed to further inserts.
func (m *Map) Finalize(compressedSizeBits, uncompressedSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return pgerr.Wrap(pgerr.IndexInconsistent, "gzindex: finalize called twice")
	}
	m.checkpoints = append(m.checkpoints, Checkpoint{
		CompressedBit:    compressedSizeBits,
		UncompressedByte: uncompressedSize,
	})
	m.finalized = true
	return nil
}

// Finalized reports whether Finalize has been called.
func (m *Map) Finalized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finalized
}

// FindDataOffset returns the checkpoint covering uncompressedOffset:
// the last checkpoint whose UncompressedByte is <= uncompressedOffset,
// found via upper-bound binary search over the sorted checkpoint list.
func (m *Map) FindDataOffset(uncompressedOffset int64) (Checkpoint, bool) {
	cp, _, ok := m.FindDataOffsetIndex(uncompressedOffset)
	return cp, ok
}

// FindDataOffsetIndex is FindDataOffset, additionally returning the
// checkpoint's ordinal position in the map. Unlike CompressedBit (an
// irregularly-spaced bit offset), this index increases by exactly 1
// between consecutive checkpoints, which is what
// prefetch.Classifier.Pattern needs to detect sequential access.
func (m *Map) FindDataOffsetIndex(uncompressedOffset int64) (Checkpoint, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.checkpoints) == 0 {
		return Checkpoint{}, 0, false
	}
	i, _ := slices.BinarySearchFunc(m.checkpoints, uncompressedOffset, func(cp Checkpoint, target int64) int {
		switch {
		case cp.UncompressedByte > target:
			return 1
		default:
			return -1
		}
	})
	if i == 0 {
		return Checkpoint{}, 0, false
	}
	return m.checkpoints[i-1], i - 1, true
}

// At returns the checkpoint at ordinal position i, if the map has at
// least i+1 entries.
func (m *Map) At(i int) (Checkpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.checkpoints) {
		return Checkpoint{}, false
	}
	return m.checkpoints[i], true
}

// Snapshot returns a copy of the checkpoint list, for export to an
// on-disk index.
func (m *Map) Snapshot() []Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Checkpoint, len(m.checkpoints))
	copy(out, m.checkpoints)
	return out
}

// Load replaces the map's contents with checkpoints, which must
// already be strictly increasing by CompressedBit and finalized (as
// produced by an index loaded from disk via indexio).
func (m *Map) Load(checkpoints []Checkpoint) error {
	for i := 1; i < len(checkpoints); i++ {
		if checkpoints[i].CompressedBit <= checkpoints[i-1].CompressedBit {
			return pgerr.Wrap(pgerr.IndexInconsistent, "gzindex: loaded checkpoints not sorted by compressed offset")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = checkpoints
	m.finalized = true
	return nil
}

// WindowStore is the concurrent Window Map: a one-shot insert-only
// mapping from compressed-bit offset to Window, per the specification
// ("inserting twice at the same key must be a no-op-or-consistent
// operation").
type WindowStore struct {
	mu      sync.RWMutex
	windows map[int64]Window
}

// NewWindowStore returns an empty Window Map.
func NewWindowStore() *WindowStore {
	return &WindowStore{windows: make(map[int64]Window)}
}

// Put inserts w at compressedBit if no window is present there yet.
// A second Put at the same offset is a no-op, not an error: concurrent
// workers may both resolve the same boundary's window.
func (s *WindowStore) Put(compressedBit int64, w Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[compressedBit]; ok {
		return
	}
	s.windows[compressedBit] = w
}

// Get returns the window at compressedBit, if any.
func (s *WindowStore) Get(compressedBit int64) (Window, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[compressedBit]
	return w, ok
}
