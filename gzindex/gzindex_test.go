package gzindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonjohnsonjr/pargz/pgerr"
)

func TestInsertRejectsNonIncreasingCheckpoint(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 100, UncompressedByte: 10}))

	err := m.Insert(Checkpoint{CompressedBit: 100, UncompressedByte: 20})
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.IndexInconsistent))

	err = m.Insert(Checkpoint{CompressedBit: 200, UncompressedByte: 5})
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.IndexInconsistent))
}

func TestInsertAfterFinalizeRejected(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 100, UncompressedByte: 10}))
	require.NoError(t, m.Finalize(1000, 100))

	err := m.Insert(Checkpoint{CompressedBit: 2000, UncompressedByte: 200})
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.IndexInconsistent))
}

func TestFinalizeTwiceRejected(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Finalize(100, 10))
	err := m.Finalize(200, 20)
	require.Error(t, err)
}

func TestFindDataOffset(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 0, UncompressedByte: 0}))
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 800, UncompressedByte: 100}))
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 1600, UncompressedByte: 200}))

	cp, ok := m.FindDataOffset(150)
	require.True(t, ok)
	require.Equal(t, int64(100), cp.UncompressedByte)

	cp, ok = m.FindDataOffset(0)
	require.True(t, ok)
	require.Equal(t, int64(0), cp.UncompressedByte)

	cp, ok = m.FindDataOffset(1_000_000)
	require.True(t, ok)
	require.Equal(t, int64(200), cp.UncompressedByte)
}

func TestFindDataOffsetIndexReturnsOrdinal(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 0, UncompressedByte: 0}))
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 800, UncompressedByte: 100}))
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 1600, UncompressedByte: 200}))

	cp, idx, ok := m.FindDataOffsetIndex(150)
	require.True(t, ok)
	require.Equal(t, 1, idx)
	require.Equal(t, int64(100), cp.UncompressedByte)

	cp, idx, ok = m.FindDataOffsetIndex(0)
	require.True(t, ok)
	require.Equal(t, 0, idx)
	require.Equal(t, int64(0), cp.UncompressedByte)
}

func TestAt(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 0, UncompressedByte: 0}))
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 800, UncompressedByte: 100}))

	cp, ok := m.At(1)
	require.True(t, ok)
	require.Equal(t, int64(800), cp.CompressedBit)

	_, ok = m.At(2)
	require.False(t, ok)

	_, ok = m.At(-1)
	require.False(t, ok)
}

func TestFindDataOffsetEmptyMap(t *testing.T) {
	m := NewMap()
	_, ok := m.FindDataOffset(0)
	require.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Insert(Checkpoint{CompressedBit: 0, UncompressedByte: 0}))

	snap := m.Snapshot()
	snap[0].UncompressedByte = 999

	cp, ok := m.FindDataOffset(0)
	require.True(t, ok)
	require.Equal(t, int64(0), cp.UncompressedByte)
}

func TestLoadRejectsUnsorted(t *testing.T) {
	m := NewMap()
	err := m.Load([]Checkpoint{
		{CompressedBit: 800, UncompressedByte: 100},
		{CompressedBit: 0, UncompressedByte: 0},
	})
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.IndexInconsistent))
}

func TestLoadMarksFinalized(t *testing.T) {
	m := NewMap()
	require.NoError(t, m.Load([]Checkpoint{
		{CompressedBit: 0, UncompressedByte: 0},
		{CompressedBit: 800, UncompressedByte: 100},
	}))
	require.True(t, m.Finalized())
	require.Error(t, m.Insert(Checkpoint{CompressedBit: 1600, UncompressedByte: 200}))
}

func TestWindowStorePutIsInsertOnly(t *testing.T) {
	s := NewWindowStore()
	s.Put(42, Window{Bytes: []byte("first")})
	s.Put(42, Window{Bytes: []byte("second")}) // must be ignored

	w, ok := s.Get(42)
	require.True(t, ok)
	require.Equal(t, []byte("first"), w.Bytes)

	_, ok = s.Get(99)
	require.False(t, ok)
}
