package indexio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonjohnsonjr/pargz/gzindex"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

func sampleCheckpoints() []gzindex.Checkpoint {
	return []gzindex.Checkpoint{
		{CompressedBit: 0, UncompressedByte: 0, Window: gzindex.Window{Sparse: true}},
		{CompressedBit: 400000, UncompressedByte: gzindex.WindowSize, Window: gzindex.Window{Bytes: bytes.Repeat([]byte{0xAB}, gzindex.WindowSize)}},
		{CompressedBit: 900000, UncompressedByte: 2*gzindex.WindowSize + 1000},
	}
}

func TestWriteReadCheckpointIndexRoundTrip(t *testing.T) {
	checkpoints := sampleCheckpoints()
	const compressedSize = 123456
	uncompressedSize := checkpoints[len(checkpoints)-1].UncompressedByte

	var buf bytes.Buffer
	require.NoError(t, WriteCheckpointIndex(&buf, checkpoints, compressedSize, uncompressedSize, gzindex.DefaultSpacing))

	got, gotCompressed, gotUncompressed, err := ReadCheckpointIndex(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(compressedSize), gotCompressed)
	require.Equal(t, uncompressedSize, gotUncompressed)
	require.Len(t, got, len(checkpoints))
	for i, cp := range checkpoints {
		require.Equal(t, cp.CompressedBit, got[i].CompressedBit)
		require.Equal(t, cp.UncompressedByte, got[i].UncompressedByte)
		if cp.Window.Sparse || len(cp.Window.Bytes) == 0 {
			require.True(t, got[i].Window.Sparse)
		} else {
			require.Equal(t, cp.Window.Bytes, got[i].Window.Bytes)
		}
	}
}

func TestReadCheckpointIndexBadMagic(t *testing.T) {
	_, _, _, err := ReadCheckpointIndex(bytes.NewReader([]byte("NOTAGOODMAGIC...........")))
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.IndexInconsistent))
}

func TestReadCheckpointIndexRejectsTooCloseCheckpoints(t *testing.T) {
	checkpoints := []gzindex.Checkpoint{
		{CompressedBit: 0, UncompressedByte: 0},
		{CompressedBit: 100, UncompressedByte: 10}, // far closer than WindowSize, and not the final entry
		{CompressedBit: 900000, UncompressedByte: 2 * gzindex.WindowSize},
	}
	uncompressedSize := checkpoints[len(checkpoints)-1].UncompressedByte
	var buf bytes.Buffer
	require.NoError(t, WriteCheckpointIndex(&buf, checkpoints, 1000, uncompressedSize, gzindex.DefaultSpacing))

	_, _, _, err := ReadCheckpointIndex(&buf)
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.IndexInconsistent))
}

func TestReadCheckpointIndexRejectsMismatchedFinalSize(t *testing.T) {
	checkpoints := []gzindex.Checkpoint{
		{CompressedBit: 0, UncompressedByte: 0},
	}
	var buf bytes.Buffer
	// Declare a final uncompressedSize that doesn't match the last checkpoint.
	require.NoError(t, WriteCheckpointIndex(&buf, checkpoints, 1000, 99999, gzindex.DefaultSpacing))

	_, _, _, err := ReadCheckpointIndex(&buf)
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.IndexInconsistent))
}

func TestDetectFormat(t *testing.T) {
	require.Equal(t, FormatCheckpoint, DetectFormat(checkpointMagic))
	require.Equal(t, FormatBGZFGZI, DetectFormat([4]byte{0, 0, 0, 0}))
}

func TestWriteReadGZIRoundTrip(t *testing.T) {
	entries := []GZIEntry{
		{CompressedByteOffset: 0, UncompressedByteOffset: 0},
		{CompressedByteOffset: 5000, UncompressedByteOffset: 65536},
		{CompressedByteOffset: 9999, UncompressedByteOffset: 131072},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteGZI(&buf, entries))

	got, err := ReadGZI(&buf)
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestReadGZITruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGZI(&buf, []GZIEntry{{CompressedByteOffset: 1, UncompressedByteOffset: 2}}))
	truncated := buf.Bytes()[:buf.Len()-4]

	_, err := ReadGZI(bytes.NewReader(truncated))
	require.Error(t, err)
}
