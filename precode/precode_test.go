package precode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckAcceptsFullTree(t *testing.T) {
	// A simple known-good canonical assignment: two symbols of length
	// 1 each contribute 64 leaves -- but two codes of length 1 is
	// itself degenerate/invalid as a real Huffman code (only one
	// symbol may have length 1 in a canonical code), so build a
	// legitimate full tree instead: lengths chosen so leaves sum to
	// exactly 128 via the explicit per-length leaf contribution
	// (2^(7-length)).
	var lens [NumSymbols]int
	// One symbol of length 1: 64 leaves.
	lens[0] = 1
	// One symbol of length 2: 32 leaves. Total so far: 96.
	lens[1] = 2
	// Four symbols of length 4: 4 * 8 = 32 leaves. Total: 128.
	lens[2] = 4
	lens[3] = 4
	lens[4] = 4
	lens[5] = 4

	require.NoError(t, Check(lens))
}

func TestCheckAcceptsDegenerateSingleCode(t *testing.T) {
	var lens [NumSymbols]int
	lens[0] = 1 // single length-1 code: 64 leaves, the accepted exception
	require.NoError(t, Check(lens))
}

func TestCheckRejectsUnderfullTree(t *testing.T) {
	var lens [NumSymbols]int
	lens[0] = 7 // a single length-7 symbol: 1 leaf, far short of 128
	require.Error(t, Check(lens))
}

func TestCheckRejectsOverfullTree(t *testing.T) {
	var lens [NumSymbols]int
	for i := 0; i < NumSymbols; i++ {
		lens[i] = 1 // every symbol at length 1: massively overfull
	}
	require.Error(t, Check(lens))
}

func TestCheckAllZeroLengthsUnderfull(t *testing.T) {
	var lens [NumSymbols]int
	require.Error(t, Check(lens))
}
