package huffman

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonjohnsonjr/pargz/bitreader"
	"github.com/jonjohnsonjr/pargz/fsrc"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

// code is a canonical code assignment computed the same way
// buildCanonical does, used to construct a bitstream to feed back into
// a decoder under test.
type code struct {
	bits uint32
	n    int
}

func canonicalCodes(lengths []int) map[int]code {
	var counts [MaxCodeLen + 2]int
	maxLen := 0
	for _, n := range lengths {
		if n > 0 {
			counts[n]++
			if n > maxLen {
				maxLen = n
			}
		}
	}
	var next [MaxCodeLen + 2]int
	c := 0
	for n := 1; n <= maxLen; n++ {
		c <<= 1
		next[n] = c
		c += counts[n]
	}
	out := make(map[int]code)
	for sym, n := range lengths {
		if n == 0 {
			continue
		}
		out[sym] = code{bits: uint32(next[n]), n: n}
		next[n]++
	}
	return out
}

// reverseBits reverses the low n bits of v (MSB-first code -> LSB-first
// bitstream, as DEFLATE packs Huffman codes).
func reverseBits(v uint32, n int) uint32 {
	var r uint32
	for i := 0; i < n; i++ {
		r = (r << 1) | (v & 1)
		v >>= 1
	}
	return r
}

// packBitstream writes codes (in symbol order) LSB-first into bytes.
func packBitstream(codes []code) []byte {
	var bitbuf uint64
	var nb uint
	var out []byte
	for _, c := range codes {
		rev := reverseBits(c.bits, c.n)
		bitbuf |= uint64(rev) << nb
		nb += uint(c.n)
		for nb >= 8 {
			out = append(out, byte(bitbuf))
			bitbuf >>= 8
			nb -= 8
		}
	}
	if nb > 0 {
		out = append(out, byte(bitbuf))
	}
	return out
}

func newReader(t *testing.T, data []byte) *bitreader.Reader {
	t.Helper()
	src := fsrc.NewReaderAt(bytes.NewReader(data), int64(len(data)))
	r, err := bitreader.New(src, 0)
	require.NoError(t, err)
	return r
}

func TestReversedBitsCachedDecodesCanonicalCodes(t *testing.T) {
	lengths := []int{3, 3, 3, 3, 3, 2, 4, 4} // a valid full canonical code
	codes := canonicalCodes(lengths)

	h, err := NewReversedBitsCached(lengths, MaxCodeLen)
	require.NoError(t, err)

	order := []int{5, 0, 1, 2, 3, 4, 6, 7}
	var stream []code
	for _, sym := range order {
		stream = append(stream, codes[sym])
	}
	br := newReader(t, packBitstream(stream))

	for _, want := range order {
		got, err := h.Decode(br)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSymbolsPerLengthDecodesCanonicalCodes(t *testing.T) {
	lengths := []int{2, 2, 2, 3, 3}
	codes := canonicalCodes(lengths)

	h, err := NewSymbolsPerLength(lengths, 7)
	require.NoError(t, err)

	order := []int{0, 3, 1, 4, 2}
	var stream []code
	for _, sym := range order {
		stream = append(stream, codes[sym])
	}
	br := newReader(t, packBitstream(stream))

	for _, want := range order {
		got, err := h.Decode(br)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDegenerateSingleSymbolCode(t *testing.T) {
	lengths := []int{1}
	h, err := NewReversedBitsCached(lengths, MaxCodeLen)
	require.NoError(t, err)

	br := newReader(t, []byte{0x00})
	got, err := h.Decode(br)
	require.NoError(t, err)
	require.Equal(t, 0, got)
}

func TestEmptyAlphabetRejected(t *testing.T) {
	_, err := NewReversedBitsCached(make([]int, 8), MaxCodeLen)
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.EmptyAlphabet))
}

func TestUnderfullCodeRejected(t *testing.T) {
	// Two length-2 codes alone can't fill the code space (would need 4).
	_, err := NewReversedBitsCached([]int{2, 2}, MaxCodeLen)
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.BloatingHuffmanCoding))
}

func TestOverfullCodeRejected(t *testing.T) {
	_, err := NewReversedBitsCached([]int{1, 1, 1}, MaxCodeLen)
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.InvalidCodeLengths))
}

func TestCodeLengthExceedsMaxRejected(t *testing.T) {
	_, err := NewReversedBitsCached([]int{8}, 7)
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.InvalidCodeLengths))
}

func TestCheckOnlyValidatesWithoutDecoding(t *testing.T) {
	lengths := []int{3, 3, 3, 3, 3, 2, 4, 4}
	_, err := NewCheckOnly(lengths, MaxCodeLen)
	require.NoError(t, err)

	_, err = NewCheckOnly([]int{2, 2}, MaxCodeLen)
	require.Error(t, err)
}

func TestMinCodeLength(t *testing.T) {
	lengths := []int{3, 3, 3, 3, 3, 2, 4, 4}
	h, err := NewReversedBitsCached(lengths, MaxCodeLen)
	require.NoError(t, err)
	require.Equal(t, 2, h.MinCodeLength())

	h.SetMinCodeLength(5)
	require.Equal(t, 5, h.MinCodeLength())

	// Raising below the current minimum is a no-op.
	h.SetMinCodeLength(1)
	require.Equal(t, 5, h.MinCodeLength())
}
