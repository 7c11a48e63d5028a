// Package huffman builds and decodes canonical Huffman codes for the
// deflate-family alphabets (precode, literal/length, distance). It
// provides the three flavors the specification names:
//
//   - CheckOnly: validates a code-length vector without building any
//     decode structure.
//   - SymbolsPerLength: a compact, allocation-light decoder that walks
//     one bit at a time; used for the precode alphabet where K is small.
//   - ReversedBitsCached: a 2^K direct lookup table, used for the
//     literal/length and distance alphabets where decode speed matters.
//
// All three share canonical code construction, generalized from the
// teacher's sgzip/internal/flate.huffmanDecoder.init, which itself
// follows the zlib/Go standard library algorithm referenced in RFC 1951
// section 3.2.2.
package huffman

import (
	"math/bits"

	"github.com/jonjohnsonjr/pargz/bitreader"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

// MaxCodeLen is the maximum length of any deflate-family Huffman code
// (literal/length and distance alphabets; the precode alphabet is
// bounded at 7).
const MaxCodeLen = 15

// canonical holds the intermediate per-length bookkeeping shared by all
// three flavors.
type canonical struct {
	min, max int
	count    [MaxCodeLen + 2]int
	nextCode [MaxCodeLen + 2]int
	single   bool // degenerate one-symbol code, length 1
}

// buildCanonical validates lengths (each in [0, maxLen]) and computes
// the canonical per-length code assignment. It returns EmptyAlphabet if
// every length is zero, InvalidCodeLengths if a length exceeds maxLen
// or the lengths over-fill the code space, and BloatingHuffmanCoding if
// they under-fill it (other than the degenerate single code of length 1).
func buildCanonical(lengths []int, maxLen int) (canonical, error) {
	var c canonical
	for _, n := range lengths {
		if n == 0 {
			continue
		}
		if n < 0 || n > maxLen {
			return c, pgerr.Wrap(pgerr.InvalidCodeLengths, "huffman: code length %d exceeds max %d", n, maxLen)
		}
		if c.min == 0 || n < c.min {
			c.min = n
		}
		if n > c.max {
			c.max = n
		}
		c.count[n]++
	}
	if c.max == 0 {
		return c, pgerr.Wrap(pgerr.EmptyAlphabet, "huffman: alphabet has no symbols")
	}

	code := 0
	for i := c.min; i <= c.max; i++ {
		code <<= 1
		c.nextCode[i] = code
		code += c.count[i]
	}

	full := code == 1<<uint(c.max)
	degenerate := code == 1 && c.max == 1
	if !full && !degenerate {
		if code < 1<<uint(c.max) {
			return c, pgerr.Wrap(pgerr.BloatingHuffmanCoding, "huffman: underfull code (code=%d, max=%d)", code, c.max)
		}
		return c, pgerr.Wrap(pgerr.InvalidCodeLengths, "huffman: overfull code (code=%d, max=%d)", code, c.max)
	}
	c.single = degenerate
	return c, nil
}

// CheckOnly validates a code-length vector without building any decode
// table.
type CheckOnly struct{}

// NewCheckOnly validates lengths and returns an error if they do not
// form a valid canonical Huffman code.
func NewCheckOnly(lengths []int, maxLen int) (CheckOnly, error) {
	_, err := buildCanonical(lengths, maxLen)
	return CheckOnly{}, err
}

// SymbolsPerLength decodes one bit at a time from minCodeLength to
// maxCodeLength, per the specification's "compact construction from
// code lengths" flavor. It is used for the precode alphabet (19
// symbols, codes up to 7 bits) where building a large lookup table
// would not pay for itself.
type SymbolsPerLength struct {
	canonical
	// symbols, ordered the way buildCanonical's per-length code
	// assignment walks: symbols[offset[n]:offset[n]+count[n]] are the
	// symbols of length n, in code order.
	offset  [MaxCodeLen + 2]int
	symbols []int
}

// NewSymbolsPerLength builds a SymbolsPerLength decoder from lengths.
func NewSymbolsPerLength(lengths []int, maxLen int) (*SymbolsPerLength, error) {
	c, err := buildCanonical(lengths, maxLen)
	if err != nil {
		return nil, err
	}
	h := &SymbolsPerLength{canonical: c}
	h.symbols = make([]int, len(lengths))

	// offset[n] = running start index for length n.
	total := 0
	for n := h.min; n <= h.max; n++ {
		h.offset[n] = total
		total += h.canonical.count[n]
	}
	// cursor[n] tracks how many symbols of length n we've placed.
	var cursor [MaxCodeLen + 2]int
	for sym, n := range lengths {
		if n == 0 {
			continue
		}
		h.symbols[h.offset[n]+cursor[n]] = sym
		cursor[n]++
	}
	return h, nil
}

// Decode reads one symbol from br. It walks code lengths from min to
// max, consuming a bit at a time and comparing against the canonical
// first-code-of-length, in the classic RFC 1951 reference style.
func (h *SymbolsPerLength) Decode(br *bitreader.Reader) (int, error) {
	code := 0
	first := 0
	for n := 1; n <= h.max; n++ {
		bit, err := br.Read(1)
		if err != nil {
			return 0, err
		}
		code = code<<1 | int(bit)
		count := h.canonical.count[n]
		if n >= h.min {
			if code-first < count {
				return h.symbols[h.offset[n]+(code-first)], nil
			}
		}
		first += count
		first <<= 1
	}
	return 0, pgerr.Wrap(pgerr.InvalidCodeLengths, "huffman: no symbol for decoded code")
}

// chunk packs (codeLength, symbol) the way the teacher's
// huffmanDecoder.chunks does: the low bits hold the code length, the
// rest holds the symbol.
const (
	countBits  = 5 // supports code lengths up to 31, comfortably above MaxCodeLen
	countMask  = 1<<countBits - 1
	valueShift = countBits
)

// ReversedBitsCached builds a 2^K direct lookup table (K = maxCodeLength)
// keyed by the next K bits read LSB-first, i.e. already bit-reversed
// relative to the canonical MSB-first code -- hence "reversed bits." It
// is used for the literal/length and distance alphabets.
type ReversedBitsCached struct {
	canonical
	k     uint
	table []uint32
}

// NewReversedBitsCached builds a ReversedBitsCached decoder from
// lengths, with a table of 2^maxLen entries (maxLen <= 15 for
// literal/length, <= 7 for precode in the fast-rejection table).
func NewReversedBitsCached(lengths []int, maxLen int) (*ReversedBitsCached, error) {
	c, err := buildCanonical(lengths, maxLen)
	if err != nil {
		return nil, err
	}
	k := uint(c.max)
	h := &ReversedBitsCached{canonical: c, k: k, table: make([]uint32, 1<<k)}

	nextCode := c.nextCode
	for sym, n := range lengths {
		if n == 0 {
			continue
		}
		code := nextCode[n]
		nextCode[n]++
		rev := int(bits.Reverse16(uint16(code))) >> (16 - n)
		chunk := uint32(sym)<<valueShift | uint32(n)
		for off := rev; off < len(h.table); off += 1 << uint(n) {
			h.table[off] = chunk
		}
	}
	return h, nil
}

// Decode peeks K bits, looks up the table, and consumes codeLength
// bits. Near the true end of the stream, fewer than K bits may remain;
// Decode then peeks only the bits that are available, reading the
// missing high bits as zero, and accepts the match only if its code
// fits in those bits (a code that would run past the end of input
// reports UnexpectedEOF).
func (h *ReversedBitsCached) Decode(br *bitreader.Reader) (int, error) {
	k := h.k
	v, err := br.Peek(k)
	for err != nil && pgerr.Is(err, pgerr.UnexpectedEOF) && k > 1 {
		k--
		v, err = br.Peek(k)
	}
	if err != nil {
		return 0, err
	}
	chunk := h.table[v]
	n := chunk & countMask
	if n == 0 {
		return 0, pgerr.Wrap(pgerr.InvalidCodeLengths, "huffman: invalid code in stream")
	}
	if uint(n) > k {
		return 0, pgerr.Wrap(pgerr.UnexpectedEOF, "huffman: code runs past end of input")
	}
	br.SeekAfterPeek(uint(n))
	return int(chunk >> valueShift), nil
}

// MinCodeLength returns the shortest code length in the alphabet,
// matching the optimization the teacher applies to bound lookahead for
// the end-of-block marker.
func (h *ReversedBitsCached) MinCodeLength() int { return h.canonical.min }

// SetMinCodeLength raises the minimum lookahead bound, used to ensure
// at least the end-of-block marker's length is always peeked.
func (h *ReversedBitsCached) SetMinCodeLength(n int) {
	if n > h.canonical.min {
		h.canonical.min = n
	}
}
