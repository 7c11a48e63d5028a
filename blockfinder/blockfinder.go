// Package blockfinder implements the speculative deflate block-start
// search (component E): a fast 15-bit skip table followed by the
// precode validator and a full header parse as the final defense,
// grounded on how the teacher's gsip/sgzip locate gzip member
// boundaries and on balanur-hts/bgzf.decompressor's structural
// extra-field scan for the BGZF specialization.
package blockfinder

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/jonjohnsonjr/pargz/bitreader"
	"github.com/jonjohnsonjr/pargz/deflate"
	"github.com/jonjohnsonjr/pargz/fsrc"
	"github.com/jonjohnsonjr/pargz/pgerr"
	"github.com/jonjohnsonjr/pargz/precode"
)

// skipTableBits is the width of the fast-rejection lookup: the 3
// block-header bits plus the full 5-bit HLIT and 5-bit HDIST fields
// fit in 13 bits; we round up to 15 so the table type matches the
// specification's "2^15-entry table" exactly (the top two bits, a
// fragment of HCLEN, are unused by the lookup but still indexed).
const skipTableBits = 15
const skipTableSize = 1 << skipTableBits

const (
	maxNumLit  = 286
	maxNumDist = 30
)

// skipTable[v] is 0 when the 15-bit window v could plausibly begin a
// non-final dynamic-Huffman block (final==0, type==dynamic, and HLIT/
// HDIST within their legal ranges), or 1 otherwise. A conservative
// single-bit skip is always safe per the specification ("a positive
// skip <= 14"); this implementation does not attempt the maximal
// multi-bit skip the reference validator computes, trading some scan
// throughput for a much simpler, still-correct table.
var skipTable [skipTableSize]uint8

func init() {
	for v := 0; v < skipTableSize; v++ {
		final := v & 1
		typ := (v >> 1) & 3
		if final == 1 || typ != 2 {
			skipTable[v] = 1
			continue
		}
		hlit := (v >> 3) & 0x1F
		hdist := (v >> 8) & 0x1F
		numLit := hlit + 257
		numDist := hdist + 1
		if numLit > maxNumLit || numDist > maxNumDist {
			skipTable[v] = 1
			continue
		}
		skipTable[v] = 0
	}
}

// FindNextBlockStart scans bit by bit from br's current position,
// returning the bit offset of the next plausible non-final
// dynamic-Huffman block start strictly before untilOffset (or
// unbounded when untilOffset < 0). found is false if none exists
// before untilOffset. When found, br is positioned exactly at the
// returned offset; otherwise it is left where the scan stopped (at or
// past untilOffset, or within the last 15 bits of input).
func FindNextBlockStart(br *bitreader.Reader, untilOffset int64) (offset int64, found bool, err error) {
	for {
		pos := br.Tell()
		if untilOffset >= 0 && pos >= untilOffset {
			return 0, false, nil
		}

		v, err := br.Peek(skipTableBits)
		if err != nil {
			if pgerr.Is(err, pgerr.UnexpectedEOF) {
				return 0, false, nil
			}
			return 0, false, err
		}

		if skip := skipTable[v]; skip > 0 {
			if err := br.Seek(pos + int64(skip)); err != nil {
				return 0, false, err
			}
			continue
		}

		ok, err := tryCandidate(br, pos)
		if err != nil {
			return 0, false, err
		}
		if ok {
			if err := br.Seek(pos); err != nil {
				return 0, false, err
			}
			return pos, true, nil
		}
		if err := br.Seek(pos + 1); err != nil {
			return 0, false, err
		}
	}
}

// tryCandidate runs the precode validator and, on acceptance, a full
// header parse (building the literal/length and distance Huffman
// tables) as the last line of defense per the specification's
// rejection cascade. Any validator or parser error means pos is not a
// true block start; that is reported as ok=false, not as err, so the
// caller can continue scanning.
func tryCandidate(br *bitreader.Reader, pos int64) (bool, error) {
	if err := br.Seek(pos); err != nil {
		return false, err
	}
	dec := deflate.NewDecoder(br, nil)
	h, err := dec.ReadHeader()
	if err != nil {
		// End of input or similar: not a candidate, keep scanning.
		return false, nil
	}
	if h.Final || h.Type != deflate.Dynamic {
		return false, nil
	}
	dh, err := dec.ReadDynamicHeader()
	if err != nil {
		return false, nil
	}
	if err := precode.Check(dh.CodeLengths); err != nil {
		return false, nil
	}
	if err := dec.BuildDynamicTables(dh); err != nil {
		return false, nil
	}
	return true, nil
}

// bgzfExtraPrefix is the 4-byte BGZF subfield identifier (SI1 SI2 SLEN_LE),
// per the specification's BGZF framing: `42 43 02 00`.
var bgzfExtraPrefix = []byte{0x42, 0x43, 0x02, 0x00}

// ExpectedMemberSize returns the total size (header + compressed data
// + footer) in bytes of the BGZF member whose gzip header is h, or -1
// if h carries no BGZF extra subfield, grounded on
// balanur-hts/bgzf.expectedMemberSize.
func ExpectedMemberSize(h gzip.Header) int {
	i := bytes.Index(h.Extra, bgzfExtraPrefix)
	if i < 0 || i+5 >= len(h.Extra) {
		return -1
	}
	return (int(h.Extra[i+4]) | int(h.Extra[i+5])<<8) + 1
}

// FindNextBGZFBlockStart returns the byte offset of the next BGZF
// member starting at or after fromByte, by reading a gzip header at
// fromByte and trusting its BSIZE extra field rather than scanning bit
// by bit -- the BGZF specialization named in the specification's
// "Block Finder" section. It returns found=false if fromByte is at or
// past the source's end.
func FindNextBGZFBlockStart(src fsrc.Source, fromByte int64) (offset int64, memberSize int, found bool, err error) {
	if err := src.Seek(fromByte); err != nil {
		return 0, 0, false, err
	}
	gr, err := gzip.NewReader(readerFrom(src))
	if err == io.EOF {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, pgerr.Wrap(pgerr.InvalidMagic, "blockfinder: bgzf header at byte %d: %v", fromByte, err)
	}
	size := ExpectedMemberSize(gr.Header)
	if size < 0 {
		return 0, 0, false, pgerr.Wrap(pgerr.InvalidMagic, "blockfinder: byte %d is not a BGZF member", fromByte)
	}
	return fromByte, size, true, nil
}

type srcReader struct{ src fsrc.Source }

func readerFrom(src fsrc.Source) io.Reader { return srcReader{src} }

func (r srcReader) Read(p []byte) (int, error) { return r.src.Read(p) }
