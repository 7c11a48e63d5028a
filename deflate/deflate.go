// Package deflate implements the RFC 1951 block decoder: header parsing,
// literal/length/distance decoding, and sliding-window management. It is
// adapted from the teacher's sgzip/internal/flate.Decompressor (itself a
// fork of the Go standard library's compress/flate), generalized to (1)
// return typed pgerr errors instead of panicking or returning opaque
// CorruptInputError values, (2) decode one block per call (ReadHeader,
// then the block body) so the chunk fetcher can record block boundaries
// between calls, and (3) work
// against bitreader.Reader instead of an io.ByteReader, since the block
// finder and chunk fetcher both need bit-level seek.
//
// Unlike the teacher, which streams through a fixed 32 KiB ring buffer
// that doubles as both history and not-yet-emitted output (necessary
// for an io.Reader that must support unbounded streams), this Decoder
// always runs against a single in-memory chunk that the chunk fetcher
// ends at a known boundary or soon after
// chunkfetcher.MaxDecompressedChunkSize decoded bytes, so history and output
// are the same growing slice: simpler to reason about, and no less
// correct, since the chunk's total size is bounded either way.
package deflate

import (
	"github.com/jonjohnsonjr/pargz/bitreader"
	"github.com/jonjohnsonjr/pargz/huffman"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

// WindowSize is the deflate sliding window size (32 KiB): the largest
// distance a backreference may reach.
const WindowSize = 1 << 15

// BlockType identifies one of the three deflate block framings.
type BlockType int

const (
	Stored BlockType = iota
	Fixed
	Dynamic
)

// Header is the result of parsing one block's 3-bit prefix.
type Header struct {
	Final bool
	Type  BlockType
}

var codeOrder = [...]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

const (
	endBlockMarker  = 256
	lengthCodeStart = 257
	maxNumLit       = 286
	maxNumDist      = 30
)

// LengthBase, LengthExtra, DistBase, and DistExtra are the RFC 1951
// section 3.2.5 length/distance code tables, exported so the markers
// package's parallel decode loop can share them exactly.
var LengthBase = [...]int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31, 35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
var LengthExtra = [...]uint{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}
var DistBase = [...]int{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193, 257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577}
var DistExtra = [...]uint{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}

var lengthBase = LengthBase[:]
var lengthExtra = LengthExtra[:]
var distBase = DistBase[:]
var distExtra = DistExtra[:]

var fixedLitLen *huffman.ReversedBitsCached
var fixedDist *huffman.ReversedBitsCached

func init() {
	var lens [288]int
	for i := 0; i < 144; i++ {
		lens[i] = 8
	}
	for i := 144; i < 256; i++ {
		lens[i] = 9
	}
	for i := 256; i < 280; i++ {
		lens[i] = 7
	}
	for i := 280; i < 288; i++ {
		lens[i] = 8
	}
	var err error
	fixedLitLen, err = huffman.NewReversedBitsCached(lens[:], huffman.MaxCodeLen)
	if err != nil {
		panic("deflate: fixed literal/length table: " + err.Error())
	}
	distLens := make([]int, 30)
	for i := range distLens {
		distLens[i] = 5
	}
	fixedDist, err = huffman.NewReversedBitsCached(distLens, huffman.MaxCodeLen)
	if err != nil {
		panic("deflate: fixed distance table: " + err.Error())
	}
}

// BlockBoundary records the encoded-bit/decoded-byte position of a
// block boundary observed while decoding, per the Chunk's "internal
// block boundaries" field.
type BlockBoundary struct {
	EncodedBit  int64
	DecodedByte int64
}

// Decoder decodes one or more deflate blocks against a bitreader.Reader,
// accumulating output (and the history backreferences draw from) in a
// single growing buffer seeded by an optional predecessor window.
type Decoder struct {
	br *bitreader.Reader

	dictLen int    // length of the preset predecessor window, if any
	output  []byte // dict-relative position 0 starts where dict left off

	hl, hd *huffman.ReversedBitsCached

	dynLit  huffman.ReversedBitsCached
	dynDist huffman.ReversedBitsCached

	checkEvery int64
	check      func() error
	nextCheck  int64
}

// SetPeriodicCheck arranges for check to be called from within
// DecodeBlockBody at least every n decoded bytes, in addition to
// whatever the caller already does at block boundaries. This lets a
// long-running single block (a Huffman block can emit far more output
// than its own encoded size, via backreferences) still observe
// cancellation promptly instead of only between blocks.
func (d *Decoder) SetPeriodicCheck(n int64, check func() error) {
	d.checkEvery = n
	d.check = check
	d.nextCheck = n
}

func (d *Decoder) maybeCheck() error {
	if d.check == nil {
		return nil
	}
	if d.DecodedBytes() < d.nextCheck {
		return nil
	}
	d.nextCheck += d.checkEvery
	return d.check()
}

// NewDecoder returns a Decoder reading from br. dict, if non-empty, is
// the predecessor chunk's final window (at most WindowSize bytes) and
// is used as history for early backreferences without being re-emitted.
func NewDecoder(br *bitreader.Reader, dict []byte) *Decoder {
	d := &Decoder{br: br, dictLen: len(dict)}
	if len(dict) > 0 {
		d.output = append(d.output, dict...)
	}
	return d
}

// ReadHeader parses the 3-bit block prefix: final flag, and block type.
func (d *Decoder) ReadHeader() (Header, error) {
	v, err := d.br.Read(3)
	if err != nil {
		return Header{}, err
	}
	h := Header{Final: v&1 == 1}
	switch (v >> 1) & 3 {
	case 0:
		h.Type = Stored
	case 1:
		h.Type = Fixed
	case 2:
		h.Type = Dynamic
	default:
		return Header{}, pgerr.At(pgerr.InvalidBlockType, "bit", d.br.Tell())
	}
	return h, nil
}

// DynamicHeader holds the parsed HLIT/HDIST/HCLEN fields and precode
// code lengths, useful to callers (the block finder) that want to
// validate before committing to building Huffman tables.
type DynamicHeader struct {
	NumLit, NumDist, NumCode int
	CodeLengths              [19]int
}

// ReadDynamicHeader reads HLIT, HDIST, HCLEN and the HCLEN precode
// lengths, per RFC 1951 section 3.2.7.
func (d *Decoder) ReadDynamicHeader() (DynamicHeader, error) {
	var dh DynamicHeader
	v, err := d.br.Read(5 + 5 + 4)
	if err != nil {
		return dh, err
	}
	dh.NumLit = int(v&0x1F) + 257
	v >>= 5
	dh.NumDist = int(v&0x1F) + 1
	v >>= 5
	dh.NumCode = int(v&0xF) + 4
	if dh.NumLit > maxNumLit || dh.NumDist > maxNumDist {
		return dh, pgerr.At(pgerr.InvalidCodeLengths, "bit", d.br.Tell())
	}
	for i := 0; i < dh.NumCode; i++ {
		b, err := d.br.Read(3)
		if err != nil {
			return dh, err
		}
		dh.CodeLengths[codeOrder[i]] = int(b)
	}
	return dh, nil
}

// BuildDynamicTables reads the run-length-encoded literal/distance code
// lengths using the precode tree built from dh, and constructs the
// literal/length and distance Huffman tables.
func (d *Decoder) BuildDynamicTables(dh DynamicHeader) error {
	precodeTree, err := huffman.NewSymbolsPerLength(dh.CodeLengths[:], 7)
	if err != nil {
		return err
	}

	bits := make([]int, dh.NumLit+dh.NumDist)
	for i := 0; i < len(bits); {
		sym, err := precodeTree.Decode(d.br)
		if err != nil {
			return err
		}
		if sym < 16 {
			bits[i] = sym
			i++
			continue
		}
		var rep int
		var nb uint
		var b int
		switch sym {
		case 16:
			if i == 0 {
				return pgerr.At(pgerr.InvalidCodeLengths, "bit", d.br.Tell())
			}
			rep, nb, b = 3, 2, bits[i-1]
		case 17:
			rep, nb, b = 3, 3, 0
		case 18:
			rep, nb, b = 11, 7, 0
		default:
			return pgerr.Wrap(pgerr.InvalidCodeLengths, "deflate: unexpected length code %d", sym)
		}
		v, err := d.br.Read(nb)
		if err != nil {
			return err
		}
		rep += int(v)
		if i+rep > len(bits) {
			return pgerr.At(pgerr.InvalidCodeLengths, "bit", d.br.Tell())
		}
		for j := 0; j < rep; j++ {
			bits[i] = b
			i++
		}
	}

	lit, err := huffman.NewReversedBitsCached(bits[:dh.NumLit], huffman.MaxCodeLen)
	if err != nil {
		return err
	}
	dist, err := huffman.NewReversedBitsCached(bits[dh.NumLit:], huffman.MaxCodeLen)
	if err != nil {
		return err
	}
	d.dynLit, d.dynDist = *lit, *dist
	d.hl, d.hd = &d.dynLit, &d.dynDist
	return nil
}

// UseFixedTables selects the fixed Huffman tables for a Fixed block.
func (d *Decoder) UseFixedTables() {
	d.hl, d.hd = fixedLitLen, fixedDist
}

// FixedTables returns the package's fixed literal/length and distance
// Huffman tables, shared with the markers package so both decode loops
// use identical tables for Fixed blocks.
func FixedTables() (*huffman.ReversedBitsCached, *huffman.ReversedBitsCached) {
	return fixedLitLen, fixedDist
}

// DecodeBlockBody decodes symbols from the current Huffman block (fixed
// or dynamic) until end-of-block, appending output. It returns
// InvalidBackreference if a distance reaches further back than the
// available window.
func (d *Decoder) DecodeBlockBody() error {
	for {
		v, err := d.hl.Decode(d.br)
		if err != nil {
			return err
		}
		if v < 256 {
			d.output = append(d.output, byte(v))
			if err := d.maybeCheck(); err != nil {
				return err
			}
			continue
		}
		if v == endBlockMarker {
			return nil
		}
		if v >= maxNumLit {
			return pgerr.At(pgerr.InvalidCodeLengths, "bit", d.br.Tell())
		}
		li := v - lengthCodeStart
		length := lengthBase[li]
		if n := lengthExtra[li]; n > 0 {
			extra, err := d.br.Read(n)
			if err != nil {
				return err
			}
			length += int(extra)
		}
		distSym, err := d.hd.Decode(d.br)
		if err != nil {
			return err
		}
		if distSym >= maxNumDist {
			return pgerr.At(pgerr.InvalidBackreference, "bit", d.br.Tell())
		}
		dist := distBase[distSym]
		if n := distExtra[distSym]; n > 0 {
			extra, err := d.br.Read(n)
			if err != nil {
				return err
			}
			dist += int(extra)
		}
		if err := d.copyBack(dist, length); err != nil {
			return err
		}
		if err := d.maybeCheck(); err != nil {
			return err
		}
	}
}

// copyBack appends length bytes copied from dist bytes before the
// current end of output, byte by byte so that overlapping copies (the
// run-length-encoding idiom where dist < length) see their own freshly
// written bytes, matching RFC 1951 section 3.2.3.
func (d *Decoder) copyBack(dist, length int) error {
	if dist > len(d.output) || dist > WindowSize {
		return pgerr.At(pgerr.InvalidBackreference, "bit", d.br.Tell())
	}
	for i := 0; i < length; i++ {
		d.output = append(d.output, d.output[len(d.output)-dist])
	}
	return nil
}

// ReadStoredBlock reads the length-prefixed uncompressed block body
// directly into the output.
func (d *Decoder) ReadStoredBlock() error {
	d.br.AlignToByte()
	lenLo, err := d.br.Read(16)
	if err != nil {
		return err
	}
	nlenLo, err := d.br.Read(16)
	if err != nil {
		return err
	}
	if uint16(nlenLo) != ^uint16(lenLo) {
		return pgerr.At(pgerr.InvalidBlockType, "bit", d.br.Tell())
	}
	n := int(lenLo)
	for i := 0; i < n; i++ {
		b, err := d.br.Read(8)
		if err != nil {
			return err
		}
		d.output = append(d.output, byte(b))
	}
	return nil
}

// Output returns all bytes produced so far, excluding any predecessor
// window passed to NewDecoder.
func (d *Decoder) Output() []byte {
	return d.output[d.dictLen:]
}

// DecodedBytes returns the number of output bytes produced so far
// (excluding the predecessor window).
func (d *Decoder) DecodedBytes() int64 {
	return int64(len(d.output) - d.dictLen)
}

// Window returns up to WindowSize bytes of trailing output, suitable as
// the predecessor window for the chunk that follows this one.
func (d *Decoder) Window() []byte {
	n := len(d.output)
	if n > WindowSize {
		return append([]byte(nil), d.output[n-WindowSize:]...)
	}
	return append([]byte(nil), d.output...)
}
