// Package markers implements the marker-resolution decoder (component F):
// a second instantiation of the deflate block-decode loop that runs
// without knowing the 32 KiB window preceding its start offset. Literal
// symbols are emitted as plain bytes; backreferences that reach past
// what this decoder has itself produced are emitted as 16-bit marker
// symbols in [256, 256+32768) encoding a position in the not-yet-known
// predecessor window, per the specification's section 4.F.
//
// This mirrors deflate.Decoder's Huffman decode loop (same literal/
// length/distance tables, same RFC 1951 block framing) but widens the
// output element from byte to uint16 so a slot can hold either a
// resolved byte (0..255) or a marker (256..256+32767), the way the
// teacher's sgzip/internal/flate.dictDecoder separates "history" from
// "output" -- here widened to a tagged union instead of plain bytes.
//
// The specification calls the literal-storage transition at the 32 KiB
// mark "sticky per chunk," an encoding-size optimization for a ring
// buffer implementation. Since this decoder (like deflate.Decoder)
// always materializes the whole bounded chunk in memory rather than
// streaming through a fixed-size ring, that optimization has no
// observable effect here beyond memory use, so output is stored
// uniformly as []uint16 and HasMarkers reports whether any marker
// symbol is still live in the output.
package markers

import (
	"github.com/jonjohnsonjr/pargz/bitreader"
	"github.com/jonjohnsonjr/pargz/deflate"
	"github.com/jonjohnsonjr/pargz/huffman"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

// WindowSize is the deflate window size a marker position is relative
// to: markers encode positions in the most recent WindowSize bytes
// before this decoder's start offset.
const WindowSize = deflate.WindowSize

// MarkerBase is the first value in the marker range; values below it
// are literal bytes.
const MarkerBase = 256

const (
	endBlockMarker  = 256
	lengthCodeStart = 257
	maxNumLit       = 286
	maxNumDist      = 30
)

// Decoder decodes deflate blocks into a growing []uint16 buffer of
// literal-or-marker symbols, without access to the predecessor window.
type Decoder struct {
	br *bitreader.Reader

	output []uint16

	hasMarker bool

	hl, hd *huffman.ReversedBitsCached

	dynLit  huffman.ReversedBitsCached
	dynDist huffman.ReversedBitsCached

	checkEvery int64
	check      func() error
	nextCheck  int64
}

// SetPeriodicCheck arranges for check to be called from within
// DecodeBlockBody at least every n decoded symbols, mirroring
// deflate.Decoder.SetPeriodicCheck so both decode loops observe
// cancellation at the same granularity.
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

// NewDecoder returns a marker-resolution Decoder reading from br.
func NewDecoder(br *bitreader.Reader) *Decoder {
	return &Decoder{br: br}
}

// ReadHeader, ReadDynamicHeader, BuildDynamicTables, and UseFixedTables
// have identical semantics to their deflate.Decoder counterparts; they
// are re-implemented here (rather than shared) only because they must
// drive this Decoder's hl/hd fields instead of deflate.Decoder's.

func (d *Decoder) ReadHeader() (deflate.Header, error) {
	v, err := d.br.Read(3)
	if err != nil {
		return deflate.Header{}, err
	}
	h := deflate.Header{Final: v&1 == 1}
	switch (v >> 1) & 3 {
	case 0:
		h.Type = deflate.Stored
	case 1:
		h.Type = deflate.Fixed
	case 2:
		h.Type = deflate.Dynamic
	default:
		return deflate.Header{}, pgerr.At(pgerr.InvalidBlockType, "bit", d.br.Tell())
	}
	return h, nil
}

var codeOrder = [...]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

func (d *Decoder) ReadDynamicHeader() (deflate.DynamicHeader, error) {
	var dh deflate.DynamicHeader
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

func (d *Decoder) BuildDynamicTables(dh deflate.DynamicHeader) error {
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
			return pgerr.Wrap(pgerr.InvalidCodeLengths, "markers: unexpected length code %d", sym)
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

// UseFixedTables selects deflate's fixed Huffman tables for a Fixed
// block, shared with deflate.Decoder so both decode loops agree.
func (d *Decoder) UseFixedTables() {
	d.hl, d.hd = deflate.FixedTables()
}

// DecodeBlockBody decodes one Huffman block's symbols until
// end-of-block. Distances that reach past the start of this chunk's
// own output are recorded as markers instead of failing.
func (d *Decoder) DecodeBlockBody() error {
	for {
		v, err := d.hl.Decode(d.br)
		if err != nil {
			return err
		}
		if v < 256 {
			d.output = append(d.output, uint16(v))
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
		length := deflate.LengthBase[li]
		if n := deflate.LengthExtra[li]; n > 0 {
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
		dist := deflate.DistBase[distSym]
		if n := deflate.DistExtra[distSym]; n > 0 {
			extra, err := d.br.Read(n)
			if err != nil {
				return err
			}
			dist += int(extra)
		}
		if dist > WindowSize {
			return pgerr.At(pgerr.InvalidBackreference, "bit", d.br.Tell())
		}
		d.copyBack(dist, length)
		if err := d.maybeCheck(); err != nil {
			return err
		}
	}
}

// copyBack appends length symbols copied from dist symbols before the
// current end of output. When the source position falls before the
// start of this chunk's own output, a marker symbol encoding the
// not-yet-known predecessor window position is appended instead; a
// copy that itself reads a marker propagates that same marker value,
// since resolution will later substitute it consistently wherever it
// appears.
func (d *Decoder) copyBack(dist, length int) {
	for i := 0; i < length; i++ {
		pos := len(d.output) - dist
		var sym uint16
		if pos >= 0 {
			sym = d.output[pos]
		} else {
			windowPos := WindowSize + pos
			sym = uint16(MarkerBase + windowPos)
			d.hasMarker = true
		}
		d.output = append(d.output, sym)
	}
}

// ReadStoredBlock reads an uncompressed block body directly into
// output as literal bytes.
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
		d.output = append(d.output, uint16(b))
	}
	return nil
}

// HasMarkers reports whether any unresolved marker symbol remains in
// the output produced so far.
func (d *Decoder) HasMarkers() bool { return d.hasMarker }

// Output returns the decoded literal-or-marker symbols.
func (d *Decoder) Output() []uint16 { return d.output }

// DecodedBytes returns the number of symbols (bytes, once resolved)
// produced so far.
func (d *Decoder) DecodedBytes() int64 { return int64(len(d.output)) }

// Resolve replaces every marker symbol in syms with the byte found in
// window, the predecessor chunk's final trailing window (at most
// WindowSize bytes; shorter near the start of a stream). It returns
// InvalidBackreference if a marker's position falls outside the
// supplied window, which only happens against a corrupt stream.
func Resolve(syms []uint16, window []byte) ([]byte, error) {
	windowStart := WindowSize - len(window)
	out := make([]byte, len(syms))
	for i, s := range syms {
		if s < MarkerBase {
			out[i] = byte(s)
			continue
		}
		windowPos := int(s) - MarkerBase
		idx := windowPos - windowStart
		if idx < 0 || idx >= len(window) {
			return nil, pgerr.Wrap(pgerr.InvalidBackreference, "markers: resolve position %d outside window of length %d", windowPos, len(window))
		}
		out[i] = window[idx]
	}
	return out, nil
}
