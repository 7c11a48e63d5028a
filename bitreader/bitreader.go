// Package bitreader implements the bit-granular reader the deflate core
// and block finder read through: peek/read/seek over a byte-addressable
// fsrc.Source, with an LSB-first bit buffer since that's what DEFLATE
// (and therefore gzip/zlib/BGZF) requires.
//
// The design generalizes the inline bit buffer the teacher kept directly
// on its Decompressor (sgzip/internal/flate's f.b/f.nb/moreBits) into a
// standalone reader so the block finder can seek and peek independently
// of any particular deflate decode in progress.
package bitreader

import (
	"encoding/binary"

	"github.com/jonjohnsonjr/pargz/fsrc"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

// MaxPeekBits is the largest n accepted by Peek/Read: a dynamic-Huffman
// header field plus its extra bits never needs more than 57 bits of
// lookahead at once (see deflate's ReadDynamicHeader and DecodeBlockBody).
const MaxPeekBits = 57

// byteBufSize is the size of the byte-level read-ahead buffer refilled
// from the underlying Source. 64 KiB sits inside the 8-128 KiB band the
// spec calls for.
const byteBufSize = 64 << 10

// Reader is a bit-granular cursor over a byte-addressable Source.
type Reader struct {
	src fsrc.Source

	// byte buffer: bytes [bufStart, bufStart+bufLen) of the source,
	// already read into buf. bufPos is the read cursor within buf.
	buf      [byteBufSize]byte
	bufLen   int
	bufPos   int
	bufStart int64 // byte offset of buf[0] within src

	// bit buffer: LSB-first accumulator. The low nb bits of bits are
	// valid and not yet consumed.
	bits uint64
	nb   uint

	eof bool
}

// New returns a Reader starting at the given absolute bit offset.
func New(src fsrc.Source, bitOffset int64) (*Reader, error) {
	r := &Reader{src: src}
	if err := r.Seek(bitOffset); err != nil {
		return nil, err
	}
	return r, nil
}

// Tell returns the current absolute bit offset.
func (r *Reader) Tell() int64 {
	return (r.bufStart+int64(r.bufPos))*8 - int64(r.nb)
}

// EOF reports whether the reader has observed end-of-stream; it becomes
// true only once a Peek/Read could not satisfy its bit count.
func (r *Reader) EOF() bool { return r.eof }

// Seek moves to an absolute bit offset. It is O(1) when the target byte
// falls inside the currently buffered window, and a fresh refill
// otherwise.
func (r *Reader) Seek(bitOffset int64) error {
	if bitOffset < 0 {
		return pgerr.Wrap(pgerr.UnexpectedEOF, "bitreader: negative seek to bit %d", bitOffset)
	}
	byteOffset := bitOffset / 8
	bitInByte := uint(bitOffset % 8)

	r.bits, r.nb, r.eof = 0, 0, false

	if byteOffset >= r.bufStart && byteOffset < r.bufStart+int64(r.bufLen) {
		r.bufPos = int(byteOffset - r.bufStart)
	} else {
		if err := r.src.Seek(byteOffset); err != nil {
			return err
		}
		r.bufLen = 0
		r.bufPos = 0
		r.bufStart = byteOffset
	}

	if bitInByte != 0 {
		// Pull in the partial byte and discard its low bits.
		if err := r.fillBits(8); err != nil {
			return err
		}
		r.bits >>= bitInByte
		r.nb -= bitInByte
	}
	return nil
}

// refill tops up the byte buffer from the source, compacting any
// unread tail forward.
func (r *Reader) refill() error {
	if r.bufPos > 0 {
		n := copy(r.buf[:], r.buf[r.bufPos:r.bufLen])
		r.bufStart += int64(r.bufPos)
		r.bufLen = n
		r.bufPos = 0
	}
	for r.bufLen < len(r.buf) {
		n, err := r.src.Read(r.buf[r.bufLen:])
		r.bufLen += n
		if err != nil {
			// A short read is fine as long as we got something; a
			// hard read error or true EOF is reported once the bit
			// buffer can't be filled from what's buffered.
			return err
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// fillBits ensures at least n bits (n <= MaxPeekBits) are available in
// r.bits, refilling the byte buffer and loading a machine word at a
// time when at least 8 bytes remain, per the bit reader's design: an
// unaligned word load on the common path, falling back to a byte at a
// time near the end of the buffered window.
func (r *Reader) fillBits(n uint) error {
	if n > MaxPeekBits {
		panic("bitreader: peek/read of more than MaxPeekBits bits")
	}
	for r.nb < n {
		if r.bufPos >= r.bufLen {
			if err := r.refill(); err != nil && r.bufLen == r.bufPos {
				r.eof = true
				return pgerr.Wrap(pgerr.UnexpectedEOF, "bitreader: %v", err)
			}
			if r.bufLen == r.bufPos {
				r.eof = true
				return pgerr.Wrap(pgerr.UnexpectedEOF, "bitreader: no more data")
			}
		}
		if avail := r.bufLen - r.bufPos; avail >= 8 && r.nb <= 56 {
			word := binary.LittleEndian.Uint64(r.buf[r.bufPos:])
			take := (64 - r.nb) / 8 * 8 // whole bytes that fit
			if take > 64 {
				take = 64
			}
			r.bits |= (word & ((1 << take) - 1)) << r.nb
			consumed := int(take / 8)
			r.bufPos += consumed
			r.nb += uint(consumed) * 8
			continue
		}
		r.bits |= uint64(r.buf[r.bufPos]) << r.nb
		r.bufPos++
		r.nb += 8
	}
	return nil
}

// Peek returns the next n bits (n <= MaxPeekBits) without advancing.
func (r *Reader) Peek(n uint) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	if err := r.fillBits(n); err != nil {
		return 0, err
	}
	return r.bits & ((1 << n) - 1), nil
}

// SeekAfterPeek advances n bits without re-reading, intended to follow a
// prior Peek(n') with n <= n'.
func (r *Reader) SeekAfterPeek(n uint) {
	if n > r.nb {
		panic("bitreader: SeekAfterPeek beyond peeked bits")
	}
	r.bits >>= n
	r.nb -= n
}

// Read returns the next n bits and advances past them.
func (r *Reader) Read(n uint) (uint64, error) {
	v, err := r.Peek(n)
	if err != nil {
		return 0, err
	}
	r.SeekAfterPeek(n)
	return v, nil
}

// AlignToByte discards any partially-consumed byte, per RFC 1951's
// requirement that uncompressed blocks start at a byte boundary.
func (r *Reader) AlignToByte() {
	discard := r.nb % 8
	r.bits >>= discard
	r.nb -= discard
}
