// Package streamformat names the four compressed framings this
// decompressor understands and detects which one a byte source holds,
// per SPEC_FULL.md section 3's Format enum addition (the teacher only
// ever handled gzip; the specification requires dispatch across all
// four).
package streamformat

import (
	"compress/gzip"

	"github.com/jonjohnsonjr/pargz/fsrc"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

// Format identifies a DEFLATE-family container.
type Format int

const (
	FormatGzip Format = iota
	FormatBGZF
	FormatZlib
	FormatRawDeflate
)

func (f Format) String() string {
	switch f {
	case FormatGzip:
		return "gzip"
	case FormatBGZF:
		return "bgzf"
	case FormatZlib:
		return "zlib"
	case FormatRawDeflate:
		return "raw-deflate"
	default:
		return "unknown"
	}
}

// bgzfExtraPrefix is the BGZF subfield identifier (SI1 SI2 SLEN_LE),
// the same bytes blockfinder's copy matches.
var bgzfExtraPrefix = []byte{0x42, 0x43, 0x02, 0x00}

// Detect inspects the first 2 header bytes of a stream and reports its
// format: FormatGzip for the gzip magic (Detect does not tell BGZF from
// plain gzip; DetectGzipOrBGZF does, from the FEXTRA payload),
// FormatZlib for a valid CMF/FLG pair per RFC 1950, and otherwise raw
// deflate, the specification's required fallback for unframed streams.
func Detect(header []byte) (Format, error) {
	if len(header) >= 2 && header[0] == 0x1F && header[1] == 0x8B {
		return FormatGzip, nil
	}
	if len(header) >= 2 && isZlibHeader(header[0], header[1]) {
		return FormatZlib, nil
	}
	return FormatRawDeflate, nil
}

// isZlibHeader validates the RFC 1950 CMF/FLG pair: CM must be 8
// (deflate), CINFO (window size) must be <= 7, and (CMF*256+FLG) must
// be a multiple of 31.
func isZlibHeader(cmf, flg byte) bool {
	if cmf&0x0F != 8 {
		return false
	}
	if cmf>>4 > 7 {
		return false
	}
	return (uint16(cmf)*256+uint16(flg))%31 == 0
}

// DetectGzipOrBGZF narrows FormatGzip to FormatBGZF when extra, the
// gzip header's FEXTRA payload, carries the BGZF subfield.
func DetectGzipOrBGZF(extra []byte) Format {
	for i := 0; i+3 < len(extra); i++ {
		if extra[i] == bgzfExtraPrefix[0] && extra[i+1] == bgzfExtraPrefix[1] && extra[i+2] == bgzfExtraPrefix[2] && extra[i+3] == bgzfExtraPrefix[3] {
			return FormatBGZF
		}
	}
	return FormatGzip
}

// ErrFDictUnsupported reports a zlib stream with a preset-dictionary
// id, which the core does not support (per spec.md section 6: "FDICT
// id (rejected -- dictionary preload not supported by the core)").
var ErrFDictUnsupported = pgerr.Wrap(pgerr.InvalidMagic, "streamformat: zlib FDICT preset dictionaries are not supported")

// ReadGzipMemberHeader consumes one gzip member header from src (which
// must be positioned at its start) using the standard library's own
// header parser -- src already implements io.Reader and io.ByteReader,
// so gzip.NewReader reads exactly the header bytes without any extra
// buffering, leaving src positioned at the first bit of the member's
// deflate body.
// It reports whether the member's FEXTRA carries the BGZF subfield.
func ReadGzipMemberHeader(src fsrc.Source) (Format, error) {
	gr, err := gzip.NewReader(src)
	if err != nil {
		return FormatGzip, pgerr.Wrap(pgerr.InvalidMagic, "streamformat: gzip header: %v", err)
	}
	return DetectGzipOrBGZF(gr.Header.Extra), nil
}

// GzipFooterSize is the width in bytes of a gzip member's trailing
// CRC32 || ISIZE footer.
const GzipFooterSize = 8

// ReadGzipFooter reads the 8-byte footer at byteOffset (CRC32 then
// ISIZE, both little-endian, per RFC 1952), leaving src positioned just
// past it on success; the caller is expected to have already aligned
// byteOffset to the deflate stream's end.
func ReadGzipFooter(src fsrc.Source, byteOffset int64) (crc32, isize uint32, err error) {
	if err := src.Seek(byteOffset); err != nil {
		return 0, 0, err
	}
	var buf [GzipFooterSize]byte
	if err := readFull(src, buf[:]); err != nil {
		return 0, 0, err
	}
	crc32 = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	isize = uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24
	return crc32, isize, nil
}

// ZlibFooterSize is the width in bytes of a zlib stream's trailing
// Adler-32 footer.
const ZlibFooterSize = 4

// ReadZlibHeader consumes the 2-byte CMF/FLG header (and, if present,
// the 4-byte FDICT preset-dictionary id, which this core rejects) from
// src, leaving it positioned at the first bit of the deflate body.
func ReadZlibHeader(src fsrc.Source) error {
	var hdr [2]byte
	if err := readFull(src, hdr[:]); err != nil {
		return err
	}
	if !isZlibHeader(hdr[0], hdr[1]) {
		return pgerr.Wrap(pgerr.InvalidMagic, "streamformat: not a zlib stream")
	}
	if hdr[1]&0x20 != 0 {
		return ErrFDictUnsupported
	}
	return nil
}

// ReadZlibFooter reads the 4-byte big-endian Adler-32 footer at
// byteOffset.
func ReadZlibFooter(src fsrc.Source, byteOffset int64) (adler32 uint32, err error) {
	if err := src.Seek(byteOffset); err != nil {
		return 0, err
	}
	var buf [ZlibFooterSize]byte
	if err := readFull(src, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

func readFull(src fsrc.Source, buf []byte) error {
	for n := 0; n < len(buf); {
		m, err := src.Read(buf[n:])
		n += m
		if err != nil && n < len(buf) {
			return pgerr.Wrap(pgerr.UnexpectedEOF, "streamformat: short read: %v", err)
		}
	}
	return nil
}
