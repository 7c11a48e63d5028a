// Package indexio reads and writes the two on-disk Gzip Index formats
// named in the specification's external interfaces section: a
// checkpoint index compatible with indexed_gzip's layout, and the BGZF
// GZI pair-list format. Both are read/written whole; format detection
// is by magic prefix, per spec.md section 4.K/6.
//
// Modeled on gsip.Index's encode/decode shape (there, a JSON envelope
// around a []*flate.Checkpoint; here, the fixed little-endian binary
// layout the specification requires so files interoperate with
// indexed_gzip) and on the (compressed, uncompressed) pair list in
// timpalpant/gzran.Point, stripped of its window field for the BGZF
// variant since BGZF members are independently decodable.
package indexio

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/jonjohnsonjr/pargz/gzindex"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

// checkpointMagic identifies this package's checkpoint index format.
// GZI files carry no magic at all (they begin directly with a uint64
// entry count), so any file not starting with this magic is assumed
// to be a GZI file; see DetectFormat.
var checkpointMagic = [4]byte{'P', 'G', 'I', 'X'}

const checkpointVersion = 1

// Format identifies which on-disk layout a Gzip Index is stored in.
type Format int

const (
	FormatCheckpoint Format = iota
	FormatBGZFGZI
)

// DetectFormat reports which index format a file holds, given its
// first 4 bytes as header.
func DetectFormat(header [4]byte) Format {
	if header == checkpointMagic {
		return FormatCheckpoint
	}
	return FormatBGZFGZI
}

// WriteCheckpointIndex serializes checkpoints (as produced by
// gzindex.Map.Snapshot), plus the stream's total compressed/
// uncompressed size and checkpoint spacing, in the fixed little-endian
// layout: magic, version, compressedSize, uncompressedSize, windowSize,
// spacing, count, then per checkpoint (compressedBit, uncompressedByte,
// windowFlag, [windowLen, window bytes]).
func WriteCheckpointIndex(w io.Writer, checkpoints []gzindex.Checkpoint, compressedSize, uncompressedSize, spacing int64) error {
	bw := &binWriter{w: w}
	bw.bytes(checkpointMagic[:])
	bw.u32(checkpointVersion)
	bw.u64(uint64(compressedSize))
	bw.u64(uint64(uncompressedSize))
	bw.u64(uint64(gzindex.WindowSize))
	bw.u64(uint64(spacing))
	bw.u64(uint64(len(checkpoints)))
	for _, cp := range checkpoints {
		bw.u64(uint64(cp.CompressedBit))
		bw.u64(uint64(cp.UncompressedByte))
		if cp.Window.Sparse || len(cp.Window.Bytes) == 0 {
			bw.u8(0)
			continue
		}
		bw.u8(1)
		bw.u32(uint32(len(cp.Window.Bytes)))
		bw.bytes(cp.Window.Bytes)
	}
	return bw.err
}

// ReadCheckpointIndex parses a checkpoint index written by
// WriteCheckpointIndex, returning the checkpoints and the stream's
// persisted sizes.
func ReadCheckpointIndex(r io.Reader) (checkpoints []gzindex.Checkpoint, compressedSize, uncompressedSize int64, err error) {
	br := &binReader{r: r}
	var magic [4]byte
	br.bytes(magic[:])
	if br.err == nil && magic != checkpointMagic {
		return nil, 0, 0, pgerr.Wrap(pgerr.IndexInconsistent, "indexio: bad checkpoint index magic")
	}
	version := br.u32()
	if br.err == nil && version != checkpointVersion {
		return nil, 0, 0, pgerr.Wrap(pgerr.IndexInconsistent, "indexio: unsupported checkpoint index version %d", version)
	}
	compressedSize = int64(br.u64())
	uncompressedSize = int64(br.u64())
	windowSize := br.u64()
	_ = br.u64() // spacing, informational only
	count := br.u64()
	if br.err != nil {
		return nil, 0, 0, wrapIOErr(br.err)
	}
	if windowSize != gzindex.WindowSize {
		return nil, 0, 0, pgerr.Wrap(pgerr.IndexInconsistent, "indexio: unexpected window size %d", windowSize)
	}
	checkpoints = make([]gzindex.Checkpoint, 0, count)
	for i := uint64(0); i < count; i++ {
		var cp gzindex.Checkpoint
		cp.CompressedBit = int64(br.u64())
		cp.UncompressedByte = int64(br.u64())
		flag := br.u8()
		if flag != 0 {
			n := br.u32()
			cp.Window.Bytes = make([]byte, n)
			br.bytes(cp.Window.Bytes)
		} else {
			cp.Window.Sparse = true
		}
		if br.err != nil {
			return nil, 0, 0, wrapIOErr(br.err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := validateSpacing(checkpoints, uncompressedSize); err != nil {
		return nil, 0, 0, err
	}
	return checkpoints, compressedSize, uncompressedSize, nil
}

// GZIEntry is one (compressed, uncompressed) byte-offset pair of a
// BGZF GZI index.
type GZIEntry struct {
	CompressedByteOffset   int64
	UncompressedByteOffset int64
}

// WriteGZI writes entries in the samtools-compatible BGZF GZI layout:
// uint64 count followed by count (compressed, uncompressed) uint64
// pairs, with no magic prefix.
func WriteGZI(w io.Writer, entries []GZIEntry) error {
	bw := &binWriter{w: w}
	bw.u64(uint64(len(entries)))
	for _, e := range entries {
		bw.u64(uint64(e.CompressedByteOffset))
		bw.u64(uint64(e.UncompressedByteOffset))
	}
	return bw.err
}

// ReadGZI parses a BGZF GZI index.
func ReadGZI(r io.Reader) ([]GZIEntry, error) {
	br := &binReader{r: r}
	count := br.u64()
	if br.err != nil {
		return nil, wrapIOErr(br.err)
	}
	entries := make([]GZIEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var e GZIEntry
		e.CompressedByteOffset = int64(br.u64())
		e.UncompressedByteOffset = int64(br.u64())
		if br.err != nil {
			return nil, wrapIOErr(br.err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// validateSpacing enforces the specification's checkpoint spacing law:
// consecutive checkpoints differ by at least windowSize decompressed
// bytes, and the final checkpoint equals the stream's uncompressed
// size.
func validateSpacing(checkpoints []gzindex.Checkpoint, uncompressedSize int64) error {
	for i := 1; i < len(checkpoints); i++ {
		if checkpoints[i].UncompressedByte-checkpoints[i-1].UncompressedByte < gzindex.WindowSize && i != len(checkpoints)-1 {
			return pgerr.Wrap(pgerr.IndexInconsistent, "indexio: checkpoint %d closer than window size to checkpoint %d", i, i-1)
		}
	}
	if n := len(checkpoints); n > 0 && checkpoints[n-1].UncompressedByte != uncompressedSize {
		return pgerr.Wrap(pgerr.IndexInconsistent, "indexio: final checkpoint %d does not match uncompressed size %d", checkpoints[n-1].UncompressedByte, uncompressedSize)
	}
	return nil
}

func wrapIOErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return pgerr.Wrap(pgerr.UnexpectedEOF, "indexio: %v", err)
	}
	return errors.Wrap(err, "indexio")
}

// binWriter is a tiny little-endian encoder that latches the first
// error it sees, the way gsip's JSON-based Encode short-circuits on
// error -- re-expressed here for fixed-width binary fields since the
// specification requires little-endian fixed-width encoding rather
// than a self-describing format.
type binWriter struct {
	w   io.Writer
	err error
}

func (b *binWriter) bytes(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write(p)
}

func (b *binWriter) u8(v uint8) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write([]byte{v})
}

func (b *binWriter) u32(v uint32) {
	if b.err != nil {
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, b.err = b.w.Write(buf[:])
}

func (b *binWriter) u64(v uint64) {
	if b.err != nil {
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, b.err = b.w.Write(buf[:])
}

type binReader struct {
	r   io.Reader
	err error
}

func (b *binReader) bytes(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = io.ReadFull(b.r, p)
}

func (b *binReader) u8() uint8 {
	if b.err != nil {
		return 0
	}
	var buf [1]byte
	_, b.err = io.ReadFull(b.r, buf[:])
	return buf[0]
}

func (b *binReader) u32() uint32 {
	if b.err != nil {
		return 0
	}
	var buf [4]byte
	_, b.err = io.ReadFull(b.r, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func (b *binReader) u64() uint64 {
	if b.err != nil {
		return 0
	}
	var buf [8]byte
	_, b.err = io.ReadFull(b.r, buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}
