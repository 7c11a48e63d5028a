// Package pgerr defines the exhaustive set of error kinds produced by the
// deflate-family decoding core, so that every package from bitreader up to
// the parallel reader can return an error a caller can test with errors.Is,
// while still carrying a wrapped cause and byte offset for debugging.
package pgerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a sentinel error naming the origin of a decode failure. Kind
// values are comparable, so errors.Is(err, UnexpectedEOF) works on any
// error built with Wrap/At below.
type Kind string

func (k Kind) Error() string { return string(k) }

// The exhaustive error kinds from the error handling design.
const (
	UnexpectedEOF         Kind = "UNEXPECTED_EOF"
	InvalidMagic          Kind = "INVALID_MAGIC"
	InvalidBlockType      Kind = "INVALID_BLOCK_TYPE"
	InvalidCodeLengths    Kind = "INVALID_CODE_LENGTHS"
	BloatingHuffmanCoding Kind = "BLOATING_HUFFMAN_CODING"
	EmptyAlphabet         Kind = "EMPTY_ALPHABET"
	InvalidBackreference  Kind = "INVALID_BACKREFERENCE"
	ChecksumMismatch      Kind = "CHECKSUM_MISMATCH"
	SizeMismatch          Kind = "SIZE_MISMATCH"
	IndexInconsistent     Kind = "INDEX_INCONSISTENT"
	Cancelled             Kind = "CANCELLED"
)

// At wraps k with the bit or byte offset at which it was detected. The
// caller says which domain the offset is in via the label.
func At(k Kind, label string, offset int64) error {
	return errors.Wrapf(k, "%s offset %d", label, offset)
}

// Wrap attaches additional context to k without discarding errors.Is
// compatibility.
func Wrap(k Kind, format string, args ...interface{}) error {
	return errors.Wrap(k, fmt.Sprintf(format, args...))
}

// Is reports whether err is, or wraps, the given kind.
func Is(err error, k Kind) bool {
	return errors.Is(err, k)
}
