package pargz

import "github.com/jonjohnsonjr/pargz/pgerr"

// ErrorKind names the origin of a decode failure, re-exported from
// pgerr so callers of this package need not import it directly, per
// SPEC_FULL.md section 7's "pargz.ErrorKind" naming.
type ErrorKind = pgerr.Kind

// The exhaustive error kinds from the error handling design.
const (
	ErrUnexpectedEOF         = pgerr.UnexpectedEOF
	ErrInvalidMagic          = pgerr.InvalidMagic
	ErrInvalidBlockType      = pgerr.InvalidBlockType
	ErrInvalidCodeLengths    = pgerr.InvalidCodeLengths
	ErrBloatingHuffmanCoding = pgerr.BloatingHuffmanCoding
	ErrEmptyAlphabet         = pgerr.EmptyAlphabet
	ErrInvalidBackreference  = pgerr.InvalidBackreference
	ErrChecksumMismatch      = pgerr.ChecksumMismatch
	ErrSizeMismatch          = pgerr.SizeMismatch
	ErrIndexInconsistent     = pgerr.IndexInconsistent
	ErrCancelled             = pgerr.Cancelled
)
