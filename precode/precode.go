// Package precode implements the cheap, constant-time rejection filter
// the block finder runs before paying for a full header parse: the
// "virtual leaf count" check over a canonical tree truncated at depth 7,
// described in the specification's Precode Validator section and
// grounded on the original implementation's CountAllocatedLeaves table
// (referenced from the retrieved C++ sources, re-expressed here as an
// idiomatic Go lookup table built at package init rather than at compile
// time, since Go has no constexpr).
package precode

import "github.com/jonjohnsonjr/pargz/pgerr"

// NumSymbols is the size of the precode alphabet (RFC 1951 section
// 3.2.7): code-length-of-code-length symbols in the fixed permutation
// order.
const NumSymbols = 19

// maxPrecodeLen is the maximum bit length of a precode code (a 3-bit
// field per symbol).
const maxPrecodeLen = 7

// chunkBits is the width, in precode length-fields, of one lookup-table
// chunk: 4 three-bit fields per the specification's "4096-entry table
// of 4x3-bit codes".
const chunkBits = 4

// leavesTable[i] is the virtual leaf count contributed by the four
// 3-bit code lengths packed into the 12 bits of i, each contributing
// 2^(7-length) for length in 1..7, and 0 for length 0.
var leavesTable [1 << (chunkBits * 3)]uint16

func init() {
	for i := range leavesTable {
		var sum uint16
		v := i
		for f := 0; f < chunkBits; f++ {
			length := v & 0x7
			v >>= 3
			if length > 0 {
				sum += 1 << (7 - uint(length))
			}
		}
		leavesTable[i] = sum
	}
}

// fullTree is the leaf count of a completely occupied depth-7 tree.
const fullTree = 128

// halfTree is the leaf count produced by the degenerate single-symbol
// (code length 1) exception.
const halfTree = 64

// Check validates the precode code lengths (each 0..7) against the
// leaf-count invariant. It
// returns nil when the precode could plausibly encode a valid header
// (the validator is conservative: every true block start must pass),
// and an InvalidCodeLengths error otherwise.
//
// The order of lengths does not affect the result; lengths the header
// did not transmit must be zero.
func Check(lengths [NumSymbols]int) error {
	var total uint16
	for i := 0; i < NumSymbols; i += chunkBits {
		var packed int
		for f := chunkBits - 1; f >= 0; f-- {
			packed <<= 3
			if i+f < NumSymbols {
				packed |= lengths[i+f] & 0x7
			}
		}
		total += leavesTable[packed]
	}
	if total == fullTree {
		return nil
	}
	if total == halfTree {
		// Open question per the specification: this exception may admit
		// additional false positives beyond the true single-code-length-
		// of-1 case. The specification permits accepting the broader
		// set, which is what we do here; see DESIGN.md.
		return nil
	}
	if total < fullTree {
		return pgerr.Wrap(pgerr.InvalidCodeLengths, "precode: underfull tree (leaves=%d)", total)
	}
	return pgerr.Wrap(pgerr.InvalidCodeLengths, "precode: overfull tree (leaves=%d)", total)
}

// MaxCodeLen is the maximum precode code length, exported for callers
// building a ReversedBitsCached table sized for the precode alphabet.
const MaxCodeLen = maxPrecodeLen
