// Package wire implements the H-UDP on-wire packet formats and the
// modular sequence-number arithmetic the reliable channel relies on.
package wire

import "github.com/lithdew/seq"

// MaxSeq is the modulus of the 16-bit sequence-number space (§3).
const MaxSeq = 1 << 16

// Window is the fixed selective-repeat window size W (§3). It satisfies
// Window <= MaxSeq/2, which is what makes the half-space comparator
// below unambiguous for any two in-flight sequences.
const Window = 32

// SeqLT reports whether a is strictly before b in modular half-space
// order. This and SeqGE are the only comparisons ever applied to a raw
// sequence number in this module; nothing compares sequence numbers with
// plain "<" or ">=".
func SeqLT(a, b uint16) bool {
	return seq.GT(b, a)
}

// SeqGE reports whether a is at or after b in modular half-space order.
func SeqGE(a, b uint16) bool {
	return !SeqLT(a, b)
}

// SeqAdd returns (a + k) mod 2^16.
func SeqAdd(a uint16, k uint16) uint16 {
	return a + k
}
