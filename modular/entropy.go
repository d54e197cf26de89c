package modular

import "math"

// padded rounds a histogram length up to a multiple of the reduction width,
// so scratch buffers can be walked in fixed-size blocks.
func padded(x int) int {
	return (x + 7) &^ 7
}

// EstimateBits approximates the Shannon code length in bits of the given
// histogram, taking into account the minimum probability the ANS coder can
// represent for symbols with non-zero counts. A symbol carrying all the mass
// costs nothing: a context with a single symbol needs no bits at all.
//
// The result only depends on the multiset of counts, not their order, and is
// bit-identical across runs.
func EstimateBits(counts []int32) float32 {
	var total int32
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	invTotal := 1.0 / float32(total)
	const minProb = 1.0 / float32(ANSTabSize)
	// Accumulate in double precision: the reduction must not depend on how
	// the loop is blocked or vectorized.
	var bits float64
	for _, c := range counts {
		if c == 0 || c == total {
			continue
		}
		p := float32(c) * invTotal
		if p < minProb {
			p = minProb
		}
		bits -= float64(c) * math.Log2(float64(p))
	}
	return float32(bits)
}
