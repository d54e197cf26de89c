package modular

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateBitsDegenerate(t *testing.T) {
	testCases := []struct {
		name   string
		counts []int32
	}{
		{"single symbol", []int32{7, 0, 0, 0}},
		{"single symbol elsewhere", []int32{0, 0, 123, 0}},
		{"empty histogram", []int32{0, 0, 0, 0}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, float32(0), EstimateBits(tc.counts))
		})
	}
}

func TestEstimateBitsUniform(t *testing.T) {
	// Two equiprobable symbols cost one bit each.
	require.InDelta(t, 4.0, EstimateBits([]int32{2, 2}), 1e-3)
	require.InDelta(t, 32.0, EstimateBits([]int32{4, 4, 4, 4}), 1e-3)
}

func TestEstimateBitsMatchesShannon(t *testing.T) {
	counts := []int32{1, 2, 4, 8, 0, 1}
	var total float64
	for _, c := range counts {
		total += float64(c)
	}
	var want float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		want -= float64(c) * math.Log2(float64(c)/total)
	}
	require.InDelta(t, want, float64(EstimateBits(counts)), 1e-2)
}

func TestEstimateBitsMinProbClamp(t *testing.T) {
	// A symbol rarer than 1/ANSTabSize is charged as if it had probability
	// exactly 1/ANSTabSize, so the estimate stays below the true Shannon
	// cost of the tail.
	counts := make([]int32, 2)
	counts[0] = 1
	counts[1] = ANSTabSize * 4
	got := EstimateBits(counts)
	require.Greater(t, got, float32(0))
	// The rare symbol contributes exactly log2(ANSTabSize) bits.
	rare := float64(math.Log2(ANSTabSize))
	common := -float64(counts[1]) * math.Log2(float64(counts[1])/float64(counts[1]+1))
	require.InDelta(t, rare+common, float64(got), 0.5)
}

func TestEstimateBitsOrderInvariant(t *testing.T) {
	a := []int32{5, 0, 3, 9, 1, 0, 0, 2}
	b := []int32{9, 5, 3, 2, 1, 0, 0, 0}
	require.Equal(t, EstimateBits(a), EstimateBits(b))
}

func TestPadded(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 0}, {1, 8}, {7, 8}, {8, 8}, {9, 16}, {255, 256},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, padded(tt.in))
	}
}
