package modular

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuantizeHistogram(t *testing.T) {
	testCases := []struct {
		name      string
		histogram []uint32
		numChunks int
		want      []int32
	}{
		{"empty", nil, 4, nil},
		{"no chunks", []uint32{1, 2, 3}, 0, nil},
		{"all zero", []uint32{0, 0, 0}, 4, nil},
		{"single bin", []uint32{10}, 4, nil},
		{"two heavy bins", []uint32{10, 0, 0, 10}, 2, []int32{0}},
		{"uniform four bins", []uint32{25, 25, 25, 25}, 8, []int32{0, 1, 2}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := quantizeHistogram(tc.histogram, tc.numChunks)
			if len(tc.want) == 0 {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tc.want, got)
		})
	}
}

func TestQuantizeSamplesClampsRange(t *testing.T) {
	samples := []int32{-100000, -5, 0, 5, 100000}
	thresholds := quantizeSamples(samples, 4)
	for _, thr := range thresholds {
		require.GreaterOrEqual(t, thr, int32(-512))
		require.LessOrEqual(t, thr, int32(512))
	}
}

func TestQuantMap(t *testing.T) {
	from := []int32{0, 3}
	to := quantMap(from, 2*PropertyRange+1, PropertyRange)

	lookup := func(v int32) uint8 { return to[v+PropertyRange] }
	require.Equal(t, uint8(0), lookup(-PropertyRange))
	require.Equal(t, uint8(0), lookup(0))
	require.Equal(t, uint8(1), lookup(1))
	require.Equal(t, uint8(1), lookup(3))
	require.Equal(t, uint8(2), lookup(4))
	require.Equal(t, uint8(2), lookup(PropertyRange))

	// Monotone over the whole peg range.
	for i := 1; i < len(to); i++ {
		require.LessOrEqual(t, to[i-1], to[i])
	}
}

func TestWPThresholdTableSelection(t *testing.T) {
	tests := []struct {
		maxPropertyValues int
		wantLen           int
	}{
		{16, 15},
		{31, 15},
		{32, 29},
		{63, 29},
		{64, 55},
		{256, 55},
	}
	for _, tt := range tests {
		var ts TreeSamples
		require.NoError(t, ts.SetPredictor(PredictorZero, TreeModeDefault))
		require.NoError(t, ts.SetProperties([]uint32{0, 1, WPProp}, TreeModeDefault))
		ts.PreQuantizeProperties(StaticPropRange{{0, 1}, {0, 1}}, nil,
			[]uint32{1}, []uint32{1}, nil, nil, tt.maxPropertyValues)
		require.Len(t, ts.compactProperties[2], tt.wantLen,
			"maxPropertyValues=%d", tt.maxPropertyValues)
	}
}

func TestCoordinateThresholdsEvenlySpaced(t *testing.T) {
	var ts TreeSamples
	require.NoError(t, ts.SetPredictor(PredictorZero, TreeModeDefault))
	require.NoError(t, ts.SetProperties([]uint32{0, 1, 2, 3}, TreeModeDefault))
	ts.PreQuantizeProperties(StaticPropRange{{0, 1}, {0, 1}}, nil,
		[]uint32{1}, []uint32{1}, nil, nil, 8)
	want := []int32{31, 63, 95, 127, 159, 191, 223}
	require.Equal(t, want, ts.compactProperties[2])
	require.Equal(t, want, ts.compactProperties[3])
}
