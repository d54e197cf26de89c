package modular

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func gradientImage(w, h int) *Image {
	data := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = int32(x + y)
		}
	}
	return &Image{Channel: []Channel{{W: w, H: h, Data: data}}}
}

func TestCollectPixelSamples(t *testing.T) {
	image := gradientImage(16, 16)
	options := &ModularOptions{NbRepeats: 1, MaxChanSize: 1 << 10, MaxPropertyValues: 16}

	var groupCount, channelCount []uint32
	var pixelSamples, diffSamples []int32
	CollectPixelSamples(image, options, 0, &groupCount, &channelCount,
		&pixelSamples, &diffSamples)

	require.Equal(t, []uint32{256}, groupCount)
	require.Equal(t, []uint32{256}, channelCount)
	require.NotEmpty(t, pixelSamples)
	require.Equal(t, len(pixelSamples), len(diffSamples))
	for _, s := range pixelSamples {
		require.GreaterOrEqual(t, s, int32(0))
		require.LessOrEqual(t, s, int32(30))
	}
	for _, d := range diffSamples {
		require.GreaterOrEqual(t, d, int32(-1))
		require.LessOrEqual(t, d, int32(1))
	}
}

func TestCollectPixelSamplesDeterministic(t *testing.T) {
	collect := func() ([]int32, []int32) {
		var groupCount, channelCount []uint32
		var pixelSamples, diffSamples []int32
		options := &ModularOptions{NbRepeats: 0.5, MaxChanSize: 1 << 10}
		CollectPixelSamples(gradientImage(32, 32), options, 7,
			&groupCount, &channelCount, &pixelSamples, &diffSamples)
		return pixelSamples, diffSamples
	}
	p1, d1 := collect()
	p2, d2 := collect()
	require.Equal(t, p1, p2)
	require.Equal(t, d1, d2)
}

func TestCollectPixelSamplesSkips(t *testing.T) {
	t.Run("disabled when NbRepeats is zero", func(t *testing.T) {
		var groupCount, channelCount []uint32
		var pixelSamples, diffSamples []int32
		options := &ModularOptions{NbRepeats: 0}
		CollectPixelSamples(gradientImage(8, 8), options, 0,
			&groupCount, &channelCount, &pixelSamples, &diffSamples)
		require.Empty(t, groupCount)
		require.Empty(t, pixelSamples)
	})

	t.Run("width-1 channels are skipped", func(t *testing.T) {
		image := &Image{Channel: []Channel{{W: 1, H: 8, Data: make([]int32, 8)}}}
		var groupCount, channelCount []uint32
		var pixelSamples, diffSamples []int32
		options := &ModularOptions{NbRepeats: 1, MaxChanSize: 1 << 10}
		CollectPixelSamples(image, options, 0,
			&groupCount, &channelCount, &pixelSamples, &diffSamples)
		require.Equal(t, []uint32{0}, groupCount)
		require.Empty(t, pixelSamples)
	})

	t.Run("oversized channels stop the walk", func(t *testing.T) {
		image := gradientImage(16, 16)
		var groupCount, channelCount []uint32
		var pixelSamples, diffSamples []int32
		options := &ModularOptions{NbRepeats: 1, MaxChanSize: 8}
		CollectPixelSamples(image, options, 0,
			&groupCount, &channelCount, &pixelSamples, &diffSamples)
		require.Equal(t, []uint32{0}, groupCount)
		require.Empty(t, pixelSamples)
	})
}
