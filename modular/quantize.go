package modular

import "sort"

// quantizeHistogram emits one threshold each time the cumulative sum crosses
// another 1/numChunks-th of the total mass. The final all-inclusive value is
// dropped: it is not a threshold.
func quantizeHistogram(histogram []uint32, numChunks int) []int32 {
	if len(histogram) == 0 || numChunks == 0 {
		return nil
	}
	var sum uint64
	for _, h := range histogram {
		sum += uint64(h)
	}
	if sum == 0 {
		return nil
	}
	var thresholds []int32
	var cumsum uint64
	threshold := uint64(1)
	for i, h := range histogram {
		cumsum += uint64(h)
		if cumsum*uint64(numChunks) >= threshold*sum {
			thresholds = append(thresholds, int32(i))
			for cumsum*uint64(numChunks) >= threshold*sum {
				threshold++
			}
		}
	}
	return thresholds[:len(thresholds)-1]
}

// quantizeSamples picks numChunks-quantile thresholds of the sample
// distribution, clamped to a fixed range.
func quantizeSamples(samples []int32, numChunks int) []int32 {
	if len(samples) == 0 {
		return nil
	}
	const quantRange = 512
	min := samples[0]
	for _, s := range samples {
		if s < min {
			min = s
		}
	}
	min = clamp1(min, -quantRange, quantRange)
	counts := make([]uint32, 2*quantRange+1)
	for _, s := range samples {
		counts[clamp1(s, -quantRange, quantRange)-min]++
	}
	thresholds := quantizeHistogram(counts, numChunks)
	for i := range thresholds {
		thresholds[i] += min
	}
	return thresholds
}

// quantMap builds the dense raw-value-to-bucket lookup for sorted
// thresholds: to[i] = v such that from[v-1] < i-bias <= from[v]. The tree
// splits on (property) > threshold, so everything not greater than a
// threshold must land in the same bucket.
func quantMap(from []int32, numPegs, bias int) []uint8 {
	to := make([]uint8, numPegs)
	mapped := 0
	for i := 0; i < numPegs; i++ {
		for mapped < len(from) && int32(i-bias) > from[mapped] {
			mapped++
		}
		to[i] = uint8(mapped)
	}
	return to
}

func sortedUnique(v []int32) []int32 {
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	out := v[:0]
	for i, x := range v {
		if i == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

// PreQuantizeProperties builds the per-property threshold lists and bucket
// lookups. Channel and group thresholds come from pixel-count histograms
// unless multiplier ranges force specific boundaries; coordinates use evenly
// spaced thresholds; pixel-valued properties use sample quantiles; the
// weighted-predictor error uses fixed dyadic thresholds.
//
// quantize_abs_* variants reuse the signed sample buffers after taking
// absolute values, so pixelSamples and diffSamples are clobbered.
func (ts *TreeSamples) PreQuantizeProperties(
	staticPropRange StaticPropRange,
	multiplierInfo []ModularMultiplierInfo,
	groupPixelCount, channelPixelCount []uint32,
	pixelSamples, diffSamples []int32,
	maxPropertyValues int) {

	// If we have forced splits because of multipliers, choose channel and
	// group thresholds accordingly.
	var channelMulThresholds, groupMulThresholds []int32
	for _, v := range multiplierInfo {
		if v.Range[0][0] != staticPropRange[0][0] {
			channelMulThresholds = append(channelMulThresholds, int32(v.Range[0][0])-1)
		}
		if v.Range[0][1] != staticPropRange[0][1] {
			channelMulThresholds = append(channelMulThresholds, int32(v.Range[0][1])-1)
		}
		if v.Range[1][0] != staticPropRange[1][0] {
			groupMulThresholds = append(groupMulThresholds, int32(v.Range[1][0])-1)
		}
		if v.Range[1][1] != staticPropRange[1][1] {
			groupMulThresholds = append(groupMulThresholds, int32(v.Range[1][1])-1)
		}
	}
	channelMulThresholds = sortedUnique(channelMulThresholds)
	groupMulThresholds = sortedUnique(groupMulThresholds)

	quantizeChannel := func() []int32 {
		if len(channelMulThresholds) > 0 {
			return channelMulThresholds
		}
		return quantizeHistogram(channelPixelCount, maxPropertyValues)
	}
	quantizeGroupID := func() []int32 {
		if len(groupMulThresholds) > 0 {
			return groupMulThresholds
		}
		return quantizeHistogram(groupPixelCount, maxPropertyValues)
	}
	quantizeCoordinate := func() []int32 {
		quantized := make([]int32, 0, maxPropertyValues-1)
		for i := 0; i+1 < maxPropertyValues; i++ {
			quantized = append(quantized, int32((i+1)*256/maxPropertyValues-1))
		}
		return quantized
	}
	var pixelThresholds, absPixelThresholds []int32
	quantizePixelProperty := func() []int32 {
		if len(pixelThresholds) == 0 {
			pixelThresholds = quantizeSamples(pixelSamples, maxPropertyValues)
		}
		return pixelThresholds
	}
	quantizeAbsPixelProperty := func() []int32 {
		if len(absPixelThresholds) == 0 {
			quantizePixelProperty() // Compute the non-abs thresholds.
			for i, v := range pixelSamples {
				if v < 0 {
					pixelSamples[i] = -v
				}
			}
			absPixelThresholds = quantizeSamples(pixelSamples, maxPropertyValues)
		}
		return absPixelThresholds
	}
	var diffThresholds, absDiffThresholds []int32
	quantizeDiffProperty := func() []int32 {
		if len(diffThresholds) == 0 {
			diffThresholds = quantizeSamples(diffSamples, maxPropertyValues)
		}
		return diffThresholds
	}
	quantizeAbsDiffProperty := func() []int32 {
		if len(absDiffThresholds) == 0 {
			quantizeDiffProperty() // Compute the non-abs thresholds.
			for i, v := range diffSamples {
				if v < 0 {
					diffSamples[i] = -v
				}
			}
			absDiffThresholds = quantizeSamples(diffSamples, maxPropertyValues)
		}
		return absDiffThresholds
	}
	quantizeWP := func() []int32 {
		if maxPropertyValues < 32 {
			return wpThresholds16
		}
		if maxPropertyValues < 64 {
			return wpThresholds32
		}
		return wpThresholds64
	}

	ts.compactProperties = make([][]int32, len(ts.propsToUse))
	ts.propertyMapping = make([][]uint8, len(ts.propsToUse)-ts.numStaticProps)
	for i, prop := range ts.propsToUse {
		switch {
		case prop == 0:
			ts.compactProperties[i] = quantizeChannel()
		case prop == 1:
			ts.compactProperties[i] = quantizeGroupID()
		case prop == 2 || prop == 3:
			ts.compactProperties[i] = quantizeCoordinate()
		case prop == 6 || prop == 7 || prop == 8 ||
			(prop >= NumNonrefProperties && (prop-NumNonrefProperties)%4 == 1):
			ts.compactProperties[i] = quantizePixelProperty()
		case prop == 4 || prop == 5 ||
			(prop >= NumNonrefProperties && (prop-NumNonrefProperties)%4 == 0):
			ts.compactProperties[i] = quantizeAbsPixelProperty()
		case prop >= NumNonrefProperties && (prop-NumNonrefProperties)%4 == 2:
			ts.compactProperties[i] = quantizeAbsDiffProperty()
		case prop == WPProp:
			ts.compactProperties[i] = quantizeWP()
		default:
			ts.compactProperties[i] = quantizeDiffProperty()
		}
		mapping := quantMap(ts.compactProperties[i], PropertyRange*2+1, PropertyRange)
		if i < ts.numStaticProps {
			ts.staticPropertyMapping[i] = mapping
		} else {
			ts.propertyMapping[i-ts.numStaticProps] = mapping
		}
	}
}
