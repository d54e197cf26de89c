package modular

import "math"

// splitInfo is one candidate split: the property column and bucket to split
// at, the row boundary after partitioning, and the cost and predictor chosen
// independently for each side.
type splitInfo struct {
	prop         int
	val          uint32
	pos          int
	lcost, rcost float32
	lpred, rpred Predictor
}

func newSplitInfo() splitInfo {
	return splitInfo{lcost: math.MaxFloat32, rcost: math.MaxFloat32}
}

func (s *splitInfo) cost() float32 { return s.lcost + s.rcost }

// costInfo tracks the best predictor for one side of one candidate split.
// extraCost carries the policy penalties, which bias the choice of predictor
// but do not count as real bits when comparing splits.
type costInfo struct {
	cost      float32
	extraCost float32
	pred      Predictor
}

func (c *costInfo) total() float32 { return c.cost + c.extraCost }

type nodeInfo struct {
	pos             int
	begin, end      int
	usedProperties  uint64
	staticPropRange StaticPropRange
}

// splitTreeSamples partitions rows [begin, end) in place so that rows with
// Property(prop) <= val end up in [begin, pos) and the rest in [pos, end).
func splitTreeSamples(ts *TreeSamples, begin, pos, end, prop int, val uint32) {
	beginPos := begin
	endPos := pos
	for {
		for beginPos < pos && ts.Property(prop, beginPos) <= val {
			beginPos++
		}
		for endPos < end && ts.Property(prop, endPos) > val {
			endPos++
		}
		if beginPos < pos && endPos < end {
			ts.Swap(beginPos, endPos)
		}
		beginPos++
		endPos++
		if beginPos >= pos || endPos >= end {
			break
		}
	}
}

// findBestSplit runs the recursive-partitioning driver: a LIFO stack of
// pending nodes, each either turned into a split (appending two leaves) or
// left as a leaf when no candidate saves at least threshold bits.
func findBestSplit(ts *TreeSamples, threshold float32,
	mulInfo []ModularMultiplierInfo, initialStaticPropRange StaticPropRange,
	fastDecodeMultiplier float32, tree *Tree) {

	nodes := []nodeInfo{{
		pos:             0,
		begin:           0,
		end:             ts.NumDistinctSamples(),
		staticPropRange: initialStaticPropRange,
	}}

	numPredictors := ts.NumPredictors()
	numProperties := ts.NumProperties()

	// Per-node scratch, grown lazily and reused across nodes. The increment
	// buffers rely on being fully consumed (and therefore zeroed) by each
	// property pass.
	var propValueUsedCount []int
	var countIncrease []int32
	var extraBitsIncrease []uint64
	var costsL, costsR []costInfo
	var countsAbove, countsBelow []int32

	for len(nodes) > 0 {
		node := nodes[len(nodes)-1]
		nodes = nodes[:len(nodes)-1]
		pos := node.pos
		begin := node.begin
		end := node.end
		usedProperties := node.usedProperties
		staticPropRange := node.staticPropRange
		if begin == end {
			continue
		}

		bestSplitStaticConstant := newSplitInfo()
		bestSplitStatic := newSplitInfo()
		bestSplitNonstatic := newSplitInfo()
		bestSplitNowp := newSplitInfo()

		// Compute the maximum token in the range.
		maxSymbols := 0
		for pred := 0; pred < numPredictors; pred++ {
			for i := begin; i < end; i++ {
				if tok := int(ts.Token(pred, i)) + 1; tok > maxSymbols {
					maxSymbols = tok
				}
			}
		}
		maxSymbols = padded(maxSymbols)
		counts := make([]int32, maxSymbols*numPredictors)
		totExtraBits := make([]uint64, numPredictors)
		for pred := 0; pred < numPredictors; pred++ {
			var extraBits uint64
			for i := begin; i < end; i++ {
				rt := ts.RToken(pred, i)
				count := ts.Count(i)
				counts[pred*maxSymbols+int(rt.Tok)] += int32(count)
				extraBits += uint64(rt.Nbits) * uint64(count)
			}
			totExtraBits[pred] = extraBits
		}

		var baseBits float32
		{
			pred := ts.PredictorIndex((*tree)[pos].Predictor)
			baseBits = EstimateBits(counts[pred*maxSymbols:(pred+1)*maxSymbols]) +
				float32(totExtraBits[pred])
		}

		best := &bestSplitNonstatic

		forcedSplit := newSplitInfo()
		// The multiplier ranges cut halfway through the current ranges of
		// static properties. We do this even if the current node is not a
		// leaf, to minimize the number of nodes in the resulting tree.
		for _, mmi := range mulInfo {
			t, axis, val := boxIntersects(staticPropRange, mmi.Range)
			if t == intersectionNone {
				continue
			}
			if t == intersectionInside {
				(*tree)[pos].Multiplier = mmi.Multiplier
				break
			}
			// Partial overlap: force a split at the multiplier boundary,
			// keeping the current predictor on both sides.
			forcedSplit.val = ts.QuantizeStaticProperty(int(axis), int32(val))
			forcedSplit.prop = int(axis)
			forcedSplit.lcost = baseBits/2 - threshold
			forcedSplit.rcost = forcedSplit.lcost
			forcedSplit.lpred = (*tree)[pos].Predictor
			forcedSplit.rpred = forcedSplit.lpred
			best = &forcedSplit
			best.pos = begin
			for x := begin; x < end; x++ {
				if ts.Property(best.prop, x) <= best.val {
					best.pos++
				}
			}
			break
		}

		if best != &forcedSplit {
			// The lower the threshold, the higher the expected noisiness of
			// the estimate. Thus, discourage changing predictors.
			changePredPenalty := float32(800.0) / (100.0 + threshold)

			// For each property, compute which of its values are used and
			// which tokens correspond to those usages. Then walk the values
			// in order, keeping the histograms of both sides of the split
			// (of the form `prop > v`) up to date, and find the split that
			// minimizes the cost.
			for prop := 0; prop < numProperties && baseBits > threshold; prop++ {
				propSize := ts.NumPropertyValues(prop)
				if len(extraBitsIncrease) < propSize {
					extraBitsIncrease = make([]uint64, propSize)
				}
				if len(countIncrease) < propSize*maxSymbols {
					countIncrease = make([]int32, propSize*maxSymbols)
				}
				if len(propValueUsedCount) < propSize {
					propValueUsedCount = make([]int, propSize)
				} else {
					for i := 0; i < propSize; i++ {
						propValueUsedCount[i] = 0
					}
				}

				firstUsed := propSize
				lastUsed := 0
				for i := begin; i < end; i++ {
					p := int(ts.Property(prop, i))
					propValueUsedCount[p]++
					if p > lastUsed {
						lastUsed = p
					}
					if p < firstUsed {
						firstUsed = p
					}
				}
				costsL = resetCosts(costsL, lastUsed-firstUsed)
				costsR = resetCosts(costsR, lastUsed-firstUsed)
				countsAbove = resize(countsAbove, maxSymbols)
				countsBelow = resize(countsBelow, maxSymbols)

				// For all predictors, compute the right and left costs of
				// each split.
				for pred := 0; pred < numPredictors; pred++ {
					// Compute cost and histogram increments for each
					// property value.
					for i := begin; i < end; i++ {
						p := int(ts.Property(prop, i))
						cnt := ts.Count(i)
						rt := ts.RToken(pred, i)
						countIncrease[p*maxSymbols+int(rt.Tok)] += int32(cnt)
						extraBitsIncrease[p] += uint64(rt.Nbits) * uint64(cnt)
					}
					copy(countsAbove, counts[pred*maxSymbols:(pred+1)*maxSymbols])
					for i := range countsBelow {
						countsBelow[i] = 0
					}
					var extraBitsBelow uint64
					// Exclude the last used value: this ensures neither
					// countsAbove nor countsBelow is ever empty.
					for i := firstUsed; i < lastUsed; i++ {
						if propValueUsedCount[i] == 0 {
							continue
						}
						extraBitsBelow += extraBitsIncrease[i]
						// The increase for this property value has been
						// consumed and will not be needed again: clear it.
						// Also below.
						extraBitsIncrease[i] = 0
						for sym := 0; sym < maxSymbols; sym++ {
							countsAbove[sym] -= countIncrease[i*maxSymbols+sym]
							countsBelow[sym] += countIncrease[i*maxSymbols+sym]
							countIncrease[i*maxSymbols+sym] = 0
						}
						rcost := EstimateBits(countsAbove) +
							float32(totExtraBits[pred]-extraBitsBelow)
						lcost := EstimateBits(countsBelow) + float32(extraBitsBelow)
						var penalty float32
						// Never discourage moving away from the Weighted
						// predictor.
						if ts.PredictorFromIndex(pred) != (*tree)[pos].Predictor &&
							(*tree)[pos].Predictor != PredictorWeighted {
							penalty = changePredPenalty
						}
						// If everything else is equal, disfavour Weighted
						// (slower) and favour Zero (faster if it's the only
						// predictor used in a group+channel combination).
						if ts.PredictorFromIndex(pred) == PredictorWeighted {
							penalty += 1e-8
						}
						if ts.PredictorFromIndex(pred) == PredictorZero {
							penalty -= 1e-8
						}
						if rcost+penalty < costsR[i-firstUsed].total() {
							costsR[i-firstUsed].cost = rcost
							costsR[i-firstUsed].extraCost = penalty
							costsR[i-firstUsed].pred = ts.PredictorFromIndex(pred)
						}
						if lcost+penalty < costsL[i-firstUsed].total() {
							costsL[i-firstUsed].cost = lcost
							costsL[i-firstUsed].extraCost = penalty
							costsL[i-firstUsed].pred = ts.PredictorFromIndex(pred)
						}
					}
				}

				// Walk the possible splits and find the one with the lowest
				// sum of costs of the two sides.
				split := begin
				for i := firstUsed; i < lastUsed; i++ {
					if propValueUsedCount[i] == 0 {
						continue
					}
					split += propValueUsedCount[i]
					rcost := costsR[i-firstUsed].cost
					lcost := costsL[i-firstUsed].cost
					// WP was not used yet + we would use the WP property or
					// predictor.
					addsWP := (ts.PropertyFromIndex(prop) == WPProp &&
						usedProperties&(1<<prop) == 0) ||
						((costsL[i-firstUsed].pred == PredictorWeighted ||
							costsR[i-firstUsed].pred == PredictorWeighted) &&
							(*tree)[pos].Predictor != PredictorWeighted)
					zeroEntropySide := rcost == 0 || lcost == 0

					var bestRef *splitInfo
					if ts.PropertyFromIndex(prop) < NumStaticProperties {
						if zeroEntropySide {
							bestRef = &bestSplitStaticConstant
						} else {
							bestRef = &bestSplitStatic
						}
					} else {
						if addsWP {
							bestRef = &bestSplitNonstatic
						} else {
							bestRef = &bestSplitNowp
						}
					}
					if lcost+rcost < bestRef.cost() {
						bestRef.prop = prop
						bestRef.val = uint32(i)
						bestRef.pos = split
						bestRef.lcost = lcost
						bestRef.lpred = costsL[i-firstUsed].pred
						bestRef.rcost = rcost
						bestRef.rpred = costsR[i-firstUsed].pred
					}
				}
				// Clear the increment slot for the last used value, which
				// the walk above never consumed.
				extraBitsIncrease[lastUsed] = 0
				for sym := 0; sym < maxSymbols; sym++ {
					countIncrease[lastUsed*maxSymbols+sym] = 0
				}
			}

			// Try to avoid introducing WP.
			if bestSplitNowp.cost()+threshold < baseBits &&
				bestSplitNowp.cost() <= fastDecodeMultiplier*best.cost() {
				best = &bestSplitNowp
			}
			// Split along static props if possible and not significantly
			// more expensive.
			if bestSplitStatic.cost()+threshold < baseBits &&
				bestSplitStatic.cost() <= fastDecodeMultiplier*best.cost() {
				best = &bestSplitStatic
			}
			// Split along static props to create constant nodes if possible.
			if bestSplitStaticConstant.cost()+threshold < baseBits {
				best = &bestSplitStaticConstant
			}
		}

		if best.cost()+threshold < baseBits {
			p := ts.PropertyFromIndex(best.prop)
			dequant := ts.UnquantizeProperty(best.prop, best.val)
			// Split the node and try to split its children.
			makeSplitNode(tree, pos, int32(p), dequant, best.lpred, 0, best.rpred, 0)
			// "Sort" the range according to the winning property.
			splitTreeSamples(ts, begin, best.pos, end, best.prop, best.val)
			if p >= NumStaticProperties {
				usedProperties |= 1 << best.prop
			}
			newRange := staticPropRange
			if p < NumStaticProperties {
				newRange[p][1] = uint32(dequant + 1)
			}
			nodes = append(nodes, nodeInfo{
				pos:             int((*tree)[pos].Rchild),
				begin:           begin,
				end:             best.pos,
				usedProperties:  usedProperties,
				staticPropRange: newRange,
			})
			newRange = staticPropRange
			if p < NumStaticProperties {
				newRange[p][0] = uint32(dequant + 1)
			}
			nodes = append(nodes, nodeInfo{
				pos:             int((*tree)[pos].Lchild),
				begin:           best.pos,
				end:             end,
				usedProperties:  usedProperties,
				staticPropRange: newRange,
			})
		}
	}
}

func resetCosts(s []costInfo, n int) []costInfo {
	if cap(s) < n {
		s = make([]costInfo, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = costInfo{cost: math.MaxFloat32}
	}
	return s
}

func resize(s []int32, n int) []int32 {
	if cap(s) < n {
		return make([]int32, n)
	}
	return s[:n]
}

// ComputeBestTree greedily learns a decision tree over the collected
// samples. threshold is the minimum bit saving a split must produce;
// fastDecodeMultiplier is the slack factor under which decode-friendly
// splits are preferred over cheaper ones.
func ComputeBestTree(ts *TreeSamples, threshold float32,
	mulInfo []ModularMultiplierInfo, staticPropRange StaticPropRange,
	fastDecodeMultiplier float32) (Tree, error) {

	if ts.NumProperties() >= 64 {
		return nil, NewModularError(ErrCodeTooManyProperties,
			"used_properties bitset supports at most 63 properties")
	}
	if uint64(ts.NumDistinctSamples()) > math.MaxUint32 {
		return nil, NewModularError(ErrCodeSampleOverflow,
			"too many distinct samples")
	}
	tree := Tree{{
		Property:   -1,
		Predictor:  ts.PredictorFromIndex(0),
		Multiplier: 1,
	}}
	findBestSplit(ts, threshold, mulInfo, staticPropRange,
		fastDecodeMultiplier, &tree)
	return tree, nil
}
