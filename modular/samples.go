package modular

import (
	"math"
	"math/bits"
)

// ResidualToken is the hybrid-uint encoding of one residual: an
// entropy-coded token plus a count of raw bits that bypass the entropy
// coder.
type ResidualToken struct {
	Tok   uint8
	Nbits uint8
}

// dedupEntryUnused marks an empty slot in the dedup hash table.
const dedupEntryUnused = math.MaxUint32

// TreeSamples is a column-oriented, deduplicated, count-weighted table of
// training samples. Each retained predictor contributes one residual column;
// each configured property contributes one bucket column. Rows that compare
// equal across all columns are merged by incrementing a saturating count.
//
// The table grows during ingestion, is partitioned in place (via Swap)
// during tree building, and is discarded afterwards.
type TreeSamples struct {
	// The predictors for which residuals are kept, and one column of
	// residual tokens per predictor.
	predictors []Predictor
	residuals  [][]ResidualToken

	// Static properties (channel, group) come first in propsToUse and are
	// stored separately: their raw values matter for multiplier forcing.
	numStaticProps int
	staticProps    [NumStaticProperties][]uint8

	propsToUse []uint32
	props      [][]uint8

	// Quantization tables: per property the sorted split thresholds, plus a
	// dense raw-value-to-bucket lookup.
	compactProperties     [][]int32
	propertyMapping       [][]uint8
	staticPropertyMapping [NumStaticProperties][]uint8

	sampleCounts []uint16
	numSamples   int

	dedupTable []uint32
}

// NumDistinctSamples returns the number of rows after deduplication.
func (ts *TreeSamples) NumDistinctSamples() int { return len(ts.sampleCounts) }

// NumSamples returns the total number of ingested samples, merged or not.
func (ts *TreeSamples) NumSamples() int { return ts.numSamples }

// NumProperties returns the number of configured properties.
func (ts *TreeSamples) NumProperties() int { return len(ts.propsToUse) }

// NumPredictors returns the number of retained predictors.
func (ts *TreeSamples) NumPredictors() int { return len(ts.predictors) }

// Token returns the residual token of row i under predictor column pred.
func (ts *TreeSamples) Token(pred, i int) uint32 {
	return uint32(ts.residuals[pred][i].Tok)
}

// RToken returns the full residual token of row i under predictor column
// pred.
func (ts *TreeSamples) RToken(pred, i int) ResidualToken {
	return ts.residuals[pred][i]
}

// Count returns the multiplicity of row i.
func (ts *TreeSamples) Count(i int) int { return int(ts.sampleCounts[i]) }

// Property returns the bucket of row i for property column prop.
func (ts *TreeSamples) Property(prop, i int) uint32 {
	if prop < ts.numStaticProps {
		return uint32(ts.staticProps[prop][i])
	}
	return uint32(ts.props[prop-ts.numStaticProps][i])
}

// PredictorFromIndex maps a predictor column back to its Predictor.
func (ts *TreeSamples) PredictorFromIndex(pred int) Predictor {
	return ts.predictors[pred]
}

// PropertyFromIndex maps a property column back to its property id.
func (ts *TreeSamples) PropertyFromIndex(prop int) uint32 {
	return ts.propsToUse[prop]
}

// PredictorIndex maps a Predictor to its column.
func (ts *TreeSamples) PredictorIndex(pred Predictor) int {
	for i, p := range ts.predictors {
		if p == pred {
			return i
		}
	}
	return 0
}

// NumPropertyValues returns the number of buckets of property column prop.
func (ts *TreeSamples) NumPropertyValues(prop int) int {
	return len(ts.compactProperties[prop]) + 1
}

// UnquantizeProperty returns the split threshold, in raw property space,
// equivalent to "bucket > val".
func (ts *TreeSamples) UnquantizeProperty(prop int, val uint32) int32 {
	return ts.compactProperties[prop][val]
}

// QuantizeProperty maps a raw value of property column prop to its bucket.
func (ts *TreeSamples) QuantizeProperty(prop int, v int32) uint32 {
	v = clamp1(v, -PropertyRange, PropertyRange)
	return uint32(ts.propertyMapping[prop-ts.numStaticProps][v+PropertyRange])
}

// QuantizeStaticProperty maps a raw value of static property prop to its
// bucket.
func (ts *TreeSamples) QuantizeStaticProperty(prop int, v int32) uint32 {
	v = clamp1(v, -PropertyRange, PropertyRange)
	return uint32(ts.staticPropertyMapping[prop][v+PropertyRange])
}

// SetPredictor configures which predictors get residual columns.
func (ts *TreeSamples) SetPredictor(predictor Predictor, mode TreeMode) error {
	if mode == TreeModeWPOnly {
		ts.predictors = []Predictor{PredictorWeighted}
		ts.residuals = make([][]ResidualToken, 1)
		return nil
	}
	if mode == TreeModeNoWP && predictor == PredictorWeighted {
		return ErrInvalidPredictorConfig
	}
	switch predictor {
	case PredictorVariable:
		ts.predictors = make([]Predictor, NumModularPredictors)
		for i := range ts.predictors {
			ts.predictors[i] = Predictor(i)
		}
		// Try the usually-best predictors first.
		ts.predictors[0], ts.predictors[PredictorWeighted] =
			ts.predictors[PredictorWeighted], ts.predictors[0]
		ts.predictors[1], ts.predictors[PredictorGradient] =
			ts.predictors[PredictorGradient], ts.predictors[1]
	case PredictorBest:
		ts.predictors = []Predictor{PredictorWeighted, PredictorGradient}
	default:
		ts.predictors = []Predictor{predictor}
	}
	if mode == TreeModeNoWP {
		kept := ts.predictors[:0]
		for _, p := range ts.predictors {
			if p != PredictorWeighted {
				kept = append(kept, p)
			}
		}
		ts.predictors = kept
	}
	ts.residuals = make([][]ResidualToken, len(ts.predictors))
	return nil
}

// SetProperties configures which properties get columns. Static properties
// must appear at the index equal to their id.
func (ts *TreeSamples) SetProperties(properties []uint32, mode TreeMode) error {
	ts.propsToUse = append([]uint32(nil), properties...)
	if mode == TreeModeWPOnly {
		ts.propsToUse = []uint32{WPProp}
	}
	if mode == TreeModeGradientOnly {
		ts.propsToUse = []uint32{GradientProp}
	}
	if mode == TreeModeNoWP {
		kept := ts.propsToUse[:0]
		for _, p := range ts.propsToUse {
			if p != WPProp {
				kept = append(kept, p)
			}
		}
		ts.propsToUse = kept
	}
	if len(ts.propsToUse) == 0 {
		return ErrInvalidPropertySet
	}
	ts.numStaticProps = 0
	// Static properties, when present, must sit at the index equal to
	// their id so that sample rows and forced splits agree on columns.
	for i, prop := range ts.propsToUse {
		if prop < NumStaticProperties {
			if i != int(prop) {
				return NewModularError(ErrCodeInvalidPropertySet,
					"static properties must be listed first, in id order")
			}
			ts.numStaticProps++
		}
	}
	ts.props = make([][]uint8, len(ts.propsToUse)-ts.numStaticProps)
	return nil
}

func (ts *TreeSamples) initTable(logSize int) {
	size := 1 << logSize
	if len(ts.dedupTable) == size {
		return
	}
	ts.dedupTable = make([]uint32, size)
	for i := range ts.dedupTable {
		ts.dedupTable[i] = dedupEntryUnused
	}
	for i := 0; i < ts.NumDistinctSamples(); i++ {
		if ts.sampleCounts[i] != math.MaxUint16 {
			ts.addToTable(i)
		}
	}
}

func (ts *TreeSamples) addToTableAndMerge(a int) bool {
	pos1 := ts.hash1(a)
	pos2 := ts.hash2(a)
	if ts.dedupTable[pos1] != dedupEntryUnused &&
		ts.isSameSample(a, int(ts.dedupTable[pos1])) {
		ts.sampleCounts[ts.dedupTable[pos1]]++
		// Remove from the hash table samples that are saturated.
		if ts.sampleCounts[ts.dedupTable[pos1]] == math.MaxUint16 {
			ts.dedupTable[pos1] = dedupEntryUnused
		}
		return true
	}
	if ts.dedupTable[pos2] != dedupEntryUnused &&
		ts.isSameSample(a, int(ts.dedupTable[pos2])) {
		ts.sampleCounts[ts.dedupTable[pos2]]++
		if ts.sampleCounts[ts.dedupTable[pos2]] == math.MaxUint16 {
			ts.dedupTable[pos2] = dedupEntryUnused
		}
		return true
	}
	ts.addToTable(a)
	return false
}

func (ts *TreeSamples) addToTable(a int) {
	pos1 := ts.hash1(a)
	pos2 := ts.hash2(a)
	if ts.dedupTable[pos1] == dedupEntryUnused {
		ts.dedupTable[pos1] = uint32(a)
	} else if ts.dedupTable[pos2] == dedupEntryUnused {
		ts.dedupTable[pos2] = uint32(a)
	}
}

// PrepareForSamples reserves room for n more samples and sizes the dedup
// table accordingly.
func (ts *TreeSamples) PrepareForSamples(n int) {
	for i, res := range ts.residuals {
		ts.residuals[i] = reserve(res, n)
	}
	for i := 0; i < ts.numStaticProps; i++ {
		ts.staticProps[i] = reserve(ts.staticProps[i], n)
	}
	for i, p := range ts.props {
		ts.props[i] = reserve(p, n)
	}
	ts.sampleCounts = reserve(ts.sampleCounts, n)
	total := n + len(ts.sampleCounts)
	ts.initTable(ceilLog2Nonzero(uint64(total) * 3 / 2))
}

func (ts *TreeSamples) hash1(a int) int {
	const c = 0x1e35a7bd
	h := uint64(c)
	for _, r := range ts.residuals {
		h = h*c + uint64(r[a].Tok)
		h = h*c + uint64(r[a].Nbits)
	}
	for i := 0; i < ts.numStaticProps; i++ {
		h = h*c + uint64(ts.staticProps[i][a])
	}
	for _, p := range ts.props {
		h = h*c + uint64(p[a])
	}
	return int((h >> 16) & uint64(len(ts.dedupTable)-1))
}

func (ts *TreeSamples) hash2(a int) int {
	const c = 0x1e35a7bd1e35a7bd
	h := uint64(c)
	for i := 0; i < ts.numStaticProps; i++ {
		h = h*c ^ uint64(ts.staticProps[i][a])
	}
	for _, p := range ts.props {
		h = h*c ^ uint64(p[a])
	}
	for _, r := range ts.residuals {
		h = h*c ^ uint64(r[a].Tok)
		h = h*c ^ uint64(r[a].Nbits)
	}
	return int((h >> 16) & uint64(len(ts.dedupTable)-1))
}

func (ts *TreeSamples) isSameSample(a, b int) bool {
	same := true
	for _, r := range ts.residuals {
		if r[a] != r[b] {
			same = false
		}
	}
	for i := 0; i < ts.numStaticProps; i++ {
		if ts.staticProps[i][a] != ts.staticProps[i][b] {
			same = false
		}
	}
	for _, p := range ts.props {
		if p[a] != p[b] {
			same = false
		}
	}
	return same
}

// AddSample tokenizes the residual of pixel under every retained predictor,
// quantizes the properties, and appends a row, merging it into an existing
// equal row when possible. predictions is indexed by Predictor; properties
// by property id.
func (ts *TreeSamples) AddSample(pixel int64, properties []int32, predictions []int64) {
	for i, pred := range ts.predictors {
		v := pixel - predictions[pred]
		tok, nbits, _ := treeSamplesUintConfig.Encode(PackSigned(v))
		ts.residuals[i] = append(ts.residuals[i],
			ResidualToken{Tok: uint8(tok), Nbits: uint8(nbits)})
	}
	for i := 0; i < ts.numStaticProps; i++ {
		ts.staticProps[i] = append(ts.staticProps[i],
			uint8(ts.QuantizeStaticProperty(i, properties[i])))
	}
	for i := ts.numStaticProps; i < len(ts.propsToUse); i++ {
		ts.props[i-ts.numStaticProps] = append(ts.props[i-ts.numStaticProps],
			uint8(ts.QuantizeProperty(i, properties[ts.propsToUse[i]])))
	}
	ts.sampleCounts = append(ts.sampleCounts, 1)
	ts.numSamples++
	if ts.addToTableAndMerge(len(ts.sampleCounts) - 1) {
		for i := range ts.residuals {
			ts.residuals[i] = ts.residuals[i][:len(ts.residuals[i])-1]
		}
		for i := 0; i < ts.numStaticProps; i++ {
			ts.staticProps[i] = ts.staticProps[i][:len(ts.staticProps[i])-1]
		}
		for i := range ts.props {
			ts.props[i] = ts.props[i][:len(ts.props[i])-1]
		}
		ts.sampleCounts = ts.sampleCounts[:len(ts.sampleCounts)-1]
	}
}

// Swap exchanges rows a and b in every column, including counts.
func (ts *TreeSamples) Swap(a, b int) {
	if a == b {
		return
	}
	for _, r := range ts.residuals {
		r[a], r[b] = r[b], r[a]
	}
	for i := 0; i < ts.numStaticProps; i++ {
		sp := ts.staticProps[i]
		sp[a], sp[b] = sp[b], sp[a]
	}
	for _, p := range ts.props {
		p[a], p[b] = p[b], p[a]
	}
	ts.sampleCounts[a], ts.sampleCounts[b] = ts.sampleCounts[b], ts.sampleCounts[a]
}

func clamp1(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ceilLog2Nonzero(x uint64) int {
	if x <= 1 {
		return 0
	}
	return bits.Len64(x - 1)
}

func reserve[T any](s []T, extra int) []T {
	if cap(s)-len(s) >= extra {
		return s
	}
	ns := make([]T, len(s), len(s)+extra)
	copy(ns, s)
	return ns
}
