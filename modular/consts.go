// Package modular implements the meta-adaptive decision tree learner used
// by the modular image encoder to pick, per pixel, a predictor and an
// entropy-coding context.
package modular

// NumStaticProperties is the number of properties whose value is constant
// over a spatial region (channel id and group id).
const NumStaticProperties = 2

// NumNonrefProperties is the number of properties that do not refer to
// previously decoded channels.
const NumNonrefProperties = 16

// WPProp is the property id carrying the weighted-predictor error.
// Introducing it in a tree forces the decoder to run the weighted predictor.
const WPProp = NumNonrefProperties - 1

// GradientProp is the property id of the gradient-predictor error
const GradientProp = 9

// PropertyRange bounds quantized property values: raw values are clamped to
// [-PropertyRange, PropertyRange] before bucket lookup.
const PropertyRange = 511

// ANSTabSize is the size of the ANS distribution table; 1/ANSTabSize is the
// smallest probability the entropy coder can represent.
const ANSTabSize = 1 << 12

// MaxTreeSize is the maximum number of nodes in a serialized tree.
const MaxTreeSize = 1 << 26

// Contexts used when tokenizing a tree.
const (
	SplitValContext       = 0
	PropertyContext       = 1
	PredictorContext      = 2
	OffsetContext         = 3
	MultiplierLogContext  = 4
	MultiplierBitsContext = 5

	NumTreeContexts = 6
)

// Hardcoded thresholds for the weighted-predictor error property. The error
// distribution is heavy-tailed around zero, so dyadic buckets work better
// than data-driven quantiles. One of the three tables is chosen depending on
// how many property values the caller allows.
var (
	wpThresholds16 = []int32{-127, -63, -31, -15, -7, -3, -1, 0,
		1, 3, 7, 15, 31, 63, 127}

	wpThresholds32 = []int32{-255, -191, -127, -95, -63, -47, -31, -23,
		-15, -11, -7, -5, -3, -1, 0, 1,
		3, 5, 7, 11, 15, 23, 31, 47,
		63, 95, 127, 191, 255}

	wpThresholds64 = []int32{
		-255, -223, -191, -159, -127, -111, -95, -79, -63, -55, -47,
		-39, -31, -27, -23, -19, -15, -13, -11, -9, -7, -6,
		-5, -4, -3, -2, -1, 0, 1, 2, 3, 4, 5,
		6, 7, 9, 11, 13, 15, 19, 23, 27, 31, 39,
		47, 55, 63, 79, 95, 111, 127, 159, 191, 223, 255}
)
