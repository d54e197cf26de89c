package modular

import "fmt"

// Predictor identifies one of the pixel predictors of the modular encoder.
// The prediction formulae themselves live with the pixel traversal code; the
// tree learner only needs the identifiers and the pre-computed predictions.
type Predictor uint8

const (
	PredictorZero Predictor = iota
	PredictorLeft
	PredictorTop
	PredictorAverage0
	PredictorSelect
	PredictorGradient
	PredictorWeighted
	PredictorTopRight
	PredictorTopLeft
	PredictorLeftLeft
	PredictorAverage1
	PredictorAverage2
	PredictorAverage3
	PredictorAverage4
	// Synthetic predictors, only valid at configuration time.
	PredictorBest     // Weighted or Gradient, whichever is better
	PredictorVariable // all predictors
)

// NumModularPredictors is the number of real (decodable) predictors.
const NumModularPredictors = 14

func (p Predictor) String() string {
	switch p {
	case PredictorZero:
		return "Zero"
	case PredictorLeft:
		return "Left"
	case PredictorTop:
		return "Top"
	case PredictorAverage0:
		return "Average0"
	case PredictorSelect:
		return "Select"
	case PredictorGradient:
		return "Gradient"
	case PredictorWeighted:
		return "Weighted"
	case PredictorTopRight:
		return "TopRight"
	case PredictorTopLeft:
		return "TopLeft"
	case PredictorLeftLeft:
		return "LeftLeft"
	case PredictorAverage1:
		return "Average1"
	case PredictorAverage2:
		return "Average2"
	case PredictorAverage3:
		return "Average3"
	case PredictorAverage4:
		return "Average4"
	case PredictorBest:
		return "Best"
	case PredictorVariable:
		return "Variable"
	default:
		return fmt.Sprintf("Predictor(%d)", int(p))
	}
}

// TreeMode restricts which predictors and properties the learner may use
type TreeMode int

const (
	TreeModeDefault TreeMode = iota
	TreeModeNoWP
	TreeModeWPOnly
	TreeModeGradientOnly
)

// ModularOptions carries the encoder knobs that affect sample collection and
// tree learning.
type ModularOptions struct {
	// NbRepeats is the training fraction. CollectPixelSamples samples about a
	// tenth of it for property quantization; zero disables sample collection
	// entirely. Which pixels are added for training is up to the caller.
	NbRepeats float32

	// MaxChanSize stops sample collection at the first non-meta channel wider
	// or taller than this; that channel and all later ones are skipped.
	MaxChanSize int

	// MaxPropertyValues bounds the number of buckets per quantized property.
	MaxPropertyValues int

	TreeMode TreeMode
}
