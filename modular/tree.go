package modular

// PropertyDecisionNode is one node of an MA tree. Internal nodes split on
// *strictly greater*: samples with property value > Splitval descend into
// Lchild, the rest into Rchild. Leaves have Property == -1 and carry the
// predictor, its offset and the residual multiplier.
type PropertyDecisionNode struct {
	Property int32
	Splitval int32
	Lchild   uint32
	Rchild   uint32

	Predictor       Predictor
	PredictorOffset int64
	Multiplier      uint32
}

// Tree is a contiguous array of nodes; index 0 is the root. Children always
// have indices strictly greater than their parent.
type Tree []PropertyDecisionNode

// makeSplitNode converts the leaf at pos into an internal node and appends
// the two child leaves. The child taken on "property > splitval" gets rpred;
// the other gets lpred.
func makeSplitNode(tree *Tree, pos int, property, splitval int32,
	lpred Predictor, loff int64, rpred Predictor, roff int64) {
	t := *tree
	t[pos].Lchild = uint32(len(t))
	t[pos].Rchild = uint32(len(t) + 1)
	t[pos].Splitval = splitval
	t[pos].Property = property
	*tree = append(t,
		PropertyDecisionNode{Property: -1, Predictor: rpred, PredictorOffset: roff, Multiplier: 1},
		PropertyDecisionNode{Property: -1, Predictor: lpred, PredictorOffset: loff, Multiplier: 1},
	)
}

// StaticPropRange is, per static property, the half-open interval [lo, hi)
// of values a subtree still covers.
type StaticPropRange [NumStaticProperties][2]uint32

// ModularMultiplierInfo forces the tree to partition the static-property
// space so that each leaf lies inside exactly one multiplier box.
type ModularMultiplierInfo struct {
	Range      StaticPropRange
	Multiplier uint32
}

type intersectionType int

const (
	intersectionNone intersectionType = iota
	intersectionPartial
	intersectionInside
)

// boxIntersects classifies how haystack covers needle. For partial overlaps
// it also reports an axis and a boundary value strictly inside the needle,
// suitable for a forced split.
func boxIntersects(needle, haystack StaticPropRange) (intersectionType, uint32, uint32) {
	partial := false
	var partialAxis, partialVal uint32
	for i := 0; i < NumStaticProperties; i++ {
		if haystack[i][0] >= needle[i][1] {
			return intersectionNone, 0, 0
		}
		if haystack[i][1] <= needle[i][0] {
			return intersectionNone, 0, 0
		}
		if haystack[i][0] <= needle[i][0] && haystack[i][1] >= needle[i][1] {
			continue
		}
		partial = true
		partialAxis = uint32(i)
		if haystack[i][0] > needle[i][0] && haystack[i][0] < needle[i][1] {
			partialVal = haystack[i][0] - 1
		} else {
			partialVal = haystack[i][1] - 1
		}
	}
	if partial {
		return intersectionPartial, partialAxis, partialVal
	}
	return intersectionInside, 0, 0
}
