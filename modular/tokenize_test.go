package modular

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleTree builds a three-level tree by hand:
//
//	root: prop 2 > 7
//	  lchild: prop 9 > -3
//	    leaves: Gradient (offset 5, mul 2), Zero
//	  rchild leaf: Left (offset -3, mul 8)
func sampleTree() Tree {
	tree := Tree{{Property: -1, Predictor: PredictorZero, Multiplier: 1}}
	makeSplitNode(&tree, 0, 2, 7, PredictorLeft, -3, PredictorGradient, 0)
	// Index 1 is the ">" child of the root.
	makeSplitNode(&tree, 1, 9, -3, PredictorZero, 0, PredictorGradient, 5)
	tree[3].Multiplier = 2
	tree[2].Multiplier = 8
	return tree
}

func TestTokenizeTreeContexts(t *testing.T) {
	tokens, decoder, err := TokenizeTree(sampleTree())
	require.NoError(t, err)
	require.Len(t, decoder, 5)

	// Root is internal: property token then splitval token.
	require.Equal(t, Token{PropertyContext, 3}, tokens[0])
	require.Equal(t, Token{SplitValContext, PackSigned(7)}, tokens[1])

	// Every leaf contributes exactly five tokens, internals two.
	counts := map[uint32]int{}
	for _, tok := range tokens {
		counts[tok.Context]++
	}
	require.Equal(t, 5, counts[PropertyContext])
	require.Equal(t, 2, counts[SplitValContext])
	require.Equal(t, 3, counts[PredictorContext])
	require.Equal(t, 3, counts[OffsetContext])
	require.Equal(t, 3, counts[MultiplierLogContext])
	require.Equal(t, 3, counts[MultiplierBitsContext])
}

func TestTokenizeTreeBreadthFirst(t *testing.T) {
	_, decoder, err := TokenizeTree(sampleTree())
	require.NoError(t, err)

	// BFS order: root, its two children, then the grandchildren.
	require.Equal(t, int32(2), decoder[0].Property)
	require.Equal(t, uint32(1), decoder[0].Lchild)
	require.Equal(t, uint32(2), decoder[0].Rchild)
	require.Equal(t, int32(9), decoder[1].Property)
	require.Equal(t, uint32(3), decoder[1].Lchild)
	require.Equal(t, uint32(4), decoder[1].Rchild)
	require.Equal(t, int32(-1), decoder[2].Property)
	require.Equal(t, PredictorLeft, decoder[2].Predictor)
	require.Equal(t, int64(-3), decoder[2].PredictorOffset)
	require.Equal(t, uint32(8), decoder[2].Multiplier)
}

func TestTokenizeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		tree Tree
	}{
		{"single leaf", Tree{{Property: -1, Predictor: PredictorGradient, Multiplier: 1}}},
		{"three levels", sampleTree()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tokens, decoder, err := TokenizeTree(tc.tree)
			require.NoError(t, err)
			decoded, err := DecodeTree(tokens)
			require.NoError(t, err)
			require.Equal(t, decoder, decoded)
		})
	}
}

func TestTokenizeRoundTripLearnedTree(t *testing.T) {
	ts := richSamples(t)
	tree, err := ComputeBestTree(ts, 4, nil, StaticPropRange{{0, 2}, {0, 1}}, 2)
	require.NoError(t, err)
	tokens, decoder, err := TokenizeTree(tree)
	require.NoError(t, err)
	decoded, err := DecodeTree(tokens)
	require.NoError(t, err)
	require.Equal(t, decoder, decoded)
}

func TestTokenizeRejectsSyntheticPredictor(t *testing.T) {
	tree := Tree{{Property: -1, Predictor: PredictorBest, Multiplier: 1}}
	_, _, err := TokenizeTree(tree)
	merr, ok := IsModularError(err)
	require.True(t, ok)
	require.Equal(t, ErrCodeInvalidLeafPredictor, merr.Code)
}

func TestDecodeTreeRejectsGarbage(t *testing.T) {
	tokens, _, err := TokenizeTree(sampleTree())
	require.NoError(t, err)

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeTree(tokens[:len(tokens)-1])
		require.Error(t, err)
	})
	t.Run("trailing", func(t *testing.T) {
		_, err := DecodeTree(append(append([]Token(nil), tokens...), Token{PropertyContext, 0}))
		require.Error(t, err)
	})
	t.Run("wrong context", func(t *testing.T) {
		bad := append([]Token(nil), tokens...)
		bad[1].Context = OffsetContext
		_, err := DecodeTree(bad)
		require.Error(t, err)
	})
	t.Run("synthetic predictor", func(t *testing.T) {
		bad := append([]Token(nil), tokens...)
		for i := range bad {
			if bad[i].Context == PredictorContext {
				bad[i].Value = uint64(PredictorVariable)
				break
			}
		}
		_, err := DecodeTree(bad)
		merr, ok := IsModularError(err)
		require.True(t, ok)
		require.Equal(t, ErrCodeInvalidLeafPredictor, merr.Code)
	})
}

func TestMultiplierSplitsIntoLogAndBits(t *testing.T) {
	tests := []struct {
		multiplier uint32
		wantLog    uint64
		wantBits   uint64
	}{
		{1, 0, 0},
		{2, 1, 0},
		{8, 3, 0},
		{3, 0, 2},
		{12, 2, 2},
	}
	for _, tt := range tests {
		tree := Tree{{Property: -1, Predictor: PredictorZero, Multiplier: tt.multiplier}}
		tokens, _, err := TokenizeTree(tree)
		require.NoError(t, err)
		var gotLog, gotBits uint64
		for _, tok := range tokens {
			switch tok.Context {
			case MultiplierLogContext:
				gotLog = tok.Value
			case MultiplierBitsContext:
				gotBits = tok.Value
			}
		}
		require.Equal(t, tt.wantLog, gotLog, "multiplier %d", tt.multiplier)
		require.Equal(t, tt.wantBits, gotBits, "multiplier %d", tt.multiplier)
	}
}
