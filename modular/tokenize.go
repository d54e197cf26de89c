package modular

import (
	"fmt"
	"math/bits"
)

// Token is one entropy-coder symbol tagged with the context it is coded in.
type Token struct {
	Context uint32
	Value   uint64
}

// TokenizeTree emits the tree breadth-first into a multi-context token
// stream, and builds in parallel the flattened tree the decoder will
// traverse. Leaves encode property 0 (so internal properties shift by one),
// then predictor, packed offset, and the multiplier split into a power of
// two and remaining bits.
func TokenizeTree(tree Tree) ([]Token, Tree, error) {
	if len(tree) > MaxTreeSize {
		return nil, nil, ErrTreeTooLarge
	}
	q := []uint32{0}
	head := 0
	leafID := uint32(0)
	tokens := make([]Token, 0, len(tree)*2)
	decoderTree := make(Tree, 0, len(tree))
	for head < len(q) {
		cur := q[head]
		head++
		node := tree[cur]
		if node.Property < -1 {
			return nil, nil, NewModularError(ErrCodeBadTokenStream,
				fmt.Sprintf("invalid node property %d", node.Property))
		}
		tokens = append(tokens, Token{PropertyContext, uint64(node.Property + 1)})
		if node.Property == -1 {
			if node.Predictor >= PredictorBest {
				return nil, nil, NewModularError(ErrCodeInvalidLeafPredictor,
					fmt.Sprintf("leaf has non-decodable predictor %s", node.Predictor))
			}
			mulLog := uint32(bits.TrailingZeros32(node.Multiplier))
			mulBits := uint64(node.Multiplier>>mulLog) - 1
			tokens = append(tokens,
				Token{PredictorContext, uint64(node.Predictor)},
				Token{OffsetContext, PackSigned(node.PredictorOffset)},
				Token{MultiplierLogContext, uint64(mulLog)},
				Token{MultiplierBitsContext, mulBits},
			)
			decoderTree = append(decoderTree, PropertyDecisionNode{
				Property:        -1,
				Lchild:          leafID,
				Predictor:       node.Predictor,
				PredictorOffset: node.PredictorOffset,
				Multiplier:      node.Multiplier,
			})
			leafID++
			continue
		}
		pending := len(q) - head
		decoderTree = append(decoderTree, PropertyDecisionNode{
			Property:   node.Property,
			Splitval:   node.Splitval,
			Lchild:     uint32(len(decoderTree) + pending + 1),
			Rchild:     uint32(len(decoderTree) + pending + 2),
			Predictor:  PredictorZero,
			Multiplier: 1,
		})
		q = append(q, node.Lchild, node.Rchild)
		tokens = append(tokens, Token{SplitValContext, PackSigned(int64(node.Splitval))})
	}
	return tokens, decoderTree, nil
}

// DecodeTree parses a token stream produced by TokenizeTree back into the
// flattened decoder tree. It is the inverse of the serializer: the result is
// node-for-node identical to the decoder tree TokenizeTree returns.
func DecodeTree(tokens []Token) (Tree, error) {
	next := func(i int, ctx uint32) (uint64, error) {
		if i >= len(tokens) {
			return 0, NewModularError(ErrCodeBadTokenStream, "truncated token stream")
		}
		if tokens[i].Context != ctx {
			return 0, NewModularError(ErrCodeBadTokenStream,
				fmt.Sprintf("token %d has context %d, want %d", i, tokens[i].Context, ctx))
		}
		return tokens[i].Value, nil
	}

	var tree Tree
	i := 0
	leafID := uint32(0)
	toRead := 1
	for toRead > 0 {
		if len(tree) >= MaxTreeSize {
			return nil, ErrTreeTooLarge
		}
		toRead--
		prop1, err := next(i, PropertyContext)
		if err != nil {
			return nil, err
		}
		i++
		if prop1 == 0 {
			pred, err := next(i, PredictorContext)
			if err != nil {
				return nil, err
			}
			i++
			if pred >= NumModularPredictors {
				return nil, NewModularError(ErrCodeInvalidLeafPredictor,
					fmt.Sprintf("decoded predictor %d out of range", pred))
			}
			offPacked, err := next(i, OffsetContext)
			if err != nil {
				return nil, err
			}
			i++
			mulLog, err := next(i, MultiplierLogContext)
			if err != nil {
				return nil, err
			}
			i++
			if mulLog >= 31 {
				return nil, NewModularError(ErrCodeBadTokenStream, "multiplier log too large")
			}
			mulBits, err := next(i, MultiplierBitsContext)
			if err != nil {
				return nil, err
			}
			i++
			if mulBits+1 >= uint64(1)<<(31-mulLog) {
				return nil, NewModularError(ErrCodeBadTokenStream, "multiplier too large")
			}
			tree = append(tree, PropertyDecisionNode{
				Property:        -1,
				Lchild:          leafID,
				Predictor:       Predictor(pred),
				PredictorOffset: UnpackSigned(offPacked),
				Multiplier:      uint32(mulBits+1) << mulLog,
			})
			leafID++
			continue
		}
		splitPacked, err := next(i, SplitValContext)
		if err != nil {
			return nil, err
		}
		i++
		lchild := uint32(len(tree) + toRead + 1)
		tree = append(tree, PropertyDecisionNode{
			Property:   int32(prop1) - 1,
			Splitval:   int32(UnpackSigned(splitPacked)),
			Lchild:     lchild,
			Rchild:     lchild + 1,
			Predictor:  PredictorZero,
			Multiplier: 1,
		})
		toRead += 2
	}
	if i != len(tokens) {
		return nil, NewModularError(ErrCodeBadTokenStream, "trailing tokens after tree")
	}
	return tree, nil
}
