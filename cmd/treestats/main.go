// Command treestats learns an MA tree from a raw grayscale image dump and
// reports what the learner did with it. It exists to answer "what tree would
// the encoder build for this input, and how big is it" without running a
// full encode.
//
// The input is a headerless 8-bit grayscale file (width*height bytes),
// optionally zstd-compressed (.zst). The serialized tree token stream can be
// written out zstd-compressed with -o.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/leijurv/modular_ma_go/modular"
)

var predictorNames = map[string]modular.Predictor{
	"zero":     modular.PredictorZero,
	"left":     modular.PredictorLeft,
	"top":      modular.PredictorTop,
	"average":  modular.PredictorAverage0,
	"select":   modular.PredictorSelect,
	"gradient": modular.PredictorGradient,
}

func main() {
	inPath := flag.String("in", "", "Raw 8-bit grayscale input file (.zst for zstd-compressed)")
	width := flag.Int("width", 0, "Image width in pixels")
	height := flag.Int("height", 0, "Image height in pixels")
	predictorName := flag.String("predictor", "gradient", "Predictor: zero|left|top|average|select|gradient")
	threshold := flag.Float64("threshold", 128, "Minimum bit savings required to accept a split")
	fastDecode := flag.Float64("fastdecode", 1.01, "Slack factor for decode-friendly splits")
	maxProps := flag.Int("maxprops", 32, "Maximum property values per quantized property")
	repeats := flag.Float64("repeats", 0.5, "Training fraction; a tenth of it is sampled for property quantization (every pixel is still used for training)")
	outPath := flag.String("o", "", "Write zstd-compressed tree tokens to this file")
	flag.Parse()

	if *inPath == "" || *width <= 0 || *height <= 0 {
		flag.Usage()
		os.Exit(2)
	}
	predictor, ok := predictorNames[*predictorName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown predictor %q\n", *predictorName)
		os.Exit(2)
	}

	pixels, err := readInput(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading input: %v\n", err)
		os.Exit(1)
	}
	if len(pixels) < *width**height {
		fmt.Fprintf(os.Stderr, "input has %d bytes, need %d\n", len(pixels), *width**height)
		os.Exit(1)
	}

	data := make([]int32, *width**height)
	for i := range data {
		data[i] = int32(pixels[i])
	}
	image := &modular.Image{
		Channel: []modular.Channel{{W: *width, H: *height, Data: data}},
	}
	options := &modular.ModularOptions{
		NbRepeats:         float32(*repeats),
		MaxChanSize:       1 << 20,
		MaxPropertyValues: *maxProps,
	}

	var groupPixelCount, channelPixelCount []uint32
	var pixelSamples, diffSamples []int32
	modular.CollectPixelSamples(image, options, 0,
		&groupPixelCount, &channelPixelCount, &pixelSamples, &diffSamples)

	var ts modular.TreeSamples
	if err := ts.SetPredictor(predictor, modular.TreeModeNoWP); err != nil {
		fmt.Fprintf(os.Stderr, "configuring predictor: %v\n", err)
		os.Exit(1)
	}
	if err := ts.SetProperties([]uint32{0, 1, 2, 3, 4, 5, 6, 7, 8}, modular.TreeModeNoWP); err != nil {
		fmt.Fprintf(os.Stderr, "configuring properties: %v\n", err)
		os.Exit(1)
	}
	staticRange := modular.StaticPropRange{{0, 1}, {0, 1}}
	ts.PreQuantizeProperties(staticRange, nil, groupPixelCount, channelPixelCount,
		pixelSamples, diffSamples, *maxProps)

	ts.PrepareForSamples(*width * *height)
	addSamples(&ts, image, 0)

	tree, err := modular.ComputeBestTree(&ts, float32(*threshold), nil,
		staticRange, float32(*fastDecode))
	if err != nil {
		fmt.Fprintf(os.Stderr, "building tree: %v\n", err)
		os.Exit(1)
	}

	tokens, _, err := modular.TokenizeTree(tree)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serializing tree: %v\n", err)
		os.Exit(1)
	}

	printStats(&ts, tree, tokens)

	if *outPath != "" {
		if err := writeTokens(*outPath, tokens); err != nil {
			fmt.Fprintf(os.Stderr, "writing tokens: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %d tokens to %s\n", len(tokens), *outPath)
	}
}

func readInput(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return raw, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(raw, nil)
}

// addSamples walks the channel in scan order and feeds every pixel to the
// sample store, with predictions computed from the causal neighborhood.
func addSamples(ts *modular.TreeSamples, image *modular.Image, channelID int) {
	ch := &image.Channel[channelID]
	predictions := make([]int64, modular.NumModularPredictors)
	properties := make([]int32, 16)
	for y := 0; y < ch.H; y++ {
		row := ch.Row(y)
		for x := 0; x < ch.W; x++ {
			var left, top, topLeft int32
			if x > 0 {
				left = row[x-1]
			}
			if y > 0 {
				top = ch.Row(y - 1)[x]
			}
			if x > 0 && y > 0 {
				topLeft = ch.Row(y - 1)[x-1]
			} else {
				topLeft = left
			}

			predictions[modular.PredictorZero] = 0
			predictions[modular.PredictorLeft] = int64(left)
			predictions[modular.PredictorTop] = int64(top)
			predictions[modular.PredictorAverage0] = int64(left+top) / 2
			predictions[modular.PredictorSelect] = selectPredict(left, top, topLeft)
			predictions[modular.PredictorGradient] = clampedGradient(left, top, topLeft)

			properties[0] = int32(channelID)
			properties[1] = 0
			properties[2] = int32(y)
			properties[3] = int32(x)
			properties[4] = abs32(top)
			properties[5] = abs32(left)
			properties[6] = top
			properties[7] = left
			properties[8] = left - topLeft

			ts.AddSample(int64(row[x]), properties, predictions)
		}
	}
}

func selectPredict(left, top, topLeft int32) int64 {
	p := int64(left) + int64(top) - int64(topLeft)
	if abs64(p-int64(left)) < abs64(p-int64(top)) {
		return int64(left)
	}
	return int64(top)
}

func clampedGradient(left, top, topLeft int32) int64 {
	g := int64(left) + int64(top) - int64(topLeft)
	lo, hi := int64(left), int64(top)
	if lo > hi {
		lo, hi = hi, lo
	}
	if g < lo {
		return lo
	}
	if g > hi {
		return hi
	}
	return g
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func printStats(ts *modular.TreeSamples, tree modular.Tree, tokens []modular.Token) {
	leaves := 0
	leafPredictors := map[modular.Predictor]int{}
	for _, node := range tree {
		if node.Property == -1 {
			leaves++
			leafPredictors[node.Predictor]++
		}
	}
	fmt.Printf("samples: %d distinct of %d total\n",
		ts.NumDistinctSamples(), ts.NumSamples())
	fmt.Printf("tree: %d nodes, %d leaves, %d tokens\n",
		len(tree), leaves, len(tokens))
	for pred, count := range leafPredictors {
		fmt.Printf("  leaves using %s: %d\n", pred, count)
	}
}

func writeTokens(path string, tokens []modular.Token) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc, err := zstd.NewWriter(f,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
	)
	if err != nil {
		return err
	}
	buf := make([]byte, binary.MaxVarintLen64)
	for _, tok := range tokens {
		n := binary.PutUvarint(buf, uint64(tok.Context))
		if _, err := enc.Write(buf[:n]); err != nil {
			return err
		}
		n = binary.PutUvarint(buf, tok.Value)
		if _, err := enc.Write(buf[:n]); err != nil {
			return err
		}
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}
