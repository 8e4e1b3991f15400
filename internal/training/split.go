package training

// Fold is one train/test index pair from a time-series split.
type Fold struct {
	TrainIdx []int
	TestIdx  []int
}

// TimeSeriesSplit produces expanding-window folds over n chronologically
// ordered samples. Each fold tests on the next contiguous block and
// trains on everything before it, so no fold ever trains on the future.
func TimeSeriesSplit(n, nSplits int) []Fold {
	if nSplits < 2 || n < nSplits+1 {
		return nil
	}

	testSize := n / (nSplits + 1)
	if testSize < 1 {
		return nil
	}

	folds := make([]Fold, 0, nSplits)
	for s := 0; s < nSplits; s++ {
		testStart := n - (nSplits-s)*testSize
		testEnd := testStart + testSize

		train := make([]int, testStart)
		for i := range train {
			train[i] = i
		}
		test := make([]int, testEnd-testStart)
		for i := range test {
			test[i] = testStart + i
		}
		folds = append(folds, Fold{TrainIdx: train, TestIdx: test})
	}
	return folds
}

// chronoSplit splits rows into train and validation keeping order, with
// the most recent fraction held out.
func chronoSplit(n int, valFraction float64) (trainEnd int) {
	trainEnd = n - int(float64(n)*valFraction)
	if trainEnd < 1 {
		trainEnd = 1
	}
	if trainEnd >= n {
		trainEnd = n - 1
	}
	return trainEnd
}

func gatherRows(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, r := range idx {
		out[i] = x[r]
	}
	return out
}

func gatherInts(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}

func gatherFloats(y []float64, idx []int) []float64 {
	if y == nil {
		return nil
	}
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}
