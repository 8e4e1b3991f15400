package gbm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticClassification builds a 3-class problem where the class is
// determined by which of the first two features dominates.
func syntheticClassification(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		a, b := rng.Float64(), rng.Float64()
		noise := rng.NormFloat64() * 0.05
		x[i] = []float64{a, b, rng.Float64()}
		switch {
		case a-b+noise > 0.2:
			y[i] = 0
		case b-a+noise > 0.2:
			y[i] = 2
		default:
			y[i] = 1
		}
	}
	return x, y
}

func smallParams() Params {
	p := DefaultClassifierParams()
	p.NEstimators = 40
	p.MaxDepth = 3
	return p
}

func TestClassifierLearnsSeparableData(t *testing.T) {
	x, y := syntheticClassification(600, 1)
	model := TrainClassifier(x[:500], y[:500], nil, 3, smallParams())

	correct := 0
	for i := 500; i < 600; i++ {
		if model.Predict(x[i]) == y[i] {
			correct++
		}
	}
	assert.Greater(t, correct, 80, "should classify most holdout samples correctly")
}

func TestClassifierProbabilitiesSumToOne(t *testing.T) {
	x, y := syntheticClassification(200, 2)
	model := TrainClassifier(x, y, nil, 3, smallParams())

	for _, row := range x[:20] {
		probs := model.PredictProba(row)
		require.Len(t, probs, 3)
		var sum float64
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestClassifierDeterministicWithSeed(t *testing.T) {
	x, y := syntheticClassification(300, 3)

	a := TrainClassifier(x, y, nil, 3, smallParams())
	b := TrainClassifier(x, y, nil, 3, smallParams())

	for _, row := range x[:25] {
		assert.Equal(t, a.PredictProba(row), b.PredictProba(row))
	}
}

func TestClassifierSampleWeights(t *testing.T) {
	// Two identical feature points with conflicting labels; the heavier
	// label must win.
	x := [][]float64{}
	y := []int{}
	w := []float64{}
	for i := 0; i < 40; i++ {
		x = append(x, []float64{0.5, 0.5, 0.5})
		if i < 20 {
			y = append(y, 0)
			w = append(w, 5.0)
		} else {
			y = append(y, 2)
			w = append(w, 1.0)
		}
	}

	p := smallParams()
	p.Subsample = 1.0
	p.ColsampleByTree = 1.0
	model := TrainClassifier(x, y, w, 3, p)
	assert.Equal(t, 0, model.Predict([]float64{0.5, 0.5, 0.5}))
}

func TestRegressorLearnsLinearTarget(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	n := 500
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		a, b := rng.Float64(), rng.Float64()
		x[i] = []float64{a, b}
		y[i] = 3*a + b
	}

	p := DefaultRegressorParams()
	p.NEstimators = 80
	p.MaxDepth = 4
	model := TrainRegressor(x[:400], y[:400], nil, p)

	var sqErr float64
	for i := 400; i < n; i++ {
		d := model.Predict(x[i]) - y[i]
		sqErr += d * d
	}
	rmse := math.Sqrt(sqErr / 100)
	assert.Less(t, rmse, 0.5, "rmse %.3f too high", rmse)
}

func TestFeatureImportancesNormalized(t *testing.T) {
	x, y := syntheticClassification(300, 5)
	model := TrainClassifier(x, y, nil, 3, smallParams())

	imp := model.FeatureImportances()
	require.Len(t, imp, 3)

	var sum float64
	for _, v := range imp {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// The informative features should dominate the noise column
	assert.Greater(t, imp[0]+imp[1], imp[2])
}

func TestTreeMinChildWeightBlocksTinySplits(t *testing.T) {
	x := [][]float64{{0}, {1}}
	grad := []float64{1, -1}
	hess := []float64{0.1, 0.1}

	p := DefaultClassifierParams()
	p.MinChildWeight = 1.0
	tree := buildTree(x, grad, hess, []int{0, 1}, []int{0}, p)

	require.Len(t, tree.Nodes, 1, "split below min child weight must not happen")
	assert.True(t, tree.Nodes[0].Leaf)
}
