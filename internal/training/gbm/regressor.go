package gbm

import "math/rand"

// Regressor is a boosted squared-error regression ensemble.
type Regressor struct {
	Params    Params  `json:"params"`
	NFeatures int     `json:"n_features"`
	Base      float64 `json:"base"`
	Trees     []*Tree `json:"trees"`
}

// TrainRegressor fits a squared-error boosted regressor. weights may
// be nil for uniform sample weights.
func TrainRegressor(x [][]float64, y []float64, weights []float64, p Params) *Regressor {
	n := len(x)
	nFeatures := len(x[0])
	if weights == nil {
		weights = uniform(n)
	}
	rng := rand.New(rand.NewSource(p.Seed))

	// Start from the weighted mean target
	var sumWY, sumW float64
	for i, v := range y {
		sumWY += weights[i] * v
		sumW += weights[i]
	}
	base := sumWY / sumW

	r := &Regressor{Params: p, NFeatures: nFeatures, Base: base}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}

	grad := make([]float64, n)
	hess := make([]float64, n)

	for round := 0; round < p.NEstimators; round++ {
		rows := sampleRows(n, p.Subsample, rng)
		cols := sampleCols(nFeatures, p.ColsampleByTree, rng)

		for i := 0; i < n; i++ {
			grad[i] = weights[i] * (pred[i] - y[i])
			hess[i] = weights[i]
		}

		tree := buildTree(x, grad, hess, rows, cols, p)
		r.Trees = append(r.Trees, tree)

		for i := 0; i < n; i++ {
			pred[i] += p.LearningRate * tree.Predict(x[i])
		}
	}

	return r
}

// Predict returns the regression output for one sample.
func (r *Regressor) Predict(x []float64) float64 {
	out := r.Base
	for _, tree := range r.Trees {
		out += r.Params.LearningRate * tree.Predict(x)
	}
	return out
}

// PredictBatch returns predictions for every sample.
func (r *Regressor) PredictBatch(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = r.Predict(row)
	}
	return out
}

// FeatureImportances returns the normalized total split gain per
// feature.
func (r *Regressor) FeatureImportances() []float64 {
	importances := make([]float64, r.NFeatures)
	for _, tree := range r.Trees {
		tree.accumulateGain(importances)
	}
	normalize(importances)
	return importances
}
