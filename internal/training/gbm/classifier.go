package gbm

import (
	"math"
	"math/rand"
)

// Classifier is a boosted multiclass (softmax) classifier. Binary
// targets use NumClass=2.
type Classifier struct {
	Params    Params    `json:"params"`
	NumClass  int       `json:"num_class"`
	NFeatures int       `json:"n_features"`
	Base      []float64 `json:"base"`
	// Trees[round][class]
	Trees [][]*Tree `json:"trees"`
}

// TrainClassifier fits a softmax-boosted classifier. weights may be
// nil for uniform sample weights.
func TrainClassifier(x [][]float64, y []int, weights []float64, numClass int, p Params) *Classifier {
	n := len(x)
	nFeatures := len(x[0])
	if weights == nil {
		weights = uniform(n)
	}
	rng := rand.New(rand.NewSource(p.Seed))

	// Start from the weighted class priors (log space)
	base := make([]float64, numClass)
	var total float64
	for i, label := range y {
		base[label] += weights[i]
		total += weights[i]
	}
	for k := range base {
		if base[k] <= 0 {
			base[k] = 1e-9
		}
		base[k] = math.Log(base[k] / total)
	}

	c := &Classifier{Params: p, NumClass: numClass, NFeatures: nFeatures, Base: base}

	// Raw scores per sample per class
	raw := make([][]float64, n)
	for i := range raw {
		raw[i] = append([]float64(nil), base...)
	}

	grad := make([]float64, n)
	hess := make([]float64, n)
	probs := make([]float64, numClass)

	for round := 0; round < p.NEstimators; round++ {
		rows := sampleRows(n, p.Subsample, rng)
		cols := sampleCols(nFeatures, p.ColsampleByTree, rng)

		roundTrees := make([]*Tree, numClass)
		for k := 0; k < numClass; k++ {
			for i := 0; i < n; i++ {
				softmaxInto(raw[i], probs)
				pk := probs[k]
				yk := 0.0
				if y[i] == k {
					yk = 1.0
				}
				grad[i] = weights[i] * (pk - yk)
				hess[i] = weights[i] * pk * (1 - pk)
				if hess[i] < 1e-9 {
					hess[i] = 1e-9
				}
			}

			tree := buildTree(x, grad, hess, rows, cols, p)
			roundTrees[k] = tree

			for i := 0; i < n; i++ {
				raw[i][k] += p.LearningRate * tree.Predict(x[i])
			}
		}
		c.Trees = append(c.Trees, roundTrees)
	}

	return c
}

// PredictProba returns the class probability distribution for one
// sample.
func (c *Classifier) PredictProba(x []float64) []float64 {
	raw := append([]float64(nil), c.Base...)
	for _, roundTrees := range c.Trees {
		for k, tree := range roundTrees {
			raw[k] += c.Params.LearningRate * tree.Predict(x)
		}
	}

	probs := make([]float64, c.NumClass)
	softmaxInto(raw, probs)
	return probs
}

// PredictProbaBatch returns probabilities for every sample.
func (c *Classifier) PredictProbaBatch(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = c.PredictProba(row)
	}
	return out
}

// Predict returns the argmax class for one sample.
func (c *Classifier) Predict(x []float64) int {
	probs := c.PredictProba(x)
	best := 0
	for k := 1; k < len(probs); k++ {
		if probs[k] > probs[best] {
			best = k
		}
	}
	return best
}

// FeatureImportances returns the normalized total split gain per
// feature.
func (c *Classifier) FeatureImportances() []float64 {
	importances := make([]float64, c.NFeatures)
	for _, roundTrees := range c.Trees {
		for _, tree := range roundTrees {
			tree.accumulateGain(importances)
		}
	}
	normalize(importances)
	return importances
}

func softmaxInto(raw, out []float64) {
	maxRaw := raw[0]
	for _, v := range raw[1:] {
		if v > maxRaw {
			maxRaw = v
		}
	}

	var sum float64
	for k, v := range raw {
		out[k] = math.Exp(v - maxRaw)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
}

func uniform(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0
	}
	return w
}

func normalize(values []float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range values {
		values[i] /= sum
	}
}
