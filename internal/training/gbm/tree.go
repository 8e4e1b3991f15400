package gbm

import (
	"math/rand"
	"sort"
)

// Node is one node of a fitted regression tree. Leaves carry the
// Newton step value; internal nodes route on Feature < Threshold.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
	Gain      float64 `json:"gain"`
}

// Tree is a regression tree fitted to gradient/hessian targets.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict returns the leaf value for one sample.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// accumulateGain adds each split's gain to the per-feature totals.
func (t *Tree) accumulateGain(importances []float64) {
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if !n.Leaf {
			importances[n.Feature] += n.Gain
		}
	}
}

// buildTree grows one tree on the given row subset against gradient
// and hessian targets.
func buildTree(x [][]float64, grad, hess []float64, rows, cols []int, p Params) *Tree {
	t := &Tree{}
	t.grow(x, grad, hess, rows, cols, p, 0)
	return t
}

// grow recursively splits rows, returning the new node's index.
func (t *Tree) grow(x [][]float64, grad, hess []float64, rows, cols []int, p Params, depth int) int {
	var sumG, sumH float64
	for _, r := range rows {
		sumG += grad[r]
		sumH += hess[r]
	}

	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Leaf: true, Value: leafValue(sumG, sumH, p.Lambda)})

	if depth >= p.MaxDepth || len(rows) < 2 {
		return idx
	}

	feature, threshold, gain := bestSplit(x, grad, hess, rows, cols, sumG, sumH, p)
	if gain <= 0 {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if x[r][feature] < threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := t.grow(x, grad, hess, left, cols, p, depth+1)
	rightIdx := t.grow(x, grad, hess, right, cols, p, depth+1)

	t.Nodes[idx] = Node{
		Feature:   feature,
		Threshold: threshold,
		Left:      leftIdx,
		Right:     rightIdx,
		Gain:      gain,
	}
	return idx
}

// bestSplit scans every candidate column for the split with the
// highest gain, honoring the minimum child hessian weight.
func bestSplit(x [][]float64, grad, hess []float64, rows, cols []int, sumG, sumH float64, p Params) (int, float64, float64) {
	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	parentScore := score(sumG, sumH, p.Lambda)

	order := make([]int, len(rows))

	for _, col := range cols {
		copy(order, rows)
		sort.Slice(order, func(i, j int) bool {
			return x[order[i]][col] < x[order[j]][col]
		})

		var gl, hl float64
		for i := 0; i < len(order)-1; i++ {
			r := order[i]
			gl += grad[r]
			hl += hess[r]

			// No valid threshold between equal values
			cur, next := x[r][col], x[order[i+1]][col]
			if cur == next {
				continue
			}

			gr := sumG - gl
			hr := sumH - hl
			if hl < p.MinChildWeight || hr < p.MinChildWeight {
				continue
			}

			gain := 0.5 * (score(gl, hl, p.Lambda) + score(gr, hr, p.Lambda) - parentScore)
			if gain > bestGain {
				bestFeature = col
				bestThreshold = (cur + next) / 2
				bestGain = gain
			}
		}
	}

	return bestFeature, bestThreshold, bestGain
}

func score(g, h, lambda float64) float64 {
	return g * g / (h + lambda)
}

func leafValue(g, h, lambda float64) float64 {
	return -g / (h + lambda)
}

// sampleRows draws a subsample of row indices without replacement.
func sampleRows(n int, fraction float64, rng *rand.Rand) []int {
	if fraction >= 1 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}

	k := int(float64(n) * fraction)
	if k < 1 {
		k = 1
	}
	perm := rng.Perm(n)[:k]
	sort.Ints(perm)
	return perm
}

// sampleCols draws a subsample of column indices without replacement.
func sampleCols(n int, fraction float64, rng *rand.Rand) []int {
	return sampleRows(n, fraction, rng)
}
