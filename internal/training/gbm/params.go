// Package gbm implements Newton-boosted regression trees for the
// prediction models: a multiclass softmax classifier and a
// squared-error regressor, with per-sample weights, row/column
// subsampling and gain-based feature importances.
package gbm

// Params holds the boosting hyperparameters.
type Params struct {
	MaxDepth        int     `json:"max_depth"`
	LearningRate    float64 `json:"learning_rate"`
	NEstimators     int     `json:"n_estimators"`
	MinChildWeight  float64 `json:"min_child_weight"`
	Subsample       float64 `json:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree"`
	Lambda          float64 `json:"lambda"`
	Seed            int64   `json:"seed"`
}

// DefaultClassifierParams returns the tuned defaults for the result
// classifier.
func DefaultClassifierParams() Params {
	return Params{
		MaxDepth:        6,
		LearningRate:    0.1,
		NEstimators:     200,
		MinChildWeight:  1,
		Subsample:       0.8,
		ColsampleByTree: 0.8,
		Lambda:          1,
		Seed:            42,
	}
}

// DefaultRegressorParams returns the defaults for the goals regressor.
func DefaultRegressorParams() Params {
	return Params{
		MaxDepth:        6,
		LearningRate:    0.1,
		NEstimators:     200,
		MinChildWeight:  1,
		Subsample:       0.8,
		ColsampleByTree: 0.8,
		Lambda:          1,
		Seed:            42,
	}
}

// DefaultBinaryParams returns the defaults for the over-2.5 classifier.
func DefaultBinaryParams() Params {
	return Params{
		MaxDepth:        5,
		LearningRate:    0.1,
		NEstimators:     150,
		MinChildWeight:  1,
		Subsample:       0.8,
		ColsampleByTree: 1.0,
		Lambda:          1,
		Seed:            42,
	}
}
