package training

import "math"

// Scaler standardizes features to zero mean and unit variance. It is
// fitted on the training split only and persisted with the model
// bundle; inference applies Transform and never refits.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Fit computes per-column mean and standard deviation.
func (s *Scaler) Fit(x [][]float64) {
	if len(x) == 0 {
		return
	}
	cols := len(x[0])
	s.Mean = make([]float64, cols)
	s.Std = make([]float64, cols)

	n := float64(len(x))
	for _, row := range x {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range x {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
		}
	}
	for j := range s.Std {
		s.Std[j] = math.Sqrt(s.Std[j] / n)
		// Constant columns pass through unscaled
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
}

// Transform returns standardized copies of the rows.
func (s *Scaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.TransformRow(row)
	}
	return out
}

// TransformRow standardizes a single row.
func (s *Scaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// FitTransform fits on x and returns its standardized copy.
func (s *Scaler) FitTransform(x [][]float64) [][]float64 {
	s.Fit(x)
	return s.Transform(x)
}
