package training

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	calibrationBins = 10
	bettingEdge     = 0.05
	bettingStake    = 10.0
)

var outcomeNames = []string{"home", "draw", "away"}

// MatchOdds carries the decimal 1X2 odds used by the betting
// simulation. Zero values mean no odds were available.
type MatchOdds struct {
	Home float64
	Draw float64
	Away float64
}

// CalibrationBin is one reliability-curve bucket for a single class.
type CalibrationBin struct {
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	MeanProb  float64 `json:"mean_prob"`
	Frequency float64 `json:"frequency"`
	Count     int     `json:"count"`
}

// ConfidenceBucket aggregates accuracy for predictions whose top
// probability falls in one range.
type ConfidenceBucket struct {
	Label    string  `json:"label"`
	Count    int     `json:"count"`
	Accuracy float64 `json:"accuracy"`
}

// BettingOutcome is the per-outcome slice of the ROI simulation.
type BettingOutcome struct {
	Bets   int     `json:"bets"`
	Wins   int     `json:"wins"`
	Staked float64 `json:"staked"`
	Profit float64 `json:"profit"`
}

// BettingResult summarizes a flat-stake value-betting simulation over
// the evaluation set.
type BettingResult struct {
	Bets      int                       `json:"bets"`
	Wins      int                       `json:"wins"`
	Staked    float64                   `json:"staked"`
	Profit    float64                   `json:"profit"`
	ROI       float64                   `json:"roi"`
	ByOutcome map[string]BettingOutcome `json:"by_outcome"`
	EdgeUsed  float64                   `json:"edge_used"`
	StakeUsed float64                   `json:"stake_used"`
	WithOdds  int                       `json:"with_odds"`
	Evaluated int                       `json:"evaluated"`
}

// Evaluation is the complete holdout evaluation of the result
// classifier.
type Evaluation struct {
	Samples     int                     `json:"samples"`
	Accuracy    float64                 `json:"accuracy"`
	LogLoss     float64                 `json:"log_loss"`
	Confusion   [3][3]int               `json:"confusion"`
	ClassReport map[string]ClassMetrics `json:"class_report"`
	// Brier score per class, one-vs-rest
	Brier       map[string]float64          `json:"brier"`
	Calibration map[string][]CalibrationBin `json:"calibration"`
	ECE         map[string]float64          `json:"ece"`
	Confidence  []ConfidenceBucket          `json:"confidence"`
	Betting     *BettingResult              `json:"betting,omitempty"`
}

// Evaluator scores result predictions against known outcomes, measures
// probability calibration and simulates flat-stake value betting.
type Evaluator struct{}

// Evaluate computes all metrics for true labels y against predicted
// probability rows. odds may be nil or shorter than y; matches without
// usable odds are excluded from the betting simulation only.
func (Evaluator) Evaluate(y []int, proba [][]float64, odds []MatchOdds) (*Evaluation, error) {
	if len(y) == 0 {
		return nil, fmt.Errorf("no samples to evaluate")
	}
	if len(proba) != len(y) {
		return nil, fmt.Errorf("probability rows %d do not match %d labels", len(proba), len(y))
	}

	ev := &Evaluation{
		Samples:     len(y),
		Accuracy:    accuracy(y, proba),
		LogLoss:     logLoss(y, proba),
		ClassReport: classReport(y, proba, outcomeNames),
		Brier:       make(map[string]float64, 3),
		Calibration: make(map[string][]CalibrationBin, 3),
		ECE:         make(map[string]float64, 3),
	}

	for i, p := range proba {
		ev.Confusion[y[i]][argmax(p)]++
	}

	for k, name := range outcomeNames {
		ev.Brier[name] = brierScore(y, proba, k)
		bins := calibrationCurve(y, proba, k)
		ev.Calibration[name] = bins
		ev.ECE[name] = expectedCalibrationError(bins, len(y))
	}

	ev.Confidence = confidenceBuckets(y, proba)

	if odds != nil {
		ev.Betting = simulateBetting(y, proba, odds)
	}

	return ev, nil
}

func brierScore(y []int, proba [][]float64, class int) float64 {
	var total float64
	for i, p := range proba {
		target := 0.0
		if y[i] == class {
			target = 1.0
		}
		d := p[class] - target
		total += d * d
	}
	return total / float64(len(y))
}

// calibrationCurve buckets predicted probabilities for one class into
// uniform bins and records the observed frequency in each.
func calibrationCurve(y []int, proba [][]float64, class int) []CalibrationBin {
	bins := make([]CalibrationBin, calibrationBins)
	for b := range bins {
		bins[b].Low = float64(b) / calibrationBins
		bins[b].High = float64(b+1) / calibrationBins
	}

	sums := make([]float64, calibrationBins)
	hits := make([]int, calibrationBins)
	for i, p := range proba {
		b := int(p[class] * calibrationBins)
		if b >= calibrationBins {
			b = calibrationBins - 1
		}
		bins[b].Count++
		sums[b] += p[class]
		if y[i] == class {
			hits[b]++
		}
	}

	for b := range bins {
		if bins[b].Count > 0 {
			bins[b].MeanProb = sums[b] / float64(bins[b].Count)
			bins[b].Frequency = float64(hits[b]) / float64(bins[b].Count)
		}
	}
	return bins
}

// expectedCalibrationError is the bin-count-weighted mean absolute gap
// between predicted probability and observed frequency.
func expectedCalibrationError(bins []CalibrationBin, n int) float64 {
	var ece float64
	for _, b := range bins {
		if b.Count == 0 {
			continue
		}
		ece += float64(b.Count) / float64(n) * math.Abs(b.MeanProb-b.Frequency)
	}
	return ece
}

func confidenceBuckets(y []int, proba [][]float64) []ConfidenceBucket {
	edges := []struct {
		label string
		low   float64
		high  float64
	}{
		{"<40%", 0, 0.40},
		{"40-50%", 0.40, 0.50},
		{"50-60%", 0.50, 0.60},
		{"60-70%", 0.60, 0.70},
		{"70-80%", 0.70, 0.80},
		{"80-90%", 0.80, 0.90},
		{"90%+", 0.90, 1.01},
	}

	buckets := make([]ConfidenceBucket, len(edges))
	correct := make([]int, len(edges))
	for i, p := range proba {
		pred := argmax(p)
		conf := p[pred]
		for b, e := range edges {
			if conf >= e.low && conf < e.high {
				buckets[b].Count++
				if pred == y[i] {
					correct[b]++
				}
				break
			}
		}
	}
	for b := range buckets {
		buckets[b].Label = edges[b].label
		if buckets[b].Count > 0 {
			buckets[b].Accuracy = float64(correct[b]) / float64(buckets[b].Count)
		}
	}
	return buckets
}

// simulateBetting places a flat stake on every outcome whose model
// probability exceeds the bookmaker's implied probability by the edge
// threshold. Outcomes with odds at or below 1 are never bet.
func simulateBetting(y []int, proba [][]float64, odds []MatchOdds) *BettingResult {
	result := &BettingResult{
		ByOutcome: make(map[string]BettingOutcome, 3),
		EdgeUsed:  bettingEdge,
		StakeUsed: bettingStake,
		Evaluated: len(y),
	}
	for _, name := range outcomeNames {
		result.ByOutcome[name] = BettingOutcome{}
	}

	for i := range y {
		if i >= len(odds) {
			break
		}
		prices := [3]float64{odds[i].Home, odds[i].Draw, odds[i].Away}
		hasOdds := false
		for _, price := range prices {
			if price > 1 {
				hasOdds = true
			}
		}
		if !hasOdds {
			continue
		}
		result.WithOdds++

		for k, price := range prices {
			if price <= 1 {
				continue
			}
			implied := 1 / price
			if proba[i][k]-implied < bettingEdge {
				continue
			}

			name := outcomeNames[k]
			slot := result.ByOutcome[name]
			slot.Bets++
			slot.Staked += bettingStake
			result.Bets++
			result.Staked += bettingStake

			if y[i] == k {
				profit := bettingStake * (price - 1)
				slot.Wins++
				slot.Profit += profit
				result.Wins++
				result.Profit += profit
			} else {
				slot.Profit -= bettingStake
				result.Profit -= bettingStake
			}
			result.ByOutcome[name] = slot
		}
	}

	if result.Staked > 0 {
		result.ROI = result.Profit / result.Staked
	}
	return result
}

// GenerateReport renders the evaluation as a deterministic plain-text
// report.
func (ev *Evaluation) GenerateReport() string {
	var b strings.Builder

	fmt.Fprintf(&b, "MODEL EVALUATION REPORT\n")
	fmt.Fprintf(&b, "=======================\n\n")
	fmt.Fprintf(&b, "Samples:  %d\n", ev.Samples)
	fmt.Fprintf(&b, "Accuracy: %.4f\n", ev.Accuracy)
	fmt.Fprintf(&b, "Log loss: %.4f\n\n", ev.LogLoss)

	fmt.Fprintf(&b, "Per-class metrics\n")
	for _, name := range outcomeNames {
		m := ev.ClassReport[name]
		fmt.Fprintf(&b, "  %-5s precision=%.3f recall=%.3f f1=%.3f brier=%.4f ece=%.4f support=%d\n",
			name, m.Precision, m.Recall, m.F1, ev.Brier[name], ev.ECE[name], m.Support)
	}

	fmt.Fprintf(&b, "\nConfusion matrix (rows=actual, cols=predicted)\n")
	fmt.Fprintf(&b, "        %6s %6s %6s\n", outcomeNames[0], outcomeNames[1], outcomeNames[2])
	for r, name := range outcomeNames {
		fmt.Fprintf(&b, "  %-5s %6d %6d %6d\n", name, ev.Confusion[r][0], ev.Confusion[r][1], ev.Confusion[r][2])
	}

	fmt.Fprintf(&b, "\nAccuracy by confidence\n")
	for _, bucket := range ev.Confidence {
		if bucket.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-7s n=%-5d accuracy=%.3f\n", bucket.Label, bucket.Count, bucket.Accuracy)
	}

	if ev.Betting != nil && ev.Betting.WithOdds > 0 {
		bt := ev.Betting
		fmt.Fprintf(&b, "\nBetting simulation (edge %.2f, stake %.0f)\n", bt.EdgeUsed, bt.StakeUsed)
		fmt.Fprintf(&b, "  matches with odds: %d\n", bt.WithOdds)
		fmt.Fprintf(&b, "  bets=%d wins=%d staked=%.0f profit=%+.2f roi=%+.2f%%\n",
			bt.Bets, bt.Wins, bt.Staked, bt.Profit, bt.ROI*100)

		names := make([]string, 0, len(bt.ByOutcome))
		for name := range bt.ByOutcome {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			o := bt.ByOutcome[name]
			if o.Bets == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %-5s bets=%d wins=%d profit=%+.2f\n", name, o.Bets, o.Wins, o.Profit)
		}
	}

	return b.String()
}
