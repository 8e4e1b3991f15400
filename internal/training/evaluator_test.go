package training

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBasicMetrics(t *testing.T) {
	y := []int{0, 0, 1, 2}
	proba := [][]float64{
		{0.7, 0.2, 0.1}, // correct
		{0.2, 0.5, 0.3}, // wrong, predicted draw
		{0.1, 0.8, 0.1}, // correct
		{0.1, 0.2, 0.7}, // correct
	}

	ev, err := Evaluator{}.Evaluate(y, proba, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, ev.Samples)
	assert.InDelta(t, 0.75, ev.Accuracy, 1e-9)
	assert.Greater(t, ev.LogLoss, 0.0)

	assert.Equal(t, 1, ev.Confusion[0][0])
	assert.Equal(t, 1, ev.Confusion[0][1])
	assert.Equal(t, 1, ev.Confusion[1][1])
	assert.Equal(t, 1, ev.Confusion[2][2])

	home := ev.ClassReport["home"]
	assert.InDelta(t, 1.0, home.Precision, 1e-9)
	assert.InDelta(t, 0.5, home.Recall, 1e-9)
	assert.Equal(t, 2, home.Support)

	assert.Nil(t, ev.Betting, "no odds means no betting simulation")
}

func TestEvaluateBrierPerfectAndWorst(t *testing.T) {
	perfect, err := Evaluator{}.Evaluate(
		[]int{0, 2},
		[][]float64{{1, 0, 0}, {0, 0, 1}},
		nil,
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, perfect.Brier["home"], 1e-9)
	assert.InDelta(t, 0.0, perfect.ECE["home"], 1e-9)

	worst, err := Evaluator{}.Evaluate(
		[]int{0},
		[][]float64{{0, 1, 0}},
		nil,
	)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, worst.Brier["home"], 1e-9)
}

func TestConfidenceBuckets(t *testing.T) {
	y := []int{0, 0, 0}
	proba := [][]float64{
		{0.95, 0.03, 0.02}, // 90%+ correct
		{0.45, 0.30, 0.25}, // 40-50% correct
		{0.30, 0.45, 0.25}, // 40-50% wrong
	}

	ev, err := Evaluator{}.Evaluate(y, proba, nil)
	require.NoError(t, err)

	byLabel := make(map[string]ConfidenceBucket)
	for _, b := range ev.Confidence {
		byLabel[b.Label] = b
	}
	assert.Equal(t, 1, byLabel["90%+"].Count)
	assert.InDelta(t, 1.0, byLabel["90%+"].Accuracy, 1e-9)
	assert.Equal(t, 2, byLabel["40-50%"].Count)
	assert.InDelta(t, 0.5, byLabel["40-50%"].Accuracy, 1e-9)
}

func TestBettingSimulation(t *testing.T) {
	y := []int{0, 2, 0}
	proba := [][]float64{
		// Home at odds 2.5 implies 0.40; model says 0.60 → bet, wins
		{0.60, 0.25, 0.15},
		// Home edge again but home loses this time
		{0.60, 0.25, 0.15},
		// No edge anywhere
		{0.40, 0.30, 0.30},
	}
	odds := []MatchOdds{
		{Home: 2.5, Draw: 3.4, Away: 3.6},
		{Home: 2.5, Draw: 3.4, Away: 3.6},
		{Home: 2.5, Draw: 3.4, Away: 3.6},
	}

	ev, err := Evaluator{}.Evaluate(y, proba, odds)
	require.NoError(t, err)
	require.NotNil(t, ev.Betting)

	bt := ev.Betting
	assert.Equal(t, 3, bt.WithOdds)
	assert.Equal(t, 2, bt.Bets)
	assert.Equal(t, 1, bt.Wins)
	assert.InDelta(t, 20.0, bt.Staked, 1e-9)
	// Win pays 10*(2.5-1)=15, loss costs 10
	assert.InDelta(t, 5.0, bt.Profit, 1e-9)
	assert.InDelta(t, 0.25, bt.ROI, 1e-9)

	home := bt.ByOutcome["home"]
	assert.Equal(t, 2, home.Bets)
	assert.Equal(t, 1, home.Wins)
}

func TestBettingSkipsUnusableOdds(t *testing.T) {
	y := []int{0}
	proba := [][]float64{{0.9, 0.05, 0.05}}
	odds := []MatchOdds{{Home: 1.0, Draw: 0, Away: 0}}

	ev, err := Evaluator{}.Evaluate(y, proba, odds)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Betting.WithOdds)
	assert.Equal(t, 0, ev.Betting.Bets)
}

func TestGenerateReport(t *testing.T) {
	y := []int{0, 1, 2, 0}
	proba := [][]float64{
		{0.7, 0.2, 0.1},
		{0.2, 0.6, 0.2},
		{0.1, 0.2, 0.7},
		{0.3, 0.4, 0.3},
	}
	odds := []MatchOdds{
		{Home: 2.0, Draw: 3.0, Away: 4.0},
		{Home: 2.0, Draw: 3.0, Away: 4.0},
		{Home: 2.0, Draw: 3.0, Away: 4.0},
		{Home: 2.0, Draw: 3.0, Away: 4.0},
	}

	ev, err := Evaluator{}.Evaluate(y, proba, odds)
	require.NoError(t, err)

	report := ev.GenerateReport()
	assert.Contains(t, report, "MODEL EVALUATION REPORT")
	assert.Contains(t, report, "Accuracy: 0.7500")
	assert.Contains(t, report, "Confusion matrix")
	assert.Contains(t, report, "Accuracy by confidence")

	// Deterministic output
	assert.Equal(t, report, ev.GenerateReport())
	assert.False(t, strings.Contains(report, "%!"), "broken format verb in report")
}

func TestEvaluateShapeErrors(t *testing.T) {
	_, err := Evaluator{}.Evaluate(nil, nil, nil)
	require.Error(t, err)

	_, err = Evaluator{}.Evaluate([]int{0, 1}, [][]float64{{1, 0, 0}}, nil)
	require.Error(t, err)
}
