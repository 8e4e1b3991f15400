package feedback

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"testing"
	"time"

	"footypredict/pipeline/internal/features"
	"footypredict/pipeline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictionStore struct {
	byMatch map[int]*ValidatedPrediction
	rows    []*ValidatedPrediction
}

func (f *fakePredictionStore) ValidatedByMatchIDs(_ context.Context, matchIDs []int) (map[int]*ValidatedPrediction, error) {
	out := make(map[int]*ValidatedPrediction)
	for _, id := range matchIDs {
		if vp, ok := f.byMatch[id]; ok {
			out[id] = vp
		}
	}
	return out, nil
}

func (f *fakePredictionStore) ValidatedSince(_ context.Context, since time.Time) ([]*ValidatedPrediction, error) {
	var out []*ValidatedPrediction
	for _, vp := range f.rows {
		if !vp.MatchDate.Before(since) {
			out = append(out, vp)
		}
	}
	return out, nil
}

func (f *fakePredictionStore) HardNegatives(_ context.Context, limit int) ([]*ValidatedPrediction, error) {
	var out []*ValidatedPrediction
	for _, vp := range f.rows {
		if vp.IsCorrect.Valid && !vp.IsCorrect.Bool && vp.ConfidenceScore >= 0.5 {
			out = append(out, vp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func validated(matchID int, daysAgo int, correct bool, confidence float64, outcome, league string) *ValidatedPrediction {
	return &ValidatedPrediction{
		Prediction: models.Prediction{
			MatchID:            matchID,
			ConfidenceScore:    confidence,
			RecommendedOutcome: outcome,
			IsCorrect:          sql.NullBool{Bool: correct, Valid: true},
		},
		MatchDate:  testNow.AddDate(0, 0, -daysAgo),
		LeagueCode: league,
	}
}

// validatedRecent dates the row against the real clock for the error
// analysis window, which is anchored to time.Now.
func validatedRecent(matchID int, daysAgo int, correct bool, confidence float64, outcome, league string) *ValidatedPrediction {
	vp := validated(matchID, daysAgo, correct, confidence, outcome, league)
	vp.MatchDate = time.Now().UTC().AddDate(0, 0, -daysAgo)
	return vp
}

type sample struct {
	matchID int
	daysAgo int
}

func sampleSet(samples ...sample) *features.TrainingSet {
	vectors := make([]features.Vector, len(samples))
	ids := make([]int, len(samples))
	dates := make([]time.Time, len(samples))
	for i, s := range samples {
		vectors[i] = features.Vector{"x": float64(i)}
		ids[i] = s.matchID
		dates[i] = testNow.AddDate(0, 0, -s.daysAgo)
	}
	return &features.TrainingSet{
		Features:   features.NewFrame(vectors),
		MatchIDs:   ids,
		MatchDates: dates,
	}
}

func TestSampleWeightsBounds(t *testing.T) {
	store := &fakePredictionStore{byMatch: map[int]*ValidatedPrediction{
		1: validated(1, 0, false, 0.9, models.OutcomeHome, "E0"),    // max boost
		2: validated(2, 2000, true, 0.5, models.OutcomeHome, "E0"),  // fully decayed
		3: validated(3, 2000, false, 0.9, models.OutcomeHome, "E0"), // decayed then boosted
	}}
	trainer := NewTrainer(store, DefaultConfig())

	set := sampleSet(sample{1, 0}, sample{2, 2000}, sample{3, 2000}, sample{4, 0})
	weights, err := trainer.BuildSampleWeights(context.Background(), set, testNow)
	require.NoError(t, err)
	require.Len(t, weights, 4)

	cfg := DefaultConfig()
	for i, w := range weights {
		assert.GreaterOrEqual(t, w, cfg.MinWeight, "weight %d below floor", i)
		assert.LessOrEqual(t, w, cfg.MaxWeight, "weight %d above ceiling", i)
	}

	// Fresh wrong high-confidence: 1.0 * 2.0 * 1.5
	assert.InDelta(t, 3.0, weights[0], 1e-9)
	// Ancient correct prediction decays to the floor
	assert.InDelta(t, cfg.MinWeight, weights[1], 1e-9)
	// Decayed wrong prediction: floor * 2.0 * 1.5
	assert.InDelta(t, cfg.MinWeight*cfg.WrongBoost*cfg.HighConfWrongBoost, weights[2], 1e-9)
	// Fresh sample with no stored prediction: no decay, no boost
	assert.InDelta(t, 1.0, weights[3], 1e-9)
}

func TestDecayAppliesWithoutStoredPrediction(t *testing.T) {
	// Recency decay is a property of the match date alone; most
	// historical rows never had a prediction stored.
	trainer := NewTrainer(&fakePredictionStore{}, DefaultConfig())

	set := sampleSet(sample{1, 200}, sample{2, 10}, sample{3, 0})
	weights, err := trainer.BuildSampleWeights(context.Background(), set, testNow)
	require.NoError(t, err)

	assert.InDelta(t, DefaultConfig().MinWeight, weights[0], 1e-9, "0.98^200 floors at min weight")
	assert.InDelta(t, math.Pow(0.98, 10), weights[1], 1e-9)
	assert.InDelta(t, 1.0, weights[2], 1e-9)
}

func TestWeightsWithoutMatchDates(t *testing.T) {
	// Sets cached before dates were recorded carry no MatchDates; those
	// rows stay neutral unless a validated prediction supplies the date.
	store := &fakePredictionStore{byMatch: map[int]*ValidatedPrediction{
		2: validated(2, 10, true, 0.5, models.OutcomeHome, "E0"),
	}}
	trainer := NewTrainer(store, DefaultConfig())

	set := sampleSet(sample{1, 0}, sample{2, 0})
	set.MatchDates = nil
	weights, err := trainer.BuildSampleWeights(context.Background(), set, testNow)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, weights[0], 1e-9)
	assert.InDelta(t, math.Pow(0.98, 10), weights[1], 1e-9)
}

func TestWrongHighConfidenceOutweighsCorrect(t *testing.T) {
	store := &fakePredictionStore{byMatch: map[int]*ValidatedPrediction{
		1: validated(1, 5, false, 0.8, models.OutcomeHome, "E0"),
		2: validated(2, 5, true, 0.8, models.OutcomeHome, "E0"),
		3: validated(3, 5, false, 0.5, models.OutcomeHome, "E0"),
	}}
	trainer := NewTrainer(store, DefaultConfig())

	set := sampleSet(sample{1, 5}, sample{2, 5}, sample{3, 5})
	weights, err := trainer.BuildSampleWeights(context.Background(), set, testNow)
	require.NoError(t, err)

	assert.Greater(t, weights[0], weights[2], "confident mistakes outweigh hesitant ones")
	assert.Greater(t, weights[2], weights[1], "any mistake outweighs a correct prediction of the same age")

	decay := math.Pow(DefaultConfig().DecayFactor, 5)
	assert.InDelta(t, decay*2.0*1.5, weights[0], 1e-9)
	assert.InDelta(t, decay*2.0, weights[2], 1e-9)
	assert.InDelta(t, decay, weights[1], 1e-9)
}

func TestAnalyzeNoData(t *testing.T) {
	trainer := NewTrainer(&fakePredictionStore{}, DefaultConfig())

	analysis, err := trainer.AnalyzePredictionErrors(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, "no_data", analysis.Status)
	assert.Empty(t, analysis.Recommendations)
}

func TestAnalyzePredictionErrors(t *testing.T) {
	store := &fakePredictionStore{}
	// Draw predictions mostly wrong, high confidence underperforming
	for i := 0; i < 10; i++ {
		store.rows = append(store.rows, validatedRecent(100+i, 3, i == 0, 0.7, models.OutcomeDraw, "E0"))
	}
	for i := 0; i < 10; i++ {
		store.rows = append(store.rows, validatedRecent(200+i, 3, true, 0.5, models.OutcomeHome, "E0"))
	}
	trainer := NewTrainer(store, DefaultConfig())

	analysis, err := trainer.AnalyzePredictionErrors(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, "ok", analysis.Status)

	assert.Equal(t, 20, analysis.Overall.Total)
	assert.InDelta(t, 11.0/20.0, analysis.Overall.Accuracy, 1e-9)

	draw := analysis.ByOutcome[models.OutcomeDraw]
	assert.Equal(t, 10, draw.Total)
	assert.InDelta(t, 0.1, draw.Accuracy, 1e-9)

	high := analysis.ByConfidence["high"]
	medium := analysis.ByConfidence["medium"]
	assert.Equal(t, 10, high.Total)
	assert.Equal(t, 10, medium.Total)

	require.NotEmpty(t, analysis.Recommendations)
	found := false
	for _, rec := range analysis.Recommendations {
		if strings.HasPrefix(rec, models.OutcomeDraw) {
			found = true
		}
	}
	assert.True(t, found, "expected a recommendation about draw predictions")
}

func TestAnalyzeWindowFiltersOldRows(t *testing.T) {
	store := &fakePredictionStore{rows: []*ValidatedPrediction{
		validatedRecent(1, 3, true, 0.6, models.OutcomeHome, "E0"),
		validatedRecent(2, 90, false, 0.6, models.OutcomeHome, "E0"),
	}}
	trainer := NewTrainer(store, DefaultConfig())

	analysis, err := trainer.AnalyzePredictionErrors(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, analysis.Overall.Total)
}

func TestGetHardNegativesDefaultLimit(t *testing.T) {
	store := &fakePredictionStore{rows: []*ValidatedPrediction{
		validated(1, 1, false, 0.8, models.OutcomeHome, "E0"),
		validated(2, 1, true, 0.9, models.OutcomeHome, "E0"),
		validated(3, 1, false, 0.3, models.OutcomeHome, "E0"),
	}}
	trainer := NewTrainer(store, DefaultConfig())

	negatives, err := trainer.GetHardNegatives(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, negatives, 1)
	assert.Equal(t, 1, negatives[0].MatchID)
}
