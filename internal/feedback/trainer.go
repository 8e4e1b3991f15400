// Package feedback turns validated prediction outcomes back into
// training signal: recent matches and past model mistakes are
// up-weighted so retraining concentrates on what the model got wrong.
package feedback

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"footypredict/pipeline/internal/features"
	"footypredict/pipeline/internal/models"
)

// ValidatedPrediction is a stored prediction joined with the context
// of its match.
type ValidatedPrediction struct {
	models.Prediction
	MatchDate  time.Time
	LeagueCode string
}

// PredictionStore is the slice of prediction persistence the feedback
// trainer needs. Implemented by repository.PredictionsRepository.
type PredictionStore interface {
	// ValidatedByMatchIDs returns validated predictions keyed by match
	// ID. Matches without a validated prediction are absent.
	ValidatedByMatchIDs(ctx context.Context, matchIDs []int) (map[int]*ValidatedPrediction, error)
	// ValidatedSince returns all predictions validated for matches
	// played on or after the given date.
	ValidatedSince(ctx context.Context, since time.Time) ([]*ValidatedPrediction, error)
	// HardNegatives returns wrong predictions with confidence >= 0.5,
	// most confident first.
	HardNegatives(ctx context.Context, limit int) ([]*ValidatedPrediction, error)
}

// Config holds the sample-weighting knobs.
type Config struct {
	// DecayFactor is the per-day multiplicative recency decay.
	DecayFactor float64
	// WrongBoost multiplies samples the model previously got wrong.
	WrongBoost float64
	// HighConfWrongBoost additionally multiplies wrong predictions
	// made with confidence above 0.6.
	HighConfWrongBoost float64
	MinWeight          float64
	MaxWeight          float64
}

// DefaultConfig returns the standard weighting configuration.
func DefaultConfig() Config {
	return Config{
		DecayFactor:        0.98,
		WrongBoost:         2.0,
		HighConfWrongBoost: 1.5,
		MinWeight:          0.1,
		MaxWeight:          5.0,
	}
}

const highConfidence = 0.6

// Trainer computes feedback-aware sample weights and mines stored
// predictions for systematic errors.
type Trainer struct {
	cfg         Config
	predictions PredictionStore
}

// NewTrainer creates a feedback trainer.
func NewTrainer(predictions PredictionStore, cfg Config) *Trainer {
	return &Trainer{cfg: cfg, predictions: predictions}
}

// BuildSampleWeights returns one weight per training-set row. Every
// sample starts at 1.0 and decays with the age of its match, floored
// at MinWeight; samples whose stored prediction was wrong are then
// boosted, more so when the model was confident. Weights are clamped
// to [MinWeight, MaxWeight].
func (t *Trainer) BuildSampleWeights(ctx context.Context, set *features.TrainingSet, now time.Time) ([]float64, error) {
	validated, err := t.predictions.ValidatedByMatchIDs(ctx, set.MatchIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load validated predictions: %w", err)
	}

	weights := make([]float64, len(set.MatchIDs))
	boosted := 0
	for i, matchID := range set.MatchIDs {
		w := 1.0
		vp := validated[matchID]

		// Sets cached before dates were recorded fall back to the
		// validated prediction's match date.
		var matchDate time.Time
		if i < len(set.MatchDates) {
			matchDate = set.MatchDates[i]
		}
		if matchDate.IsZero() && vp != nil {
			matchDate = vp.MatchDate
		}

		if !matchDate.IsZero() {
			days := now.Sub(matchDate).Hours() / 24
			if days < 0 {
				days = 0
			}
			w = math.Pow(t.cfg.DecayFactor, days)
			if w < t.cfg.MinWeight {
				w = t.cfg.MinWeight
			}
		}

		if vp != nil && vp.IsCorrect.Valid && !vp.IsCorrect.Bool {
			w *= t.cfg.WrongBoost
			if vp.ConfidenceScore > highConfidence {
				w *= t.cfg.HighConfWrongBoost
			}
			boosted++
		}

		if w < t.cfg.MinWeight {
			w = t.cfg.MinWeight
		}
		if w > t.cfg.MaxWeight {
			w = t.cfg.MaxWeight
		}
		weights[i] = w
	}

	log.Info().
		Int("samples", len(weights)).
		Int("with_feedback", len(validated)).
		Int("boosted", boosted).
		Msg("Built feedback sample weights")
	return weights, nil
}

// OutcomeStats aggregates accuracy over one slice of predictions.
type OutcomeStats struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// ErrorAnalysis summarizes where recent predictions went wrong.
type ErrorAnalysis struct {
	Status          string                  `json:"status"`
	Days            int                     `json:"days"`
	Overall         OutcomeStats            `json:"overall"`
	ByOutcome       map[string]OutcomeStats `json:"by_outcome"`
	ByConfidence    map[string]OutcomeStats `json:"by_confidence"`
	ByLeague        map[string]OutcomeStats `json:"by_league"`
	Recommendations []string                `json:"recommendations"`
}

// AnalyzePredictionErrors reviews validated predictions for matches in
// the last days days and flags systematic weaknesses. Status is
// "no_data" when nothing has been validated in the window.
func (t *Trainer) AnalyzePredictionErrors(ctx context.Context, days int) (*ErrorAnalysis, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := t.predictions.ValidatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load validated predictions: %w", err)
	}

	analysis := &ErrorAnalysis{
		Days:         days,
		ByOutcome:    make(map[string]OutcomeStats),
		ByConfidence: make(map[string]OutcomeStats),
		ByLeague:     make(map[string]OutcomeStats),
	}
	if len(rows) == 0 {
		analysis.Status = "no_data"
		return analysis, nil
	}
	analysis.Status = "ok"

	for _, row := range rows {
		correct := row.IsCorrect.Valid && row.IsCorrect.Bool

		tally(&analysis.Overall, correct)
		tallyMap(analysis.ByOutcome, row.RecommendedOutcome, correct)
		tallyMap(analysis.ByConfidence, confidenceBand(row.ConfidenceScore), correct)
		tallyMap(analysis.ByLeague, row.LeagueCode, correct)
	}
	finalize(&analysis.Overall)
	finalizeMap(analysis.ByOutcome)
	finalizeMap(analysis.ByConfidence)
	finalizeMap(analysis.ByLeague)

	analysis.Recommendations = t.recommendations(analysis)
	return analysis, nil
}

// GetHardNegatives returns the most confident wrong predictions, the
// samples retraining benefits most from.
func (t *Trainer) GetHardNegatives(ctx context.Context, limit int) ([]*ValidatedPrediction, error) {
	if limit <= 0 {
		limit = 100
	}
	return t.predictions.HardNegatives(ctx, limit)
}

func (t *Trainer) recommendations(a *ErrorAnalysis) []string {
	var recs []string

	for _, outcome := range []string{models.OutcomeHome, models.OutcomeDraw, models.OutcomeAway} {
		s, ok := a.ByOutcome[outcome]
		if ok && s.Total > 0 && s.Accuracy < 0.35 {
			recs = append(recs, fmt.Sprintf(
				"%s predictions are only %.0f%% accurate over %d samples, review the features driving them",
				outcome, s.Accuracy*100, s.Total))
		}
	}

	high, hasHigh := a.ByConfidence["high"]
	low, hasLow := a.ByConfidence["low"]
	if hasHigh && hasLow && high.Total > 0 && low.Total > 0 && high.Accuracy < low.Accuracy {
		recs = append(recs, fmt.Sprintf(
			"high-confidence predictions (%.0f%%) underperform low-confidence ones (%.0f%%), probabilities look miscalibrated",
			high.Accuracy*100, low.Accuracy*100))
	}

	for league, s := range a.ByLeague {
		if s.Total >= 10 && s.Accuracy < 0.30 {
			recs = append(recs, fmt.Sprintf(
				"accuracy in %s is %.0f%% over %d matches, consider league-specific features or excluding it",
				league, s.Accuracy*100, s.Total))
		}
	}

	return recs
}

func confidenceBand(confidence float64) string {
	switch {
	case confidence >= highConfidence:
		return "high"
	case confidence >= 0.45:
		return "medium"
	default:
		return "low"
	}
}

func tally(s *OutcomeStats, correct bool) {
	s.Total++
	if correct {
		s.Correct++
	}
}

func tallyMap(m map[string]OutcomeStats, key string, correct bool) {
	s := m[key]
	tally(&s, correct)
	m[key] = s
}

func finalize(s *OutcomeStats) {
	if s.Total > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Total)
	}
}

func finalizeMap(m map[string]OutcomeStats) {
	for key, s := range m {
		finalize(&s)
		m[key] = s
	}
}
