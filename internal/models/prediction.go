package models

import (
	"database/sql"
	"time"
)

// Recommended outcomes
const (
	OutcomeHome = "HOME"
	OutcomeDraw = "DRAW"
	OutcomeAway = "AWAY"
)

// Prediction strength buckets, derived purely from confidence
const (
	StrengthStrong   = "strong"   // confidence >= 0.70
	StrengthModerate = "moderate" // confidence >= 0.55
	StrengthWeak     = "weak"
)

// Prediction represents a stored model prediction for one match.
// Exactly one row per match; re-predicting overwrites.
type Prediction struct {
	ID      int `db:"id"`
	MatchID int `db:"match_id"`

	// Probabilities (sum ~= 1.0)
	HomeWinProbability float64 `db:"home_win_probability"`
	DrawProbability    float64 `db:"draw_probability"`
	AwayWinProbability float64 `db:"away_win_probability"`
	Over25Probability  float64 `db:"over_25_probability"`

	// Predicted score components
	PredictedHomeScore sql.NullFloat64 `db:"predicted_home_score"`
	PredictedAwayScore sql.NullFloat64 `db:"predicted_away_score"`
	PredictedTotal     sql.NullFloat64 `db:"predicted_total"`

	ConfidenceScore    float64 `db:"confidence_score"`
	PredictionStrength string  `db:"prediction_strength"`
	RecommendedOutcome string  `db:"recommended_outcome"`

	ModelVersion string `db:"model_version"`
	ModelType    string `db:"model_type"`

	KeyFactors []string `db:"key_factors"`

	// Validation, filled once the match finishes
	IsCorrect     sql.NullBool   `db:"is_correct"`
	ActualOutcome sql.NullString `db:"actual_outcome"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// StrengthFor maps a confidence score to its strength bucket.
func StrengthFor(confidence float64) string {
	switch {
	case confidence >= 0.70:
		return StrengthStrong
	case confidence >= 0.55:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
