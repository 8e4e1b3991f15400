package repository

import (
	"context"
	"fmt"
	"time"

	"footypredict/pipeline/internal/feedback"
	"footypredict/pipeline/internal/inference"
	"footypredict/pipeline/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// PredictionsRepository handles prediction database operations. It
// serves both the inference side (upsert, validation) and the feedback
// side (validated lookups, hard negatives).
type PredictionsRepository struct {
	db *Database
}

const predictionColumns = `
	p.id, p.match_id,
	p.home_win_probability, p.draw_probability, p.away_win_probability, p.over_25_probability,
	p.predicted_home_score, p.predicted_away_score, p.predicted_total,
	p.confidence_score, p.prediction_strength, p.recommended_outcome,
	p.model_version, p.model_type, p.key_factors,
	p.is_correct, p.actual_outcome,
	p.created_at, p.updated_at`

func scanPrediction(row pgx.Row) (*models.Prediction, error) {
	var p models.Prediction
	err := row.Scan(
		&p.ID, &p.MatchID,
		&p.HomeWinProbability, &p.DrawProbability, &p.AwayWinProbability, &p.Over25Probability,
		&p.PredictedHomeScore, &p.PredictedAwayScore, &p.PredictedTotal,
		&p.ConfidenceScore, &p.PredictionStrength, &p.RecommendedOutcome,
		&p.ModelVersion, &p.ModelType, &p.KeyFactors,
		&p.IsCorrect, &p.ActualOutcome,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert inserts or replaces the prediction for a match. Re-predicting
// resets any previous validation.
func (r *PredictionsRepository) Upsert(ctx context.Context, p *models.Prediction) error {
	query := `
		INSERT INTO predictions (
			match_id,
			home_win_probability, draw_probability, away_win_probability, over_25_probability,
			predicted_home_score, predicted_away_score, predicted_total,
			confidence_score, prediction_strength, recommended_outcome,
			model_version, model_type, key_factors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (match_id) DO UPDATE SET
			home_win_probability = EXCLUDED.home_win_probability,
			draw_probability = EXCLUDED.draw_probability,
			away_win_probability = EXCLUDED.away_win_probability,
			over_25_probability = EXCLUDED.over_25_probability,
			predicted_home_score = EXCLUDED.predicted_home_score,
			predicted_away_score = EXCLUDED.predicted_away_score,
			predicted_total = EXCLUDED.predicted_total,
			confidence_score = EXCLUDED.confidence_score,
			prediction_strength = EXCLUDED.prediction_strength,
			recommended_outcome = EXCLUDED.recommended_outcome,
			model_version = EXCLUDED.model_version,
			model_type = EXCLUDED.model_type,
			key_factors = EXCLUDED.key_factors,
			is_correct = NULL,
			actual_outcome = NULL,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(
		ctx, query,
		p.MatchID,
		p.HomeWinProbability, p.DrawProbability, p.AwayWinProbability, p.Over25Probability,
		p.PredictedHomeScore, p.PredictedAwayScore, p.PredictedTotal,
		p.ConfidenceScore, p.PredictionStrength, p.RecommendedOutcome,
		p.ModelVersion, p.ModelType, p.KeyFactors,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert prediction: %w", err)
	}

	log.Debug().
		Int("id", p.ID).
		Int("match_id", p.MatchID).
		Str("outcome", p.RecommendedOutcome).
		Float64("confidence", p.ConfidenceScore).
		Msg("Prediction upserted")

	return nil
}

// GetByMatchID retrieves the prediction for a match, or nil when the
// match has not been predicted.
func (r *PredictionsRepository) GetByMatchID(ctx context.Context, matchID int) (*models.Prediction, error) {
	query := `SELECT` + predictionColumns + ` FROM predictions p WHERE p.match_id = $1`

	p, err := scanPrediction(r.db.Pool.QueryRow(ctx, query, matchID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// PendingValidations returns finished matches whose prediction has not
// been validated yet.
func (r *PredictionsRepository) PendingValidations(ctx context.Context) ([]inference.PendingValidation, error) {
	query := `SELECT` + predictionColumns + `,` + matchColumns + `
		FROM predictions p
		JOIN matches m ON m.id = p.match_id
		LEFT JOIN match_statistics s ON s.match_id = m.id
		LEFT JOIN match_odds o ON o.match_id = m.id
		WHERE m.status = $1
		  AND m.home_score IS NOT NULL
		  AND m.away_score IS NOT NULL
		  AND p.is_correct IS NULL
		ORDER BY m.match_date ASC`

	rows, err := r.db.Pool.Query(ctx, query, models.StatusFinished)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending validations: %w", err)
	}
	defer rows.Close()

	var pending []inference.PendingValidation
	for rows.Next() {
		var p models.Prediction
		var m models.Match
		err := rows.Scan(
			&p.ID, &p.MatchID,
			&p.HomeWinProbability, &p.DrawProbability, &p.AwayWinProbability, &p.Over25Probability,
			&p.PredictedHomeScore, &p.PredictedAwayScore, &p.PredictedTotal,
			&p.ConfidenceScore, &p.PredictionStrength, &p.RecommendedOutcome,
			&p.ModelVersion, &p.ModelType, &p.KeyFactors,
			&p.IsCorrect, &p.ActualOutcome,
			&p.CreatedAt, &p.UpdatedAt,
			&m.ID, &m.SeasonCode, &m.LeagueCode, &m.HomeTeamID, &m.AwayTeamID,
			&m.MatchDate, &m.Matchweek, &m.Status,
			&m.HomeScore, &m.AwayScore, &m.HomeHalftimeScore, &m.AwayHalftimeScore,
			&m.ShotsHome, &m.ShotsAway, &m.CornersHome, &m.CornersAway, &m.XGHome, &m.XGAway,
			&m.HomeOdds, &m.DrawOdds, &m.AwayOdds, &m.Over25Odds, &m.Under25Odds,
			&m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending validation: %w", err)
		}
		pending = append(pending, inference.PendingValidation{Match: &m, Prediction: &p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending validations: %w", err)
	}
	return pending, nil
}

// MarkValidated records the actual outcome for one prediction.
func (r *PredictionsRepository) MarkValidated(ctx context.Context, predictionID int, actualOutcome string, correct bool) error {
	query := `
		UPDATE predictions
		SET is_correct = $2, actual_outcome = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, predictionID, correct, actualOutcome)
	if err != nil {
		return fmt.Errorf("failed to validate prediction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prediction not found: id=%d", predictionID)
	}
	return nil
}

const validatedColumns = predictionColumns + `, m.match_date, m.league_code`

func (r *PredictionsRepository) queryValidated(ctx context.Context, query string, args ...any) ([]*feedback.ValidatedPrediction, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query validated predictions: %w", err)
	}
	defer rows.Close()

	var out []*feedback.ValidatedPrediction
	for rows.Next() {
		var vp feedback.ValidatedPrediction
		err := rows.Scan(
			&vp.ID, &vp.MatchID,
			&vp.HomeWinProbability, &vp.DrawProbability, &vp.AwayWinProbability, &vp.Over25Probability,
			&vp.PredictedHomeScore, &vp.PredictedAwayScore, &vp.PredictedTotal,
			&vp.ConfidenceScore, &vp.PredictionStrength, &vp.RecommendedOutcome,
			&vp.ModelVersion, &vp.ModelType, &vp.KeyFactors,
			&vp.IsCorrect, &vp.ActualOutcome,
			&vp.CreatedAt, &vp.UpdatedAt,
			&vp.MatchDate, &vp.LeagueCode,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan validated prediction: %w", err)
		}
		out = append(out, &vp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read validated predictions: %w", err)
	}
	return out, nil
}

// ValidatedByMatchIDs returns validated predictions keyed by match ID.
func (r *PredictionsRepository) ValidatedByMatchIDs(ctx context.Context, matchIDs []int) (map[int]*feedback.ValidatedPrediction, error) {
	query := `SELECT` + validatedColumns + `
		FROM predictions p
		JOIN matches m ON m.id = p.match_id
		WHERE p.match_id = ANY($1)
		  AND p.is_correct IS NOT NULL`

	rows, err := r.queryValidated(ctx, query, matchIDs)
	if err != nil {
		return nil, err
	}

	byMatch := make(map[int]*feedback.ValidatedPrediction, len(rows))
	for _, vp := range rows {
		byMatch[vp.MatchID] = vp
	}
	return byMatch, nil
}

// ValidatedSince returns validated predictions for matches played on
// or after the given date.
func (r *PredictionsRepository) ValidatedSince(ctx context.Context, since time.Time) ([]*feedback.ValidatedPrediction, error) {
	query := `SELECT` + validatedColumns + `
		FROM predictions p
		JOIN matches m ON m.id = p.match_id
		WHERE p.is_correct IS NOT NULL
		  AND m.match_date >= $1
		ORDER BY m.match_date ASC`

	return r.queryValidated(ctx, query, since)
}

// HardNegatives returns confident wrong predictions, most confident
// first.
func (r *PredictionsRepository) HardNegatives(ctx context.Context, limit int) ([]*feedback.ValidatedPrediction, error) {
	query := `SELECT` + validatedColumns + `
		FROM predictions p
		JOIN matches m ON m.id = p.match_id
		WHERE p.is_correct = FALSE
		  AND p.confidence_score >= 0.5
		ORDER BY p.confidence_score DESC
		LIMIT $1`

	return r.queryValidated(ctx, query, limit)
}
