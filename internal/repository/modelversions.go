package repository

import (
	"context"
	"fmt"

	"footypredict/pipeline/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// ModelVersionsRepository tracks persisted model bundles. It is the
// database-backed training.Registry: exactly one row is active at a
// time.
type ModelVersionsRepository struct {
	db *Database
}

const modelVersionColumns = `
	id, version, status, model_type, model_path,
	trained_at, training_samples, training_seasons, training_leagues,
	accuracy, log_loss, feature_names,
	created_at, updated_at`

func scanModelVersion(row pgx.Row) (*models.ModelVersion, error) {
	var mv models.ModelVersion
	err := row.Scan(
		&mv.ID, &mv.Version, &mv.Status, &mv.ModelType, &mv.ModelPath,
		&mv.TrainedAt, &mv.TrainingSamples, &mv.TrainingSeasons, &mv.TrainingLeagues,
		&mv.Accuracy, &mv.LogLoss, &mv.FeatureNames,
		&mv.CreatedAt, &mv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &mv, nil
}

// GetActive returns the active model version, or nil when no model has
// been registered yet.
func (r *ModelVersionsRepository) GetActive(ctx context.Context) (*models.ModelVersion, error) {
	query := `SELECT` + modelVersionColumns + `
		FROM model_versions
		WHERE status = $1`

	mv, err := scanModelVersion(r.db.Pool.QueryRow(ctx, query, models.VersionActive))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active model version: %w", err)
	}
	return mv, nil
}

// SetActive registers a model version as active, archiving the
// previous active version in the same transaction.
func (r *ModelVersionsRepository) SetActive(ctx context.Context, mv *models.ModelVersion) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	archive := `UPDATE model_versions SET status = $1, updated_at = NOW() WHERE status = $2`
	if _, err := tx.Exec(ctx, archive, models.VersionArchived, models.VersionActive); err != nil {
		return fmt.Errorf("failed to archive previous model version: %w", err)
	}

	insert := `
		INSERT INTO model_versions (
			version, status, model_type, model_path,
			trained_at, training_samples, training_seasons, training_leagues,
			accuracy, log_loss, feature_names
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (version) DO UPDATE SET
			status = EXCLUDED.status,
			model_type = EXCLUDED.model_type,
			model_path = EXCLUDED.model_path,
			trained_at = EXCLUDED.trained_at,
			training_samples = EXCLUDED.training_samples,
			training_seasons = EXCLUDED.training_seasons,
			training_leagues = EXCLUDED.training_leagues,
			accuracy = EXCLUDED.accuracy,
			log_loss = EXCLUDED.log_loss,
			feature_names = EXCLUDED.feature_names,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(
		ctx, insert,
		mv.Version, models.VersionActive, mv.ModelType, mv.ModelPath,
		mv.TrainedAt, mv.TrainingSamples, mv.TrainingSeasons, mv.TrainingLeagues,
		mv.Accuracy, mv.LogLoss, mv.FeatureNames,
	).Scan(&mv.ID, &mv.CreatedAt, &mv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert model version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit model version: %w", err)
	}

	mv.Status = models.VersionActive
	log.Info().Str("version", mv.Version).Str("path", mv.ModelPath).Msg("Model version activated")
	return nil
}

// GetByVersion returns one model version by its version string, or nil
// when it does not exist.
func (r *ModelVersionsRepository) GetByVersion(ctx context.Context, version string) (*models.ModelVersion, error) {
	query := `SELECT` + modelVersionColumns + `
		FROM model_versions
		WHERE version = $1`

	mv, err := scanModelVersion(r.db.Pool.QueryRow(ctx, query, version))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model version: %w", err)
	}
	return mv, nil
}

// List returns all model versions, newest first.
func (r *ModelVersionsRepository) List(ctx context.Context) ([]*models.ModelVersion, error) {
	query := `SELECT` + modelVersionColumns + `
		FROM model_versions
		ORDER BY trained_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query model versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.ModelVersion
	for rows.Next() {
		mv, err := scanModelVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model version: %w", err)
		}
		versions = append(versions, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read model versions: %w", err)
	}
	return versions, nil
}
