package models

import (
	"database/sql"
	"time"
)

// Model version lifecycle
const (
	VersionTraining = "training"
	VersionActive   = "active"
	VersionArchived = "archived"
)

// ModelVersion tracks a persisted model bundle and its metadata.
// Exactly one row is active at a time.
type ModelVersion struct {
	ID        int    `db:"id"`
	Version   string `db:"version"`
	Status    string `db:"status"`
	ModelType string `db:"model_type"`
	ModelPath string `db:"model_path"`

	TrainedAt       time.Time `db:"trained_at"`
	TrainingSamples int       `db:"training_samples"`
	TrainingSeasons []string  `db:"training_seasons"`
	TrainingLeagues []string  `db:"training_leagues"`

	Accuracy sql.NullFloat64 `db:"accuracy"`
	LogLoss  sql.NullFloat64 `db:"log_loss"`

	FeatureNames []string `db:"feature_names"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
