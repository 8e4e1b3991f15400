package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Database
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"footypredict"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"footy_user"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSL_MODE" default:"disable"`

	// Redis (optional prediction cache for the API layer)
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Pipeline directories
	ModelDir        string `envconfig:"MODEL_DIR" default:"models"`
	FeatureCacheDir string `envconfig:"FEATURE_CACHE_DIR" default:"cache/features"`

	// Training
	TrainingSeasons  []string `envconfig:"TRAINING_SEASONS" default:"2324,2223,2122,2021,1920"`
	TrainingLeagues  []string `envconfig:"TRAINING_LEAGUES"`
	MinTrainingRows  int      `envconfig:"MIN_TRAINING_ROWS" default:"100"`
	TuneHyperparams  bool     `envconfig:"TUNE_HYPERPARAMS" default:"false"`
	FeedbackTraining bool     `envconfig:"FEEDBACK_TRAINING" default:"true"`

	// Prediction
	PredictDaysAhead int `envconfig:"PREDICT_DAYS_AHEAD" default:"7"`

	// Scheduler
	EnableScheduler bool   `envconfig:"ENABLE_SCHEDULER" default:"true"`
	RetrainCron     string `envconfig:"RETRAIN_CRON" default:"0 3 * * 1"`
	PredictCron     string `envconfig:"PREDICT_CRON" default:"0 6 * * *"`
	ValidateCron    string `envconfig:"VALIDATE_CRON" default:"30 * * * *"`

	// Caching TTL
	CacheTTLPredictions time.Duration `envconfig:"CACHE_TTL_PREDICTIONS" default:"10m"`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
	MetricsPort   int  `envconfig:"METRICS_PORT" default:"9090"`
}

// Load loads configuration from environment variables.
// It first attempts to load from a .env file if one exists.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if len(c.TrainingSeasons) == 0 {
		return fmt.Errorf("TRAINING_SEASONS must list at least one season code")
	}

	if c.MinTrainingRows < 1 {
		return fmt.Errorf("MIN_TRAINING_ROWS must be positive")
	}

	return nil
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// MustLoad loads configuration or exits on error.
// Use this in main() where we want to fail fast.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
