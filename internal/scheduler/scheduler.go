// Package scheduler runs the pipeline's recurring jobs: weekly
// retraining, daily upcoming-fixture prediction and hourly validation
// of finished matches.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"footypredict/pipeline/internal/config"
	"footypredict/pipeline/internal/feedback"
	"footypredict/pipeline/internal/features"
	"footypredict/pipeline/internal/inference"
	"footypredict/pipeline/internal/metrics"
	"footypredict/pipeline/internal/training"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler wires the pipeline stages together and drives them on
// cron schedules. Its Run* methods are also callable directly, which
// is how the CLI reuses the orchestration.
type Scheduler struct {
	cfg       *config.Config
	extractor *features.Extractor
	trainer   *training.Trainer
	feedback  *feedback.Trainer
	predictor *inference.Predictor
	cron      *cron.Cron

	// Guards training so overlapping cron fires never train twice
	trainMu sync.Mutex
}

// NewScheduler creates a scheduler over fully constructed pipeline
// stages.
func NewScheduler(cfg *config.Config, extractor *features.Extractor, trainer *training.Trainer, fb *feedback.Trainer, predictor *inference.Predictor) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		extractor: extractor,
		trainer:   trainer,
		feedback:  fb,
		predictor: predictor,
		cron:      cron.New(),
	}
}

// Start registers the cron jobs and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.cfg.RetrainCron, func() {
		if _, err := s.RunTraining(ctx, s.cfg.FeedbackTraining); err != nil {
			log.Error().Err(err).Msg("Scheduled training failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule retraining: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.PredictCron, func() {
		if err := s.RunPredictions(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled prediction run failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule predictions: %w", err)
	}

	if _, err := s.cron.AddFunc(s.cfg.ValidateCron, func() {
		if err := s.RunValidation(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled validation failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule validation: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("retrain", s.cfg.RetrainCron).
		Str("predict", s.cfg.PredictCron).
		Str("validate", s.cfg.ValidateCron).
		Msg("Pipeline jobs scheduled")

	return nil
}

// Stop stops the scheduler, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	log.Info().Msg("Scheduler stopped")
}

// TrainingOutcome reports one end-to-end training run.
type TrainingOutcome struct {
	Version  string
	Samples  int
	Result   *training.ClassifierMetrics
	Goals    *training.RegressorMetrics
	Over25   *training.ClassifierMetrics
	Feedback bool
}

// RunTraining executes the full training pipeline: build the training
// set, optionally derive feedback sample weights, fit the three
// models, persist the bundle and activate it.
func (s *Scheduler) RunTraining(ctx context.Context, useFeedback bool) (*TrainingOutcome, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	mode := "standard"
	if useFeedback {
		mode = "feedback"
	}
	start := time.Now()
	outcome, err := s.train(ctx, useFeedback)
	metrics.RecordTrainingRun(mode, err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}

	metrics.RecordModelAccuracy("result", outcome.Result.Accuracy)
	metrics.RecordModelAccuracy("over25", outcome.Over25.Accuracy)

	log.Info().
		Str("version", outcome.Version).
		Int("samples", outcome.Samples).
		Float64("accuracy", outcome.Result.Accuracy).
		Dur("duration", time.Since(start)).
		Msg("Training run complete")
	return outcome, nil
}

func (s *Scheduler) train(ctx context.Context, useFeedback bool) (*TrainingOutcome, error) {
	set, err := s.extractor.BuildTrainingData(ctx, s.cfg.TrainingSeasons, s.cfg.TrainingLeagues, nil, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build training data: %w", err)
	}
	if set.Features.Len() < s.cfg.MinTrainingRows {
		return nil, fmt.Errorf("only %d training rows, need at least %d", set.Features.Len(), s.cfg.MinTrainingRows)
	}

	var weights []float64
	if useFeedback && s.feedback != nil {
		weights, err = s.feedback.BuildSampleWeights(ctx, set, time.Now().UTC())
		if err != nil {
			// Feedback weighting is best-effort, fall back to uniform
			log.Warn().Err(err).Msg("Feedback weighting unavailable, training unweighted")
			weights = nil
		}
	}

	resultMetrics, err := s.trainer.TrainResultModel(set, weights, s.cfg.TuneHyperparams)
	if err != nil {
		return nil, fmt.Errorf("failed to train result model: %w", err)
	}
	goalsMetrics, err := s.trainer.TrainGoalsModel(set, weights)
	if err != nil {
		return nil, fmt.Errorf("failed to train goals model: %w", err)
	}
	over25Metrics, err := s.trainer.TrainOver25Model(set, weights)
	if err != nil {
		return nil, fmt.Errorf("failed to train over-2.5 model: %w", err)
	}

	mv, err := s.trainer.SaveModels(ctx, "", training.SaveInfo{
		Seasons:  s.cfg.TrainingSeasons,
		Leagues:  s.cfg.TrainingLeagues,
		Samples:  set.Features.Len(),
		Accuracy: resultMetrics.Accuracy,
		LogLoss:  resultMetrics.LogLoss,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save models: %w", err)
	}

	return &TrainingOutcome{
		Version:  mv.Version,
		Samples:  set.Features.Len(),
		Result:   resultMetrics,
		Goals:    goalsMetrics,
		Over25:   over25Metrics,
		Feedback: useFeedback && weights != nil,
	}, nil
}

// RunPredictions predicts and stores all upcoming fixtures in the
// configured window.
func (s *Scheduler) RunPredictions(ctx context.Context) error {
	start := time.Now()

	results, err := s.predictor.PredictUpcoming(ctx, s.cfg.PredictDaysAhead, s.cfg.TrainingLeagues, true)
	if err != nil {
		return fmt.Errorf("failed to predict upcoming fixtures: %w", err)
	}

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}

	log.Info().
		Int("predicted", len(results)-failed).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Prediction run complete")
	return nil
}

// RunValidation validates stored predictions against finished matches.
func (s *Scheduler) RunValidation(ctx context.Context) error {
	validated, err := s.predictor.ValidatePredictions(ctx)
	if err != nil {
		return fmt.Errorf("failed to validate predictions: %w", err)
	}

	log.Debug().Int("validated", validated).Msg("Validation run complete")
	return nil
}
