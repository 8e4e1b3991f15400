// pipectl is the operator CLI for the prediction pipeline: run
// training, generate predictions, evaluate the active model and mine
// stored predictions for systematic errors.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"footypredict/pipeline/internal/config"
	"footypredict/pipeline/internal/features"
	"footypredict/pipeline/internal/feedback"
	"footypredict/pipeline/internal/inference"
	"footypredict/pipeline/internal/models"
	"footypredict/pipeline/internal/repository"
	"footypredict/pipeline/internal/scheduler"
	"footypredict/pipeline/internal/training"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app bundles the wired pipeline stages for one CLI invocation.
type app struct {
	cfg       *config.Config
	db        *repository.Database
	extractor *features.Extractor
	trainer   *training.Trainer
	feedback  *feedback.Trainer
	predictor *inference.Predictor
	sched     *scheduler.Scheduler
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		return nil, err
	}

	extractor := features.NewExtractor(db.Matches, db.Stats, cfg.FeatureCacheDir)
	trainer := training.NewTrainer(cfg.ModelDir, db.ModelVersions)
	fb := feedback.NewTrainer(db.Predictions, feedback.DefaultConfig())
	predictor := inference.NewPredictor(extractor, trainer, db.Matches, db.Predictions, nil)

	return &app{
		cfg:       cfg,
		db:        db,
		extractor: extractor,
		trainer:   trainer,
		feedback:  fb,
		predictor: predictor,
		sched:     scheduler.NewScheduler(cfg, extractor, trainer, fb, predictor),
	}, nil
}

func (a *app) close() {
	a.db.Close()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	root := &cobra.Command{
		Use:           "pipectl",
		Short:         "Operate the football prediction pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		trainCmd(),
		predictCmd(),
		validateCmd(),
		evaluateCmd(),
		analyzeErrorsCmd(),
		importanceCmd(),
		versionsCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func trainCmd() *cobra.Command {
	var useFeedback bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train and activate a new model bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			outcome, err := a.sched.RunTraining(ctx, useFeedback)
			if err != nil {
				return err
			}

			fmt.Printf("Trained model version %s on %d samples\n", outcome.Version, outcome.Samples)
			fmt.Printf("  result:   accuracy %.4f, log loss %.4f\n", outcome.Result.Accuracy, outcome.Result.LogLoss)
			fmt.Printf("  goals:    rmse %.4f, mae %.4f\n", outcome.Goals.RMSE, outcome.Goals.MAE)
			fmt.Printf("  over 2.5: accuracy %.4f, log loss %.4f\n", outcome.Over25.Accuracy, outcome.Over25.LogLoss)
			if outcome.Feedback {
				fmt.Println("  trained with feedback sample weights")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useFeedback, "feedback", false, "weight samples by past prediction errors")
	return cmd
}

func predictCmd() *cobra.Command {
	var (
		days int
		save bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict upcoming fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.predictor.PredictUpcoming(ctx, days, a.cfg.TrainingLeagues, save)
			if err != nil {
				return err
			}

			for _, res := range results {
				if res.Error != "" {
					fmt.Printf("match %d: ERROR %s\n", res.MatchID, res.Error)
					continue
				}
				fmt.Printf("match %d (%s): %s %.1f%% (H %.2f / D %.2f / A %.2f, O2.5 %.2f) risk=%s\n",
					res.MatchID, res.MatchDate.Format("2006-01-02"),
					res.Outcome, res.Confidence*100,
					res.HomeWinProb, res.DrawProb, res.AwayWinProb, res.Over25Prob,
					res.RiskLevel)
			}
			fmt.Printf("%d fixtures predicted\n", len(results))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "days ahead to predict")
	cmd.Flags().BoolVar(&save, "save", true, "persist predictions to the database")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate stored predictions against finished matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			validated, err := a.predictor.ValidatePredictions(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d predictions validated\n", validated)
			return nil
		},
	}
}

func evaluateCmd() *cobra.Command {
	var seasons []string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the active model over historical seasons",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if len(seasons) == 0 {
				seasons = a.cfg.TrainingSeasons[:1]
			}

			if err := a.trainer.LoadModels(ctx, ""); err != nil {
				return err
			}

			set, err := a.extractor.BuildTrainingData(ctx, seasons, a.cfg.TrainingLeagues, nil, false)
			if err != nil {
				return err
			}

			frame := set.Features.Select(a.trainer.FeatureColumns)
			proba := make([][]float64, frame.Len())
			for i, row := range frame.Rows {
				clean := make([]float64, len(row))
				for j, v := range row {
					if math.IsNaN(v) || math.IsInf(v, 0) {
						v = 0
					}
					clean[j] = v
				}
				proba[i] = a.trainer.ResultModel.PredictProba(a.trainer.Scaler.TransformRow(clean))
			}

			odds, err := matchOddsByID(ctx, a, seasons, set.MatchIDs)
			if err != nil {
				return err
			}

			ev, err := training.Evaluator{}.Evaluate(set.ResultLabels, proba, odds)
			if err != nil {
				return err
			}
			fmt.Print(ev.GenerateReport())
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&seasons, "seasons", nil, "season codes to evaluate (default: most recent training season)")
	return cmd
}

// matchOddsByID aligns stored market odds with the evaluation rows.
func matchOddsByID(ctx context.Context, a *app, seasons []string, matchIDs []int) ([]training.MatchOdds, error) {
	matches, err := a.db.Matches.FinishedBySeasons(ctx, seasons, a.cfg.TrainingLeagues)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]*models.Match, len(matches))
	for _, m := range matches {
		byID[m.ID] = m
	}

	odds := make([]training.MatchOdds, len(matchIDs))
	for i, id := range matchIDs {
		m := byID[id]
		if m == nil || !m.HomeOdds.Valid {
			continue
		}
		odds[i] = training.MatchOdds{
			Home: m.HomeOdds.Float64,
			Draw: m.DrawOdds.Float64,
			Away: m.AwayOdds.Float64,
		}
	}
	return odds, nil
}

func analyzeErrorsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "analyze-errors",
		Short: "Summarize where recent predictions went wrong",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			analysis, err := a.feedback.AnalyzePredictionErrors(ctx, days)
			if err != nil {
				return err
			}
			if analysis.Status == "no_data" {
				fmt.Printf("no validated predictions in the last %d days\n", analysis.Days)
				return nil
			}

			fmt.Printf("Validated predictions, last %d days: %d (accuracy %.1f%%)\n",
				analysis.Days, analysis.Overall.Total, analysis.Overall.Accuracy*100)

			fmt.Println("\nBy recommended outcome:")
			for _, outcome := range []string{models.OutcomeHome, models.OutcomeDraw, models.OutcomeAway} {
				if s, ok := analysis.ByOutcome[outcome]; ok {
					fmt.Printf("  %-5s %3d predictions, %.1f%% accurate\n", outcome, s.Total, s.Accuracy*100)
				}
			}

			fmt.Println("\nBy confidence:")
			for _, band := range []string{"high", "medium", "low"} {
				if s, ok := analysis.ByConfidence[band]; ok {
					fmt.Printf("  %-6s %3d predictions, %.1f%% accurate\n", band, s.Total, s.Accuracy*100)
				}
			}

			if len(analysis.Recommendations) > 0 {
				fmt.Println("\nRecommendations:")
				for _, rec := range analysis.Recommendations {
					fmt.Printf("  - %s\n", rec)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "analysis window in days")
	return cmd
}

func importanceCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "importance",
		Short: "Show the active model's feature importances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.trainer.LoadModels(ctx, ""); err != nil {
				return err
			}

			importances, err := a.trainer.GetFeatureImportance()
			if err != nil {
				return err
			}
			if top > 0 && top < len(importances) {
				importances = importances[:top]
			}

			for _, fi := range importances {
				fmt.Printf("%-40s %.4f\n", fi.Feature, fi.Importance)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 20, "number of features to show (0 for all)")
	return cmd
}

func versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List registered model versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			versions, err := a.db.ModelVersions.List(ctx)
			if err != nil {
				return err
			}

			for _, v := range versions {
				acc := "n/a"
				if v.Accuracy.Valid {
					acc = fmt.Sprintf("%.4f", v.Accuracy.Float64)
				}
				fmt.Printf("%-20s %-9s trained %s  samples=%d  accuracy=%s\n",
					v.Version, v.Status, v.TrainedAt.Format("2006-01-02 15:04"),
					v.TrainingSamples, acc)
			}
			return nil
		},
	}
}
