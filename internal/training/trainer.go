package training

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"footypredict/pipeline/internal/features"
	"footypredict/pipeline/internal/models"
	"footypredict/pipeline/internal/training/gbm"
)

// Bundle file names inside a version directory.
const (
	resultModelFile = "result_model.json"
	goalsModelFile  = "goals_model.json"
	over25ModelFile = "over25_model.json"
	scalerFile      = "scaler.json"
	featuresFile    = "features.json"
	metadataFile    = "metadata.json"
)

// ModelTypeEnsemble identifies the boosted three-model bundle in the
// model version registry.
const ModelTypeEnsemble = "gbm_ensemble"

const defaultValFraction = 0.2

// Registry records persisted model versions and tracks which one is
// active. Implemented by repository.ModelVersionsRepository.
type Registry interface {
	GetActive(ctx context.Context) (*models.ModelVersion, error)
	SetActive(ctx context.Context, version *models.ModelVersion) error
}

// ClassMetrics is the per-class slice of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassifierMetrics summarizes a classifier's holdout performance.
type ClassifierMetrics struct {
	Accuracy     float64                 `json:"accuracy"`
	LogLoss      float64                 `json:"log_loss"`
	TrainSamples int                     `json:"train_samples"`
	ValSamples   int                     `json:"val_samples"`
	NumFeatures  int                     `json:"num_features"`
	ClassReport  map[string]ClassMetrics `json:"class_report"`
}

// RegressorMetrics summarizes the goals regressor's holdout performance.
type RegressorMetrics struct {
	RMSE         float64 `json:"rmse"`
	MAE          float64 `json:"mae"`
	TrainSamples int     `json:"train_samples"`
	ValSamples   int     `json:"val_samples"`
}

// FeatureImportance pairs a feature name with its normalized gain.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Metadata is persisted alongside the model bundle.
type Metadata struct {
	Version         string    `json:"version"`
	RunID           string    `json:"run_id"`
	ModelType       string    `json:"model_type"`
	TrainedAt       time.Time `json:"trained_at"`
	TrainingSamples int       `json:"training_samples"`
	TrainingSeasons []string  `json:"training_seasons"`
	TrainingLeagues []string  `json:"training_leagues"`
	NumFeatures     int       `json:"num_features"`
	Accuracy        float64   `json:"accuracy"`
	LogLoss         float64   `json:"log_loss"`
}

// SaveInfo carries the training-run context recorded in metadata and
// the version registry.
type SaveInfo struct {
	Seasons  []string
	Leagues  []string
	Samples  int
	Accuracy float64
	LogLoss  float64
}

// Trainer fits, persists and reloads the prediction model bundle: a
// 3-class result classifier, a total-goals regressor and a binary
// over-2.5 classifier sharing one scaler and column ordering.
type Trainer struct {
	modelDir string
	registry Registry

	Version        string
	Scaler         *Scaler
	FeatureColumns []string
	ResultModel    *gbm.Classifier
	GoalsModel     *gbm.Regressor
	Over25Model    *gbm.Classifier
}

// NewTrainer creates a trainer writing bundles under modelDir. registry
// may be nil when no database-backed version tracking is wanted.
func NewTrainer(modelDir string, registry Registry) *Trainer {
	return &Trainer{modelDir: modelDir, registry: registry}
}

// TrainResultModel fits the 3-class result classifier on a
// chronologically ordered training set. weights may be nil; the most
// recent fraction of rows is held out for validation and the scaler is
// fitted on the training portion only.
func (t *Trainer) TrainResultModel(set *features.TrainingSet, weights []float64, tune bool) (*ClassifierMetrics, error) {
	x, y, w, err := prepare(set.Features, set.ResultLabels, weights)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare result training data: %w", err)
	}

	trainEnd := chronoSplit(len(x), defaultValFraction)
	t.FeatureColumns = append([]string(nil), set.Features.Columns...)
	t.Scaler = &Scaler{}
	xTrain := t.Scaler.FitTransform(x[:trainEnd])
	xVal := t.Scaler.Transform(x[trainEnd:])
	yTrain, yVal := y[:trainEnd], y[trainEnd:]
	var wTrain []float64
	if w != nil {
		wTrain = w[:trainEnd]
	}

	params := gbm.DefaultClassifierParams()
	if tune {
		params = tuneClassifier(xTrain, yTrain, wTrain, 3, params)
	}

	log.Info().
		Int("train_samples", len(xTrain)).
		Int("val_samples", len(xVal)).
		Int("features", len(t.FeatureColumns)).
		Int("n_estimators", params.NEstimators).
		Int("max_depth", params.MaxDepth).
		Msg("Training result classifier")

	t.ResultModel = gbm.TrainClassifier(xTrain, yTrain, wTrain, 3, params)

	proba := t.ResultModel.PredictProbaBatch(xVal)
	metrics := &ClassifierMetrics{
		Accuracy:     accuracy(yVal, proba),
		LogLoss:      logLoss(yVal, proba),
		TrainSamples: len(xTrain),
		ValSamples:   len(xVal),
		NumFeatures:  len(t.FeatureColumns),
		ClassReport:  classReport(yVal, proba, []string{"home", "draw", "away"}),
	}

	log.Info().
		Float64("accuracy", metrics.Accuracy).
		Float64("log_loss", metrics.LogLoss).
		Msg("Result classifier trained")
	return metrics, nil
}

// TrainGoalsModel fits the total-goals regressor. The scaler and
// column ordering from TrainResultModel are reused, so it must be
// called after the result model is trained on the same set.
func (t *Trainer) TrainGoalsModel(set *features.TrainingSet, weights []float64) (*RegressorMetrics, error) {
	if t.Scaler == nil {
		return nil, fmt.Errorf("result model must be trained before the goals model")
	}

	x, _, w, err := prepare(set.Features, set.ResultLabels, weights)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare goals training data: %w", err)
	}

	y := make([]float64, len(set.GoalsLabels))
	for i, g := range set.GoalsLabels {
		y[i] = float64(g)
	}

	trainEnd := chronoSplit(len(x), defaultValFraction)
	xTrain := t.Scaler.Transform(x[:trainEnd])
	xVal := t.Scaler.Transform(x[trainEnd:])
	var wTrain []float64
	if w != nil {
		wTrain = w[:trainEnd]
	}

	t.GoalsModel = gbm.TrainRegressor(xTrain, y[:trainEnd], wTrain, gbm.DefaultRegressorParams())

	pred := t.GoalsModel.PredictBatch(xVal)
	var sqErr, absErr float64
	for i, p := range pred {
		d := p - y[trainEnd+i]
		sqErr += d * d
		absErr += math.Abs(d)
	}
	n := float64(len(pred))
	metrics := &RegressorMetrics{
		RMSE:         math.Sqrt(sqErr / n),
		MAE:          absErr / n,
		TrainSamples: trainEnd,
		ValSamples:   len(xVal),
	}

	log.Info().
		Float64("rmse", metrics.RMSE).
		Float64("mae", metrics.MAE).
		Msg("Goals regressor trained")
	return metrics, nil
}

// TrainOver25Model fits the binary over-2.5-goals classifier from the
// total-goals labels. Requires a prior TrainResultModel call.
func (t *Trainer) TrainOver25Model(set *features.TrainingSet, weights []float64) (*ClassifierMetrics, error) {
	if t.Scaler == nil {
		return nil, fmt.Errorf("result model must be trained before the over-2.5 model")
	}

	y := make([]int, len(set.GoalsLabels))
	for i, g := range set.GoalsLabels {
		if g >= 3 {
			y[i] = 1
		}
	}

	x, _, w, err := prepare(set.Features, set.ResultLabels, weights)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare over-2.5 training data: %w", err)
	}

	trainEnd := chronoSplit(len(x), defaultValFraction)
	xTrain := t.Scaler.Transform(x[:trainEnd])
	xVal := t.Scaler.Transform(x[trainEnd:])
	yTrain, yVal := y[:trainEnd], y[trainEnd:]
	var wTrain []float64
	if w != nil {
		wTrain = w[:trainEnd]
	}

	t.Over25Model = gbm.TrainClassifier(xTrain, yTrain, wTrain, 2, gbm.DefaultBinaryParams())

	proba := t.Over25Model.PredictProbaBatch(xVal)
	metrics := &ClassifierMetrics{
		Accuracy:     accuracy(yVal, proba),
		LogLoss:      logLoss(yVal, proba),
		TrainSamples: len(xTrain),
		ValSamples:   len(xVal),
		NumFeatures:  len(t.FeatureColumns),
		ClassReport:  classReport(yVal, proba, []string{"under", "over"}),
	}

	log.Info().
		Float64("accuracy", metrics.Accuracy).
		Float64("log_loss", metrics.LogLoss).
		Msg("Over-2.5 classifier trained")
	return metrics, nil
}

// SaveModels persists the trained bundle under modelDir/version and, if
// a registry is configured, registers it as the active version. An
// empty version defaults to a UTC timestamp.
func (t *Trainer) SaveModels(ctx context.Context, version string, info SaveInfo) (*models.ModelVersion, error) {
	if t.ResultModel == nil || t.GoalsModel == nil || t.Over25Model == nil {
		return nil, fmt.Errorf("all three models must be trained before saving")
	}
	if version == "" {
		version = time.Now().UTC().Format("20060102_150405")
	}

	dir := filepath.Join(t.modelDir, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model dir %s: %w", dir, err)
	}

	files := map[string]any{
		resultModelFile: t.ResultModel,
		goalsModelFile:  t.GoalsModel,
		over25ModelFile: t.Over25Model,
		scalerFile:      t.Scaler,
		featuresFile:    t.FeatureColumns,
		metadataFile: Metadata{
			Version:         version,
			RunID:           uuid.NewString(),
			ModelType:       ModelTypeEnsemble,
			TrainedAt:       time.Now().UTC(),
			TrainingSamples: info.Samples,
			TrainingSeasons: info.Seasons,
			TrainingLeagues: info.Leagues,
			NumFeatures:     len(t.FeatureColumns),
			Accuracy:        info.Accuracy,
			LogLoss:         info.LogLoss,
		},
	}
	for name, payload := range files {
		if err := writeJSON(filepath.Join(dir, name), payload); err != nil {
			return nil, err
		}
	}

	mv := &models.ModelVersion{
		Version:         version,
		Status:          models.VersionActive,
		ModelType:       ModelTypeEnsemble,
		ModelPath:       dir,
		TrainedAt:       time.Now().UTC(),
		TrainingSamples: info.Samples,
		TrainingSeasons: info.Seasons,
		TrainingLeagues: info.Leagues,
		Accuracy:        sql.NullFloat64{Float64: info.Accuracy, Valid: true},
		LogLoss:         sql.NullFloat64{Float64: info.LogLoss, Valid: true},
		FeatureNames:    t.FeatureColumns,
	}

	if t.registry != nil {
		if err := t.registry.SetActive(ctx, mv); err != nil {
			return nil, fmt.Errorf("failed to register model version %s: %w", version, err)
		}
	}

	t.Version = version
	log.Info().Str("version", version).Str("path", dir).Msg("Saved model bundle")
	return mv, nil
}

// LoadModels loads a persisted bundle. An empty version resolves to the
// registry's active version, falling back to the newest directory under
// modelDir when no registry row exists.
func (t *Trainer) LoadModels(ctx context.Context, version string) error {
	dir, err := t.resolveBundleDir(ctx, version)
	if err != nil {
		return err
	}

	var (
		result  gbm.Classifier
		goals   gbm.Regressor
		over25  gbm.Classifier
		scaler  Scaler
		columns []string
		meta    Metadata
	)
	reads := []struct {
		name string
		dst  any
	}{
		{resultModelFile, &result},
		{goalsModelFile, &goals},
		{over25ModelFile, &over25},
		{scalerFile, &scaler},
		{featuresFile, &columns},
		{metadataFile, &meta},
	}
	for _, r := range reads {
		if err := readJSON(filepath.Join(dir, r.name), r.dst); err != nil {
			return err
		}
	}

	t.ResultModel = &result
	t.GoalsModel = &goals
	t.Over25Model = &over25
	t.Scaler = &scaler
	t.FeatureColumns = columns
	t.Version = meta.Version

	log.Info().Str("path", dir).Str("version", meta.Version).Int("features", len(columns)).Msg("Loaded model bundle")
	return nil
}

// Loaded reports whether a complete bundle is in memory.
func (t *Trainer) Loaded() bool {
	return t.ResultModel != nil && t.GoalsModel != nil && t.Over25Model != nil &&
		t.Scaler != nil && len(t.FeatureColumns) > 0
}

func (t *Trainer) resolveBundleDir(ctx context.Context, version string) (string, error) {
	if version != "" {
		return filepath.Join(t.modelDir, version), nil
	}

	if t.registry != nil {
		active, err := t.registry.GetActive(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to look up active model version: %w", err)
		}
		if active != nil {
			return active.ModelPath, nil
		}
	}

	entries, err := os.ReadDir(t.modelDir)
	if err != nil {
		return "", fmt.Errorf("failed to list model dir %s: %w", t.modelDir, err)
	}
	latest := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(t.modelDir, e.Name(), metadataFile)); err != nil {
			continue
		}
		if e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no model bundles found in %s", t.modelDir)
	}
	return filepath.Join(t.modelDir, latest), nil
}

// GetFeatureImportance returns the result model's gain importances
// paired with column names, highest first.
func (t *Trainer) GetFeatureImportance() ([]FeatureImportance, error) {
	if t.ResultModel == nil {
		return nil, fmt.Errorf("no result model loaded")
	}

	raw := t.ResultModel.FeatureImportances()
	if len(raw) != len(t.FeatureColumns) {
		return nil, fmt.Errorf("importance length %d does not match %d feature columns", len(raw), len(t.FeatureColumns))
	}

	out := make([]FeatureImportance, len(raw))
	for i, v := range raw {
		out[i] = FeatureImportance{Feature: t.FeatureColumns[i], Importance: v}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

// CVReport summarizes expanding-window cross-validation of the result
// classifier.
type CVReport struct {
	Folds        int       `json:"folds"`
	Accuracies   []float64 `json:"accuracies"`
	LogLosses    []float64 `json:"log_losses"`
	MeanAccuracy float64   `json:"mean_accuracy"`
	MeanLogLoss  float64   `json:"mean_log_loss"`
}

// CrossValidate runs expanding-window CV of the result classifier with
// default parameters. Each fold refits its own scaler on its train
// slice.
func (t *Trainer) CrossValidate(set *features.TrainingSet, nSplits int) (*CVReport, error) {
	x, y, _, err := prepare(set.Features, set.ResultLabels, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare cross-validation data: %w", err)
	}

	folds := TimeSeriesSplit(len(x), nSplits)
	if folds == nil {
		return nil, fmt.Errorf("not enough samples (%d) for %d-fold time-series CV", len(x), nSplits)
	}

	report := &CVReport{Folds: len(folds)}
	for i, fold := range folds {
		scaler := &Scaler{}
		xTrain := scaler.FitTransform(gatherRows(x, fold.TrainIdx))
		xTest := scaler.Transform(gatherRows(x, fold.TestIdx))
		yTrain := gatherInts(y, fold.TrainIdx)
		yTest := gatherInts(y, fold.TestIdx)

		model := gbm.TrainClassifier(xTrain, yTrain, nil, 3, gbm.DefaultClassifierParams())
		proba := model.PredictProbaBatch(xTest)

		acc := accuracy(yTest, proba)
		ll := logLoss(yTest, proba)
		report.Accuracies = append(report.Accuracies, acc)
		report.LogLosses = append(report.LogLosses, ll)
		report.MeanAccuracy += acc
		report.MeanLogLoss += ll

		log.Info().Int("fold", i+1).Float64("accuracy", acc).Float64("log_loss", ll).Msg("CV fold complete")
	}
	report.MeanAccuracy /= float64(len(folds))
	report.MeanLogLoss /= float64(len(folds))
	return report, nil
}

// tuneClassifier grid-searches hyperparameters, scoring each candidate
// by mean log loss over a 3-fold expanding-window split of the
// training portion.
func tuneClassifier(x [][]float64, y []int, weights []float64, numClass int, base gbm.Params) gbm.Params {
	folds := TimeSeriesSplit(len(x), 3)
	if folds == nil {
		log.Warn().Int("samples", len(x)).Msg("Too few samples for tuning, using defaults")
		return base
	}

	grid := struct {
		depths     []int
		rates      []float64
		estimators []int
		childW     []float64
		subsamples []float64
	}{
		depths:     []int{4, 6, 8},
		rates:      []float64{0.05, 0.1},
		estimators: []int{100, 200},
		childW:     []float64{1, 3},
		subsamples: []float64{0.7, 0.8},
	}

	best := base
	bestLoss := math.Inf(1)
	for _, depth := range grid.depths {
		for _, rate := range grid.rates {
			for _, est := range grid.estimators {
				for _, cw := range grid.childW {
					for _, sub := range grid.subsamples {
						p := base
						p.MaxDepth = depth
						p.LearningRate = rate
						p.NEstimators = est
						p.MinChildWeight = cw
						p.Subsample = sub

						var total float64
						for _, fold := range folds {
							model := gbm.TrainClassifier(
								gatherRows(x, fold.TrainIdx),
								gatherInts(y, fold.TrainIdx),
								gatherFloats(weights, fold.TrainIdx),
								numClass, p)
							proba := model.PredictProbaBatch(gatherRows(x, fold.TestIdx))
							total += logLoss(gatherInts(y, fold.TestIdx), proba)
						}
						loss := total / float64(len(folds))
						if loss < bestLoss {
							bestLoss = loss
							best = p
						}
					}
				}
			}
		}
	}

	log.Info().
		Int("max_depth", best.MaxDepth).
		Float64("learning_rate", best.LearningRate).
		Int("n_estimators", best.NEstimators).
		Float64("cv_log_loss", bestLoss).
		Msg("Hyperparameter tuning complete")
	return best
}

// prepare copies the frame rows with NaN replaced by zero and checks
// shape agreement.
func prepare(f *features.Frame, labels []int, weights []float64) ([][]float64, []int, []float64, error) {
	n := f.Len()
	if n < 10 {
		return nil, nil, nil, fmt.Errorf("need at least 10 samples, got %d", n)
	}
	if len(labels) != n {
		return nil, nil, nil, fmt.Errorf("label count %d does not match %d rows", len(labels), n)
	}
	if weights != nil && len(weights) != n {
		return nil, nil, nil, fmt.Errorf("weight count %d does not match %d rows", len(weights), n)
	}

	x := make([][]float64, n)
	for i, src := range f.Rows {
		row := make([]float64, len(src))
		for j, v := range src {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			row[j] = v
		}
		x[i] = row
	}
	return x, labels, weights, nil
}

func accuracy(y []int, proba [][]float64) float64 {
	if len(y) == 0 {
		return 0
	}
	correct := 0
	for i, p := range proba {
		if argmax(p) == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}

func logLoss(y []int, proba [][]float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var total float64
	for i, p := range proba {
		v := p[y[i]]
		if v < 1e-15 {
			v = 1e-15
		}
		total -= math.Log(v)
	}
	return total / float64(len(y))
}

func classReport(y []int, proba [][]float64, names []string) map[string]ClassMetrics {
	numClass := len(names)
	tp := make([]int, numClass)
	fp := make([]int, numClass)
	fn := make([]int, numClass)
	support := make([]int, numClass)

	for i, p := range proba {
		pred := argmax(p)
		truth := y[i]
		support[truth]++
		if pred == truth {
			tp[truth]++
		} else {
			fp[pred]++
			fn[truth]++
		}
	}

	report := make(map[string]ClassMetrics, numClass)
	for k, name := range names {
		var precision, recall, f1 float64
		if tp[k]+fp[k] > 0 {
			precision = float64(tp[k]) / float64(tp[k]+fp[k])
		}
		if tp[k]+fn[k] > 0 {
			recall = float64(tp[k]) / float64(tp[k]+fn[k])
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		report[name] = ClassMetrics{Precision: precision, Recall: recall, F1: f1, Support: support[k]}
	}
	return report
}

func argmax(p []float64) int {
	best := 0
	for k := 1; k < len(p); k++ {
		if p[k] > p[best] {
			best = k
		}
	}
	return best
}

func writeJSON(path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
