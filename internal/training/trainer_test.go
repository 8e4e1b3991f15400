package training

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"footypredict/pipeline/internal/features"
	"footypredict/pipeline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticSet builds a training set whose result label follows the
// first feature and whose goals track the second.
func syntheticSet(n int, seed int64) *features.TrainingSet {
	rng := rand.New(rand.NewSource(seed))

	vectors := make([]features.Vector, n)
	results := make([]int, n)
	goals := make([]int, n)
	matchIDs := make([]int, n)
	for i := 0; i < n; i++ {
		strength := rng.Float64()*2 - 1
		tempo := rng.Float64()

		vectors[i] = features.Vector{
			"diff_form_points":  strength,
			"home_over_25_rate": tempo,
			"noise":             rng.Float64(),
		}

		switch {
		case strength+rng.NormFloat64()*0.1 > 0.3:
			results[i] = models.ResultHomeWin
		case strength+rng.NormFloat64()*0.1 < -0.3:
			results[i] = models.ResultAwayWin
		default:
			results[i] = models.ResultDraw
		}

		goals[i] = int(math.Round(tempo * 5))
		matchIDs[i] = i + 1
	}

	return &features.TrainingSet{
		Features:     features.NewFrame(vectors),
		ResultLabels: results,
		GoalsLabels:  goals,
		MatchIDs:     matchIDs,
	}
}

type fakeRegistry struct {
	active *models.ModelVersion
}

func (r *fakeRegistry) GetActive(context.Context) (*models.ModelVersion, error) {
	return r.active, nil
}

func (r *fakeRegistry) SetActive(_ context.Context, mv *models.ModelVersion) error {
	r.active = mv
	return nil
}

func TestScalerFitTransform(t *testing.T) {
	s := &Scaler{}
	x := [][]float64{{1, 10, 5}, {3, 30, 5}, {5, 50, 5}}
	out := s.FitTransform(x)

	assert.Equal(t, []float64{3, 30, 5}, s.Mean)
	// Constant column keeps std 1 so it passes through as zero
	assert.Equal(t, 1.0, s.Std[2])

	for j := 0; j < 2; j++ {
		var sum float64
		for i := range out {
			sum += out[i][j]
		}
		assert.InDelta(t, 0.0, sum, 1e-9)
	}
	assert.Equal(t, 0.0, out[1][2])
}

func TestTimeSeriesSplitNeverTrainsOnFuture(t *testing.T) {
	folds := TimeSeriesSplit(100, 4)
	require.Len(t, folds, 4)

	prevTestEnd := 0
	for _, fold := range folds {
		require.NotEmpty(t, fold.TrainIdx)
		require.NotEmpty(t, fold.TestIdx)

		maxTrain := fold.TrainIdx[len(fold.TrainIdx)-1]
		minTest := fold.TestIdx[0]
		assert.Less(t, maxTrain, minTest, "training index reaches into the test block")
		assert.GreaterOrEqual(t, minTest, prevTestEnd)
		prevTestEnd = fold.TestIdx[len(fold.TestIdx)-1]
	}
}

func TestTimeSeriesSplitTooFewSamples(t *testing.T) {
	assert.Nil(t, TimeSeriesSplit(3, 5))
}

func TestChronoSplitHoldsOutRecentFraction(t *testing.T) {
	assert.Equal(t, 80, chronoSplit(100, 0.2))
	assert.Equal(t, 1, chronoSplit(2, 0.9))
	assert.Equal(t, 9, chronoSplit(10, 0.0))
}

func TestTrainResultModel(t *testing.T) {
	trainer := NewTrainer(t.TempDir(), nil)
	set := syntheticSet(400, 7)

	metrics, err := trainer.TrainResultModel(set, nil, false)
	require.NoError(t, err)

	assert.Equal(t, 320, metrics.TrainSamples)
	assert.Equal(t, 80, metrics.ValSamples)
	assert.Greater(t, metrics.Accuracy, 0.5, "model should beat chance on separable data")
	assert.Contains(t, metrics.ClassReport, "home")
	assert.Equal(t, set.Features.Columns, trainer.FeatureColumns)
}

func TestTrainGoalsRequiresResultFirst(t *testing.T) {
	trainer := NewTrainer(t.TempDir(), nil)
	_, err := trainer.TrainGoalsModel(syntheticSet(100, 8), nil)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	registry := &fakeRegistry{}
	trainer := NewTrainer(dir, registry)
	set := syntheticSet(300, 9)

	_, err := trainer.TrainResultModel(set, nil, false)
	require.NoError(t, err)
	_, err = trainer.TrainGoalsModel(set, nil)
	require.NoError(t, err)
	_, err = trainer.TrainOver25Model(set, nil)
	require.NoError(t, err)

	ctx := context.Background()
	mv, err := trainer.SaveModels(ctx, "v_test", SaveInfo{
		Seasons:  []string{"2324"},
		Samples:  set.Features.Len(),
		Accuracy: 0.5,
		LogLoss:  1.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "v_test", mv.Version)
	assert.Equal(t, models.VersionActive, mv.Status)
	require.NotNil(t, registry.active)

	// Reload into a fresh trainer and compare predictions
	loaded := NewTrainer(dir, registry)
	require.NoError(t, loaded.LoadModels(ctx, ""))
	assert.Equal(t, "v_test", loaded.Version)
	assert.Equal(t, trainer.FeatureColumns, loaded.FeatureColumns)

	row := loaded.Scaler.TransformRow([]float64{0.8, 0.4, 0.1})
	assert.Equal(t, trainer.ResultModel.PredictProba(row), loaded.ResultModel.PredictProba(row))
	assert.Equal(t, trainer.GoalsModel.Predict(row), loaded.GoalsModel.Predict(row))
	assert.Equal(t, trainer.Over25Model.PredictProba(row), loaded.Over25Model.PredictProba(row))
}

func TestLoadModelsFallsBackToNewestDir(t *testing.T) {
	dir := t.TempDir()
	trainer := NewTrainer(dir, nil)
	set := syntheticSet(200, 10)

	_, err := trainer.TrainResultModel(set, nil, false)
	require.NoError(t, err)
	_, err = trainer.TrainGoalsModel(set, nil)
	require.NoError(t, err)
	_, err = trainer.TrainOver25Model(set, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = trainer.SaveModels(ctx, "20240101_000000", SaveInfo{})
	require.NoError(t, err)
	_, err = trainer.SaveModels(ctx, "20240201_000000", SaveInfo{})
	require.NoError(t, err)

	// No registry: the lexicographically newest bundle wins
	loaded := NewTrainer(dir, nil)
	require.NoError(t, loaded.LoadModels(ctx, ""))
	assert.Equal(t, "20240201_000000", loaded.Version)
}

func TestLoadModelsMissingDir(t *testing.T) {
	trainer := NewTrainer(t.TempDir(), nil)
	err := trainer.LoadModels(context.Background(), "")
	require.Error(t, err)
	assert.False(t, trainer.Loaded())
}

func TestGetFeatureImportanceSorted(t *testing.T) {
	trainer := NewTrainer(t.TempDir(), nil)
	set := syntheticSet(300, 11)
	_, err := trainer.TrainResultModel(set, nil, false)
	require.NoError(t, err)

	imp, err := trainer.GetFeatureImportance()
	require.NoError(t, err)
	require.Len(t, imp, len(trainer.FeatureColumns))

	for i := 1; i < len(imp); i++ {
		assert.GreaterOrEqual(t, imp[i-1].Importance, imp[i].Importance)
	}
	// The driving feature should rank first
	assert.Equal(t, "diff_form_points", imp[0].Feature)
}

func TestCrossValidate(t *testing.T) {
	trainer := NewTrainer(t.TempDir(), nil)
	set := syntheticSet(250, 12)

	report, err := trainer.CrossValidate(set, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Folds)
	require.Len(t, report.Accuracies, 3)
	assert.Greater(t, report.MeanAccuracy, 0.4)
	assert.Greater(t, report.MeanLogLoss, 0.0)
}

func TestSampleWeightsChangeTheModel(t *testing.T) {
	set := syntheticSet(200, 13)

	uniform := NewTrainer(t.TempDir(), nil)
	_, err := uniform.TrainResultModel(set, nil, false)
	require.NoError(t, err)

	weights := make([]float64, set.Features.Len())
	for i := range weights {
		weights[i] = 0.1
		if set.ResultLabels[i] == models.ResultDraw {
			weights[i] = 5.0
		}
	}
	weighted := NewTrainer(t.TempDir(), nil)
	_, err = weighted.TrainResultModel(set, weights, false)
	require.NoError(t, err)

	// Up-weighting draws must shift probability mass toward draws
	row := []float64{0.0, 0.5, 0.5}
	pu := uniform.ResultModel.PredictProba(uniform.Scaler.TransformRow(row))
	pw := weighted.ResultModel.PredictProba(weighted.Scaler.TransformRow(row))
	assert.Greater(t, pw[models.ResultDraw], pu[models.ResultDraw])
}

func TestMetadataTimestampVersion(t *testing.T) {
	trainer := NewTrainer(t.TempDir(), nil)
	set := syntheticSet(150, 14)

	_, err := trainer.TrainResultModel(set, nil, false)
	require.NoError(t, err)
	_, err = trainer.TrainGoalsModel(set, nil)
	require.NoError(t, err)
	_, err = trainer.TrainOver25Model(set, nil)
	require.NoError(t, err)

	mv, err := trainer.SaveModels(context.Background(), "", SaveInfo{})
	require.NoError(t, err)

	// Default version is a UTC timestamp
	_, err = time.Parse("20060102_150405", mv.Version)
	assert.NoError(t, err)
}
