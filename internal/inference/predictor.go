// Package inference serves predictions from the persisted model
// bundle: single matches, batches, the upcoming fixture list, and the
// validation pass that scores stored predictions once results are in.
package inference

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"footypredict/pipeline/internal/cache"
	"footypredict/pipeline/internal/features"
	"footypredict/pipeline/internal/metrics"
	"footypredict/pipeline/internal/models"
	"footypredict/pipeline/internal/training"
)

// Risk levels derived from prediction confidence.
const (
	RiskLow    = "low"    // confidence >= 0.60
	RiskMedium = "medium" // confidence >= 0.45
	RiskHigh   = "high"
)

// Value bet thresholds on model probability.
const (
	valueBetThreshold  = 0.55
	underBetThreshold  = 0.45
	highValueThreshold = 0.60
)

// MatchSource lists fixtures eligible for prediction. Implemented by
// repository.MatchesRepository.
type MatchSource interface {
	UpcomingScheduled(ctx context.Context, from, to time.Time, leagueCodes []string) ([]*models.Match, error)
}

// PendingValidation pairs a finished match with its not-yet-validated
// prediction.
type PendingValidation struct {
	Match      *models.Match
	Prediction *models.Prediction
}

// PredictionStore persists and validates predictions. Implemented by
// repository.PredictionsRepository.
type PredictionStore interface {
	Upsert(ctx context.Context, p *models.Prediction) error
	PendingValidations(ctx context.Context) ([]PendingValidation, error)
	MarkValidated(ctx context.Context, predictionID int, actualOutcome string, correct bool) error
}

// ValueBet flags an outcome whose model probability clears the value
// threshold, with the fair odds implied by that probability.
type ValueBet struct {
	Market      string  `json:"market"`
	Selection   string  `json:"selection"`
	Probability float64 `json:"probability"`
	FairOdds    float64 `json:"fair_odds"`
	Rating      string  `json:"rating"`
}

// Result is one served prediction. A non-empty Error means the match
// could not be predicted; all other fields are then zero.
type Result struct {
	MatchID    int       `json:"match_id"`
	HomeTeamID int       `json:"home_team_id"`
	AwayTeamID int       `json:"away_team_id"`
	MatchDate  time.Time `json:"match_date"`

	HomeWinProb float64 `json:"home_win_prob"`
	DrawProb    float64 `json:"draw_prob"`
	AwayWinProb float64 `json:"away_win_prob"`
	Over25Prob  float64 `json:"over_25_prob"`

	PredictedTotal float64 `json:"predicted_total"`
	PredictedHome  float64 `json:"predicted_home"`
	PredictedAway  float64 `json:"predicted_away"`

	Outcome    string  `json:"outcome"`
	Confidence float64 `json:"confidence"`
	Strength   string  `json:"strength"`
	RiskLevel  string  `json:"risk_level"`

	ValueBets  []ValueBet `json:"value_bets,omitempty"`
	KeyFactors []string   `json:"key_factors,omitempty"`

	ModelVersion string `json:"model_version"`
	Error        string `json:"error,omitempty"`
}

// Predictor serves predictions. Models load lazily on first use; a
// failed load surfaces as an error payload on each result rather than
// a panic, so batch callers keep their per-item isolation.
type Predictor struct {
	extractor   *features.Extractor
	trainer     *training.Trainer
	matches     MatchSource
	predictions PredictionStore
	cache       *cache.Cache

	mu sync.Mutex
}

// NewPredictor creates a predictor. cache may be nil.
func NewPredictor(extractor *features.Extractor, trainer *training.Trainer, matches MatchSource, predictions PredictionStore, c *cache.Cache) *Predictor {
	return &Predictor{
		extractor:   extractor,
		trainer:     trainer,
		matches:     matches,
		predictions: predictions,
		cache:       c,
	}
}

// ensureLoaded lazily loads the active model bundle.
func (p *Predictor) ensureLoaded(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trainer.Loaded() {
		return nil
	}
	if err := p.trainer.LoadModels(ctx, ""); err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}
	return nil
}

// PredictMatch predicts one fixture. When save is true the prediction
// is upserted and cached; when false a cached result may be returned
// without touching the models.
func (p *Predictor) PredictMatch(ctx context.Context, req features.MatchRequest, save bool) *Result {
	if !save {
		var cached Result
		if p.cache.GetPrediction(ctx, req.MatchID, &cached) {
			return &cached
		}
	}

	if err := p.ensureLoaded(ctx); err != nil {
		metrics.RecordPredictionError("model_load")
		return &Result{MatchID: req.MatchID, Error: err.Error()}
	}

	vec, err := p.extractor.ExtractMatchFeatures(ctx, req.HomeTeamID, req.AwayTeamID, req.MatchDate, req.SeasonCode, nil)
	if err != nil {
		metrics.RecordPredictionError("feature_extraction")
		return &Result{MatchID: req.MatchID, Error: fmt.Sprintf("failed to extract features: %v", err)}
	}

	res := p.score(req, vec)

	if save {
		if err := p.savePrediction(ctx, res); err != nil {
			log.Error().Err(err).Int("match_id", req.MatchID).Msg("Failed to save prediction")
		}
		p.cache.SetPrediction(ctx, req.MatchID, res)
	}

	metrics.RecordPrediction("single")
	return res
}

// score runs the loaded models over one feature vector.
func (p *Predictor) score(req features.MatchRequest, vec features.Vector) *Result {
	// Replay the training column order; features the model never saw
	// are dropped, missing ones are zero.
	row := make([]float64, len(p.trainer.FeatureColumns))
	for j, col := range p.trainer.FeatureColumns {
		v := vec[col]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		row[j] = v
	}
	scaled := p.trainer.Scaler.TransformRow(row)

	probs := p.trainer.ResultModel.PredictProba(scaled)
	over25 := p.trainer.Over25Model.PredictProba(scaled)[1]
	total := p.trainer.GoalsModel.Predict(scaled)
	if total < 0 {
		total = 0
	}

	best := 0
	for k := 1; k < len(probs); k++ {
		if probs[k] > probs[best] {
			best = k
		}
	}
	outcomes := []string{models.OutcomeHome, models.OutcomeDraw, models.OutcomeAway}
	confidence := probs[best]

	// Split the predicted total by outcome probability mass
	homeShare := probs[0] + probs[1]/2
	predictedHome := total * homeShare

	res := &Result{
		MatchID:        req.MatchID,
		HomeTeamID:     req.HomeTeamID,
		AwayTeamID:     req.AwayTeamID,
		MatchDate:      req.MatchDate,
		HomeWinProb:    probs[0],
		DrawProb:       probs[1],
		AwayWinProb:    probs[2],
		Over25Prob:     over25,
		PredictedTotal: total,
		PredictedHome:  predictedHome,
		PredictedAway:  total - predictedHome,
		Outcome:        outcomes[best],
		Confidence:     confidence,
		Strength:       models.StrengthFor(confidence),
		RiskLevel:      riskLevel(confidence),
		ValueBets:      valueBets(probs, over25),
		KeyFactors:     keyFactors(vec),
		ModelVersion:   p.trainer.Version,
	}
	return res
}

func riskLevel(confidence float64) string {
	switch {
	case confidence >= 0.60:
		return RiskLow
	case confidence >= 0.45:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func valueBets(probs []float64, over25 float64) []ValueBet {
	var bets []ValueBet

	selections := []string{models.OutcomeHome, models.OutcomeDraw, models.OutcomeAway}
	for k, prob := range probs {
		if prob <= valueBetThreshold {
			continue
		}
		bets = append(bets, ValueBet{
			Market:      "1X2",
			Selection:   selections[k],
			Probability: prob,
			FairOdds:    1 / prob,
			Rating:      rating(prob),
		})
	}

	if over25 > valueBetThreshold {
		bets = append(bets, ValueBet{
			Market:      "OU2.5",
			Selection:   "OVER",
			Probability: over25,
			FairOdds:    1 / over25,
			Rating:      rating(over25),
		})
	} else if over25 < underBetThreshold {
		under := 1 - over25
		bets = append(bets, ValueBet{
			Market:      "OU2.5",
			Selection:   "UNDER",
			Probability: under,
			FairOdds:    1 / under,
			Rating:      rating(under),
		})
	}

	return bets
}

func rating(prob float64) string {
	if prob > highValueThreshold {
		return "high"
	}
	return "standard"
}

// keyFactors names the strongest signals in the raw feature vector.
func keyFactors(vec features.Vector) []string {
	var factors []string

	if d := vec["diff_form_points"]; d >= 2 {
		factors = append(factors, "home side in stronger recent form")
	} else if d <= -2 {
		factors = append(factors, "away side in stronger recent form")
	}

	if d := vec["diff_xg_diff"]; d >= 0.5 {
		factors = append(factors, "home side creating better chances (xG)")
	} else if d <= -0.5 {
		factors = append(factors, "away side creating better chances (xG)")
	}

	if h2h := vec["h2h_matches"]; h2h >= 3 {
		// Win rates scale back to counts via the meeting count
		homeWins, awayWins := vec["h2h_home_wins"]*h2h, vec["h2h_away_wins"]*h2h
		if homeWins >= awayWins+2 {
			factors = append(factors, "head-to-head record favors the home side")
		} else if awayWins >= homeWins+2 {
			factors = append(factors, "head-to-head record favors the away side")
		}
	}

	if d := vec["rest_diff"]; d >= 3 {
		factors = append(factors, "home side better rested")
	} else if d <= -3 {
		factors = append(factors, "away side better rested")
	}

	if p := vec["implied_home_prob"]; p >= 0.55 {
		factors = append(factors, "market strongly favors the home side")
	} else if vec["implied_away_prob"] >= 0.55 {
		factors = append(factors, "market strongly favors the away side")
	}

	return factors
}

func (p *Predictor) savePrediction(ctx context.Context, res *Result) error {
	pred := &models.Prediction{
		MatchID:            res.MatchID,
		HomeWinProbability: res.HomeWinProb,
		DrawProbability:    res.DrawProb,
		AwayWinProbability: res.AwayWinProb,
		Over25Probability:  res.Over25Prob,
		PredictedHomeScore: sql.NullFloat64{Float64: res.PredictedHome, Valid: true},
		PredictedAwayScore: sql.NullFloat64{Float64: res.PredictedAway, Valid: true},
		PredictedTotal:     sql.NullFloat64{Float64: res.PredictedTotal, Valid: true},
		ConfidenceScore:    res.Confidence,
		PredictionStrength: res.Strength,
		RecommendedOutcome: res.Outcome,
		ModelVersion:       res.ModelVersion,
		ModelType:          training.ModelTypeEnsemble,
		KeyFactors:         res.KeyFactors,
	}
	return p.predictions.Upsert(ctx, pred)
}

// PredictBatch predicts every request in input order. Failures are
// isolated per item as error payloads.
func (p *Predictor) PredictBatch(ctx context.Context, reqs []features.MatchRequest, save bool) []*Result {
	results := make([]*Result, len(reqs))
	for i, req := range reqs {
		results[i] = p.PredictMatch(ctx, req, save)
	}
	return results
}

// PredictUpcoming predicts every scheduled fixture in the next
// daysAhead days, optionally filtered by league.
func (p *Predictor) PredictUpcoming(ctx context.Context, daysAhead int, leagueCodes []string, save bool) ([]*Result, error) {
	if daysAhead <= 0 {
		daysAhead = 7
	}
	from := time.Now().UTC()
	to := from.AddDate(0, 0, daysAhead)

	matches, err := p.matches.UpcomingScheduled(ctx, from, to, leagueCodes)
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming matches: %w", err)
	}

	reqs := make([]features.MatchRequest, len(matches))
	for i, m := range matches {
		reqs[i] = features.MatchRequest{
			MatchID:    m.ID,
			HomeTeamID: m.HomeTeamID,
			AwayTeamID: m.AwayTeamID,
			MatchDate:  m.MatchDate,
			SeasonCode: m.SeasonCode,
		}
	}

	log.Info().Int("matches", len(reqs)).Int("days_ahead", daysAhead).Msg("Predicting upcoming fixtures")
	return p.PredictBatch(ctx, reqs, save), nil
}

// ValidatePredictions scores stored predictions for finished matches
// that have not been validated yet. Idempotent; returns the number of
// predictions validated.
func (p *Predictor) ValidatePredictions(ctx context.Context) (int, error) {
	pending, err := p.predictions.PendingValidations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending validations: %w", err)
	}

	validated := 0
	for _, pv := range pending {
		if !pv.Match.IsFinished() {
			continue
		}

		actual := pv.Match.Outcome()
		correct := actual == pv.Prediction.RecommendedOutcome
		if err := p.predictions.MarkValidated(ctx, pv.Prediction.ID, actual, correct); err != nil {
			log.Error().Err(err).Int("prediction_id", pv.Prediction.ID).Msg("Failed to validate prediction")
			continue
		}

		p.cache.InvalidatePrediction(ctx, pv.Match.ID)
		metrics.RecordValidation(correct)
		validated++
	}

	if validated > 0 {
		log.Info().Int("validated", validated).Msg("Validated predictions against results")
	}
	return validated, nil
}
