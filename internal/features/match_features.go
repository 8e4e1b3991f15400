package features

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// h2hLimit caps how many prior meetings feed the head-to-head stats.
const h2hLimit = 10

// diffKeys is the allow-list of base keys that get home-minus-away
// differential features.
var diffKeys = []string{
	"form_points", "form_goals_scored", "form_goals_conceded",
	"form_goal_diff", "form_win_rate", "season_points",
	"xg_for_avg", "xg_against_avg", "xg_diff",
}

type matchKey struct {
	HomeTeamID int
	AwayTeamID int
	MatchDate  string
	SeasonCode string
}

// MatchFeatureBuilder composes two team perspectives plus
// head-to-head, contextual and market-odds features into one match
// feature vector, and bulk-builds the historical training table.
type MatchFeatureBuilder struct {
	matches MatchStore
	teams   *TeamFeatureBuilder
	cache   map[matchKey]Vector
}

// NewMatchFeatureBuilder creates a match feature builder sharing the
// given team builder (and its cache).
func NewMatchFeatureBuilder(matches MatchStore, teams *TeamFeatureBuilder) *MatchFeatureBuilder {
	return &MatchFeatureBuilder{
		matches: matches,
		teams:   teams,
		cache:   make(map[matchKey]Vector),
	}
}

// BuildFeatures builds the complete feature vector for one fixture.
func (b *MatchFeatureBuilder) BuildFeatures(ctx context.Context, homeTeamID, awayTeamID int, matchDate time.Time, seasonCode string, includeOdds bool) (Vector, error) {
	key := matchKey{HomeTeamID: homeTeamID, AwayTeamID: awayTeamID, MatchDate: matchDate.Format("2006-01-02"), SeasonCode: seasonCode}
	if cached, ok := b.cache[key]; ok {
		return cached, nil
	}

	homeFeatures, err := b.teams.BuildFeatures(ctx, homeTeamID, matchDate, true, seasonCode)
	if err != nil {
		return nil, err
	}
	awayFeatures, err := b.teams.BuildFeatures(ctx, awayTeamID, matchDate, false, seasonCode)
	if err != nil {
		return nil, err
	}

	features := make(Vector, 2*len(homeFeatures)+32)
	for k, v := range homeFeatures {
		features["home_"+k] = v
	}
	for k, v := range awayFeatures {
		features["away_"+k] = v
	}

	for _, k := range diffKeys {
		features["diff_"+k] = homeFeatures[k] - awayFeatures[k]
	}

	if err := b.h2hFeatures(ctx, features, homeTeamID, awayTeamID, matchDate); err != nil {
		return nil, err
	}

	if err := b.contextFeatures(ctx, features, homeTeamID, awayTeamID, matchDate); err != nil {
		return nil, err
	}

	if includeOdds {
		if err := b.oddsFeatures(ctx, features, homeTeamID, awayTeamID, matchDate); err != nil {
			return nil, err
		}
	}

	b.cache[key] = features
	return features, nil
}

// h2hFeatures looks back at prior meetings between the two teams.
// "home" in the H2H stats always refers to homeTeamID regardless of
// which side hosted historically. All-zero when no prior meetings.
func (b *MatchFeatureBuilder) h2hFeatures(ctx context.Context, features Vector, homeTeamID, awayTeamID int, before time.Time) error {
	meetings, err := b.matches.FinishedBetweenTeams(ctx, homeTeamID, awayTeamID, before, h2hLimit)
	if err != nil {
		return fmt.Errorf("failed to load head-to-head matches: %w", err)
	}

	if len(meetings) == 0 {
		features["h2h_matches"] = 0.0
		features["h2h_home_wins"] = 0.0
		features["h2h_away_wins"] = 0.0
		features["h2h_draws"] = 0.0
		features["h2h_home_goals_avg"] = 0.0
		features["h2h_away_goals_avg"] = 0.0
		features["h2h_total_goals_avg"] = 0.0
		return nil
	}

	var homeWins, awayWins, draws, homeGoals, awayGoals int
	for _, m := range meetings {
		hg := m.GoalsFor(homeTeamID)
		ag := m.GoalsFor(awayTeamID)

		homeGoals += hg
		awayGoals += ag

		switch {
		case hg > ag:
			homeWins++
		case hg < ag:
			awayWins++
		default:
			draws++
		}
	}

	n := float64(len(meetings))
	features["h2h_matches"] = n
	features["h2h_home_wins"] = float64(homeWins) / n
	features["h2h_away_wins"] = float64(awayWins) / n
	features["h2h_draws"] = float64(draws) / n
	features["h2h_home_goals_avg"] = float64(homeGoals) / n
	features["h2h_away_goals_avg"] = float64(awayGoals) / n
	features["h2h_total_goals_avg"] = float64(homeGoals+awayGoals) / n
	return nil
}

// contextFeatures adds rest days, weekend and season-phase flags.
func (b *MatchFeatureBuilder) contextFeatures(ctx context.Context, features Vector, homeTeamID, awayTeamID int, matchDate time.Time) error {
	homeRest, err := b.restDays(ctx, homeTeamID, matchDate)
	if err != nil {
		return err
	}
	awayRest, err := b.restDays(ctx, awayTeamID, matchDate)
	if err != nil {
		return err
	}

	features["home_rest_days"] = float64(min(homeRest, 14))
	features["away_rest_days"] = float64(min(awayRest, 14))
	features["rest_diff"] = float64(homeRest - awayRest)

	if wd := matchDate.Weekday(); wd == time.Saturday || wd == time.Sunday {
		features["is_weekend"] = 1.0
	} else {
		features["is_weekend"] = 0.0
	}

	month := matchDate.Month()
	if month == time.August || month == time.September {
		features["is_early_season"] = 1.0
	} else {
		features["is_early_season"] = 0.0
	}
	if month == time.April || month == time.May {
		features["is_late_season"] = 1.0
	} else {
		features["is_late_season"] = 0.0
	}

	return nil
}

// restDays returns the days since the team's last finished match, or 7
// when it has none.
func (b *MatchFeatureBuilder) restDays(ctx context.Context, teamID int, matchDate time.Time) (int, error) {
	last, err := b.matches.RecentFinishedByTeam(ctx, teamID, matchDate, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to load last match for team %d: %w", teamID, err)
	}
	if len(last) == 0 {
		return 7, nil
	}
	return int(matchDate.Sub(last[0].MatchDate).Hours() / 24), nil
}

// oddsFeatures adds raw market odds and their normalized implied
// probabilities. This is an exact-match lookup: only a scheduled match
// with a recorded odds row produces non-zero values, so historical
// training rows are frequently all-zero here.
func (b *MatchFeatureBuilder) oddsFeatures(ctx context.Context, features Vector, homeTeamID, awayTeamID int, matchDate time.Time) error {
	match, err := b.matches.FindByTeamsAndDate(ctx, homeTeamID, awayTeamID, matchDate)
	if err != nil {
		return fmt.Errorf("failed to look up odds: %w", err)
	}

	if match == nil || !match.HomeOdds.Valid {
		features["implied_home_prob"] = 0.0
		features["implied_draw_prob"] = 0.0
		features["implied_away_prob"] = 0.0
		features["odds_home"] = 0.0
		features["odds_draw"] = 0.0
		features["odds_away"] = 0.0
		return nil
	}

	homeProb := impliedProbability(match.HomeOdds.Float64)
	drawProb := impliedProbability(match.DrawOdds.Float64)
	awayProb := impliedProbability(match.AwayOdds.Float64)

	// Normalize out the bookmaker margin so the three sum to 1
	if total := homeProb + drawProb + awayProb; total > 0 {
		homeProb /= total
		drawProb /= total
		awayProb /= total
	}

	features["implied_home_prob"] = homeProb
	features["implied_draw_prob"] = drawProb
	features["implied_away_prob"] = awayProb
	features["odds_home"] = match.HomeOdds.Float64
	features["odds_draw"] = match.DrawOdds.Float64
	features["odds_away"] = match.AwayOdds.Float64
	return nil
}

func impliedProbability(odds float64) float64 {
	if odds <= 1 {
		return 0.0
	}
	return 1.0 / odds
}

// BuildTrainingDataset walks all finished matches in the given seasons
// in date order and produces the feature table plus result and goals
// labels. A match whose feature build fails is logged and skipped.
// Clears both builder caches when done.
func (b *MatchFeatureBuilder) BuildTrainingDataset(ctx context.Context, seasonCodes, leagueCodes []string) (*TrainingSet, error) {
	log.Info().Strs("seasons", seasonCodes).Strs("leagues", leagueCodes).Msg("Building training dataset")

	matches, err := b.matches.FinishedBySeasons(ctx, seasonCodes, leagueCodes)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}
	log.Info().Int("count", len(matches)).Msg("Found finished matches")

	vectors := make([]Vector, 0, len(matches))
	var results, goals, matchIDs []int
	var matchDates []time.Time

	for i, m := range matches {
		vec, err := b.BuildFeatures(ctx, m.HomeTeamID, m.AwayTeamID, m.MatchDate, m.SeasonCode, true)
		if err != nil {
			log.Error().Err(err).Int("match_id", m.ID).Msg("Error building match features, skipping")
			continue
		}

		vectors = append(vectors, vec)
		results = append(results, m.ResultLabel())
		goals = append(goals, m.TotalGoals())
		matchIDs = append(matchIDs, m.ID)
		matchDates = append(matchDates, m.MatchDate)

		if (i+1)%500 == 0 {
			log.Info().Int("processed", i+1).Int("total", len(matches)).Msg("Training dataset progress")
		}
	}

	// Free the per-run caches
	b.Reset()
	b.teams.Reset()

	return &TrainingSet{
		Features:     NewFrame(vectors),
		ResultLabels: results,
		GoalsLabels:  goals,
		MatchIDs:     matchIDs,
		MatchDates:   matchDates,
	}, nil
}

// Reset clears the in-memory feature cache.
func (b *MatchFeatureBuilder) Reset() {
	b.cache = make(map[matchKey]Vector)
}
