package features

import (
	"context"
	"fmt"
	"math"
	"time"

	"footypredict/pipeline/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	// FormMatches is the number of recent matches in a form window.
	FormMatches = 5

	// DecayFactor is the per-match exponential decay for weighted
	// points (most recent match has weight 1.0).
	DecayFactor = 0.9
)

type teamKey struct {
	TeamID     int
	AsOf       string
	IsHome     bool
	SeasonCode string
}

// TeamFeatureBuilder computes a single team's rolling form, season
// aggregate, xG and scoring-pattern features as of a given date.
//
// Results are cached per (team, date, venue, season); callers must
// Reset() between independent training runs to bound memory.
type TeamFeatureBuilder struct {
	matches MatchStore
	stats   StatsStore
	cache   map[teamKey]Vector
}

// NewTeamFeatureBuilder creates a team feature builder.
func NewTeamFeatureBuilder(matches MatchStore, stats StatsStore) *TeamFeatureBuilder {
	return &TeamFeatureBuilder{
		matches: matches,
		stats:   stats,
		cache:   make(map[teamKey]Vector),
	}
}

// BuildFeatures builds the feature vector for a team as of asOf.
// All historical lookups exclude matches on or after asOf. A team with
// no usable history gets an all-zero vector, never an error.
func (b *TeamFeatureBuilder) BuildFeatures(ctx context.Context, teamID int, asOf time.Time, isHome bool, seasonCode string) (Vector, error) {
	key := teamKey{TeamID: teamID, AsOf: asOf.Format("2006-01-02"), IsHome: isHome, SeasonCode: seasonCode}
	if cached, ok := b.cache[key]; ok {
		return cached, nil
	}

	recent, err := b.matches.RecentFinishedByTeam(ctx, teamID, asOf, FormMatches*2)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent matches for team %d: %w", teamID, err)
	}

	features := make(Vector)

	// Form over the last FormMatches matches
	formWindow := recent
	if len(formWindow) > FormMatches {
		formWindow = formWindow[:FormMatches]
	}
	b.formFeatures(features, teamID, formWindow, "")

	// Extended form over the full recent window
	b.formFeatures(features, teamID, recent, "extended_")

	// Venue-specific form: only matches played in the same venue as
	// the upcoming one
	var venue []*models.Match
	for _, m := range recent {
		if m.PlayedHome(teamID) == isHome {
			venue = append(venue, m)
		}
	}
	if len(venue) > FormMatches {
		venue = venue[:FormMatches]
	}
	b.formFeatures(features, teamID, venue, "venue_")

	if err := b.seasonFeatures(ctx, features, teamID, seasonCode); err != nil {
		return nil, err
	}

	b.xgFeatures(features, teamID, recent)
	b.scoringPatterns(features, recent)

	if isHome {
		features["is_home"] = 1.0
	} else {
		features["is_home"] = 0.0
	}

	b.cache[key] = features
	return features, nil
}

// formFeatures computes the per-window form metrics. The window may be
// empty, in which case every metric is 0.
func (b *TeamFeatureBuilder) formFeatures(features Vector, teamID int, matches []*models.Match, prefix string) {
	keys := []string{
		"form_points", "form_goals_scored", "form_goals_conceded",
		"form_goal_diff", "form_win_rate", "form_draw_rate",
		"form_loss_rate", "form_clean_sheets", "form_failed_to_score",
		"form_weighted_points",
	}
	if len(matches) == 0 {
		for _, k := range keys {
			features[prefix+k] = 0.0
		}
		return
	}

	var points, goalsScored, goalsConceded int
	var wins, draws, losses, cleanSheets, failedToScore int
	var weightedPoints float64

	for i, m := range matches {
		gf := m.GoalsFor(teamID)
		ga := m.GoalsAgainst(teamID)

		goalsScored += gf
		goalsConceded += ga

		if ga == 0 {
			cleanSheets++
		}
		if gf == 0 {
			failedToScore++
		}

		var matchPoints int
		switch {
		case gf > ga:
			matchPoints = 3
			wins++
		case gf == ga:
			matchPoints = 1
			draws++
		default:
			losses++
		}

		points += matchPoints
		weightedPoints += float64(matchPoints) * math.Pow(DecayFactor, float64(i))
	}

	n := float64(len(matches))
	features[prefix+"form_points"] = float64(points) / (n * 3)
	features[prefix+"form_goals_scored"] = float64(goalsScored) / n
	features[prefix+"form_goals_conceded"] = float64(goalsConceded) / n
	features[prefix+"form_goal_diff"] = float64(goalsScored-goalsConceded) / n
	features[prefix+"form_win_rate"] = float64(wins) / n
	features[prefix+"form_draw_rate"] = float64(draws) / n
	features[prefix+"form_loss_rate"] = float64(losses) / n
	features[prefix+"form_clean_sheets"] = float64(cleanSheets) / n
	features[prefix+"form_failed_to_score"] = float64(failedToScore) / n
	features[prefix+"form_weighted_points"] = weightedPoints / n
}

// seasonFeatures pulls aggregates from the team's season-stats record,
// falling back to the latest season when no code is given. A missing
// record zero-fills every season key.
func (b *TeamFeatureBuilder) seasonFeatures(ctx context.Context, features Vector, teamID int, seasonCode string) error {
	var stats *models.TeamSeasonStats
	var err error

	if seasonCode != "" {
		stats, err = b.stats.ByTeamAndSeason(ctx, teamID, seasonCode)
	} else {
		stats, err = b.stats.LatestByTeam(ctx, teamID)
	}
	if err != nil {
		return fmt.Errorf("failed to load season stats for team %d: %w", teamID, err)
	}

	if stats == nil || stats.Played() == 0 {
		if stats == nil {
			log.Debug().Int("team_id", teamID).Str("season", seasonCode).Msg("No season stats, zero-filling")
		}
		features["season_points"] = 0.0
		features["season_goals_per_game"] = 0.0
		features["season_conceded_per_game"] = 0.0
		features["season_goal_diff"] = 0.0
		features["season_win_rate"] = 0.0
		features["season_xg_diff"] = 0.0
		features["season_matches_played"] = 0.0
		return nil
	}

	played := float64(stats.Played())
	features["season_points"] = float64(stats.Wins*3+stats.Draws) / played
	features["season_goals_per_game"] = float64(stats.GoalsFor) / played
	features["season_conceded_per_game"] = float64(stats.GoalsAgainst) / played
	features["season_goal_diff"] = float64(stats.GoalsFor-stats.GoalsAgainst) / played
	features["season_win_rate"] = float64(stats.Wins) / played
	features["season_xg_diff"] = stats.XGFor.Float64 - stats.XGAgainst.Float64
	features["season_matches_played"] = played
	return nil
}

// xgFeatures averages xG over the recent window. Zero xG is treated as
// missing data, not as a true zero.
func (b *TeamFeatureBuilder) xgFeatures(features Vector, teamID int, matches []*models.Match) {
	var xgFor, xgAgainst, overperf []float64

	for _, m := range matches {
		var xg, xga float64
		if m.PlayedHome(teamID) {
			xg = m.XGHome.Float64
			xga = m.XGAway.Float64
		} else {
			xg = m.XGAway.Float64
			xga = m.XGHome.Float64
		}

		if xg > 0 {
			xgFor = append(xgFor, xg)
			overperf = append(overperf, float64(m.GoalsFor(teamID))-xg)
		}
		if xga > 0 {
			xgAgainst = append(xgAgainst, xga)
		}
	}

	features["xg_for_avg"] = mean(xgFor)
	features["xg_against_avg"] = mean(xgAgainst)
	if len(xgFor) > 0 && len(xgAgainst) > 0 {
		features["xg_diff"] = mean(xgFor) - mean(xgAgainst)
	} else {
		features["xg_diff"] = 0.0
	}
	features["xg_overperformance"] = mean(overperf)
}

// scoringPatterns computes rate features over the recent window.
func (b *TeamFeatureBuilder) scoringPatterns(features Vector, matches []*models.Match) {
	if len(matches) == 0 {
		features["btts_rate"] = 0.0
		features["over_25_rate"] = 0.0
		features["over_15_rate"] = 0.0
		features["first_half_goals_rate"] = 0.0
		return
	}

	var btts, over25, over15, firstHalf int
	for _, m := range matches {
		home := int(m.HomeScore.Int32)
		away := int(m.AwayScore.Int32)
		total := home + away

		if home > 0 && away > 0 {
			btts++
		}
		if total > 2 {
			over25++
		}
		if total > 1 {
			over15++
		}
		if int(m.HomeHalftimeScore.Int32)+int(m.AwayHalftimeScore.Int32) > 0 {
			firstHalf++
		}
	}

	n := float64(len(matches))
	features["btts_rate"] = float64(btts) / n
	features["over_25_rate"] = float64(over25) / n
	features["over_15_rate"] = float64(over15) / n
	features["first_half_goals_rate"] = float64(firstHalf) / n
}

// Reset clears the in-memory feature cache. Call between independent
// training runs to bound memory.
func (b *TeamFeatureBuilder) Reset() {
	b.cache = make(map[teamKey]Vector)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
