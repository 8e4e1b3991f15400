package features

import (
	"context"
	"crypto/md5"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// FeatureGroups maps a group name to the base-key suffixes it covers.
// A column belongs to a group when it ends with one of the suffixes
// (so home_/away_/diff_ prefixed variants are all matched).
var FeatureGroups = map[string][]string{
	"form": {
		"form_points", "form_goals_scored", "form_goals_conceded",
		"form_goal_diff", "form_win_rate", "form_weighted_points",
	},
	"extended_form": {
		"extended_form_points", "extended_form_goals_scored",
		"extended_form_goal_diff", "extended_form_win_rate",
	},
	"venue_form": {
		"venue_form_points", "venue_form_goals_scored",
		"venue_form_goal_diff", "venue_form_win_rate",
	},
	"season": {
		"season_points", "season_goals_per_game",
		"season_conceded_per_game", "season_goal_diff",
		"season_win_rate", "season_xg_diff",
	},
	"xg": {
		"xg_for_avg", "xg_against_avg", "xg_diff", "xg_overperformance",
	},
	"patterns": {
		"btts_rate", "over_25_rate", "over_15_rate", "first_half_goals_rate",
	},
	"h2h": {
		"h2h_matches", "h2h_home_wins", "h2h_away_wins", "h2h_draws",
		"h2h_home_goals_avg", "h2h_away_goals_avg", "h2h_total_goals_avg",
	},
	"context": {
		"home_rest_days", "away_rest_days", "rest_diff",
		"is_weekend", "is_early_season", "is_late_season",
	},
	"odds": {
		"implied_home_prob", "implied_draw_prob", "implied_away_prob",
		"odds_home", "odds_draw", "odds_away",
	},
}

// MatchRequest identifies one fixture for batch feature extraction.
type MatchRequest struct {
	MatchID    int
	HomeTeamID int
	AwayTeamID int
	MatchDate  time.Time
	SeasonCode string
}

// Extractor orchestrates single, batch and training-set feature
// extraction, applies feature-group filtering and manages the
// disk-backed training-data cache.
type Extractor struct {
	cacheDir string
	useCache bool

	teams   *TeamFeatureBuilder
	builder *MatchFeatureBuilder

	// Ordered column list after any group filtering; inference must
	// replay this exact ordering.
	featureColumns []string
}

// NewExtractor creates a feature extractor. cacheDir is created if
// missing; an empty cacheDir disables disk caching.
func NewExtractor(matches MatchStore, stats StatsStore, cacheDir string) *Extractor {
	useCache := cacheDir != ""
	if useCache {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", cacheDir).Msg("Cannot create feature cache dir, disk cache disabled")
			useCache = false
		}
	}

	teams := NewTeamFeatureBuilder(matches, stats)
	return &Extractor{
		cacheDir: cacheDir,
		useCache: useCache,
		teams:    teams,
		builder:  NewMatchFeatureBuilder(matches, teams),
	}
}

// ExtractMatchFeatures extracts the feature vector for a single match,
// optionally filtered to the named feature groups.
func (e *Extractor) ExtractMatchFeatures(ctx context.Context, homeTeamID, awayTeamID int, matchDate time.Time, seasonCode string, groups []string) (Vector, error) {
	vec, err := e.builder.BuildFeatures(ctx, homeTeamID, awayTeamID, matchDate, seasonCode, true)
	if err != nil {
		return nil, err
	}

	if len(groups) > 0 {
		vec = filterVector(vec, groups)
	}
	return vec, nil
}

// ExtractBatchFeatures extracts one feature vector per request, in
// input order.
func (e *Extractor) ExtractBatchFeatures(ctx context.Context, requests []MatchRequest, groups []string) ([]Vector, error) {
	vectors := make([]Vector, 0, len(requests))
	for _, req := range requests {
		vec, err := e.ExtractMatchFeatures(ctx, req.HomeTeamID, req.AwayTeamID, req.MatchDate, req.SeasonCode, groups)
		if err != nil {
			return nil, fmt.Errorf("failed to extract features for match %d: %w", req.MatchID, err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// BuildTrainingData builds (or loads from disk cache) the training set
// for the given seasons, leagues and feature groups. The resulting
// column ordering is recorded and available via FeatureColumns.
func (e *Extractor) BuildTrainingData(ctx context.Context, seasonCodes, leagueCodes, groups []string, useDiskCache bool) (*TrainingSet, error) {
	cacheKey := e.cacheKey(seasonCodes, leagueCodes, groups)

	if useDiskCache && e.useCache {
		if cached := e.loadFromCache(cacheKey); cached != nil {
			log.Info().Str("key", cacheKey).Msg("Loaded training data from cache")
			e.featureColumns = cached.Features.Columns
			return cached, nil
		}
	}

	set, err := e.builder.BuildTrainingDataset(ctx, seasonCodes, leagueCodes)
	if err != nil {
		return nil, err
	}

	if len(groups) > 0 {
		set.Features = filterFrame(set.Features, groups)
	}

	e.featureColumns = set.Features.Columns

	if useDiskCache && e.useCache {
		e.saveToCache(cacheKey, set)
	}

	return set, nil
}

// FeatureColumns returns the ordered column list from the last
// training-data build.
func (e *Extractor) FeatureColumns() []string {
	return e.featureColumns
}

// Reset clears the in-memory feature caches.
func (e *Extractor) Reset() {
	e.teams.Reset()
	e.builder.Reset()
}

func filterVector(vec Vector, groups []string) Vector {
	suffixes := groupSuffixes(groups)
	filtered := make(Vector, len(vec))
	for key, value := range vec {
		for _, suffix := range suffixes {
			if strings.HasSuffix(key, suffix) {
				filtered[key] = value
				break
			}
		}
	}
	return filtered
}

func filterFrame(f *Frame, groups []string) *Frame {
	suffixes := groupSuffixes(groups)
	var keep []string
	for _, col := range f.Columns {
		for _, suffix := range suffixes {
			if strings.HasSuffix(col, suffix) {
				keep = append(keep, col)
				break
			}
		}
	}
	return f.Select(keep)
}

func groupSuffixes(groups []string) []string {
	var suffixes []string
	for _, g := range groups {
		suffixes = append(suffixes, FeatureGroups[g]...)
	}
	return suffixes
}

// cacheKey derives a deterministic key from the sorted season codes,
// league codes and feature group names.
func (e *Extractor) cacheKey(seasonCodes, leagueCodes, groups []string) string {
	var parts []string
	parts = append(parts, sortedCopy(seasonCodes)...)
	parts = append(parts, "|")
	parts = append(parts, sortedCopy(leagueCodes)...)
	parts = append(parts, "|")
	parts = append(parts, sortedCopy(groups)...)

	sum := md5.Sum([]byte(strings.Join(parts, ",")))
	return fmt.Sprintf("training_%x", sum[:8])
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

// loadFromCache returns the cached training set, or nil on any miss or
// decode failure. Corruption is logged and bypassed, never fatal.
func (e *Extractor) loadFromCache(key string) *TrainingSet {
	path := filepath.Join(e.cacheDir, key+".gob")
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var set TrainingSet
	if err := gob.NewDecoder(f).Decode(&set); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Training cache load failed, recomputing")
		return nil
	}
	return &set
}

func (e *Extractor) saveToCache(key string, set *TrainingSet) {
	path := filepath.Join(e.cacheDir, key+".gob")
	f, err := os.Create(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Training cache save failed")
		return
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(set); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Training cache encode failed")
		return
	}
	log.Info().Str("path", path).Msg("Saved training data to cache")
}
