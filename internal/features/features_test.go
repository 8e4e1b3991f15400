package features

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"testing"
	"time"

	"footypredict/pipeline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMatchStore serves matches from memory with the same ordering
// contracts as the pgx repository.
type fakeMatchStore struct {
	matches []*models.Match
}

func (f *fakeMatchStore) RecentFinishedByTeam(_ context.Context, teamID int, before time.Time, limit int) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range f.matches {
		if m.Status == models.StatusFinished &&
			(m.HomeTeamID == teamID || m.AwayTeamID == teamID) &&
			m.MatchDate.Before(before) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchDate.After(out[j].MatchDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMatchStore) FinishedBetweenTeams(_ context.Context, teamA, teamB int, before time.Time, limit int) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range f.matches {
		if m.Status != models.StatusFinished || !m.MatchDate.Before(before) {
			continue
		}
		if (m.HomeTeamID == teamA && m.AwayTeamID == teamB) ||
			(m.HomeTeamID == teamB && m.AwayTeamID == teamA) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchDate.After(out[j].MatchDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMatchStore) FinishedBySeasons(_ context.Context, seasonCodes, leagueCodes []string) ([]*models.Match, error) {
	seasons := make(map[string]bool)
	for _, s := range seasonCodes {
		seasons[s] = true
	}
	var out []*models.Match
	for _, m := range f.matches {
		if m.Status == models.StatusFinished && seasons[m.SeasonCode] {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchDate.Before(out[j].MatchDate) })
	return out, nil
}

func (f *fakeMatchStore) FindByTeamsAndDate(_ context.Context, homeTeamID, awayTeamID int, matchDate time.Time) (*models.Match, error) {
	for _, m := range f.matches {
		if m.HomeTeamID == homeTeamID && m.AwayTeamID == awayTeamID &&
			m.MatchDate.Format("2006-01-02") == matchDate.Format("2006-01-02") {
			return m, nil
		}
	}
	return nil, nil
}

type fakeStatsStore struct {
	stats map[int]*models.TeamSeasonStats
}

func (f *fakeStatsStore) ByTeamAndSeason(_ context.Context, teamID int, _ string) (*models.TeamSeasonStats, error) {
	return f.stats[teamID], nil
}

func (f *fakeStatsStore) LatestByTeam(_ context.Context, teamID int) (*models.TeamSeasonStats, error) {
	return f.stats[teamID], nil
}

func date(day int) time.Time {
	return time.Date(2024, time.January, day, 15, 0, 0, 0, time.UTC)
}

func finished(id, home, away, homeGoals, awayGoals int, matchDate time.Time) *models.Match {
	return &models.Match{
		ID:         id,
		SeasonCode: "2324",
		LeagueCode: "E0",
		HomeTeamID: home,
		AwayTeamID: away,
		MatchDate:  matchDate,
		Status:     models.StatusFinished,
		HomeScore:  sql.NullInt32{Int32: int32(homeGoals), Valid: true},
		AwayScore:  sql.NullInt32{Int32: int32(awayGoals), Valid: true},
	}
}

func TestTeamFormFeatures(t *testing.T) {
	// Team 1, newest first as of day 20: won 2-0, drew 1-1 away, lost 0-1
	store := &fakeMatchStore{matches: []*models.Match{
		finished(1, 1, 9, 2, 0, date(15)),
		finished(2, 8, 1, 1, 1, date(10)),
		finished(3, 1, 7, 0, 1, date(5)),
	}}
	builder := NewTeamFeatureBuilder(store, &fakeStatsStore{})

	vec, err := builder.BuildFeatures(context.Background(), 1, date(20), true, "2324")
	require.NoError(t, err)

	assert.InDelta(t, 4.0/9.0, vec["form_points"], 1e-9)
	assert.InDelta(t, 1.0, vec["form_goals_scored"], 1e-9)
	assert.InDelta(t, 2.0/3.0, vec["form_goals_conceded"], 1e-9)
	assert.InDelta(t, 1.0/3.0, vec["form_win_rate"], 1e-9)
	assert.InDelta(t, 1.0/3.0, vec["form_draw_rate"], 1e-9)
	assert.InDelta(t, 1.0/3.0, vec["form_clean_sheets"], 1e-9)

	// Weighted points decay newest-first: 3*1.0 + 1*0.9 + 0*0.81
	assert.InDelta(t, 3.9/3.0, vec["form_weighted_points"], 1e-9)
	assert.Equal(t, 1.0, vec["is_home"])
}

func TestTeamFeaturesNoHistory(t *testing.T) {
	builder := NewTeamFeatureBuilder(&fakeMatchStore{}, &fakeStatsStore{})

	vec, err := builder.BuildFeatures(context.Background(), 42, date(20), false, "2324")
	require.NoError(t, err)

	assert.Equal(t, 0.0, vec["form_points"])
	assert.Equal(t, 0.0, vec["venue_form_win_rate"])
	assert.Equal(t, 0.0, vec["season_points"])
	assert.Equal(t, 0.0, vec["xg_for_avg"])
	assert.Equal(t, 0.0, vec["btts_rate"])
	assert.Equal(t, 0.0, vec["is_home"])
}

func TestNoTemporalLeakage(t *testing.T) {
	history := []*models.Match{
		finished(1, 1, 9, 2, 0, date(15)),
		finished(2, 8, 1, 1, 1, date(10)),
	}
	clean := NewTeamFeatureBuilder(&fakeMatchStore{matches: history}, &fakeStatsStore{})

	// Same history plus an extreme result one day after the cutoff
	polluted := append([]*models.Match{finished(99, 1, 9, 10, 0, date(21))}, history...)
	leaky := NewTeamFeatureBuilder(&fakeMatchStore{matches: polluted}, &fakeStatsStore{})

	ctx := context.Background()
	want, err := clean.BuildFeatures(ctx, 1, date(20), true, "2324")
	require.NoError(t, err)
	got, err := leaky.BuildFeatures(ctx, 1, date(20), true, "2324")
	require.NoError(t, err)

	assert.Equal(t, want, got, "a future match must not change features as of an earlier date")
}

func TestSeasonFeaturesZeroPlayed(t *testing.T) {
	stats := &fakeStatsStore{stats: map[int]*models.TeamSeasonStats{
		5: {TeamID: 5, SeasonCode: "2324"}, // record exists but no matches played
	}}
	builder := NewTeamFeatureBuilder(&fakeMatchStore{}, stats)

	vec, err := builder.BuildFeatures(context.Background(), 5, date(20), true, "2324")
	require.NoError(t, err)
	assert.Equal(t, 0.0, vec["season_points"])
	assert.Equal(t, 0.0, vec["season_matches_played"])
}

func TestXGZeroTreatedAsMissing(t *testing.T) {
	m := finished(1, 1, 9, 2, 1, date(15))
	m.XGHome = sql.NullFloat64{Float64: 1.8, Valid: true}
	m.XGAway = sql.NullFloat64{Float64: 0.9, Valid: true}
	noXG := finished(2, 1, 8, 1, 0, date(10)) // xG columns null → zero

	builder := NewTeamFeatureBuilder(&fakeMatchStore{matches: []*models.Match{m, noXG}}, &fakeStatsStore{})
	vec, err := builder.BuildFeatures(context.Background(), 1, date(20), true, "2324")
	require.NoError(t, err)

	// Only the match with real xG counts toward the average
	assert.InDelta(t, 1.8, vec["xg_for_avg"], 1e-9)
	assert.InDelta(t, 0.9, vec["xg_against_avg"], 1e-9)
	assert.InDelta(t, 0.9, vec["xg_diff"], 1e-9)
	assert.InDelta(t, 0.2, vec["xg_overperformance"], 1e-9)
}

func TestH2HNormalizedToHomeSide(t *testing.T) {
	// Team 1 beat team 2 twice, once hosting and once away
	store := &fakeMatchStore{matches: []*models.Match{
		finished(1, 1, 2, 3, 0, date(5)),
		finished(2, 2, 1, 0, 2, date(10)),
	}}
	teams := NewTeamFeatureBuilder(store, &fakeStatsStore{})
	builder := NewMatchFeatureBuilder(store, teams)

	vec, err := builder.BuildFeatures(context.Background(), 1, 2, date(20), "2324", false)
	require.NoError(t, err)

	assert.Equal(t, 2.0, vec["h2h_matches"])
	assert.Equal(t, 1.0, vec["h2h_home_wins"])
	assert.Equal(t, 0.0, vec["h2h_away_wins"])
	assert.InDelta(t, 2.5, vec["h2h_home_goals_avg"], 1e-9)
	assert.InDelta(t, 0.0, vec["h2h_away_goals_avg"], 1e-9)
}

func TestRestDaysCappedAfterDiff(t *testing.T) {
	// Home last played 20 days ago, away 2 days ago
	store := &fakeMatchStore{matches: []*models.Match{
		finished(1, 1, 9, 1, 0, date(1)),
		finished(2, 2, 8, 0, 0, date(19)),
	}}
	teams := NewTeamFeatureBuilder(store, &fakeStatsStore{})
	builder := NewMatchFeatureBuilder(store, teams)

	vec, err := builder.BuildFeatures(context.Background(), 1, 2, date(21), "2324", false)
	require.NoError(t, err)

	assert.Equal(t, 14.0, vec["home_rest_days"], "rest days are capped at 14")
	assert.Equal(t, 2.0, vec["away_rest_days"])
	assert.Equal(t, 18.0, vec["rest_diff"], "diff uses uncapped values")
}

func TestOddsImpliedProbabilitiesNormalized(t *testing.T) {
	fixture := &models.Match{
		ID: 50, SeasonCode: "2324", LeagueCode: "E0",
		HomeTeamID: 1, AwayTeamID: 2,
		MatchDate: date(20), Status: models.StatusScheduled,
		HomeOdds: sql.NullFloat64{Float64: 2.0, Valid: true},
		DrawOdds: sql.NullFloat64{Float64: 3.0, Valid: true},
		AwayOdds: sql.NullFloat64{Float64: 4.0, Valid: true},
	}
	store := &fakeMatchStore{matches: []*models.Match{fixture}}
	teams := NewTeamFeatureBuilder(store, &fakeStatsStore{})
	builder := NewMatchFeatureBuilder(store, teams)

	vec, err := builder.BuildFeatures(context.Background(), 1, 2, date(20), "2324", true)
	require.NoError(t, err)

	sum := vec["implied_home_prob"] + vec["implied_draw_prob"] + vec["implied_away_prob"]
	assert.InDelta(t, 1.0, sum, 1e-9, "bookmaker margin is normalized out")
	assert.InDelta(t, 0.5/(0.5+1.0/3.0+0.25), vec["implied_home_prob"], 1e-9)
	assert.Equal(t, 2.0, vec["odds_home"])
}

func TestOddsZeroFilledWhenUnavailable(t *testing.T) {
	store := &fakeMatchStore{}
	teams := NewTeamFeatureBuilder(store, &fakeStatsStore{})
	builder := NewMatchFeatureBuilder(store, teams)

	vec, err := builder.BuildFeatures(context.Background(), 1, 2, date(20), "2324", true)
	require.NoError(t, err)
	assert.Equal(t, 0.0, vec["implied_home_prob"])
	assert.Equal(t, 0.0, vec["odds_home"])
}

func TestBuildTrainingDatasetLabels(t *testing.T) {
	store := &fakeMatchStore{matches: []*models.Match{
		finished(1, 1, 2, 3, 1, date(5)),
		finished(2, 3, 4, 1, 1, date(6)),
		finished(3, 5, 6, 0, 2, date(7)),
	}}
	teams := NewTeamFeatureBuilder(store, &fakeStatsStore{})
	builder := NewMatchFeatureBuilder(store, teams)

	set, err := builder.BuildTrainingDataset(context.Background(), []string{"2324"}, nil)
	require.NoError(t, err)

	require.Equal(t, 3, set.Features.Len())
	assert.Equal(t, []int{models.ResultHomeWin, models.ResultDraw, models.ResultAwayWin}, set.ResultLabels)
	assert.Equal(t, []int{4, 2, 2}, set.GoalsLabels)
	assert.Equal(t, []int{1, 2, 3}, set.MatchIDs)
	assert.Equal(t, []time.Time{date(5), date(6), date(7)}, set.MatchDates)
	assert.True(t, sort.StringsAreSorted(set.Features.Columns), "columns are deterministic")
}

func TestExtractorGroupFiltering(t *testing.T) {
	store := &fakeMatchStore{matches: []*models.Match{
		finished(1, 1, 9, 2, 0, date(15)),
	}}
	extractor := NewExtractor(store, &fakeStatsStore{}, "")

	vec, err := extractor.ExtractMatchFeatures(context.Background(), 1, 2, date(20), "2324", []string{"form"})
	require.NoError(t, err)
	require.NotEmpty(t, vec)

	for key := range vec {
		matched := false
		for _, suffix := range FeatureGroups["form"] {
			if strings.HasSuffix(key, suffix) {
				matched = true
				break
			}
		}
		assert.True(t, matched, "unexpected feature %q for group form", key)
	}
	assert.Contains(t, vec, "home_form_points")
	assert.NotContains(t, vec, "h2h_matches")
}

func TestFrameSelectZeroFillsUnknownColumns(t *testing.T) {
	frame := NewFrame([]Vector{{"a": 1, "b": 2}})

	selected := frame.Select([]string{"b", "missing", "a"})
	assert.Equal(t, []string{"b", "missing", "a"}, selected.Columns)
	assert.Equal(t, []float64{2, 0, 1}, selected.Rows[0])
}

func TestTrainingDataDiskCache(t *testing.T) {
	store := &fakeMatchStore{matches: []*models.Match{
		finished(1, 1, 2, 2, 1, date(5)),
		finished(2, 2, 1, 0, 0, date(12)),
	}}
	dir := t.TempDir()
	extractor := NewExtractor(store, &fakeStatsStore{}, dir)

	ctx := context.Background()
	first, err := extractor.BuildTrainingData(ctx, []string{"2324"}, nil, nil, true)
	require.NoError(t, err)

	// Second build must come from disk even with an empty store
	cold := NewExtractor(&fakeMatchStore{}, &fakeStatsStore{}, dir)
	second, err := cold.BuildTrainingData(ctx, []string{"2324"}, nil, nil, true)
	require.NoError(t, err)

	assert.Equal(t, first.Features.Columns, second.Features.Columns)
	assert.Equal(t, first.ResultLabels, second.ResultLabels)
	assert.Equal(t, first.MatchIDs, second.MatchIDs)
}
