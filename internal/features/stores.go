package features

import (
	"context"
	"time"

	"footypredict/pipeline/internal/models"
)

// MatchStore is the read-side contract the feature builders need from
// the match store. Every historical lookup filters strictly on
// match_date < before so no feature can read the match being predicted
// or anything after it.
type MatchStore interface {
	// RecentFinishedByTeam returns up to limit finished matches
	// involving the team with match_date strictly before the given
	// date, most recent first.
	RecentFinishedByTeam(ctx context.Context, teamID int, before time.Time, limit int) ([]*models.Match, error)

	// FinishedBetweenTeams returns up to limit finished meetings
	// between the two teams (either venue) strictly before the given
	// date, most recent first.
	FinishedBetweenTeams(ctx context.Context, teamA, teamB int, before time.Time, limit int) ([]*models.Match, error)

	// FinishedBySeasons returns all finished matches in the given
	// seasons (and leagues, when non-empty) ordered by date ascending.
	FinishedBySeasons(ctx context.Context, seasonCodes, leagueCodes []string) ([]*models.Match, error)

	// FindByTeamsAndDate returns the match row for the exact
	// (home, away, date) triple, or nil when none is recorded.
	FindByTeamsAndDate(ctx context.Context, homeTeamID, awayTeamID int, matchDate time.Time) (*models.Match, error)
}

// StatsStore is the read-side contract for aggregated season records.
// Both lookups return nil (not an error) when no row exists.
type StatsStore interface {
	ByTeamAndSeason(ctx context.Context, teamID int, seasonCode string) (*models.TeamSeasonStats, error)
	LatestByTeam(ctx context.Context, teamID int) (*models.TeamSeasonStats, error)
}
