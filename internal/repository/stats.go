package repository

import (
	"context"
	"fmt"

	"footypredict/pipeline/internal/models"

	"github.com/jackc/pgx/v5"
)

// StatsRepository handles team season stats database operations
type StatsRepository struct {
	db *Database
}

const statsColumns = `
	id, team_id, season_code, league_code,
	matches_played, wins, draws, losses, goals_for, goals_against, points,
	league_position, form, xg_for, xg_against, clean_sheets, failed_to_score,
	created_at, updated_at`

func scanStats(row pgx.Row) (*models.TeamSeasonStats, error) {
	var s models.TeamSeasonStats
	err := row.Scan(
		&s.ID, &s.TeamID, &s.SeasonCode, &s.LeagueCode,
		&s.MatchesPlayed, &s.Wins, &s.Draws, &s.Losses, &s.GoalsFor, &s.GoalsAgainst, &s.Points,
		&s.LeaguePosition, &s.Form, &s.XGFor, &s.XGAgainst, &s.CleanSheets, &s.FailedToScore,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts or updates a team's season stats
func (r *StatsRepository) Upsert(ctx context.Context, s *models.TeamSeasonStats) error {
	query := `
		INSERT INTO team_season_stats (
			team_id, season_code, league_code,
			matches_played, wins, draws, losses, goals_for, goals_against, points,
			league_position, form, xg_for, xg_against, clean_sheets, failed_to_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (team_id, season_code) DO UPDATE SET
			league_code = EXCLUDED.league_code,
			matches_played = EXCLUDED.matches_played,
			wins = EXCLUDED.wins,
			draws = EXCLUDED.draws,
			losses = EXCLUDED.losses,
			goals_for = EXCLUDED.goals_for,
			goals_against = EXCLUDED.goals_against,
			points = EXCLUDED.points,
			league_position = EXCLUDED.league_position,
			form = EXCLUDED.form,
			xg_for = EXCLUDED.xg_for,
			xg_against = EXCLUDED.xg_against,
			clean_sheets = EXCLUDED.clean_sheets,
			failed_to_score = EXCLUDED.failed_to_score,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(
		ctx, query,
		s.TeamID, s.SeasonCode, s.LeagueCode,
		s.MatchesPlayed, s.Wins, s.Draws, s.Losses, s.GoalsFor, s.GoalsAgainst, s.Points,
		s.LeaguePosition, s.Form, s.XGFor, s.XGAgainst, s.CleanSheets, s.FailedToScore,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert team season stats: %w", err)
	}
	return nil
}

// ByTeamAndSeason returns a team's stats for one season, or nil when
// none are recorded.
func (r *StatsRepository) ByTeamAndSeason(ctx context.Context, teamID int, seasonCode string) (*models.TeamSeasonStats, error) {
	query := `SELECT` + statsColumns + `
		FROM team_season_stats
		WHERE team_id = $1 AND season_code = $2`

	s, err := scanStats(r.db.Pool.QueryRow(ctx, query, teamID, seasonCode))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team season stats: %w", err)
	}
	return s, nil
}

// LatestByTeam returns the team's most recent season stats, or nil
// when the team has none.
func (r *StatsRepository) LatestByTeam(ctx context.Context, teamID int) (*models.TeamSeasonStats, error) {
	query := `SELECT` + statsColumns + `
		FROM team_season_stats
		WHERE team_id = $1
		ORDER BY season_code DESC
		LIMIT 1`

	s, err := scanStats(r.db.Pool.QueryRow(ctx, query, teamID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest team stats: %w", err)
	}
	return s, nil
}
