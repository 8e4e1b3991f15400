package repository

import (
	"context"
	"fmt"
	"time"

	"footypredict/pipeline/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// MatchesRepository handles match database operations. Reads flatten
// the optional match_statistics and match_odds rows onto the match via
// LEFT JOIN.
type MatchesRepository struct {
	db *Database
}

const matchColumns = `
	m.id, m.season_code, m.league_code, m.home_team_id, m.away_team_id,
	m.match_date, m.matchweek, m.status,
	m.home_score, m.away_score, m.home_halftime_score, m.away_halftime_score,
	s.shots_home, s.shots_away, s.corners_home, s.corners_away, s.xg_home, s.xg_away,
	o.home_odds, o.draw_odds, o.away_odds, o.over_25_odds, o.under_25_odds,
	m.created_at, m.updated_at`

const matchJoins = `
	FROM matches m
	LEFT JOIN match_statistics s ON s.match_id = m.id
	LEFT JOIN match_odds o ON o.match_id = m.id`

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	err := row.Scan(
		&m.ID, &m.SeasonCode, &m.LeagueCode, &m.HomeTeamID, &m.AwayTeamID,
		&m.MatchDate, &m.Matchweek, &m.Status,
		&m.HomeScore, &m.AwayScore, &m.HomeHalftimeScore, &m.AwayHalftimeScore,
		&m.ShotsHome, &m.ShotsAway, &m.CornersHome, &m.CornersAway, &m.XGHome, &m.XGAway,
		&m.HomeOdds, &m.DrawOdds, &m.AwayOdds, &m.Over25Odds, &m.Under25Odds,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchesRepository) queryMatches(ctx context.Context, query string, args ...any) ([]*models.Match, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}
	return matches, nil
}

// Upsert inserts or updates a match keyed by the fixture identity
func (r *MatchesRepository) Upsert(ctx context.Context, m *models.Match) error {
	query := `
		INSERT INTO matches (
			season_code, league_code, home_team_id, away_team_id,
			match_date, matchweek, status,
			home_score, away_score, home_halftime_score, away_halftime_score
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (home_team_id, away_team_id, match_date) DO UPDATE SET
			season_code = EXCLUDED.season_code,
			league_code = EXCLUDED.league_code,
			matchweek = EXCLUDED.matchweek,
			status = EXCLUDED.status,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			home_halftime_score = EXCLUDED.home_halftime_score,
			away_halftime_score = EXCLUDED.away_halftime_score,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(
		ctx, query,
		m.SeasonCode, m.LeagueCode, m.HomeTeamID, m.AwayTeamID,
		m.MatchDate, m.Matchweek, m.Status,
		m.HomeScore, m.AwayScore, m.HomeHalftimeScore, m.AwayHalftimeScore,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert match: %w", err)
	}

	log.Debug().
		Int("id", m.ID).
		Int("home_team_id", m.HomeTeamID).
		Int("away_team_id", m.AwayTeamID).
		Time("match_date", m.MatchDate).
		Msg("Match upserted")

	return nil
}

// GetByID retrieves a match by its database ID
func (r *MatchesRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + matchJoins + ` WHERE m.id = $1`

	m, err := scanMatch(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("match not found: id=%d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// RecentFinishedByTeam returns the team's most recent finished matches
// strictly before the given date, newest first.
func (r *MatchesRepository) RecentFinishedByTeam(ctx context.Context, teamID int, before time.Time, limit int) ([]*models.Match, error) {
	query := `SELECT` + matchColumns + matchJoins + `
		WHERE m.status = $1
		  AND (m.home_team_id = $2 OR m.away_team_id = $2)
		  AND m.match_date < $3
		ORDER BY m.match_date DESC
		LIMIT $4`

	return r.queryMatches(ctx, query, models.StatusFinished, teamID, before, limit)
}

// FinishedBetweenTeams returns finished meetings of the two teams in
// either venue arrangement, strictly before the given date, newest
// first.
func (r *MatchesRepository) FinishedBetweenTeams(ctx context.Context, teamA, teamB int, before time.Time, limit int) ([]*models.Match, error) {
	query := `SELECT` + matchColumns + matchJoins + `
		WHERE m.status = $1
		  AND ((m.home_team_id = $2 AND m.away_team_id = $3)
		    OR (m.home_team_id = $3 AND m.away_team_id = $2))
		  AND m.match_date < $4
		ORDER BY m.match_date DESC
		LIMIT $5`

	return r.queryMatches(ctx, query, models.StatusFinished, teamA, teamB, before, limit)
}

// FinishedBySeasons returns all finished matches for the given seasons
// in date order, optionally filtered by league.
func (r *MatchesRepository) FinishedBySeasons(ctx context.Context, seasonCodes, leagueCodes []string) ([]*models.Match, error) {
	query := `SELECT` + matchColumns + matchJoins + `
		WHERE m.status = $1
		  AND m.season_code = ANY($2)
		  AND ($3::text[] IS NULL OR m.league_code = ANY($3))
		ORDER BY m.match_date ASC`

	var leagues any
	if len(leagueCodes) > 0 {
		leagues = leagueCodes
	}
	return r.queryMatches(ctx, query, models.StatusFinished, seasonCodes, leagues)
}

// FindByTeamsAndDate returns the match between the given home and away
// sides on the given calendar date, or nil when no such fixture exists.
func (r *MatchesRepository) FindByTeamsAndDate(ctx context.Context, homeTeamID, awayTeamID int, matchDate time.Time) (*models.Match, error) {
	query := `SELECT` + matchColumns + matchJoins + `
		WHERE m.home_team_id = $1
		  AND m.away_team_id = $2
		  AND m.match_date::date = $3::date`

	m, err := scanMatch(r.db.Pool.QueryRow(ctx, query, homeTeamID, awayTeamID, matchDate))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}
	return m, nil
}

// UpcomingScheduled returns scheduled matches in the window, soonest
// first, optionally filtered by league.
func (r *MatchesRepository) UpcomingScheduled(ctx context.Context, from, to time.Time, leagueCodes []string) ([]*models.Match, error) {
	query := `SELECT` + matchColumns + matchJoins + `
		WHERE m.status = $1
		  AND m.match_date >= $2
		  AND m.match_date < $3
		  AND ($4::text[] IS NULL OR m.league_code = ANY($4))
		ORDER BY m.match_date ASC`

	var leagues any
	if len(leagueCodes) > 0 {
		leagues = leagueCodes
	}
	return r.queryMatches(ctx, query, models.StatusScheduled, from, to, leagues)
}
