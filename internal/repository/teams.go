package repository

import (
	"context"
	"fmt"

	"footypredict/pipeline/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// TeamsRepository handles team database operations
type TeamsRepository struct {
	db *Database
}

const teamColumns = `
	id, name, short_name, code, league_code, stadium, city, is_active,
	created_at, updated_at`

func scanTeam(row pgx.Row) (*models.Team, error) {
	var t models.Team
	err := row.Scan(
		&t.ID, &t.Name, &t.ShortName, &t.Code, &t.LeagueCode, &t.Stadium,
		&t.City, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Upsert inserts or updates a team keyed by name and league
func (r *TeamsRepository) Upsert(ctx context.Context, t *models.Team) error {
	query := `
		INSERT INTO teams (name, short_name, code, league_code, stadium, city, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name, league_code) DO UPDATE SET
			short_name = EXCLUDED.short_name,
			code = EXCLUDED.code,
			stadium = EXCLUDED.stadium,
			city = EXCLUDED.city,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(
		ctx, query,
		t.Name, t.ShortName, t.Code, t.LeagueCode, t.Stadium, t.City, t.IsActive,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert team: %w", err)
	}

	log.Debug().Int("id", t.ID).Str("name", t.Name).Msg("Team upserted")
	return nil
}

// GetByID retrieves a team by its database ID
func (r *TeamsRepository) GetByID(ctx context.Context, id int) (*models.Team, error) {
	query := `SELECT` + teamColumns + ` FROM teams WHERE id = $1`

	t, err := scanTeam(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("team not found: id=%d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return t, nil
}

// GetByName retrieves a team by exact name within a league
func (r *TeamsRepository) GetByName(ctx context.Context, name, leagueCode string) (*models.Team, error) {
	query := `SELECT` + teamColumns + ` FROM teams WHERE name = $1 AND league_code = $2`

	t, err := scanTeam(r.db.Pool.QueryRow(ctx, query, name, leagueCode))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team by name: %w", err)
	}
	return t, nil
}

// ListByLeague returns all active teams in a league ordered by name
func (r *TeamsRepository) ListByLeague(ctx context.Context, leagueCode string) ([]*models.Team, error) {
	query := `SELECT` + teamColumns + ` FROM teams WHERE league_code = $1 AND is_active ORDER BY name`

	rows, err := r.db.Pool.Query(ctx, query, leagueCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read teams: %w", err)
	}
	return teams, nil
}
