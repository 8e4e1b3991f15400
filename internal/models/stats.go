package models

import (
	"database/sql"
	"time"
)

// TeamSeasonStats holds aggregated per-team-per-season totals.
// Denormalized from match history by the ingestion side; the feature
// builder always prefers raw match rows when both exist.
type TeamSeasonStats struct {
	ID         int    `db:"id"`
	TeamID     int    `db:"team_id"`
	SeasonCode string `db:"season_code"`
	LeagueCode string `db:"league_code"`

	MatchesPlayed int `db:"matches_played"`
	Wins          int `db:"wins"`
	Draws         int `db:"draws"`
	Losses        int `db:"losses"`
	GoalsFor      int `db:"goals_for"`
	GoalsAgainst  int `db:"goals_against"`
	Points        int `db:"points"`

	LeaguePosition sql.NullInt32  `db:"league_position"`
	Form           sql.NullString `db:"form"`

	XGFor     sql.NullFloat64 `db:"xg_for"`
	XGAgainst sql.NullFloat64 `db:"xg_against"`

	CleanSheets   int `db:"clean_sheets"`
	FailedToScore int `db:"failed_to_score"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Played returns the number of matches accounted for by the W/D/L record.
func (s *TeamSeasonStats) Played() int {
	return s.Wins + s.Draws + s.Losses
}
