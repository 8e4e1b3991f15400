package models

import (
	"database/sql"
	"time"
)

// Match statuses
const (
	StatusScheduled = "scheduled"
	StatusLive      = "live"
	StatusFinished  = "finished"
	StatusPostponed = "postponed"
	StatusCancelled = "cancelled"
)

// Result labels for training (0=home win, 1=draw, 2=away win)
const (
	ResultHomeWin = 0
	ResultDraw    = 1
	ResultAwayWin = 2
)

// Match represents a football match with its optional per-match
// statistics and market odds flattened onto the row (the repository
// LEFT JOINs match_statistics and match_odds).
type Match struct {
	ID         int           `db:"id"`
	SeasonCode string        `db:"season_code"`
	LeagueCode string        `db:"league_code"`
	HomeTeamID int           `db:"home_team_id"`
	AwayTeamID int           `db:"away_team_id"`
	MatchDate  time.Time     `db:"match_date"`
	Matchweek  sql.NullInt32 `db:"matchweek"`
	Status     string        `db:"status"`

	// Full-time and half-time scores
	HomeScore         sql.NullInt32 `db:"home_score"`
	AwayScore         sql.NullInt32 `db:"away_score"`
	HomeHalftimeScore sql.NullInt32 `db:"home_halftime_score"`
	AwayHalftimeScore sql.NullInt32 `db:"away_halftime_score"`

	// Per-match statistics (nullable, from match_statistics)
	ShotsHome   sql.NullInt32   `db:"shots_home"`
	ShotsAway   sql.NullInt32   `db:"shots_away"`
	CornersHome sql.NullInt32   `db:"corners_home"`
	CornersAway sql.NullInt32   `db:"corners_away"`
	XGHome      sql.NullFloat64 `db:"xg_home"`
	XGAway      sql.NullFloat64 `db:"xg_away"`

	// Market odds (nullable, from match_odds)
	HomeOdds    sql.NullFloat64 `db:"home_odds"`
	DrawOdds    sql.NullFloat64 `db:"draw_odds"`
	AwayOdds    sql.NullFloat64 `db:"away_odds"`
	Over25Odds  sql.NullFloat64 `db:"over_25_odds"`
	Under25Odds sql.NullFloat64 `db:"under_25_odds"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsFinished reports whether the match has a final result.
func (m *Match) IsFinished() bool {
	return m.Status == StatusFinished && m.HomeScore.Valid && m.AwayScore.Valid
}

// GoalsFor returns goals scored by the given team in this match.
func (m *Match) GoalsFor(teamID int) int {
	if teamID == m.HomeTeamID {
		return int(m.HomeScore.Int32)
	}
	return int(m.AwayScore.Int32)
}

// GoalsAgainst returns goals conceded by the given team in this match.
func (m *Match) GoalsAgainst(teamID int) int {
	if teamID == m.HomeTeamID {
		return int(m.AwayScore.Int32)
	}
	return int(m.HomeScore.Int32)
}

// PlayedHome reports whether the given team was the home side.
func (m *Match) PlayedHome(teamID int) bool {
	return m.HomeTeamID == teamID
}

// ResultLabel returns the 0/1/2 training label for a finished match.
func (m *Match) ResultLabel() int {
	home, away := int(m.HomeScore.Int32), int(m.AwayScore.Int32)
	switch {
	case home > away:
		return ResultHomeWin
	case home == away:
		return ResultDraw
	default:
		return ResultAwayWin
	}
}

// TotalGoals returns the full-time total for a finished match.
func (m *Match) TotalGoals() int {
	return int(m.HomeScore.Int32) + int(m.AwayScore.Int32)
}

// Outcome returns the HOME/DRAW/AWAY outcome string for a finished match.
func (m *Match) Outcome() string {
	switch m.ResultLabel() {
	case ResultHomeWin:
		return OutcomeHome
	case ResultDraw:
		return OutcomeDraw
	default:
		return OutcomeAway
	}
}
