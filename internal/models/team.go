package models

import (
	"database/sql"
	"time"
)

// Team represents a football club
type Team struct {
	ID         int            `db:"id"`
	Name       string         `db:"name"`
	ShortName  sql.NullString `db:"short_name"`
	Code       sql.NullString `db:"code"`
	LeagueCode string         `db:"league_code"`
	Stadium    sql.NullString `db:"stadium"`
	City       sql.NullString `db:"city"`
	IsActive   bool           `db:"is_active"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}
