// Package store persists tenders, follow flags, and scoring rules in
// SQLite. All methods take a context and wrap errors with the failing
// operation; lookups return (nil, nil) when the row does not exist.
package store

import (
	"database/sql"
	"time"
)

// Store wraps the SQL handle. It is safe for concurrent use to the
// extent the underlying driver is.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Active state texts as the upstream emits them. Tenders outside this
// set are considered settled: listings hide them and the retention sweep
// may delete them.
var activeStates = []string{"Publicada", "Publicada - Segundo llamado"}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

// nullMillis converts a timestamp to unix milliseconds, with the zero
// time mapping to NULL.
func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
