package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is applied on startup. Statements are idempotent so the same
// database file survives upgrades without a migration step.
const Schema = `
CREATE TABLE IF NOT EXISTS sectors (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS organisms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	sector_id  INTEGER NOT NULL REFERENCES sectors(id),
	is_new     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS tenders (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	code             TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL,
	organism_id      INTEGER NOT NULL REFERENCES organisms(id),
	amount_clp       REAL NOT NULL DEFAULT 0,
	published_on     TEXT NOT NULL DEFAULT '',
	close_at         INTEGER,
	second_close_at  INTEGER,
	state_text       TEXT NOT NULL DEFAULT '',
	state_tag        INTEGER NOT NULL DEFAULT 0,
	bidder_count     INTEGER NOT NULL DEFAULT 0,
	description      TEXT,
	delivery_address TEXT,
	delivery_days    INTEGER,
	products_json    TEXT,
	score            INTEGER NOT NULL DEFAULT 0,
	score_trace_json TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_tenders_score ON tenders(score);
CREATE INDEX IF NOT EXISTS idx_tenders_close ON tenders(close_at);
CREATE INDEX IF NOT EXISTS idx_tenders_state ON tenders(state_text);

CREATE TABLE IF NOT EXISTS follow_states (
	tender_id   INTEGER PRIMARY KEY REFERENCES tenders(id) ON DELETE CASCADE,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	is_bid      INTEGER NOT NULL DEFAULT 0,
	is_hidden   INTEGER NOT NULL DEFAULT 0,
	note        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS keyword_rules (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword            TEXT NOT NULL UNIQUE,
	title_points       INTEGER NOT NULL DEFAULT 0,
	description_points INTEGER NOT NULL DEFAULT 0,
	product_points     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS organism_rules (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	organism_id INTEGER NOT NULL UNIQUE REFERENCES organisms(id) ON DELETE CASCADE,
	kind        TEXT NOT NULL CHECK (kind IN ('priority', 'unwanted')),
	points      INTEGER NOT NULL DEFAULT 0
);
`

// ApplySchema creates all tables and indexes if they do not exist.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}
