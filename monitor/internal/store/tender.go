package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agilradar/agilradar/dbopen"
)

// TenderUpsert is one listing row ready for persistence. Name, organism,
// publication date, and close timestamps are static after first insert;
// the remaining fields track the listing on every harvest.
type TenderUpsert struct {
	Code        string
	Name        string
	Organism    string
	AmountCLP   float64
	PublishedOn string
	CloseAt     time.Time
	StateText   string
	StateTag    int
	BidderCount int
}

// DetailUpdate carries the ficha fields for a single tender. Nil
// pointers and zero values leave the stored column untouched.
type DetailUpdate struct {
	Description     *string
	DeliveryAddress *string
	DeliveryDays    *int
	ProductsJSON    string
	SecondCloseAt   time.Time
	StateText       string
	StateTag        *int
	BidderCount     *int
}

// ScoreUpdate rewrites one tender's score and trace.
type ScoreUpdate struct {
	ID    int64
	Score int
	Trace []string
}

const scoreChunkSize = 500

// BulkUpsertTenders writes a harvest batch in one transaction. Unknown
// organisms are created under the default sector with is_new set. On a
// code collision only the volatile fields are refreshed; name, organism,
// and publication date keep their first-seen values. Within a batch only
// the first row per code is written.
func (s *Store) BulkUpsertTenders(ctx context.Context, batch []TenderUpsert) error {
	if len(batch) == 0 {
		return nil
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		orgIDs, err := resolveOrganisms(ctx, tx, batch)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO tenders (code, name, organism_id, amount_clp, published_on,
				close_at, state_text, state_tag, bidder_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(code) DO UPDATE SET
				bidder_count = excluded.bidder_count,
				state_text   = excluded.state_text,
				close_at     = excluded.close_at,
				state_tag    = excluded.state_tag,
				amount_clp   = excluded.amount_clp`)
		if err != nil {
			return fmt.Errorf("store: bulk upsert: prepare: %w", err)
		}
		defer stmt.Close()

		seen := make(map[string]struct{}, len(batch))
		for _, t := range batch {
			if _, dup := seen[t.Code]; dup {
				continue
			}
			seen[t.Code] = struct{}{}
			_, err := stmt.ExecContext(ctx, t.Code, t.Name, orgIDs[t.Organism],
				t.AmountCLP, t.PublishedOn, nullMillis(t.CloseAt),
				t.StateText, t.StateTag, t.BidderCount)
			if err != nil {
				return fmt.Errorf("store: bulk upsert %s: %w", t.Code, err)
			}
		}
		return nil
	})
}

// resolveOrganisms maps each distinct organism name in the batch to its
// row id, creating missing organisms on the fly.
func resolveOrganisms(ctx context.Context, tx *sql.Tx, batch []TenderUpsert) (map[string]int64, error) {
	ids := make(map[string]int64)
	var sectorID int64

	for _, t := range batch {
		if _, done := ids[t.Organism]; done {
			continue
		}
		name := t.Organism
		if name == "" {
			name = "Desconocido"
		}
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM organisms WHERE name = ?`, name).Scan(&id)
		if err == nil {
			ids[t.Organism] = id
			continue
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("store: resolve organism %q: %w", name, err)
		}
		if sectorID == 0 {
			if sectorID, err = defaultSector(ctx, tx); err != nil {
				return nil, err
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO organisms (name, sector_id, is_new) VALUES (?, ?, 1)`,
			name, sectorID)
		if err != nil {
			return nil, fmt.Errorf("store: create organism %q: %w", name, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("store: create organism %q: %w", name, err)
		}
		ids[t.Organism] = id
	}
	return ids, nil
}

func defaultSector(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sectors (name) VALUES ('General')`); err != nil {
		return 0, fmt.Errorf("store: default sector: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM sectors WHERE name = 'General'`).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: default sector: %w", err)
	}
	return id, nil
}

// UpdateDetail merges ficha data and the recomputed score into a tender
// row. State fields are only overwritten when the ficha actually carried
// them; a failed or partial detail response must not blank good data.
func (s *Store) UpdateDetail(ctx context.Context, code string, d DetailUpdate, score int, trace []string) error {
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("store: update detail %s: trace: %w", code, err)
	}

	q := `UPDATE tenders SET
		description      = COALESCE(?, description),
		delivery_address = COALESCE(?, delivery_address),
		delivery_days    = COALESCE(?, delivery_days),
		score            = ?,
		score_trace_json = ?`
	args := []any{nullString(d.Description), nullString(d.DeliveryAddress),
		nullInt(d.DeliveryDays), score, string(traceJSON)}

	if d.ProductsJSON != "" {
		q += `, products_json = ?`
		args = append(args, d.ProductsJSON)
	}
	if !d.SecondCloseAt.IsZero() {
		q += `, second_close_at = ?`
		args = append(args, d.SecondCloseAt.UnixMilli())
	}
	if d.StateText != "" {
		q += `, state_text = ?`
		args = append(args, d.StateText)
	}
	if d.StateTag != nil {
		q += `, state_tag = ?`
		args = append(args, *d.StateTag)
	}
	if d.BidderCount != nil {
		q += `, bidder_count = ?`
		args = append(args, *d.BidderCount)
	}
	q += ` WHERE code = ?`
	args = append(args, code)

	if _, err := s.DB.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store: update detail %s: %w", code, err)
	}
	return nil
}

// BulkUpdateScores rewrites scores in chunks, each committed on its own.
// A failure mid-way keeps the chunks already written; the caller retries
// the recompute rather than rolling back thousands of rows.
func (s *Store) BulkUpdateScores(ctx context.Context, updates []ScoreUpdate) (int, error) {
	written := 0
	for start := 0; start < len(updates); start += scoreChunkSize {
		end := start + scoreChunkSize
		if end > len(updates) {
			end = len(updates)
		}
		if err := s.writeScoreChunk(ctx, updates[start:end]); err != nil {
			return written, err
		}
		written += end - start
	}
	return written, nil
}

func (s *Store) writeScoreChunk(ctx context.Context, chunk []ScoreUpdate) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE tenders SET score = ?, score_trace_json = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("store: score chunk: prepare: %w", err)
		}
		defer stmt.Close()

		for _, u := range chunk {
			traceJSON, err := json.Marshal(u.Trace)
			if err != nil {
				return fmt.Errorf("store: score chunk: trace for %d: %w", u.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, u.Score, string(traceJSON), u.ID); err != nil {
				return fmt.Errorf("store: score chunk: update %d: %w", u.ID, err)
			}
		}
		return nil
	})
}
