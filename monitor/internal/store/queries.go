package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Tender is a read-model row for listings and lookups.
type Tender struct {
	ID          int64
	Code        string
	Name        string
	Organism    string
	AmountCLP   float64
	PublishedOn string
	CloseAt     time.Time
	StateText   string
	StateTag    int
	BidderCount int
	Description *string
	Score       int
	TraceJSON   string
	IsFavorite  bool
	IsBid       bool
	Note        string
}

// ScoreCandidate is the projection the recompute pass scores against.
type ScoreCandidate struct {
	ID           int64
	Code         string
	Name         string
	StateText    string
	OrganismName string
	Description  *string
	ProductsJSON *string
	Score        int
}

// DetailCandidate identifies a tender whose ficha should be fetched,
// with the listing fields needed to re-score it afterwards.
type DetailCandidate struct {
	ID           int64
	Code         string
	Name         string
	OrganismName string
	StateText    string
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func activeArgs() []any {
	args := make([]any, len(activeStates))
	for i, s := range activeStates {
		args[i] = s
	}
	return args
}

// ScoreCandidates returns every tender with the fields both scoring
// phases read. The recompute pass walks the whole table so score edits
// retroactively reorder old rows too.
func (s *Store) ScoreCandidates(ctx context.Context) ([]ScoreCandidate, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT t.id, t.code, t.name, t.state_text, o.name, t.description, t.products_json, t.score
		FROM tenders t JOIN organisms o ON o.id = t.organism_id`)
	if err != nil {
		return nil, fmt.Errorf("store: score candidates: %w", err)
	}
	defer rows.Close()

	var out []ScoreCandidate
	for rows.Next() {
		var c ScoreCandidate
		var desc, prods sql.NullString
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.StateText, &c.OrganismName, &desc, &prods, &c.Score); err != nil {
			return nil, fmt.Errorf("store: score candidates: scan: %w", err)
		}
		if desc.Valid {
			c.Description = &desc.String
		}
		if prods.Valid {
			c.ProductsJSON = &prods.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DetailCandidates returns tenders at or above minScore that have no
// stored description yet, closest deadline first so a partial enrich run
// covers the rows about to close. State is not filtered: a tender that
// flipped state since the harvest still gets its ficha.
func (s *Store) DetailCandidates(ctx context.Context, minScore int) ([]DetailCandidate, error) {
	const q = `
		SELECT t.id, t.code, t.name, o.name, t.state_text
		FROM tenders t JOIN organisms o ON o.id = t.organism_id
		WHERE t.score >= ? AND t.description IS NULL
		ORDER BY t.close_at IS NULL, t.close_at ASC`

	rows, err := s.DB.QueryContext(ctx, q, minScore)
	if err != nil {
		return nil, fmt.Errorf("store: detail candidates: %w", err)
	}
	defer rows.Close()

	var out []DetailCandidate
	for rows.Next() {
		var c DetailCandidate
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.OrganismName, &c.StateText); err != nil {
			return nil, fmt.Errorf("store: detail candidates: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const tenderCols = `
	t.id, t.code, t.name, o.name, t.amount_clp, t.published_on, t.close_at,
	t.state_text, t.state_tag, t.bidder_count, t.description, t.score, t.score_trace_json,
	COALESCE(f.is_favorite, 0), COALESCE(f.is_bid, 0), COALESCE(f.note, '')`

const tenderFrom = `
	FROM tenders t
	JOIN organisms o ON o.id = t.organism_id
	LEFT JOIN follow_states f ON f.tender_id = t.id`

func scanTenders(rows *sql.Rows) ([]Tender, error) {
	var out []Tender
	for rows.Next() {
		var t Tender
		var closeAt sql.NullInt64
		var desc sql.NullString
		var fav, bid int
		err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.Organism, &t.AmountCLP,
			&t.PublishedOn, &closeAt, &t.StateText, &t.StateTag, &t.BidderCount,
			&desc, &t.Score, &t.TraceJSON, &fav, &bid, &t.Note)
		if err != nil {
			return nil, fmt.Errorf("store: scan tender: %w", err)
		}
		if closeAt.Valid {
			t.CloseAt = time.UnixMilli(closeAt.Int64)
		}
		if desc.Valid {
			t.Description = &desc.String
		}
		t.IsFavorite = fav != 0
		t.IsBid = bid != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// Listing returns the main board: active tenders at or above minScore,
// excluding anything the user hid, followed, or already bid on. Those
// live on their own tabs.
func (s *Store) Listing(ctx context.Context, minScore int) ([]Tender, error) {
	q := fmt.Sprintf(`SELECT %s %s
		WHERE t.score >= ?
		  AND t.state_text IN (%s)
		  AND COALESCE(f.is_hidden, 0) = 0
		  AND COALESCE(f.is_favorite, 0) = 0
		  AND COALESCE(f.is_bid, 0) = 0
		ORDER BY t.score DESC, t.close_at IS NULL, t.close_at ASC`,
		tenderCols, tenderFrom, placeholders(len(activeStates)))

	args := append([]any{minScore}, activeArgs()...)
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing: %w", err)
	}
	defer rows.Close()
	return scanTenders(rows)
}

// Followed returns favorites that have not been bid on yet, soonest
// close first.
func (s *Store) Followed(ctx context.Context) ([]Tender, error) {
	q := fmt.Sprintf(`SELECT %s %s
		WHERE f.is_favorite = 1 AND f.is_bid = 0
		ORDER BY t.close_at IS NULL, t.close_at ASC`, tenderCols, tenderFrom)

	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: followed: %w", err)
	}
	defer rows.Close()
	return scanTenders(rows)
}

// Bidded returns tenders with a submitted bid, soonest close first.
func (s *Store) Bidded(ctx context.Context) ([]Tender, error) {
	q := fmt.Sprintf(`SELECT %s %s
		WHERE f.is_bid = 1
		ORDER BY t.close_at IS NULL, t.close_at ASC`, tenderCols, tenderFrom)

	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: bidded: %w", err)
	}
	defer rows.Close()
	return scanTenders(rows)
}

// TenderByID returns one tender, or (nil, nil) when it does not exist.
func (s *Store) TenderByID(ctx context.Context, id int64) (*Tender, error) {
	q := fmt.Sprintf(`SELECT %s %s WHERE t.id = ?`, tenderCols, tenderFrom)
	rows, err := s.DB.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("store: tender %d: %w", id, err)
	}
	defer rows.Close()

	out, err := scanTenders(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// ActiveDateRange returns the min and max publication date across active
// tenders that the user is not already managing (followed, bidded, or
// hidden rows keep their own lifecycle and do not widen the refresh
// window). ok is false when no such tenders exist. Dates are stored as
// YYYY-MM-DD, so lexicographic MIN/MAX is chronological.
func (s *Store) ActiveDateRange(ctx context.Context) (min, max string, ok bool, err error) {
	const q = `
		SELECT MIN(t.published_on), MAX(t.published_on)
		FROM tenders t
		LEFT JOIN follow_states f ON f.tender_id = t.id
		WHERE (t.state_text LIKE '%Publicada%' OR t.state_text LIKE '%Segundo%')
		  AND t.published_on != ''
		  AND COALESCE(f.is_favorite, 0) = 0
		  AND COALESCE(f.is_bid, 0) = 0
		  AND COALESCE(f.is_hidden, 0) = 0`

	var lo, hi sql.NullString
	if err := s.DB.QueryRowContext(ctx, q).Scan(&lo, &hi); err != nil {
		return "", "", false, fmt.Errorf("store: active date range: %w", err)
	}
	if !lo.Valid || !hi.Valid {
		return "", "", false, nil
	}
	return lo.String, hi.String, true, nil
}
