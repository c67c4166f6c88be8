package store

import (
	"context"
	"fmt"
	"time"
)

// CloseExpiredLocally flips active tenders whose close timestamp has
// passed to "Cerrada" without waiting for the upstream to catch up.
// Returns the number of rows changed.
func (s *Store) CloseExpiredLocally(ctx context.Context, now time.Time) (int, error) {
	q := fmt.Sprintf(`
		UPDATE tenders SET state_text = 'Cerrada'
		WHERE close_at IS NOT NULL AND close_at < ? AND state_text IN (%s)`,
		placeholders(len(activeStates)))

	args := append([]any{now.UnixMilli()}, activeArgs()...)
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("store: close expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: close expired: %w", err)
	}
	return int(n), nil
}

// SweepOldRecords deletes settled tenders that closed more than the
// retention window ago. Favorites survive regardless of age.
func (s *Store) SweepOldRecords(ctx context.Context, now time.Time, retentionDays int) (int, error) {
	cutoff := now.AddDate(0, 0, -retentionDays).UnixMilli()
	q := fmt.Sprintf(`
		DELETE FROM tenders
		WHERE close_at IS NOT NULL AND close_at < ?
		  AND state_text NOT IN (%s)
		  AND id NOT IN (SELECT tender_id FROM follow_states WHERE is_favorite = 1 OR is_bid = 1)`,
		placeholders(len(activeStates)))

	args := append([]any{cutoff}, activeArgs()...)
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("store: sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: sweep: %w", err)
	}
	return int(n), nil
}

// MarkAllOrganismsSeen clears the is_new flag ahead of a harvest so only
// organisms created by that harvest show as new.
func (s *Store) MarkAllOrganismsSeen(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `UPDATE organisms SET is_new = 0 WHERE is_new = 1`); err != nil {
		return fmt.Errorf("store: mark organisms seen: %w", err)
	}
	return nil
}

// NewOrganisms lists organisms discovered by the latest harvest.
func (s *Store) NewOrganisms(ctx context.Context) ([]Organism, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name FROM organisms WHERE is_new = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: new organisms: %w", err)
	}
	defer rows.Close()

	var out []Organism
	for rows.Next() {
		var o Organism
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, fmt.Errorf("store: new organisms: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
