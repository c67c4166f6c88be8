package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agilradar/agilradar/dbopen"
)

// setFollowField upserts the follow row for a tender and sets one flag.
// The INSERT OR IGNORE keeps the two statements cheap without a
// read-modify-write round trip.
func (s *Store) setFollowField(ctx context.Context, tenderID int64, update string, args ...any) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO follow_states (tender_id) VALUES (?)`, tenderID); err != nil {
			return fmt.Errorf("store: follow state %d: insert: %w", tenderID, err)
		}
		args := append(args, tenderID)
		if _, err := tx.ExecContext(ctx,
			`UPDATE follow_states SET `+update+` WHERE tender_id = ?`, args...); err != nil {
			return fmt.Errorf("store: follow state %d: update: %w", tenderID, err)
		}
		return nil
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SetFavorite marks or unmarks a tender as followed.
func (s *Store) SetFavorite(ctx context.Context, tenderID int64, fav bool) error {
	return s.setFollowField(ctx, tenderID, `is_favorite = ?`, boolInt(fav))
}

// SetBidSubmitted records a submitted bid. Bidding implies following, so
// the favorite flag comes along.
func (s *Store) SetBidSubmitted(ctx context.Context, tenderID int64, bid bool) error {
	if bid {
		return s.setFollowField(ctx, tenderID, `is_bid = 1, is_favorite = 1`)
	}
	return s.setFollowField(ctx, tenderID, `is_bid = 0`)
}

// SetHidden hides a tender from the main listing. Hiding clears the
// favorite and bid flags; the states are mutually exclusive.
func (s *Store) SetHidden(ctx context.Context, tenderID int64, hidden bool) error {
	if hidden {
		return s.setFollowField(ctx, tenderID, `is_hidden = 1, is_favorite = 0, is_bid = 0`)
	}
	return s.setFollowField(ctx, tenderID, `is_hidden = 0`)
}

// SetNote attaches a free-text note to a tender.
func (s *Store) SetNote(ctx context.Context, tenderID int64, note string) error {
	return s.setFollowField(ctx, tenderID, `note = ?`, note)
}
