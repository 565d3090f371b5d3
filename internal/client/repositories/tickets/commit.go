package tickets

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/queue"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/dmitrijs2005/gophscan/internal/dbx"
	"github.com/dmitrijs2005/gophscan/internal/timex"
)

// insertCheckInRow appends ci. A check-in whose nonce is already stored is
// skipped; the returned flag reports whether a row was written.
func insertCheckInRow(ctx context.Context, db dbx.DBTX, eventSlug string, ci models.CheckIn, local bool) (bool, error) {
	var nonce any
	if ci.Nonce != "" {
		nonce = ci.Nonce
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO checkins (nonce, event_slug, list_id, secret, type, date, local)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nonce, eventSlug, ci.ListID, ci.Secret, string(ci.Type), timex.ToMillis(ci.Date), local)
	if dbx.IsConstraint(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert checkin: %w", err)
	}
	return true, nil
}

func insertCheckIn(ctx context.Context, db dbx.DBTX, eventSlug string, ci models.CheckIn, local bool) error {
	_, err := insertCheckInRow(ctx, db, eventSlug, ci, local)
	return err
}

func (r *SQLiteRepository) CommitRedemption(ctx context.Context, ci models.CheckIn, eventSlug string, req models.QueuedRedemptionRequest) (bool, error) {
	var committed bool
	err := r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		committed = false
		inserted, err := insertCheckInRow(ctx, tx, eventSlug, ci, true)
		if err != nil {
			return err
		}
		if !inserted {
			prior, err := NewSQLiteRepository(tx).CheckInByNonce(ctx, ci.Nonce)
			if err != nil {
				return err
			}
			if prior.ListID != ci.ListID || prior.Secret != ci.Secret {
				return fmt.Errorf("checkin %s: %w", ci.Nonce, common.ErrNonceConflict)
			}
			return nil
		}
		queued, err := queue.NewSQLiteRepository(tx).EnqueueRedemption(ctx, req)
		if err != nil {
			return err
		}
		if !queued {
			return fmt.Errorf("enqueue %s: %w", req.Nonce, common.ErrNonceConflict)
		}
		committed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return committed, nil
}

func (r *SQLiteRepository) StoreFailedCheckIn(ctx context.Context, f models.FailedCheckIn) error {
	_, err := queue.NewSQLiteRepository(r.db).EnqueueFailedCheckIn(ctx, f)
	return err
}
