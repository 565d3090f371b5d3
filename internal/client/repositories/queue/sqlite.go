package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/dbx"
	"github.com/dmitrijs2005/gophscan/internal/timex"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
// Multi-statement operations open their own transaction when given a *sql.DB
// and join the caller's otherwise.
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if db, ok := r.db.(*sql.DB); ok {
		return dbx.WithTxRetry(ctx, db, fn)
	}
	return fn(ctx, r.db)
}

func (r *SQLiteRepository) EnqueueRedemption(ctx context.Context, req models.QueuedRedemptionRequest) (bool, error) {
	payload, err := marshal(req)
	if err != nil {
		return false, fmt.Errorf("failed to encode redemption: %w", err)
	}
	return r.enqueue(ctx, req.Nonce, KindRedemption, req.EventSlug, req.CheckInListID, req.Secret, payload)
}

func (r *SQLiteRepository) EnqueueFailedCheckIn(ctx context.Context, f models.FailedCheckIn) (bool, error) {
	payload, err := marshal(f)
	if err != nil {
		return false, fmt.Errorf("failed to encode failed check-in: %w", err)
	}
	return r.enqueue(ctx, f.Nonce, KindFailedCheckIn, f.EventSlug, f.CheckInListID, f.RawBarcode, payload)
}

func (r *SQLiteRepository) enqueue(ctx context.Context, nonce string, kind Kind, event string, listID int64, secret string, payload []byte) (bool, error) {
	if nonce == "" {
		return false, fmt.Errorf("enqueue %s: empty nonce", kind)
	}

	var inserted bool
	err := r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO queue_entries (nonce, kind, event_slug, list_id, secret, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(nonce) DO NOTHING`,
			nonce, string(kind), event, listID, secret, payload, timex.ToMillis(r.now()))
		if err != nil {
			return fmt.Errorf("failed to insert queue entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO queue_order (nonce) VALUES (?)`, nonce); err != nil {
			return fmt.Errorf("failed to index queue entry: %w", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *SQLiteRepository) Peek(ctx context.Context, eventSlug string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.seq, e.nonce, e.kind, e.event_slug, e.list_id, e.secret, e.payload, e.created_at
		FROM queue_order o
		JOIN queue_entries e ON e.nonce = o.nonce
		WHERE ? = '' OR e.event_slug = ?
		ORDER BY o.seq
		LIMIT ?`, eventSlug, eventSlug, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select queue entries: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var (
			e         Entry
			kind      string
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&e.Seq, &e.Nonce, &kind, &e.EventSlug, &e.ListID, &e.Secret, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.CreatedAt = timex.FromMillis(createdAt)

		switch e.Kind {
		case KindRedemption:
			e.Redemption = &models.QueuedRedemptionRequest{}
			err = unmarshal(payload, e.Redemption)
		case KindFailedCheckIn:
			e.FailedCheckIn = &models.FailedCheckIn{}
			err = unmarshal(payload, e.FailedCheckIn)
		default:
			err = fmt.Errorf("unknown kind %q", kind)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode queue entry %s: %w", e.Nonce, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue entries: %w", err)
	}
	return result, nil
}

// Remove deletes the arena row before its index row, so a partially applied
// removal never leaves a visible entry without a payload.
func (r *SQLiteRepository) Remove(ctx context.Context, nonce string) error {
	return r.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE nonce = ?`, nonce); err != nil {
			return fmt.Errorf("failed to delete queue entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM queue_order WHERE nonce = ?`, nonce); err != nil {
			return fmt.Errorf("failed to delete queue index: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) Count(ctx context.Context, eventSlug string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_order o
		JOIN queue_entries e ON e.nonce = o.nonce
		WHERE ? = '' OR e.event_slug = ?`, eventSlug, eventSlug).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Events(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.event_slug FROM queue_order o
		JOIN queue_entries e ON e.nonce = o.nonce
		GROUP BY e.event_slug
		ORDER BY MIN(o.seq)`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued events: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("failed to scan queued event: %w", err)
		}
		result = append(result, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queued events: %w", err)
	}
	return result, nil
}
