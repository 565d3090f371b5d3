package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/dmitrijs2005/gophscan/internal/dbx"
	"github.com/dmitrijs2005/gophscan/internal/timex"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns (nil, nil) for a missing key.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Selection(ctx context.Context) (models.Selection, error) {
	slug, err := r.Get(ctx, common.MetadataEventSlug)
	if err != nil {
		return models.Selection{}, err
	}
	raw, err := r.Get(ctx, common.MetadataCheckInListID)
	if err != nil {
		return models.Selection{}, err
	}
	if slug == nil || raw == nil {
		return models.Selection{}, nil
	}
	listID, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return models.Selection{}, fmt.Errorf("invalid stored check-in list id %q: %w", raw, err)
	}
	return models.Selection{EventSlug: string(slug), CheckInListID: listID}, nil
}

func (r *SQLiteRepository) SetSelection(ctx context.Context, sel models.Selection) error {
	if err := r.Set(ctx, common.MetadataEventSlug, []byte(sel.EventSlug)); err != nil {
		return err
	}
	return r.Set(ctx, common.MetadataCheckInListID, []byte(strconv.FormatInt(sel.CheckInListID, 10)))
}

func (r *SQLiteRepository) LastDrain(ctx context.Context) (time.Time, error) {
	raw, err := r.Get(ctx, common.MetadataLastDrain)
	if err != nil || raw == nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored drain time %q: %w", raw, err)
	}
	return timex.FromMillis(ms), nil
}

func (r *SQLiteRepository) SetLastDrain(ctx context.Context, t time.Time) error {
	return r.Set(ctx, common.MetadataLastDrain, []byte(strconv.FormatInt(timex.ToMillis(t), 10)))
}
