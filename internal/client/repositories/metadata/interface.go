// Package metadata stores small device settings (the persisted event and
// check-in list selection, the last drain time) as key/value pairs.
package metadata

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error

	// Selection returns the persisted selection, zero when none was saved.
	Selection(ctx context.Context) (models.Selection, error)
	SetSelection(ctx context.Context, sel models.Selection) error

	// LastDrain returns the time of the last completed queue drain.
	LastDrain(ctx context.Context) (time.Time, error)
	SetLastDrain(ctx context.Context, t time.Time) error
}
