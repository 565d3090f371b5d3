package queue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
)

// Kind tells which upload an Entry represents.
type Kind string

const (
	KindRedemption    Kind = "redemption"
	KindFailedCheckIn Kind = "failed_checkin"
)

// Entry is one queued upload. Exactly one of Redemption and FailedCheckIn
// is set, according to Kind.
type Entry struct {
	Seq           int64
	Nonce         string
	Kind          Kind
	EventSlug     string
	ListID        int64
	Secret        string
	CreatedAt     time.Time
	Redemption    *models.QueuedRedemptionRequest
	FailedCheckIn *models.FailedCheckIn
}

type Repository interface {
	// EnqueueRedemption stores req unless its nonce is already queued.
	// It reports whether a new entry was created.
	EnqueueRedemption(ctx context.Context, req models.QueuedRedemptionRequest) (bool, error)
	// EnqueueFailedCheckIn stores f unless its nonce is already queued.
	EnqueueFailedCheckIn(ctx context.Context, f models.FailedCheckIn) (bool, error)
	// Peek returns up to limit entries in enqueue order. An empty eventSlug
	// matches every event.
	Peek(ctx context.Context, eventSlug string, limit int) ([]Entry, error)
	Remove(ctx context.Context, nonce string) error
	Count(ctx context.Context, eventSlug string) (int, error)
	// Events lists the event slugs that have pending entries.
	Events(ctx context.Context) ([]string, error)
}
