package tickets

import (
	"context"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"golang.org/x/text/language"
)

// Reader is the read side used by the redemption engine and the offline
// validator.
type Reader interface {
	Event(ctx context.Context, slug string) (*models.Event, error)
	SubEvent(ctx context.Context, id int64) (*models.SubEvent, error)
	CheckInList(ctx context.Context, id int64) (*models.CheckInList, error)
	CheckInLists(ctx context.Context, eventSlug string) ([]models.CheckInList, error)
	Item(ctx context.Context, id int64) (*models.Item, error)
	Order(ctx context.Context, eventSlug, code string) (*models.Order, error)
	PositionBySecret(ctx context.Context, eventSlug, secret string) (*models.OrderPosition, error)
	// Questions returns the item's questions ordered by position.
	Questions(ctx context.Context, eventSlug string, itemID int64) ([]models.Question, error)
	// CheckIns returns the check-ins of secret on a list, oldest first.
	CheckIns(ctx context.Context, listID int64, secret string) ([]models.CheckIn, error)
	IsRevoked(ctx context.Context, eventSlug, secret string) (bool, error)
	IsBlocked(ctx context.Context, eventSlug, secret string) (bool, error)
	// CheckInByNonce returns the check-in committed under nonce, or
	// common.ErrNotFound.
	CheckInByNonce(ctx context.Context, nonce string) (*models.CheckIn, error)

	Search(ctx context.Context, list models.CheckInList, query string, limit int) ([]models.OrderPosition, error)
	ListStatus(ctx context.Context, list models.CheckInList, tag language.Tag) (*models.CheckInListStatus, error)
}

// Writer holds the durable mutations of a redemption decision.
type Writer interface {
	// CommitRedemption appends ci and enqueues req atomically. It reports
	// false when the nonce was committed before and nothing changed. A nonce
	// that is already queued without a check-in fails with
	// common.ErrNonceConflict and nothing is written.
	CommitRedemption(ctx context.Context, ci models.CheckIn, eventSlug string, req models.QueuedRedemptionRequest) (bool, error)
	// StoreFailedCheckIn queues a rejected scan for upload.
	StoreFailedCheckIn(ctx context.Context, f models.FailedCheckIn) error
}

// Mirror applies data synchronized from the server.
type Mirror interface {
	UpsertEvent(ctx context.Context, e models.Event) error
	UpsertSubEvents(ctx context.Context, subs []models.SubEvent) error
	UpsertCheckInLists(ctx context.Context, lists []models.CheckInList) error
	UpsertItems(ctx context.Context, items []models.Item) error
	UpsertQuestions(ctx context.Context, questions []models.Question) error
	UpsertOrders(ctx context.Context, orders []models.Order) error
	UpsertPositions(ctx context.Context, positions []models.OrderPosition) error
	AddRevoked(ctx context.Context, keys []models.RevokedKey) error
	SetBlocked(ctx context.Context, keys []models.BlockedKey) error
	Import(ctx context.Context, snap Snapshot) error
}

type Repository interface {
	Reader
	Writer
	Mirror
}

// Snapshot is a complete data bundle of one event as downloaded from the
// server.
type Snapshot struct {
	Event        models.Event           `json:"event"`
	SubEvents    []models.SubEvent      `json:"subevents"`
	CheckInLists []models.CheckInList   `json:"checkin_lists"`
	Items        []models.Item          `json:"items"`
	Questions    []models.Question      `json:"questions"`
	Orders       []models.Order         `json:"orders"`
	Positions    []models.OrderPosition `json:"positions"`
	Revoked      []models.RevokedKey    `json:"revoked_secrets"`
	Blocked      []models.BlockedKey    `json:"blocked_secrets"`
}
