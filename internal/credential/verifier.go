// Package credential verifies self-contained signed ticket credentials, so
// the device can admit tickets it has never synchronized.
package credential

import (
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
)

// Status is the verdict of a Verifier.
type Status int

const (
	Valid Status = iota
	Invalid
	InvalidTime
	InvalidProduct
	InvalidSubEvent
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case InvalidTime:
		return "invalid_time"
	case InvalidProduct:
		return "invalid_product"
	case InvalidSubEvent:
		return "invalid_subevent"
	default:
		return "invalid"
	}
}

// Verification is the result of verifying a raw credential. For a valid
// credential it carries the canonical secret and the hints extracted from
// the signed payload.
type Verification struct {
	Status      Status
	Secret      string
	ItemID      int64
	VariationID *int64
	SubEventID  *int64
	ValidFrom   *time.Time
	ValidUntil  *time.Time
}

// ListContext is what a Verifier needs to know about the scan.
type ListContext struct {
	List       models.CheckInList
	PublicKeys []string
	Now        time.Time
	Direction  models.Direction
}

// Verifier checks a raw scanned payload. Implementations are pure.
type Verifier interface {
	Verify(raw string, lc ListContext) Verification
}
