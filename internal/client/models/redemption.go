package models

import "time"

// Outcome is the terminal result of a redemption attempt.
type Outcome string

const (
	OutcomeRedeemed            Outcome = "redeemed"
	OutcomeAlreadyRedeemed     Outcome = "already_redeemed"
	OutcomeInvalid             Outcome = "invalid"
	OutcomeInvalidTime         Outcome = "invalid_time"
	OutcomeProduct             Outcome = "product"
	OutcomeRules               Outcome = "rules"
	OutcomeBlocked             Outcome = "blocked"
	OutcomeRevoked             Outcome = "revoked"
	OutcomeIncompleteQuestions Outcome = "incomplete"
	OutcomeUnpaid              Outcome = "unpaid"
	OutcomeCanceled            Outcome = "canceled"
)

// Known reports whether o is one of the defined outcomes.
func (o Outcome) Known() bool {
	switch o {
	case OutcomeRedeemed, OutcomeAlreadyRedeemed, OutcomeInvalid, OutcomeInvalidTime,
		OutcomeProduct, OutcomeRules, OutcomeBlocked, OutcomeRevoked,
		OutcomeIncompleteQuestions, OutcomeUnpaid, OutcomeCanceled:
		return true
	}
	return false
}

// RedemptionRequest is the parameter set of one logical redemption attempt.
// Nonce identifies the attempt; uploading it twice never applies it twice.
type RedemptionRequest struct {
	Nonce        string    `json:"nonce" cbor:"1,keyasint"`
	Date         time.Time `json:"datetime" cbor:"2,keyasint"`
	Force        bool      `json:"force" cbor:"3,keyasint"`
	IgnoreUnpaid bool      `json:"ignore_unpaid" cbor:"4,keyasint"`
	Answers      []Answer  `json:"answers,omitempty" cbor:"5,keyasint,omitempty"`
	Type         Direction `json:"type" cbor:"6,keyasint"`
}

// RedemptionResponse is what the gate shows to the operator.
type RedemptionResponse struct {
	Outcome          Outcome        `json:"status"`
	Item             *Item          `json:"item,omitempty"`
	Variation        *Variation     `json:"variation,omitempty"`
	MissingQuestions []int64        `json:"missing_questions,omitempty"`
	Questions        []Question     `json:"questions,omitempty"`
	Position         *OrderPosition `json:"position,omitempty"`
	LastCheckIn      *CheckIn       `json:"last_checkin,omitempty"`
	Reason           string         `json:"reason,omitempty"`
}

// Admitted reports whether the ticket was let through.
func (r *RedemptionResponse) Admitted() bool {
	return r != nil && r.Outcome == OutcomeRedeemed
}

// QueuedRedemptionRequest is a locally decided redemption awaiting upload.
type QueuedRedemptionRequest struct {
	RedemptionRequest
	EventSlug     string `json:"event" cbor:"10,keyasint"`
	CheckInListID int64  `json:"checkin_list" cbor:"11,keyasint"`
	Secret        string `json:"secret" cbor:"12,keyasint"`
}

// FailedCheckIn records a rejected scan for server-side auditing. Nonce
// identifies the record itself and is never the nonce of the scan, which may
// still be redeemed later.
type FailedCheckIn struct {
	Nonce         string    `json:"nonce" cbor:"1,keyasint"`
	EventSlug     string    `json:"event" cbor:"2,keyasint"`
	CheckInListID int64     `json:"checkin_list" cbor:"3,keyasint"`
	Reason        Outcome   `json:"error_reason" cbor:"4,keyasint"`
	Type          Direction `json:"type" cbor:"5,keyasint"`
	RawBarcode    string    `json:"raw_barcode" cbor:"6,keyasint"`
	Date          time.Time `json:"datetime" cbor:"7,keyasint"`
	PositionID    *int64    `json:"position,omitempty" cbor:"8,keyasint,omitempty"`
	ItemID        *int64    `json:"item,omitempty" cbor:"9,keyasint,omitempty"`
}
