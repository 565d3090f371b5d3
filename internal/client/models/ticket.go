package models

import "time"

// Item is a purchasable product.
type Item struct {
	ID               int64              `json:"id"`
	EventSlug        string             `json:"event"`
	Name             MultiLingualString `json:"name"`
	Admission        bool               `json:"admission"`
	CheckInAttention bool               `json:"checkin_attention"`
	Variations       []Variation        `json:"variations,omitempty"`
}

// Variation looks up a variation of the item by id.
func (i Item) Variation(id int64) *Variation {
	for n := range i.Variations {
		if i.Variations[n].ID == id {
			return &i.Variations[n]
		}
	}
	return nil
}

// Variation is a variant of an Item (size, category, ...).
type Variation struct {
	ID    int64              `json:"id"`
	Value MultiLingualString `json:"value"`
}

// OrderStatus uses the single letter codes of the ticketing server.
type OrderStatus string

const (
	OrderPaid      OrderStatus = "p"
	OrderPending   OrderStatus = "n"
	OrderCancelled OrderStatus = "c"
	OrderExpired   OrderStatus = "e"
)

// Order groups positions bought together.
type Order struct {
	Code             string      `json:"code"`
	EventSlug        string      `json:"event"`
	Status           OrderStatus `json:"status"`
	ValidIfPending   bool        `json:"valid_if_pending"`
	CheckInAttention bool        `json:"checkin_attention"`
	Email            string      `json:"email,omitempty"`
}

// Seat is an assigned seat.
type Seat struct {
	Name string `json:"name"`
}

// OrderPosition is one ticket instance.
type OrderPosition struct {
	ID            int64      `json:"id"`
	PositionID    int        `json:"positionid"`
	EventSlug     string     `json:"event"`
	OrderCode     string     `json:"order"`
	ItemID        int64      `json:"item"`
	VariationID   *int64     `json:"variation,omitempty"`
	SubEventID    *int64     `json:"subevent,omitempty"`
	Secret        string     `json:"secret"`
	AttendeeName  string     `json:"attendee_name,omitempty"`
	AttendeeEmail string     `json:"attendee_email,omitempty"`
	Seat          *Seat      `json:"seat,omitempty"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	Blocked       bool       `json:"blocked"`
	CheckIns      []CheckIn  `json:"checkins"`
	Answers       []Answer   `json:"answers,omitempty"`

	// Display-only enrichment, filled after a decision has been made.
	RequiresAttention bool   `json:"requires_attention"`
	Order             *Order `json:"-"`
	Item              *Item  `json:"-"`
}

// CheckIn is an append-only record of a successful scan.
type CheckIn struct {
	ListID int64     `json:"list"`
	Date   time.Time `json:"datetime"`
	Type   Direction `json:"type"`
	Nonce  string    `json:"nonce,omitempty"`
	Secret string    `json:"-"`
}

// RevokedKey is a secret the server invalidated (e.g. after re-issuing a ticket).
type RevokedKey struct {
	EventSlug string `json:"event"`
	Secret    string `json:"secret"`
}

// BlockedKey is a secret the server blocked; Blocked=false lifts the block.
type BlockedKey struct {
	EventSlug string `json:"event"`
	Secret    string `json:"secret"`
	Blocked   bool   `json:"blocked"`
}
