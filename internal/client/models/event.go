package models

import (
	"encoding/json"
	"time"
)

// Direction is the scan type: entering or leaving the venue.
type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionEntry || d == DirectionExit
}

// Event is a single occurrence (or a series, when it has sub-events).
type Event struct {
	Slug          string             `json:"slug"`
	Name          MultiLingualString `json:"name"`
	DateFrom      time.Time          `json:"date_from"`
	DateTo        *time.Time         `json:"date_to,omitempty"`
	DateAdmission *time.Time         `json:"date_admission,omitempty"`
	Timezone      string             `json:"timezone"`
	HasSubEvents  bool               `json:"has_subevents"`
	// PublicKeys are PEM encoded Ed25519 keys used to verify signed tickets.
	PublicKeys []string `json:"public_keys,omitempty"`
}

// Location returns the event's time zone, UTC when unknown.
func (e Event) Location() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SubEvent is one date of an event series.
type SubEvent struct {
	ID            int64              `json:"id"`
	EventSlug     string             `json:"event"`
	Name          MultiLingualString `json:"name"`
	DateFrom      time.Time          `json:"date_from"`
	DateTo        *time.Time         `json:"date_to,omitempty"`
	DateAdmission *time.Time         `json:"date_admission,omitempty"`
}

// EntryPolicy is the re-entry behaviour of a check-in list.
type EntryPolicy int

const (
	// EntrySingle admits a ticket once.
	EntrySingle EntryPolicy = iota
	// EntryUnlimited admits a ticket any number of times.
	EntryUnlimited
	// EntryAlternating admits again only after an exit was recorded.
	EntryAlternating
)

func (p EntryPolicy) String() string {
	switch p {
	case EntryUnlimited:
		return "unlimited"
	case EntryAlternating:
		return "alternating"
	default:
		return "single"
	}
}

// CheckInList is the admission policy a device scans against.
type CheckInList struct {
	ID                   int64           `json:"id"`
	EventSlug            string          `json:"event"`
	Name                 string          `json:"name"`
	AllProducts          bool            `json:"all_products"`
	LimitProducts        []int64         `json:"limit_products"`
	SubEventID           *int64          `json:"subevent,omitempty"`
	IncludePending       bool            `json:"include_pending"`
	AllowMultipleEntries bool            `json:"allow_multiple_entries"`
	AllowEntryAfterExit  bool            `json:"allow_entry_after_exit"`
	Rules                json.RawMessage `json:"rules,omitempty"`
}

// EntryPolicy derives the re-entry behaviour from the list flags.
func (l CheckInList) EntryPolicy() EntryPolicy {
	switch {
	case l.AllowMultipleEntries:
		return EntryUnlimited
	case l.AllowEntryAfterExit:
		return EntryAlternating
	default:
		return EntrySingle
	}
}

// CoversItem reports whether the list admits the given product.
func (l CheckInList) CoversItem(itemID int64) bool {
	if l.AllProducts {
		return true
	}
	for _, id := range l.LimitProducts {
		if id == itemID {
			return true
		}
	}
	return false
}

// CoversSubEvent reports whether a ticket for subEventID belongs to the list.
func (l CheckInList) CoversSubEvent(subEventID *int64) bool {
	if l.SubEventID == nil {
		return true
	}
	return subEventID != nil && *subEventID == *l.SubEventID
}

// Selection is the event and check-in list a call operates on. It is passed
// explicitly into every validator and engine entry point.
type Selection struct {
	EventSlug     string
	CheckInListID int64
}

// IsZero reports whether no event/list has been chosen.
func (s Selection) IsZero() bool {
	return s.EventSlug == "" || s.CheckInListID == 0
}
