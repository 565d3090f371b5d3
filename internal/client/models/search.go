package models

// TicketStatus is the display status of a search result.
type TicketStatus string

const (
	TicketPaid      TicketStatus = "paid"
	TicketPending   TicketStatus = "pending"
	TicketCancelled TicketStatus = "cancelled"
)

// StatusOf maps an order to its display status. Pending orders that are
// valid if pending are shown as paid.
func StatusOf(o Order) TicketStatus {
	switch o.Status {
	case OrderPaid:
		return TicketPaid
	case OrderPending:
		if o.ValidIfPending {
			return TicketPaid
		}
		return TicketPending
	default:
		return TicketCancelled
	}
}

// SearchResult is one row of a ticket search.
type SearchResult struct {
	Secret            string       `json:"secret"`
	Ticket            string       `json:"ticket"`
	Variation         string       `json:"variation,omitempty"`
	AttendeeName      string       `json:"attendee_name,omitempty"`
	Seat              string       `json:"seat,omitempty"`
	OrderCode         string       `json:"order_code"`
	PositionID        int          `json:"positionid"`
	IsRedeemed        bool         `json:"redeemed"`
	Status            TicketStatus `json:"status"`
	RequiresAttention bool         `json:"requires_attention"`
}

// CheckInListStatus aggregates the admission state of a list.
type CheckInListStatus struct {
	EventName     string                  `json:"event_name"`
	ListName      string                  `json:"list_name"`
	PositionCount int                     `json:"position_count"`
	CheckInCount  int                     `json:"checkin_count"`
	InsideCount   int                     `json:"inside_count"`
	Items         []CheckInListItemStatus `json:"items"`
}

// CheckInListItemStatus is the per-product breakdown of a CheckInListStatus.
type CheckInListItemStatus struct {
	ItemID        int64                        `json:"id"`
	Name          string                       `json:"name"`
	Admission     bool                         `json:"admission"`
	PositionCount int                          `json:"position_count"`
	CheckInCount  int                          `json:"checkin_count"`
	Variations    []CheckInListVariationStatus `json:"variations,omitempty"`
}

// CheckInListVariationStatus is the per-variation part of an item breakdown.
type CheckInListVariationStatus struct {
	VariationID   int64  `json:"id"`
	Value         string `json:"value"`
	PositionCount int    `json:"position_count"`
	CheckInCount  int    `json:"checkin_count"`
}
