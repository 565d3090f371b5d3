package client

import "github.com/dmitrijs2005/gophscan/internal/client/models"

// Ticket service messages.

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type RedeemRequest struct {
	EventSlug     string                   `json:"event"`
	CheckInListID int64                    `json:"checkin_list"`
	Secret        string                   `json:"secret"`
	Request       models.RedemptionRequest `json:"request"`
}

type SearchRequest struct {
	EventSlug     string `json:"event"`
	CheckInListID int64  `json:"checkin_list"`
	Query         string `json:"query"`
}

type SearchResponse struct {
	Results []models.SearchResult `json:"results"`
}

type StatusRequest struct {
	EventSlug     string `json:"event"`
	CheckInListID int64  `json:"checkin_list"`
}

type QuestionsRequest struct {
	EventSlug     string `json:"event"`
	CheckInListID int64  `json:"checkin_list"`
	ItemID        int64  `json:"item"`
}

type QuestionsResponse struct {
	Questions []models.Question `json:"questions"`
}

type FailedCheckInRequest struct {
	FailedCheckIn models.FailedCheckIn `json:"failed_checkin"`
}

type FailedCheckInResponse struct{}
