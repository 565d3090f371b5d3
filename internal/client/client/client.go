package client

import (
	"context"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
)

// Client is the remote ticket service.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Redeem(ctx context.Context, sel models.Selection, secret string, req models.RedemptionRequest) (*models.RedemptionResponse, error)
	Search(ctx context.Context, sel models.Selection, query string) ([]models.SearchResult, error)
	CheckInListStatus(ctx context.Context, sel models.Selection) (*models.CheckInListStatus, error)
	Questions(ctx context.Context, sel models.Selection, itemID int64) ([]models.Question, error)
	UploadFailedCheckIn(ctx context.Context, f models.FailedCheckIn) error
}
