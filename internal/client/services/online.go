package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/checks"
	"github.com/dmitrijs2005/gophscan/internal/client/client"
	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/dmitrijs2005/gophscan/internal/logging"
)

// OnlineValidator lets the server decide. The local store is only read to
// decorate the server's answer for display.
type OnlineValidator struct {
	remote client.Client
	store  Store
	log    logging.Logger
	now    func() time.Time
}

func NewOnlineValidator(deps Deps) *OnlineValidator {
	deps = deps.withDefaults()
	return &OnlineValidator{remote: deps.Remote, store: deps.Store, log: deps.Log, now: deps.Now}
}

func (v *OnlineValidator) IsOnline() bool { return true }

func (v *OnlineValidator) Search(ctx context.Context, sel models.Selection, query string) ([]models.SearchResult, error) {
	if sel.IsZero() {
		return nil, common.ErrNotConfigured
	}
	return v.remote.Search(ctx, sel, query)
}

func (v *OnlineValidator) Redeem(ctx context.Context, sel models.Selection, secret string, opts RedeemOptions) (*models.RedemptionResponse, error) {
	if sel.IsZero() {
		return nil, common.ErrNotConfigured
	}
	resp, err := v.remote.Redeem(ctx, sel, secret, opts.request(v.now()))
	if err != nil {
		return nil, err
	}
	v.enrich(ctx, sel, resp)
	return resp, nil
}

func (v *OnlineValidator) CheckInListStatus(ctx context.Context, sel models.Selection) (*models.CheckInListStatus, error) {
	if sel.IsZero() {
		return nil, common.ErrNotConfigured
	}
	return v.remote.CheckInListStatus(ctx, sel)
}

func (v *OnlineValidator) Questions(ctx context.Context, sel models.Selection, itemID int64) ([]models.Question, error) {
	if sel.IsZero() {
		return nil, common.ErrNotConfigured
	}
	return v.remote.Questions(ctx, sel, itemID)
}

// enrich fills display data the server left out from the local mirror.
// Lookup failures are logged and otherwise ignored.
func (v *OnlineValidator) enrich(ctx context.Context, sel models.Selection, resp *models.RedemptionResponse) {
	pos := resp.Position
	if pos == nil {
		return
	}

	if pos.Order == nil && pos.OrderCode != "" {
		if o, err := v.store.Order(ctx, sel.EventSlug, pos.OrderCode); err == nil {
			pos.Order = o
		} else if !errors.Is(err, common.ErrNotFound) {
			v.log.Debug(ctx, "enrich order", "error", err)
		}
	}
	if pos.Item == nil {
		if resp.Item != nil {
			pos.Item = resp.Item
		} else if it, err := v.store.Item(ctx, pos.ItemID); err == nil {
			pos.Item = it
			resp.Item = it
		}
	}
	if resp.Variation == nil && pos.Item != nil && pos.VariationID != nil {
		resp.Variation = pos.Item.Variation(*pos.VariationID)
	}
	if len(pos.CheckIns) == 0 && pos.Secret != "" {
		if history, err := v.store.CheckIns(ctx, sel.CheckInListID, pos.Secret); err == nil {
			pos.CheckIns = history
		}
	}
	if resp.LastCheckIn == nil {
		if last := checks.Last(pos.CheckIns); last != nil {
			ci := *last
			resp.LastCheckIn = &ci
		}
	}
	pos.RequiresAttention = pos.RequiresAttention ||
		(pos.Order != nil && pos.Order.CheckInAttention) ||
		(pos.Item != nil && pos.Item.CheckInAttention)
}
