package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/dmitrijs2005/gophscan/internal/logging"
	"github.com/dmitrijs2005/gophscan/internal/redemption"
	"golang.org/x/text/language"
)

const searchLimit = 50

// OfflineValidator decides against the local mirror with the redemption
// engine.
type OfflineValidator struct {
	store  Store
	engine *redemption.Engine
	locale language.Tag
	log    logging.Logger
	now    func() time.Time
}

func NewOfflineValidator(deps Deps) *OfflineValidator {
	deps = deps.withDefaults()
	return &OfflineValidator{store: deps.Store, engine: deps.Engine, locale: deps.Locale, log: deps.Log, now: deps.Now}
}

func (v *OfflineValidator) IsOnline() bool { return false }

// list loads the selected list and makes sure it belongs to the event.
func (v *OfflineValidator) list(ctx context.Context, sel models.Selection) (*models.CheckInList, error) {
	if sel.IsZero() {
		return nil, common.ErrNotConfigured
	}
	list, err := v.store.CheckInList(ctx, sel.CheckInListID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("check-in list %d: %w", sel.CheckInListID, common.ErrNotConfigured)
	}
	if err != nil {
		return nil, common.StoreError("load check-in list", err)
	}
	if list.EventSlug != sel.EventSlug {
		return nil, fmt.Errorf("check-in list %d is not part of %s: %w", list.ID, sel.EventSlug, common.ErrNotConfigured)
	}
	return list, nil
}

func (v *OfflineValidator) Redeem(ctx context.Context, sel models.Selection, secret string, opts RedeemOptions) (*models.RedemptionResponse, error) {
	return v.engine.Redeem(ctx, sel, redemption.Scan{Raw: secret, Request: opts.request(v.now())})
}

func (v *OfflineValidator) Search(ctx context.Context, sel models.Selection, query string) ([]models.SearchResult, error) {
	list, err := v.list(ctx, sel)
	if err != nil {
		return nil, err
	}
	positions, err := v.store.Search(ctx, *list, query, searchLimit)
	if err != nil {
		return nil, common.StoreError("search", err)
	}

	results := make([]models.SearchResult, 0, len(positions))
	for _, p := range positions {
		results = append(results, searchResult(p, v.locale))
	}
	return results, nil
}

func (v *OfflineValidator) CheckInListStatus(ctx context.Context, sel models.Selection) (*models.CheckInListStatus, error) {
	list, err := v.list(ctx, sel)
	if err != nil {
		return nil, err
	}
	status, err := v.store.ListStatus(ctx, *list, v.locale)
	if err != nil {
		return nil, common.StoreError("list status", err)
	}
	return status, nil
}

func (v *OfflineValidator) Questions(ctx context.Context, sel models.Selection, itemID int64) ([]models.Question, error) {
	if _, err := v.list(ctx, sel); err != nil {
		return nil, err
	}
	questions, err := v.store.Questions(ctx, sel.EventSlug, itemID)
	if err != nil {
		return nil, common.StoreError("load questions", err)
	}
	return slices.DeleteFunc(questions, func(q models.Question) bool { return !q.AskDuringCheckIn }), nil
}

// searchResult flattens a position for display. It counts as redeemed once
// it has entered through the list.
func searchResult(p models.OrderPosition, tag language.Tag) models.SearchResult {
	r := models.SearchResult{
		Secret:            p.Secret,
		AttendeeName:      p.AttendeeName,
		OrderCode:         p.OrderCode,
		PositionID:        p.PositionID,
		RequiresAttention: p.RequiresAttention,
		IsRedeemed: slices.ContainsFunc(p.CheckIns, func(ci models.CheckIn) bool {
			return ci.Type == models.DirectionEntry
		}),
	}
	if p.Item != nil {
		r.Ticket = p.Item.Name.Localized(tag)
		if p.VariationID != nil {
			if variation := p.Item.Variation(*p.VariationID); variation != nil {
				r.Variation = variation.Value.Localized(tag)
			}
		}
	}
	if p.Seat != nil {
		r.Seat = p.Seat.Name
	}
	if p.Order != nil {
		r.Status = models.StatusOf(*p.Order)
	}
	return r
}
