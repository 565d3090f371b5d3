// Package services contains the application services of the gate client.
// This file defines the ticket validator facade and its construction.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/client"
	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/credential"
	"github.com/dmitrijs2005/gophscan/internal/logging"
	"github.com/dmitrijs2005/gophscan/internal/redemption"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// TicketValidator is what the gate UI talks to. Every call names the event
// and check-in list it works on.
//
// Contract:
//   - Redeem returns the outcome as a value; errors are system failures.
//   - Search returns nothing for a blank query.
//   - Questions lists the questions asked during check-in for an item.
//
// All methods must honor context cancellation/timeouts.
type TicketValidator interface {
	Search(ctx context.Context, sel models.Selection, query string) ([]models.SearchResult, error)
	Redeem(ctx context.Context, sel models.Selection, secret string, opts RedeemOptions) (*models.RedemptionResponse, error)
	CheckInListStatus(ctx context.Context, sel models.Selection) (*models.CheckInListStatus, error)
	Questions(ctx context.Context, sel models.Selection, itemID int64) ([]models.Question, error)
	IsOnline() bool
}

// RedeemOptions are the operator choices of one redemption attempt. Retrying
// an attempt (for example after collecting answers) must reuse its Nonce.
type RedeemOptions struct {
	Answers      []models.Answer
	Force        bool
	IgnoreUnpaid bool
	Direction    models.Direction
	Nonce        string
}

func (o RedeemOptions) request(now time.Time) models.RedemptionRequest {
	req := models.RedemptionRequest{
		Nonce:        o.Nonce,
		Date:         now,
		Force:        o.Force,
		IgnoreUnpaid: o.IgnoreUnpaid,
		Answers:      o.Answers,
		Type:         o.Direction,
	}
	if req.Nonce == "" {
		req.Nonce = uuid.NewString()
	}
	if req.Type == "" {
		req.Type = models.DirectionEntry
	}
	return req
}

// Mode selects the validation strategy.
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
	ModeSigned  Mode = "signed"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOnline, ModeOffline, ModeSigned:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want online, offline or signed)", s)
}

// Deps are the collaborators of the validators. Online needs Remote; all
// modes use Store. Offline and Signed need Engine.
type Deps struct {
	Remote   client.Client
	Store    Store
	Engine   *redemption.Engine
	Verifier credential.Verifier
	Locale   language.Tag
	Log      logging.Logger
	Now      func() time.Time
}

// Store is the local ticket store as seen by the validators.
type Store interface {
	redemption.Store
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// NewTicketValidator builds the validator of mode. Callers never need to
// know which one they hold.
func NewTicketValidator(mode Mode, deps Deps) (TicketValidator, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("%s validator: no local store", mode)
	}
	switch mode {
	case ModeOnline:
		if deps.Remote == nil {
			return nil, fmt.Errorf("%s validator: no remote client", mode)
		}
		return NewOnlineValidator(deps), nil
	case ModeOffline, ModeSigned:
		if deps.Engine == nil {
			return nil, fmt.Errorf("%s validator: no redemption engine", mode)
		}
		if mode == ModeOffline {
			return NewOfflineValidator(deps), nil
		}
		if deps.Verifier == nil {
			deps.Verifier = credential.SignedTicketVerifier{}
		}
		return NewSignedValidator(deps), nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}
