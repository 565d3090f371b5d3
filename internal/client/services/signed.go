package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/dmitrijs2005/gophscan/internal/credential"
	"github.com/dmitrijs2005/gophscan/internal/redemption"
)

// SignedValidator is the offline validator for events that issue signed
// tickets. A valid signature admits tickets the mirror has never seen.
type SignedValidator struct {
	*OfflineValidator
	verifier credential.Verifier
}

func NewSignedValidator(deps Deps) *SignedValidator {
	return &SignedValidator{OfflineValidator: NewOfflineValidator(deps), verifier: deps.Verifier}
}

func (v *SignedValidator) Redeem(ctx context.Context, sel models.Selection, secret string, opts RedeemOptions) (*models.RedemptionResponse, error) {
	list, err := v.list(ctx, sel)
	if err != nil {
		return nil, err
	}
	event, err := v.store.Event(ctx, sel.EventSlug)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrNotConfigured
	}
	if err != nil {
		return nil, common.StoreError("load event", err)
	}

	req := opts.request(v.now())
	verification := v.verifier.Verify(secret, credential.ListContext{
		List:       *list,
		PublicKeys: event.PublicKeys,
		Now:        req.Date,
		Direction:  req.Type,
	})
	scan := redemption.Scan{Raw: secret, Request: req, Verification: &verification}

	// Secrets that are not signed credentials but are known to the mirror
	// are checked like in plain offline mode.
	if verification.Status == credential.Invalid {
		known, err := v.known(ctx, sel.EventSlug, secret)
		if err != nil {
			return nil, err
		}
		if known {
			scan.Verification = nil
		}
	}
	return v.engine.Redeem(ctx, sel, scan)
}

func (v *SignedValidator) known(ctx context.Context, eventSlug, secret string) (bool, error) {
	_, err := v.store.PositionBySecret(ctx, eventSlug, strings.TrimSpace(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrNotFound):
		return false, nil
	}
	return false, common.StoreError("load position", err)
}
