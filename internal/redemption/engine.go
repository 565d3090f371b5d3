package redemption

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/checks"
	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/tickets"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/dmitrijs2005/gophscan/internal/credential"
	"github.com/dmitrijs2005/gophscan/internal/logging"
	"github.com/dmitrijs2005/gophscan/internal/rules"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dmitrijs2005/gophscan/internal/redemption"

// Store is the part of the local ticket store the engine works on.
type Store interface {
	tickets.Reader
	tickets.Writer
}

// Scan is one redemption attempt.
type Scan struct {
	// Raw is the payload as read by the scanner.
	Raw string
	// Secret is the canonical secret. Empty means Raw without surrounding
	// whitespace.
	Secret  string
	Request models.RedemptionRequest
	// Verification is set when the credential was verified cryptographically.
	Verification *credential.Verification
}

func (s Scan) secret() string {
	if s.Verification != nil && s.Verification.Secret != "" {
		return s.Verification.Secret
	}
	if s.Secret != "" {
		return s.Secret
	}
	return strings.TrimSpace(s.Raw)
}

type Option func(*Engine)

func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock replaces time.Now as the source of scan times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSyncTrigger registers fn to be called after every newly committed
// redemption. fn must not block.
func WithSyncTrigger(fn func()) Option {
	return func(e *Engine) { e.trigger = fn }
}

// Engine makes redemption decisions against the local store.
type Engine struct {
	store   Store
	log     logging.Logger
	now     func() time.Time
	trigger func()
	locks   *keyedMutex
	tracer  trace.Tracer
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		log:    logging.Nop(),
		now:    time.Now,
		locks:  newKeyedMutex(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// decision is the state collected while checking one scan.
type decision struct {
	outcome   models.Outcome
	reason    string
	event     *models.Event
	list      *models.CheckInList
	position  *models.OrderPosition
	order     *models.Order
	item      *models.Item
	variation *models.Variation
	hintItem  int64
	history   []models.CheckIn
	committed *models.CheckIn
	missing   []int64
	questions []models.Question
}

func (d *decision) reject(o models.Outcome, reason string) {
	d.outcome = o
	d.reason = reason
}

// Redeem decides scan on the selected list. Outcomes are returned as values;
// an error means no decision could be made.
//
// An admitted scan is appended to the list history and queued for upload
// before Redeem returns. A scan whose nonce was committed before for the same
// secret and list is reported as redeemed again without further side effects.
// A nonce committed for another scan never replays: the scan is decided
// normally and admitting it fails with common.ErrNonceConflict.
func (e *Engine) Redeem(ctx context.Context, sel models.Selection, scan Scan) (_ *models.RedemptionResponse, err error) {
	if sel.IsZero() {
		return nil, common.ErrNotConfigured
	}

	req := scan.Request
	if req.Nonce == "" {
		req.Nonce = uuid.NewString()
	}
	if req.Date.IsZero() {
		req.Date = e.now()
	}
	if req.Type == "" {
		req.Type = models.DirectionEntry
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown scan direction %q", req.Type)
	}
	secret := scan.secret()

	ctx, span := e.tracer.Start(ctx, "redemption.Redeem", trace.WithAttributes(
		attribute.String("event", sel.EventSlug),
		attribute.Int64("checkin_list", sel.CheckInListID),
		attribute.String("direction", string(req.Type)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	unlock := e.locks.Lock(secret)
	defer unlock()

	d, err := e.load(ctx, sel)
	if err != nil {
		return nil, err
	}
	if err := e.lookupPosition(ctx, d, secret); err != nil {
		return nil, err
	}

	prior, err := e.store.CheckInByNonce(ctx, req.Nonce)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return nil, common.StoreError("check nonce", err)
	case prior.ListID == d.list.ID && prior.Secret == secret:
		span.SetAttributes(attribute.Bool("replayed", true))
		e.log.Debug(ctx, "redemption replayed", "nonce", req.Nonce)
		d.outcome = models.OutcomeRedeemed
		return d.response(), nil
	default:
		// Decided as a fresh scan; committing it fails on the nonce.
		e.log.Warn(ctx, "nonce reused for another scan", "nonce", req.Nonce, "list", prior.ListID)
	}

	if err := e.decide(ctx, d, scan.Verification, secret, req); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("outcome", string(d.outcome)))

	switch d.outcome {
	case models.OutcomeRedeemed:
		ci := models.CheckIn{ListID: d.list.ID, Date: req.Date, Type: req.Type, Nonce: req.Nonce, Secret: secret}
		queued := models.QueuedRedemptionRequest{
			RedemptionRequest: req,
			EventSlug:         sel.EventSlug,
			CheckInListID:     d.list.ID,
			Secret:            secret,
		}
		created, err := e.store.CommitRedemption(ctx, ci, sel.EventSlug, queued)
		if err != nil {
			return nil, common.StoreError("commit redemption", err)
		}
		d.committed = &ci
		if created && e.trigger != nil {
			e.trigger()
		}
	case models.OutcomeIncompleteQuestions:
		// The operator collects the answers and retries with the same nonce;
		// the failed record has its own key so the retry can still commit.
		e.log.Debug(ctx, "answers required", "list", d.list.ID, "questions", d.missing)
		if err := e.store.StoreFailedCheckIn(ctx, d.failed(scan, secret, req)); err != nil {
			return nil, common.StoreError("store failed checkin", err)
		}
	default:
		e.log.Debug(ctx, "check-in rejected", "outcome", d.outcome, "reason", d.reason, "list", d.list.ID)
		if err := e.store.StoreFailedCheckIn(ctx, d.failed(scan, secret, req)); err != nil {
			return nil, common.StoreError("store failed checkin", err)
		}
	}
	return d.response(), nil
}

func (e *Engine) load(ctx context.Context, sel models.Selection) (*decision, error) {
	list, err := e.store.CheckInList(ctx, sel.CheckInListID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("check-in list %d: %w", sel.CheckInListID, common.ErrNotConfigured)
	}
	if err != nil {
		return nil, common.StoreError("load check-in list", err)
	}
	if list.EventSlug != sel.EventSlug {
		return nil, fmt.Errorf("check-in list %d is not part of %s: %w", list.ID, sel.EventSlug, common.ErrNotConfigured)
	}

	event, err := e.store.Event(ctx, sel.EventSlug)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("event %s: %w", sel.EventSlug, common.ErrNotConfigured)
	}
	if err != nil {
		return nil, common.StoreError("load event", err)
	}
	return &decision{event: event, list: list}, nil
}

// lookupPosition loads the synchronized position of secret with its order
// and item. A secret the store does not know leaves them nil.
func (e *Engine) lookupPosition(ctx context.Context, d *decision, secret string) error {
	pos, err := e.store.PositionBySecret(ctx, d.event.Slug, secret)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return common.StoreError("load position", err)
	}
	d.position = pos

	order, err := e.store.Order(ctx, d.event.Slug, pos.OrderCode)
	switch {
	case err == nil:
		d.order = order
	case !errors.Is(err, common.ErrNotFound):
		return common.StoreError("load order", err)
	}

	item, err := e.store.Item(ctx, pos.ItemID)
	switch {
	case err == nil:
		d.item = item
		if pos.VariationID != nil {
			d.variation = item.Variation(*pos.VariationID)
		}
	case !errors.Is(err, common.ErrNotFound):
		return common.StoreError("load item", err)
	}
	return nil
}

func (e *Engine) decide(ctx context.Context, d *decision, v *credential.Verification, secret string, req models.RedemptionRequest) error {
	if v != nil {
		d.hintItem = v.ItemID
		if v.Status != credential.Valid {
			d.reject(verificationOutcome(v.Status), "credential "+v.Status.String())
			return nil
		}
	}

	revoked, err := e.store.IsRevoked(ctx, d.event.Slug, secret)
	if err != nil {
		return common.StoreError("check revoked", err)
	}
	if revoked {
		d.reject(models.OutcomeRevoked, "secret revoked")
		return nil
	}
	blocked, err := e.store.IsBlocked(ctx, d.event.Slug, secret)
	if err != nil {
		return common.StoreError("check blocked", err)
	}
	if blocked || (d.position != nil && d.position.Blocked) {
		d.reject(models.OutcomeBlocked, "secret blocked")
		return nil
	}

	d.history, err = e.store.CheckIns(ctx, d.list.ID, secret)
	if err != nil {
		return common.StoreError("load checkins", err)
	}

	var (
		product   int64
		variation *int64
		subEvent  *int64
	)
	switch {
	case d.position != nil:
		if !d.checkPosition(req) {
			return nil
		}
		product, variation, subEvent = d.position.ItemID, d.position.VariationID, d.position.SubEventID
	case req.Type == models.DirectionExit:
		if v != nil {
			if _, err := e.resolveHints(ctx, d, v); err != nil {
				return err
			}
		}
		d.outcome = models.OutcomeRedeemed
		return nil
	case v == nil:
		d.reject(models.OutcomeInvalid, "unknown secret")
		return nil
	default:
		ok, err := e.resolveHints(ctx, d, v)
		if err != nil {
			return err
		}
		if !ok {
			d.reject(models.OutcomeProduct, "unknown product")
			return nil
		}
		product, variation, subEvent = v.ItemID, v.VariationID, v.SubEventID
	}

	if req.Type == models.DirectionExit {
		d.outcome = models.OutcomeRedeemed
		return nil
	}

	rule, err := rules.Parse(d.list.Rules)
	if err != nil {
		e.log.Warn(ctx, "check-in rule cannot be parsed", "list", d.list.ID, "error", err)
		d.reject(models.OutcomeRules, "malformed rule")
		return nil
	}
	env, err := e.ruleEnv(ctx, d, product, variation, subEvent, req.Date)
	if err != nil {
		return err
	}
	switch res, err := rules.Check(rule, env); res {
	case rules.Malformed:
		e.log.Warn(ctx, "check-in rule cannot be evaluated", "list", d.list.ID, "rule", rules.Format(rule), "error", err)
		d.reject(models.OutcomeRules, "malformed rule")
		return nil
	case rules.Fail:
		d.reject(models.OutcomeRules, "rule not satisfied")
		return nil
	}

	questions, err := e.store.Questions(ctx, d.event.Slug, product)
	if err != nil {
		return common.StoreError("load questions", err)
	}
	var given []models.Answer
	if d.position != nil {
		given = d.position.Answers
	}
	if missing := checks.Answers(questions, mergeAnswers(given, req.Answers)); len(missing) > 0 {
		d.outcome = models.OutcomeIncompleteQuestions
		d.missing = missing
		d.questions = askedDuringCheckIn(questions)
		return nil
	}

	if !req.Force && !checks.MultiEntry(d.list.EntryPolicy(), req.Type, d.history) {
		d.reject(models.OutcomeAlreadyRedeemed, "already checked in")
		return nil
	}
	d.outcome = models.OutcomeRedeemed
	return nil
}

// checkPosition runs the order and list scope checks of a synchronized
// position. It reports whether the scan may proceed.
func (d *decision) checkPosition(req models.RedemptionRequest) bool {
	pos := d.position
	switch {
	case d.order != nil && (d.order.Status == models.OrderCancelled || d.order.Status == models.OrderExpired):
		d.reject(models.OutcomeCanceled, "order canceled")
	case !d.list.CoversItem(pos.ItemID):
		d.reject(models.OutcomeProduct, "product not on list")
	case !d.list.CoversSubEvent(pos.SubEventID):
		d.reject(models.OutcomeInvalid, "wrong date")
	case req.Type == models.DirectionExit:
		return true
	case !req.Force && outsideWindow(pos, req.Date):
		d.reject(models.OutcomeInvalidTime, "outside validity")
	case d.unpaid(req):
		d.reject(models.OutcomeUnpaid, "order not paid")
	default:
		return true
	}
	return false
}

func (d *decision) unpaid(req models.RedemptionRequest) bool {
	if d.order == nil || d.order.Status != models.OrderPending || d.order.ValidIfPending {
		return false
	}
	return !(req.IgnoreUnpaid && d.list.IncludePending)
}

func outsideWindow(pos *models.OrderPosition, at time.Time) bool {
	if pos.ValidFrom != nil && at.Before(*pos.ValidFrom) {
		return true
	}
	return pos.ValidUntil != nil && at.After(*pos.ValidUntil)
}

// resolveHints looks up the item and variation named by a verified
// credential. It reports false when either is unknown.
func (e *Engine) resolveHints(ctx context.Context, d *decision, v *credential.Verification) (bool, error) {
	item, err := e.store.Item(ctx, v.ItemID)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, common.StoreError("load item", err)
	}
	d.item = item
	if v.VariationID == nil {
		return true, nil
	}
	d.variation = item.Variation(*v.VariationID)
	return d.variation != nil, nil
}

func (e *Engine) ruleEnv(ctx context.Context, d *decision, product int64, variation, subEvent *int64, now time.Time) (rules.Env, error) {
	env := rules.Env{
		Product:       product,
		Variation:     variation,
		SubEvent:      subEvent,
		Now:           now,
		Location:      d.event.Location(),
		CheckIns:      d.history,
		DateFrom:      &d.event.DateFrom,
		DateTo:        d.event.DateTo,
		DateAdmission: d.event.DateAdmission,
	}
	if subEvent == nil {
		return env, nil
	}

	sub, err := e.store.SubEvent(ctx, *subEvent)
	if errors.Is(err, common.ErrNotFound) {
		return env, nil
	}
	if err != nil {
		return env, common.StoreError("load subevent", err)
	}
	env.DateFrom, env.DateTo, env.DateAdmission = &sub.DateFrom, sub.DateTo, sub.DateAdmission
	return env, nil
}

func verificationOutcome(s credential.Status) models.Outcome {
	switch s {
	case credential.InvalidTime:
		return models.OutcomeInvalidTime
	case credential.InvalidProduct:
		return models.OutcomeProduct
	default:
		return models.OutcomeInvalid
	}
}

// mergeAnswers overlays the answers given at the gate on the stored ones.
func mergeAnswers(stored, given []models.Answer) []models.Answer {
	merged := slices.Clone(stored)
	for _, a := range given {
		i := slices.IndexFunc(merged, func(m models.Answer) bool { return m.QuestionID == a.QuestionID })
		if i >= 0 {
			merged[i] = a
			continue
		}
		merged = append(merged, a)
	}
	return merged
}

func askedDuringCheckIn(questions []models.Question) []models.Question {
	var asked []models.Question
	for _, q := range questions {
		if q.AskDuringCheckIn {
			asked = append(asked, q)
		}
	}
	return asked
}

func (d *decision) failed(scan Scan, secret string, req models.RedemptionRequest) models.FailedCheckIn {
	raw := scan.Raw
	if raw == "" {
		raw = secret
	}
	f := models.FailedCheckIn{
		Nonce:         uuid.NewString(),
		EventSlug:     d.event.Slug,
		CheckInListID: d.list.ID,
		Reason:        d.outcome,
		Type:          req.Type,
		RawBarcode:    raw,
		Date:          req.Date,
	}
	switch {
	case d.position != nil:
		posID, itemID := d.position.ID, d.position.ItemID
		f.PositionID, f.ItemID = &posID, &itemID
	case d.hintItem != 0:
		itemID := d.hintItem
		f.ItemID = &itemID
	}
	return f
}

// response builds the operator view. The position is a copy enriched with
// its order, item and history on the scanned list.
func (d *decision) response() *models.RedemptionResponse {
	resp := &models.RedemptionResponse{
		Outcome:          d.outcome,
		Item:             d.item,
		Variation:        d.variation,
		MissingQuestions: d.missing,
		Questions:        d.questions,
		Reason:           d.reason,
	}
	if last := checks.Last(d.history); last != nil {
		ci := *last
		resp.LastCheckIn = &ci
	}
	if d.position == nil {
		return resp
	}

	pos := *d.position
	pos.Order = d.order
	pos.Item = d.item
	pos.CheckIns = slices.Clone(d.history)
	if d.committed != nil {
		pos.CheckIns = append(pos.CheckIns, *d.committed)
	}
	pos.RequiresAttention = (d.order != nil && d.order.CheckInAttention) || (d.item != nil && d.item.CheckInAttention)
	resp.Position = &pos
	return resp
}
