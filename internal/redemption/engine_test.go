package redemption

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/queue"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/tickets"
	"github.com/dmitrijs2005/gophscan/internal/client/storetest"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/dmitrijs2005/gophscan/internal/credential"
	"github.com/dmitrijs2005/gophscan/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

const (
	listMain        int64 = 1
	listAlternating int64 = 2
	listVIPRule     int64 = 3
	listBrokenRule  int64 = 4
	listPending     int64 = 5
)

func ptr[T any](v T) *T { return &v }

func snapshot() tickets.Snapshot {
	return tickets.Snapshot{
		Event: models.Event{Slug: "democon", Name: models.MultiLingualString{"en": "DemoCon"}, DateFrom: t0},
		CheckInLists: []models.CheckInList{
			{ID: listMain, Name: "Main", AllProducts: true},
			{ID: listAlternating, Name: "Hall", AllProducts: true, AllowEntryAfterExit: true},
			{ID: listVIPRule, Name: "VIP", AllProducts: true,
				Rules: json.RawMessage(`{"inList":[{"var":"product"},{"objectList":[{"lookup":["product","20","VIP"]}]}]}`)},
			{ID: listBrokenRule, Name: "Broken", AllProducts: true, Rules: json.RawMessage(`{"frobnicate":[1,2]}`)},
			{ID: listPending, Name: "Box office", AllProducts: true, IncludePending: true},
		},
		Items: []models.Item{
			{ID: 10, Name: models.MultiLingualString{"en": "Regular"}, Admission: true},
			{ID: 20, Name: models.MultiLingualString{"en": "VIP"}, Admission: true, CheckInAttention: true},
		},
		Questions: []models.Question{
			{ID: 2, Identifier: "SHIRT", Text: models.MultiLingualString{"en": "Shirt size"}, Type: models.QuestionChoice,
				Required: true, AskDuringCheckIn: true, Position: 1,
				Options: []models.QuestionOption{{ID: 5, Identifier: "M"}}, ItemIDs: []int64{20}},
		},
		Orders: []models.Order{
			{Code: "PAID1", Status: models.OrderPaid},
			{Code: "PEND1", Status: models.OrderPending},
			{Code: "CANC1", Status: models.OrderCancelled},
		},
		Positions: []models.OrderPosition{
			{ID: 100, OrderCode: "PAID1", ItemID: 10, Secret: "sec-alice", AttendeeName: "Alice"},
			{ID: 101, OrderCode: "PAID1", ItemID: 20, Secret: "sec-vip"},
			{ID: 102, OrderCode: "PEND1", ItemID: 10, Secret: "sec-pending"},
			{ID: 103, OrderCode: "CANC1", ItemID: 10, Secret: "sec-cancel"},
			{ID: 104, OrderCode: "PAID1", ItemID: 10, Secret: "sec-revoked"},
			{ID: 105, OrderCode: "PAID1", ItemID: 10, Secret: "sec-blocked", Blocked: true},
			{ID: 106, OrderCode: "PAID1", ItemID: 10, Secret: "sec-tomorrow", ValidFrom: ptr(t0.Add(24 * time.Hour))},
		},
		Revoked: []models.RevokedKey{{Secret: "sec-revoked"}},
	}
}

type fixture struct {
	engine   *Engine
	store    *tickets.SQLiteRepository
	queue    *queue.SQLiteRepository
	triggers atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storetest.Open(t)
	store := tickets.NewSQLiteRepository(db)
	require.NoError(t, store.Import(context.Background(), snapshot()))

	f := &fixture{store: store, queue: queue.NewSQLiteRepository(db)}
	f.engine = NewEngine(store,
		WithClock(func() time.Time { return t0.Add(time.Hour) }),
		WithSyncTrigger(func() { f.triggers.Add(1) }),
	)
	return f
}

func sel(list int64) models.Selection {
	return models.Selection{EventSlug: "democon", CheckInListID: list}
}

func (f *fixture) redeem(t *testing.T, list int64, secret string, req models.RedemptionRequest) *models.RedemptionResponse {
	t.Helper()
	resp, err := f.engine.Redeem(context.Background(), sel(list), Scan{Raw: secret, Request: req})
	require.NoError(t, err)
	return resp
}

func (f *fixture) queued(t *testing.T) []queue.Entry {
	t.Helper()
	entries, err := f.queue.Peek(context.Background(), "", 0)
	require.NoError(t, err)
	return entries
}

func TestRedeem_IdempotentNonce(t *testing.T) {
	f := newFixture(t)
	req := models.RedemptionRequest{Nonce: "n1", Type: models.DirectionEntry}

	first := f.redeem(t, listMain, "sec-alice", req)
	second := f.redeem(t, listMain, "sec-alice", req)

	assert.Equal(t, models.OutcomeRedeemed, first.Outcome)
	assert.Equal(t, models.OutcomeRedeemed, second.Outcome)

	history, err := f.store.CheckIns(context.Background(), listMain, "sec-alice")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	entries := f.queued(t)
	require.Len(t, entries, 1)
	assert.Equal(t, queue.KindRedemption, entries[0].Kind)
	assert.Equal(t, "n1", entries[0].Nonce)
	assert.Equal(t, int32(1), f.triggers.Load())
}

func TestRedeem_NonceReuseNeverReplays(t *testing.T) {
	f := newFixture(t)
	n1 := models.RedemptionRequest{Nonce: "n1"}

	assert.Equal(t, models.OutcomeRedeemed, f.redeem(t, listMain, "sec-alice", n1).Outcome)
	assert.Equal(t, models.OutcomeRevoked, f.redeem(t, listMain, "sec-revoked", n1).Outcome)
	assert.Equal(t, models.OutcomeRules, f.redeem(t, listBrokenRule, "sec-alice", n1).Outcome)

	// Admissible on another list, but the nonce belongs to the first scan.
	_, err := f.engine.Redeem(context.Background(), sel(listAlternating), Scan{Raw: "sec-alice", Request: n1})
	require.ErrorIs(t, err, common.ErrNonceConflict)
	history, err := f.store.CheckIns(context.Background(), listAlternating, "sec-alice")
	require.NoError(t, err)
	assert.Empty(t, history)

	entries := f.queued(t)
	require.Len(t, entries, 3)
	assert.Equal(t, "n1", entries[0].Nonce)
	for _, e := range entries[1:] {
		require.NotNil(t, e.FailedCheckIn)
		assert.NotEqual(t, "n1", e.Nonce)
	}
	assert.Equal(t, models.OutcomeRevoked, entries[1].FailedCheckIn.Reason)
	assert.Equal(t, models.OutcomeRules, entries[2].FailedCheckIn.Reason)
}

func TestRedeem_ForcedRetryOfRejectedNonceIsQueued(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, models.OutcomeRedeemed, f.redeem(t, listMain, "sec-alice", models.RedemptionRequest{Nonce: "n0"}).Outcome)
	assert.Equal(t, models.OutcomeAlreadyRedeemed, f.redeem(t, listMain, "sec-alice", models.RedemptionRequest{Nonce: "n1"}).Outcome)
	assert.Equal(t, models.OutcomeRedeemed, f.redeem(t, listMain, "sec-alice", models.RedemptionRequest{Nonce: "n1", Force: true}).Outcome)

	entries := f.queued(t)
	require.Len(t, entries, 3)
	assert.Equal(t, []queue.Kind{queue.KindRedemption, queue.KindFailedCheckIn, queue.KindRedemption},
		[]queue.Kind{entries[0].Kind, entries[1].Kind, entries[2].Kind})
	assert.NotEqual(t, "n1", entries[1].Nonce)
	assert.Equal(t, "n1", entries[2].Nonce)
	require.NotNil(t, entries[2].Redemption)
	assert.True(t, entries[2].Redemption.Force)
}

func TestRedeem_SingleEntryAndForce(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, models.OutcomeRedeemed, f.redeem(t, listMain, "sec-alice", models.RedemptionRequest{Nonce: "n1"}).Outcome)

	again := f.redeem(t, listMain, "sec-alice", models.RedemptionRequest{Nonce: "n2"})
	assert.Equal(t, models.OutcomeAlreadyRedeemed, again.Outcome)
	require.NotNil(t, again.LastCheckIn)
	assert.Equal(t, "n1", again.LastCheckIn.Nonce)

	forced := f.redeem(t, listMain, "sec-alice", models.RedemptionRequest{Nonce: "n3", Force: true})
	assert.Equal(t, models.OutcomeRedeemed, forced.Outcome)
	require.NotNil(t, forced.Position)
	assert.Len(t, forced.Position.CheckIns, 2)

	entries := f.queued(t)
	require.Len(t, entries, 3)
	assert.Equal(t, []queue.Kind{queue.KindRedemption, queue.KindFailedCheckIn, queue.KindRedemption},
		[]queue.Kind{entries[0].Kind, entries[1].Kind, entries[2].Kind})
	require.NotNil(t, entries[1].FailedCheckIn)
	assert.Equal(t, models.OutcomeAlreadyRedeemed, entries[1].FailedCheckIn.Reason)
	assert.Equal(t, ptr(int64(100)), entries[1].FailedCheckIn.PositionID)
}

func TestRedeem_Alternation(t *testing.T) {
	f := newFixture(t)

	steps := []struct {
		dir  models.Direction
		want models.Outcome
	}{
		{models.DirectionEntry, models.OutcomeRedeemed},
		{models.DirectionEntry, models.OutcomeAlreadyRedeemed},
		{models.DirectionExit, models.OutcomeRedeemed},
		{models.DirectionEntry, models.OutcomeRedeemed},
	}
	for i, s := range steps {
		req := models.RedemptionRequest{
			Nonce: fmt.Sprintf("alt-%d", i),
			Date:  t0.Add(time.Duration(i) * time.Minute),
			Type:  s.dir,
		}
		got := f.redeem(t, listAlternating, "sec-alice", req)
		assert.Equal(t, s.want, got.Outcome, "step %d", i)
	}
}

func TestRedeem_UnknownSecret(t *testing.T) {
	f := newFixture(t)

	exit := f.redeem(t, listMain, "stranger", models.RedemptionRequest{Nonce: "x1", Type: models.DirectionExit})
	assert.Equal(t, models.OutcomeRedeemed, exit.Outcome)
	assert.Nil(t, exit.Position)

	entry := f.redeem(t, listMain, "stranger", models.RedemptionRequest{Nonce: "x2", Type: models.DirectionEntry})
	assert.Equal(t, models.OutcomeInvalid, entry.Outcome)

	entries := f.queued(t)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Redemption)
	assert.Equal(t, "stranger", entries[0].Redemption.Secret)
	assert.Equal(t, models.DirectionExit, entries[0].Redemption.Type)
	require.NotNil(t, entries[1].FailedCheckIn)
	assert.Equal(t, "stranger", entries[1].FailedCheckIn.RawBarcode)
}

func TestRedeem_RevokedOverridesRules(t *testing.T) {
	f := newFixture(t)

	// The list rule would reject item 10 as well; revocation wins.
	got := f.redeem(t, listVIPRule, "sec-revoked", models.RedemptionRequest{Nonce: "r1"})
	assert.Equal(t, models.OutcomeRevoked, got.Outcome)

	got = f.redeem(t, listVIPRule, "sec-alice", models.RedemptionRequest{Nonce: "r2"})
	assert.Equal(t, models.OutcomeRules, got.Outcome)
}

func TestRedeem_MalformedRule(t *testing.T) {
	f := newFixture(t)

	got := f.redeem(t, listBrokenRule, "sec-alice", models.RedemptionRequest{Nonce: "m1"})
	assert.Equal(t, models.OutcomeRules, got.Outcome)

	entries := f.queued(t)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].FailedCheckIn)
	assert.Equal(t, models.OutcomeRules, entries[0].FailedCheckIn.Reason)
}

func TestRedeem_RuleEvaluationErrorIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	odd := models.CheckInList{ID: 8, EventSlug: "democon", Name: "Odd", AllProducts: true,
		Rules: json.RawMessage(`{"<":[{"var":"now"},3]}`)}
	require.NoError(t, f.store.UpsertCheckInLists(ctx, []models.CheckInList{odd}))

	var buf bytes.Buffer
	e := NewEngine(f.store,
		WithClock(func() time.Time { return t0.Add(time.Hour) }),
		WithLogger(logging.New(&buf, "text", "warn")),
	)
	got, err := e.Redeem(ctx, sel(8), Scan{Raw: "sec-alice", Request: models.RedemptionRequest{Nonce: "o1"}})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRules, got.Outcome)
	assert.Contains(t, buf.String(), "check-in rule cannot be evaluated")
	assert.Contains(t, buf.String(), "<($now,3)")
}

func TestRedeem_RequiredQuestion(t *testing.T) {
	f := newFixture(t)
	req := models.RedemptionRequest{Nonce: "q1"}

	got := f.redeem(t, listMain, "sec-vip", req)
	assert.Equal(t, models.OutcomeIncompleteQuestions, got.Outcome)
	assert.Equal(t, []int64{2}, got.MissingQuestions)
	require.Len(t, got.Questions, 1)
	assert.Equal(t, "SHIRT", got.Questions[0].Identifier)

	entries := f.queued(t)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].FailedCheckIn)
	assert.Equal(t, models.OutcomeIncompleteQuestions, entries[0].FailedCheckIn.Reason)
	assert.Equal(t, ptr(int64(101)), entries[0].FailedCheckIn.PositionID)
	assert.NotEqual(t, "q1", entries[0].Nonce)

	req.Answers = []models.Answer{{QuestionID: 2, Value: "5"}}
	got = f.redeem(t, listMain, "sec-vip", req)
	assert.Equal(t, models.OutcomeRedeemed, got.Outcome)
	require.NotNil(t, got.Position)
	assert.True(t, got.Position.RequiresAttention)

	entries = f.queued(t)
	require.Len(t, entries, 2)
	assert.Equal(t, "q1", entries[1].Nonce)
	require.NotNil(t, entries[1].Redemption)
	assert.Equal(t, req.Answers, entries[1].Redemption.Answers)
}

func TestRedeem_PositionChecks(t *testing.T) {
	tests := []struct {
		name   string
		list   int64
		secret string
		req    models.RedemptionRequest
		want   models.Outcome
	}{
		{"canceled order", listMain, "sec-cancel", models.RedemptionRequest{}, models.OutcomeCanceled},
		{"canceled on exit", listMain, "sec-cancel", models.RedemptionRequest{Type: models.DirectionExit}, models.OutcomeCanceled},
		{"blocked position", listMain, "sec-blocked", models.RedemptionRequest{}, models.OutcomeBlocked},
		{"unpaid", listMain, "sec-pending", models.RedemptionRequest{}, models.OutcomeUnpaid},
		{"ignore unpaid needs pending list", listMain, "sec-pending", models.RedemptionRequest{IgnoreUnpaid: true}, models.OutcomeUnpaid},
		{"ignore unpaid", listPending, "sec-pending", models.RedemptionRequest{IgnoreUnpaid: true}, models.OutcomeRedeemed},
		{"not yet valid", listMain, "sec-tomorrow", models.RedemptionRequest{}, models.OutcomeInvalidTime},
		{"validity forced", listMain, "sec-tomorrow", models.RedemptionRequest{Force: true}, models.OutcomeRedeemed},
		{"exit ignores validity", listMain, "sec-tomorrow", models.RedemptionRequest{Type: models.DirectionExit}, models.OutcomeRedeemed},
		{"rule passes", listVIPRule, "sec-vip", models.RedemptionRequest{Answers: []models.Answer{{QuestionID: 2, Value: "5"}}}, models.OutcomeRedeemed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			got := f.redeem(t, tt.list, tt.secret, tt.req)
			assert.Equal(t, tt.want, got.Outcome)
		})
	}
}

func TestRedeem_ListScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertCheckInLists(ctx, []models.CheckInList{
		{ID: 6, EventSlug: "democon", Name: "VIP only", LimitProducts: []int64{20}},
		{ID: 7, EventSlug: "democon", Name: "Day 2", AllProducts: true, SubEventID: ptr(int64(2))},
	}))

	assert.Equal(t, models.OutcomeProduct, f.redeem(t, 6, "sec-alice", models.RedemptionRequest{}).Outcome)
	assert.Equal(t, models.OutcomeInvalid, f.redeem(t, 7, "sec-alice", models.RedemptionRequest{}).Outcome)
}

func TestRedeem_Verification(t *testing.T) {
	verified := func(item int64, status credential.Status) *credential.Verification {
		return &credential.Verification{Status: status, Secret: "signed-secret", ItemID: item}
	}

	tests := []struct {
		name string
		v    *credential.Verification
		dir  models.Direction
		want models.Outcome
	}{
		{"admitted from hints", verified(10, credential.Valid), models.DirectionEntry, models.OutcomeRedeemed},
		{"hints need answers", verified(20, credential.Valid), models.DirectionEntry, models.OutcomeIncompleteQuestions},
		{"unknown item", verified(99, credential.Valid), models.DirectionEntry, models.OutcomeProduct},
		{"unknown item on exit", verified(99, credential.Valid), models.DirectionExit, models.OutcomeRedeemed},
		{"bad signature", verified(0, credential.Invalid), models.DirectionEntry, models.OutcomeInvalid},
		{"wrong product", verified(10, credential.InvalidProduct), models.DirectionEntry, models.OutcomeProduct},
		{"wrong date", verified(10, credential.InvalidSubEvent), models.DirectionEntry, models.OutcomeInvalid},
		{"expired", verified(10, credential.InvalidTime), models.DirectionEntry, models.OutcomeInvalidTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			scan := Scan{Raw: " signed-secret\n", Verification: tt.v, Request: models.RedemptionRequest{Nonce: "v1", Type: tt.dir}}
			got, err := f.engine.Redeem(context.Background(), sel(listMain), scan)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Outcome)
		})
	}
}

func TestRedeem_FailedVerificationKeepsHint(t *testing.T) {
	f := newFixture(t)
	scan := Scan{
		Raw:          "raw-payload",
		Verification: &credential.Verification{Status: credential.InvalidProduct, ItemID: 20},
		Request:      models.RedemptionRequest{Nonce: "h1"},
	}
	_, err := f.engine.Redeem(context.Background(), sel(listMain), scan)
	require.NoError(t, err)

	entries := f.queued(t)
	require.Len(t, entries, 1)
	fc := entries[0].FailedCheckIn
	require.NotNil(t, fc)
	assert.Equal(t, "raw-payload", fc.RawBarcode)
	assert.Equal(t, ptr(int64(20)), fc.ItemID)
	assert.Nil(t, fc.PositionID)
}

func TestRedeem_Defaults(t *testing.T) {
	f := newFixture(t)

	got := f.redeem(t, listMain, "  sec-alice ", models.RedemptionRequest{})
	assert.Equal(t, models.OutcomeRedeemed, got.Outcome)

	entries := f.queued(t)
	require.Len(t, entries, 1)
	r := entries[0].Redemption
	require.NotNil(t, r)
	assert.NotEmpty(t, r.Nonce)
	assert.Equal(t, "sec-alice", r.Secret)
	assert.Equal(t, models.DirectionEntry, r.Type)
	assert.True(t, r.Date.Equal(t0.Add(time.Hour)))

	_, err := f.engine.Redeem(context.Background(), sel(listMain), Scan{Raw: "sec-alice", Request: models.RedemptionRequest{Type: "sideways"}})
	require.Error(t, err)
}

func TestRedeem_NotConfigured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Redeem(ctx, models.Selection{}, Scan{Raw: "sec-alice"})
	require.ErrorIs(t, err, common.ErrNotConfigured)

	_, err = f.engine.Redeem(ctx, sel(404), Scan{Raw: "sec-alice"})
	require.ErrorIs(t, err, common.ErrNotConfigured)

	_, err = f.engine.Redeem(ctx, models.Selection{EventSlug: "other", CheckInListID: listMain}, Scan{Raw: "sec-alice"})
	require.ErrorIs(t, err, common.ErrNotConfigured)
}

type failingStore struct {
	Store
	err error
}

func (s failingStore) IsRevoked(context.Context, string, string) (bool, error) {
	return false, s.err
}

func TestRedeem_StoreFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("disk I/O error")
	e := NewEngine(failingStore{Store: f.store, err: boom})

	_, err := e.Redeem(context.Background(), sel(listMain), Scan{Raw: "sec-alice"})
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
	require.ErrorIs(t, err, boom)
}

func TestRedeem_SameSecretSerializes(t *testing.T) {
	f := newFixture(t)

	const n = 8
	var (
		wg       sync.WaitGroup
		redeemed atomic.Int32
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.engine.Redeem(context.Background(), sel(listMain),
				Scan{Raw: "sec-alice", Request: models.RedemptionRequest{Nonce: fmt.Sprintf("c%d", i)}})
			if assert.NoError(t, err) && resp.Outcome == models.OutcomeRedeemed {
				redeemed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), redeemed.Load())
	assert.Zero(t, f.engine.locks.size())
}
