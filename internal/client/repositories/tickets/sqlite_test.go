package tickets

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/queue"
	"github.com/dmitrijs2005/gophscan/internal/client/storetest"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

var t0 = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func snapshot() Snapshot {
	return Snapshot{
		Event: models.Event{
			Slug:     "democon",
			Name:     models.MultiLingualString{"en": "DemoCon", "de": "DemoKonferenz"},
			DateFrom: t0,
			DateTo:   ptr(t0.Add(6 * time.Hour)),
			Timezone: "Europe/Berlin",
		},
		SubEvents: []models.SubEvent{{ID: 9, Name: models.MultiLingualString{"en": "Day 1"}, DateFrom: t0}},
		CheckInLists: []models.CheckInList{
			{ID: 1, Name: "Main", AllProducts: true},
			{ID: 2, Name: "VIP", LimitProducts: []int64{20}, IncludePending: true,
				Rules: json.RawMessage(`{"inList":[{"var":"product"},{"objectList":[{"lookup":["product","20","VIP"]}]}]}`)},
		},
		Items: []models.Item{
			{ID: 10, Name: models.MultiLingualString{"en": "Regular", "de": "Normal"}, Admission: true},
			{ID: 20, Name: models.MultiLingualString{"en": "VIP"}, Admission: true, CheckInAttention: true,
				Variations: []models.Variation{{ID: 201, Value: models.MultiLingualString{"en": "Gold"}}}},
		},
		Questions: []models.Question{
			{ID: 2, Identifier: "SHIRT", Text: models.MultiLingualString{"en": "Shirt size"}, Type: models.QuestionChoice,
				Required: true, AskDuringCheckIn: true, Position: 2,
				Options: []models.QuestionOption{{ID: 5, Identifier: "M"}}, ItemIDs: []int64{10, 20}},
			{ID: 1, Identifier: "AGE", Text: models.MultiLingualString{"en": "Age"}, Type: models.QuestionNumber,
				Position: 1, ItemIDs: []int64{10}},
		},
		Orders: []models.Order{
			{Code: "ABC12", Status: models.OrderPaid, Email: "alice@example.com"},
			{Code: "PEND1", Status: models.OrderPending},
			{Code: "CANC1", Status: models.OrderCancelled},
		},
		Positions: []models.OrderPosition{
			{ID: 100, OrderCode: "ABC12", PositionID: 1, ItemID: 10, Secret: "sec-alice", AttendeeName: "Alice Smith",
				Seat: &models.Seat{Name: "A1"}, Answers: []models.Answer{{QuestionID: 2, Value: "5"}},
				CheckIns: []models.CheckIn{{ListID: 1, Date: t0.Add(time.Minute), Type: models.DirectionEntry, Nonce: "srv-1"}}},
			{ID: 101, OrderCode: "ABC12", PositionID: 2, ItemID: 20, VariationID: ptr(int64(201)), Secret: "sec-bob",
				AttendeeName: "Bob Jones", ValidFrom: ptr(t0)},
			{ID: 102, OrderCode: "PEND1", PositionID: 1, ItemID: 20, Secret: "sec-pending"},
			{ID: 103, OrderCode: "CANC1", PositionID: 1, ItemID: 10, Secret: "sec-cancel"},
		},
		Revoked: []models.RevokedKey{{Secret: "sec-old"}},
		Blocked: []models.BlockedKey{{Secret: "sec-blocked", Blocked: true}, {Secret: "sec-unblocked", Blocked: false}},
	}
}

func seeded(t *testing.T) *SQLiteRepository {
	t.Helper()
	r := NewSQLiteRepository(storetest.Open(t))
	require.NoError(t, r.Import(context.Background(), snapshot()))
	return r
}

func TestImport_Lookups(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	ev, err := r.Event(ctx, "democon")
	require.NoError(t, err)
	assert.Equal(t, "DemoKonferenz", ev.Name.Localized(language.German))
	assert.True(t, t0.Add(6*time.Hour).Equal(*ev.DateTo))
	assert.Nil(t, ev.DateAdmission)
	assert.Equal(t, "Europe/Berlin", ev.Timezone)

	sub, err := r.SubEvent(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "democon", sub.EventSlug)

	list, err := r.CheckInList(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, list.LimitProducts)
	assert.False(t, list.AllProducts)
	assert.JSONEq(t, string(snapshot().CheckInLists[1].Rules), string(list.Rules))

	lists, err := r.CheckInLists(ctx, "democon")
	require.NoError(t, err)
	assert.Len(t, lists, 2)

	it, err := r.Item(ctx, 20)
	require.NoError(t, err)
	require.NotNil(t, it.Variation(201))

	o, err := r.Order(ctx, "democon", "PEND1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, o.Status)

	p, err := r.PositionBySecret(ctx, "democon", "sec-alice")
	require.NoError(t, err)
	want := snapshot().Positions[0]
	want.EventSlug = "democon"
	want.CheckIns = nil
	if diff := cmp.Diff(&want, p); diff != "" {
		t.Fatalf("position mismatch (-want +got):\n%s", diff)
	}

	_, err = r.PositionBySecret(ctx, "democon", "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = r.Item(ctx, 999)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestQuestions_OrderedAndFilteredByItem(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	qs, err := r.Questions(ctx, "democon", 10)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, []int64{1, 2}, []int64{qs[0].ID, qs[1].ID})
	assert.True(t, qs[1].HasOption(5))

	qs, err = r.Questions(ctx, "democon", 20)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "SHIRT", qs[0].Identifier)
}

func TestRevokedAndBlocked(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	ok, err := r.IsRevoked(ctx, "democon", "sec-old")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IsBlocked(ctx, "democon", "sec-blocked")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IsBlocked(ctx, "democon", "sec-unblocked")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetBlocked(ctx, []models.BlockedKey{{EventSlug: "democon", Secret: "sec-blocked"}}))
	ok, err = r.IsBlocked(ctx, "democon", "sec-blocked")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitRedemption_AtomicAndIdempotent(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	ci := models.CheckIn{ListID: 1, Date: t0.Add(time.Hour), Type: models.DirectionExit, Nonce: "n-1", Secret: "sec-alice"}
	req := models.QueuedRedemptionRequest{
		RedemptionRequest: models.RedemptionRequest{Nonce: "n-1", Date: ci.Date, Type: models.DirectionExit},
		EventSlug:         "democon", CheckInListID: 1, Secret: "sec-alice",
	}

	ok, err := r.CommitRedemption(ctx, ci, "democon", req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CommitRedemption(ctx, ci, "democon", req)
	require.NoError(t, err)
	assert.False(t, ok)

	cis, err := r.CheckIns(ctx, 1, "sec-alice")
	require.NoError(t, err)
	require.Len(t, cis, 2)
	assert.Equal(t, models.DirectionExit, cis[1].Type)
	assert.Equal(t, "n-1", cis[1].Nonce)

	prior, err := r.CheckInByNonce(ctx, "n-1")
	require.NoError(t, err)
	assert.Equal(t, "sec-alice", prior.Secret)
	assert.Equal(t, int64(1), prior.ListID)

	_, err = r.CheckInByNonce(ctx, "n-unknown")
	require.ErrorIs(t, err, common.ErrNotFound)

	q := queue.NewSQLiteRepository(r.db)
	n, err := q.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCommitRedemption_NonceConflict(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()
	q := queue.NewSQLiteRepository(r.db)

	commit := func(nonce, secret string) (bool, error) {
		ci := models.CheckIn{ListID: 1, Date: t0.Add(time.Hour), Type: models.DirectionEntry, Nonce: nonce, Secret: secret}
		req := models.QueuedRedemptionRequest{
			RedemptionRequest: models.RedemptionRequest{Nonce: nonce, Date: ci.Date, Type: models.DirectionEntry},
			EventSlug:         "democon", CheckInListID: 1, Secret: secret,
		}
		return r.CommitRedemption(ctx, ci, "democon", req)
	}

	ok, err := commit("n-1", "sec-alice")
	require.NoError(t, err)
	require.True(t, ok)

	// Same nonce, different ticket.
	_, err = commit("n-1", "sec-bob")
	require.ErrorIs(t, err, common.ErrNonceConflict)

	// A queued entry without a check-in must not swallow the redemption.
	_, err = q.EnqueueRedemption(ctx, models.QueuedRedemptionRequest{
		RedemptionRequest: models.RedemptionRequest{Nonce: "n-2", Date: t0, Type: models.DirectionEntry},
		EventSlug:         "democon", CheckInListID: 1, Secret: "sec-other",
	})
	require.NoError(t, err)
	_, err = commit("n-2", "sec-bob")
	require.ErrorIs(t, err, common.ErrNonceConflict)

	cis, err := r.CheckIns(ctx, 1, "sec-bob")
	require.NoError(t, err)
	assert.Empty(t, cis)

	n, err := q.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreFailedCheckIn_Queued(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	f := models.FailedCheckIn{Nonce: "f-1", EventSlug: "democon", CheckInListID: 1,
		Reason: models.OutcomeInvalid, Type: models.DirectionEntry, RawBarcode: "garbage", Date: t0}
	require.NoError(t, r.StoreFailedCheckIn(ctx, f))
	require.NoError(t, r.StoreFailedCheckIn(ctx, f))

	entries, err := queue.NewSQLiteRepository(r.db).Peek(ctx, "democon", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, queue.KindFailedCheckIn, entries[0].Kind)
	assert.Equal(t, models.OutcomeInvalid, entries[0].FailedCheckIn.Reason)
}

func TestUpsertPositions_KeepsLocalCheckIns(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	local := models.CheckIn{ListID: 1, Date: t0.Add(2 * time.Hour), Type: models.DirectionExit, Nonce: "local-1", Secret: "sec-alice"}
	_, err := r.CommitRedemption(ctx, local, "democon", models.QueuedRedemptionRequest{
		RedemptionRequest: models.RedemptionRequest{Nonce: "local-1", Date: local.Date, Type: local.Type},
		EventSlug:         "democon", CheckInListID: 1, Secret: "sec-alice",
	})
	require.NoError(t, err)

	p := snapshot().Positions[0]
	p.EventSlug = "democon"
	p.CheckIns = []models.CheckIn{
		{ListID: 1, Date: t0.Add(time.Minute), Type: models.DirectionEntry, Nonce: "srv-1"},
		{ListID: 1, Date: t0.Add(2 * time.Hour), Type: models.DirectionExit, Nonce: "local-1"},
	}
	require.NoError(t, r.UpsertPositions(ctx, []models.OrderPosition{p}))

	cis, err := r.CheckIns(ctx, 1, "sec-alice")
	require.NoError(t, err)
	got := make([]string, 0, len(cis))
	for _, ci := range cis {
		got = append(got, ci.Nonce)
	}
	assert.Equal(t, []string{"srv-1", "local-1"}, got)
}

func TestSearch(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()
	main := models.CheckInList{ID: 1, EventSlug: "democon", AllProducts: true}

	res, err := r.Search(ctx, main, "smith", 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "sec-alice", res[0].Secret)
	require.NotNil(t, res[0].Order)
	assert.Equal(t, models.OrderPaid, res[0].Order.Status)
	require.NotNil(t, res[0].Item)
	assert.Len(t, res[0].CheckIns, 1)

	res, err = r.Search(ctx, main, "ABC", 0)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	vip := models.CheckInList{ID: 2, EventSlug: "democon", LimitProducts: []int64{20}}
	res, err = r.Search(ctx, vip, "ABC", 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "sec-bob", res[0].Secret)
	assert.True(t, res[0].RequiresAttention)

	res, err = r.Search(ctx, main, "100%", 0)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = r.Search(ctx, main, "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestListStatus(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	main, err := r.CheckInList(ctx, 1)
	require.NoError(t, err)

	st, err := r.ListStatus(ctx, *main, language.English)
	require.NoError(t, err)

	want := &models.CheckInListStatus{
		EventName:     "DemoCon",
		ListName:      "Main",
		PositionCount: 2,
		CheckInCount:  1,
		InsideCount:   1,
		Items: []models.CheckInListItemStatus{
			{ItemID: 10, Name: "Regular", Admission: true, PositionCount: 1, CheckInCount: 1},
			{ItemID: 20, Name: "VIP", Admission: true, PositionCount: 1,
				Variations: []models.CheckInListVariationStatus{{VariationID: 201, Value: "Gold", PositionCount: 1}}},
		},
	}
	if diff := cmp.Diff(want, st, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}

	vip, err := r.CheckInList(ctx, 2)
	require.NoError(t, err)
	st, err = r.ListStatus(ctx, *vip, language.English)
	require.NoError(t, err)
	assert.Equal(t, 2, st.PositionCount)
	assert.Equal(t, 0, st.InsideCount)
}
