package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/queue"
	"github.com/dmitrijs2005/gophscan/internal/client/storetest"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

// fakeRemote answers uploads from a per-nonce script and records the order
// in which they arrive.
type fakeRemote struct {
	mu       sync.Mutex
	uploads  []string
	outcomes map[string]models.Outcome
	errs     map[string]error
	onUpload func(ctx context.Context, nonce string)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{outcomes: map[string]models.Outcome{}, errs: map[string]error{}}
}

func (f *fakeRemote) record(ctx context.Context, nonce string) error {
	f.mu.Lock()
	f.uploads = append(f.uploads, nonce)
	hook := f.onUpload
	err := f.errs[nonce]
	f.mu.Unlock()
	if hook != nil {
		hook(ctx, nonce)
	}
	return err
}

func (f *fakeRemote) Redeem(ctx context.Context, _ models.Selection, _ string, req models.RedemptionRequest) (*models.RedemptionResponse, error) {
	if err := f.record(ctx, req.Nonce); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome, ok := f.outcomes[req.Nonce]
	if !ok {
		outcome = models.OutcomeRedeemed
	}
	return &models.RedemptionResponse{Outcome: outcome}, nil
}

func (f *fakeRemote) UploadFailedCheckIn(ctx context.Context, fc models.FailedCheckIn) error {
	return f.record(ctx, fc.Nonce)
}

func (f *fakeRemote) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

func redemption(nonce string) models.QueuedRedemptionRequest {
	return models.QueuedRedemptionRequest{
		RedemptionRequest: models.RedemptionRequest{Nonce: nonce, Date: t0, Type: models.DirectionEntry},
		EventSlug:         "democon",
		CheckInListID:     1,
		Secret:            "sec-" + nonce,
	}
}

func failed(nonce string) models.FailedCheckIn {
	return models.FailedCheckIn{
		Nonce: nonce, EventSlug: "democon", CheckInListID: 1,
		Reason: models.OutcomeInvalid, Type: models.DirectionEntry, RawBarcode: "junk", Date: t0,
	}
}

func seedQueue(t *testing.T) *queue.SQLiteRepository {
	t.Helper()
	q := queue.NewSQLiteRepository(storetest.Open(t))
	ctx := context.Background()
	_, err := q.EnqueueRedemption(ctx, redemption("a"))
	require.NoError(t, err)
	_, err = q.EnqueueFailedCheckIn(ctx, failed("b"))
	require.NoError(t, err)
	_, err = q.EnqueueRedemption(ctx, redemption("c"))
	require.NoError(t, err)
	return q
}

func TestDrain_PermanentRejectionKeepsOrder(t *testing.T) {
	q := seedQueue(t)
	remote := newFakeRemote()
	remote.errs["b"] = fmt.Errorf("invalid argument: %w", common.ErrRejected)
	remote.outcomes["c"] = models.OutcomeAlreadyRedeemed

	res, err := NewDrainer(q, remote).Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, remote.seen())
	assert.Equal(t, Result{Uploaded: 1, Rejected: 2, Remaining: 0}, res)

	n, err := q.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrain_TransientFailureHalts(t *testing.T) {
	q := seedQueue(t)
	remote := newFakeRemote()
	remote.errs["b"] = common.ErrUnavailable

	res, err := NewDrainer(q, remote).Drain(context.Background())
	require.ErrorIs(t, err, common.ErrUnavailable)
	assert.Equal(t, []string{"a", "b"}, remote.seen())
	assert.Equal(t, Result{Uploaded: 1, Remaining: 2}, res)

	// The next pass resumes at the failed entry.
	delete(remote.errs, "b")
	res, err = NewDrainer(q, remote).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "b", "c"}, remote.seen())
	assert.Equal(t, 2, res.Uploaded)
}

func TestDrain_CancellationBetweenEntries(t *testing.T) {
	q := seedQueue(t)
	remote := newFakeRemote()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var uploadCtxErr error
	remote.onUpload = func(uctx context.Context, nonce string) {
		if nonce == "a" {
			cancel()
			uploadCtxErr = uctx.Err()
		}
	}

	res, err := NewDrainer(q, remote).Drain(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, uploadCtxErr)
	assert.Equal(t, []string{"a"}, remote.seen())
	assert.Equal(t, Result{Uploaded: 1, Remaining: 2}, res)
}

type slowRemote struct{ fakeRemote }

func (s *slowRemote) Redeem(ctx context.Context, _ models.Selection, _ string, _ models.RedemptionRequest) (*models.RedemptionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDrain_UploadTimeout(t *testing.T) {
	q := seedQueue(t)

	_, err := NewDrainer(q, &slowRemote{}, WithUploadTimeout(10*time.Millisecond)).Drain(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	n, err := q.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDrain_RecordsLastDrain(t *testing.T) {
	db := storetest.Open(t)
	q := queue.NewSQLiteRepository(db)
	meta := metadata.NewSQLiteRepository(db)
	ctx := context.Background()

	_, err := q.EnqueueRedemption(ctx, redemption("a"))
	require.NoError(t, err)

	d := NewDrainer(q, newFakeRemote(), WithRecorder(meta), WithBatchSize(1))
	d.now = func() time.Time { return t0 }
	_, err = d.Drain(ctx)
	require.NoError(t, err)

	last, err := meta.LastDrain(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(t0))
}

type blockingDrainer struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
}

func (b *blockingDrainer) Drain(context.Context) (Result, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	return Result{Uploaded: 1}, nil
}

func TestRunner_DrainNowCoalesces(t *testing.T) {
	d := &blockingDrainer{release: make(chan struct{}), started: make(chan struct{}, 2)}
	r := NewRunner(d, false)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = r.DrainNow(context.Background())
	}()
	<-d.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = r.DrainNow(context.Background())
	}()
	// Give the second caller time to join the running pass.
	time.Sleep(20 * time.Millisecond)
	close(d.release)
	wg.Wait()

	assert.Equal(t, int32(1), d.calls.Load())
	assert.Equal(t, []Result{{Uploaded: 1}, {Uploaded: 1}}, results)
}

type countingDrainer struct {
	calls chan struct{}
}

func (c *countingDrainer) Drain(context.Context) (Result, error) {
	c.calls <- struct{}{}
	return Result{}, errors.New("offline")
}

func TestRunner_TriggerRespectsSettings(t *testing.T) {
	d := &countingDrainer{calls: make(chan struct{}, 4)}
	var online atomic.Bool
	r := NewRunner(d, false, WithInterval(time.Hour), WithOnline(online.Load))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Trigger()
	select {
	case <-d.calls:
		t.Fatal("drained with auto-sync off")
	case <-time.After(50 * time.Millisecond):
	}

	online.Store(true)
	r.SetAutoSync(true)
	select {
	case <-d.calls:
	case <-time.After(time.Second):
		t.Fatal("enabling auto-sync did not drain")
	}
	assert.True(t, r.AutoSync())

	r.Trigger()
	select {
	case <-d.calls:
	case <-time.After(time.Second):
		t.Fatal("trigger did not drain")
	}
}

type scriptedPinger struct {
	errs []error
	n    int
}

func (p *scriptedPinger) Ping(context.Context) error {
	err := p.errs[p.n%len(p.errs)]
	p.n++
	return err
}

func TestWatcher_Transitions(t *testing.T) {
	p := &scriptedPinger{errs: []error{nil, nil, common.ErrUnavailable, nil}}
	var changes []bool
	w := NewWatcher(p, time.Second, nil, func(online bool) { changes = append(changes, online) })

	assert.False(t, w.Online())
	for range 4 {
		w.Check(context.Background())
	}
	assert.True(t, w.Online())
	assert.Equal(t, []bool{true, false, true}, changes)
}
