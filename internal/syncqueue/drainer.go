package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"github.com/dmitrijs2005/gophscan/internal/client/repositories/queue"
	"github.com/dmitrijs2005/gophscan/internal/common"
	"github.com/dmitrijs2005/gophscan/internal/logging"
)

const (
	DefaultUploadTimeout = 30 * time.Second
	defaultBatchSize     = 50
)

// Uploader is the part of the remote ticket service a drain uses.
type Uploader interface {
	Redeem(ctx context.Context, sel models.Selection, secret string, req models.RedemptionRequest) (*models.RedemptionResponse, error)
	UploadFailedCheckIn(ctx context.Context, f models.FailedCheckIn) error
}

// DrainRecorder persists the time of the last complete drain.
type DrainRecorder interface {
	SetLastDrain(ctx context.Context, t time.Time) error
}

// Result summarizes one drain pass.
type Result struct {
	Uploaded  int
	Rejected  int
	Remaining int
}

type DrainOption func(*Drainer)

func WithLogger(l logging.Logger) DrainOption {
	return func(d *Drainer) { d.log = l }
}

// WithUploadTimeout bounds every single upload.
func WithUploadTimeout(timeout time.Duration) DrainOption {
	return func(d *Drainer) {
		if timeout > 0 {
			d.uploadTimeout = timeout
		}
	}
}

func WithRecorder(r DrainRecorder) DrainOption {
	return func(d *Drainer) { d.recorder = r }
}

func WithBatchSize(n int) DrainOption {
	return func(d *Drainer) {
		if n > 0 {
			d.batch = n
		}
	}
}

// Drainer uploads queued entries one at a time, oldest first.
type Drainer struct {
	queue         queue.Repository
	remote        Uploader
	recorder      DrainRecorder
	log           logging.Logger
	uploadTimeout time.Duration
	batch         int
	now           func() time.Time
}

func NewDrainer(q queue.Repository, remote Uploader, opts ...DrainOption) *Drainer {
	d := &Drainer{
		queue:         q,
		remote:        remote,
		log:           logging.Nop(),
		uploadTimeout: DefaultUploadTimeout,
		batch:         defaultBatchSize,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// errPermanent marks an upload the server will never accept.
var errPermanent = errors.New("permanently rejected")

// Drain uploads entries until the queue is empty, an upload fails
// transiently, or ctx is done. Cancellation is checked between entries
// only: an upload that has started runs to completion on a detached
// context bounded by the upload timeout.
//
// An acknowledged entry is removed. An entry the server rejects for good is
// removed and logged. A transient failure leaves the entry at the head of
// the queue and ends the pass with that error.
func (d *Drainer) Drain(ctx context.Context) (Result, error) {
	var res Result
	for {
		if err := ctx.Err(); err != nil {
			return d.finish(ctx, res, err)
		}
		entries, err := d.queue.Peek(ctx, "", d.batch)
		if err != nil {
			return d.finish(ctx, res, common.StoreError("peek queue", err))
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return d.finish(ctx, res, err)
			}

			detached := context.WithoutCancel(ctx)
			err := d.upload(detached, entry)
			switch {
			case err == nil:
				res.Uploaded++
			case errors.Is(err, errPermanent):
				res.Rejected++
				d.log.Warn(ctx, "queued upload rejected, dropping", "nonce", entry.Nonce, "kind", entry.Kind, "error", err)
			default:
				d.log.Info(ctx, "drain halted", "nonce", entry.Nonce, "error", err)
				return d.finish(ctx, res, fmt.Errorf("upload %s: %w", entry.Nonce, err))
			}

			if err := d.queue.Remove(detached, entry.Nonce); err != nil {
				return d.finish(ctx, res, common.StoreError("remove queue entry", err))
			}
		}
	}

	if d.recorder != nil {
		if err := d.recorder.SetLastDrain(context.WithoutCancel(ctx), d.now()); err != nil {
			d.log.Warn(ctx, "failed to record drain time", "error", err)
		}
	}
	return d.finish(ctx, res, nil)
}

func (d *Drainer) finish(ctx context.Context, res Result, err error) (Result, error) {
	n, cerr := d.queue.Count(context.WithoutCancel(ctx), "")
	if cerr == nil {
		res.Remaining = n
	}
	return res, err
}

func (d *Drainer) upload(ctx context.Context, entry queue.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, d.uploadTimeout)
	defer cancel()

	switch {
	case entry.Kind == queue.KindRedemption && entry.Redemption != nil:
		r := entry.Redemption
		sel := models.Selection{EventSlug: r.EventSlug, CheckInListID: r.CheckInListID}
		resp, err := d.remote.Redeem(ctx, sel, r.Secret, r.RedemptionRequest)
		if err != nil {
			return classify(err)
		}
		if resp.Outcome != models.OutcomeRedeemed {
			return fmt.Errorf("%w: server answered %s", errPermanent, resp.Outcome)
		}
		return nil

	case entry.Kind == queue.KindFailedCheckIn && entry.FailedCheckIn != nil:
		return classify(d.remote.UploadFailedCheckIn(ctx, *entry.FailedCheckIn))

	default:
		return fmt.Errorf("%w: unreadable %s entry", errPermanent, entry.Kind)
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrRejected) {
		return fmt.Errorf("%w: %w", errPermanent, err)
	}
	return err
}
