package syncqueue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/logging"
	"golang.org/x/sync/singleflight"
)

// DefaultSyncInterval is the period of background drains.
const DefaultSyncInterval = 30 * time.Second

// Draining is implemented by Drainer.
type Draining interface {
	Drain(ctx context.Context) (Result, error)
}

type RunnerOption func(*Runner)

func WithRunnerLogger(l logging.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

func WithInterval(interval time.Duration) RunnerOption {
	return func(r *Runner) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithOnline sets the connectivity probe, usually Watcher.Online.
func WithOnline(online func() bool) RunnerOption {
	return func(r *Runner) { r.online = online }
}

// Runner drains the queue in the background. Concurrent drain requests
// share one pass.
type Runner struct {
	drainer  Draining
	log      logging.Logger
	interval time.Duration
	online   func() bool
	autoSync atomic.Bool
	trigger  chan struct{}
	group    singleflight.Group
}

func NewRunner(d Draining, autoSync bool, opts ...RunnerOption) *Runner {
	r := &Runner{
		drainer:  d,
		log:      logging.Nop(),
		interval: DefaultSyncInterval,
		online:   func() bool { return true },
		trigger:  make(chan struct{}, 1),
	}
	r.autoSync.Store(autoSync)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) AutoSync() bool { return r.autoSync.Load() }

func (r *Runner) SetAutoSync(on bool) {
	if r.autoSync.Swap(on) != on && on {
		r.Trigger()
	}
}

// Trigger requests a background drain. It never blocks; requests made while
// one is pending are merged.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// DrainNow drains immediately, regardless of the auto-sync setting. A call
// made while a pass is running waits for that pass and shares its result.
func (r *Runner) DrainNow(ctx context.Context) (Result, error) {
	v, err, _ := r.group.Do("drain", func() (any, error) {
		return r.drainer.Drain(ctx)
	})
	res, _ := v.(Result)
	return res, err
}

// Run drains on every tick and trigger until ctx is done. Passes are skipped
// while auto-sync is off or the server is unreachable.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.trigger:
		}

		if !r.autoSync.Load() || !r.online() {
			continue
		}
		res, err := r.DrainNow(ctx)
		if err != nil && ctx.Err() == nil {
			r.log.Info(ctx, "background drain incomplete", "uploaded", res.Uploaded, "remaining", res.Remaining, "error", err)
			continue
		}
		if res.Uploaded > 0 || res.Rejected > 0 {
			r.log.Debug(ctx, "background drain", "uploaded", res.Uploaded, "rejected", res.Rejected)
		}
	}
}
