package syncqueue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/logging"
)

const (
	DefaultCheckInterval = 10 * time.Second
	pingTimeout          = 3 * time.Second
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher tracks server reachability by pinging it periodically.
type Watcher struct {
	remote   Pinger
	log      logging.Logger
	interval time.Duration
	online   atomic.Bool
	onChange func(online bool)
}

// NewWatcher returns a Watcher that starts in the offline state. onChange,
// if not nil, is called on every transition.
func NewWatcher(p Pinger, interval time.Duration, log logging.Logger, onChange func(online bool)) *Watcher {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Watcher{remote: p, log: log, interval: interval, onChange: onChange}
}

func (w *Watcher) Online() bool { return w.online.Load() }

// Check pings once and updates the state.
func (w *Watcher) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := w.remote.Ping(ctx)
	cancel()

	online := err == nil
	if w.online.Swap(online) != online {
		if online {
			w.log.Info(ctx, "server reachable")
		} else {
			w.log.Info(ctx, "server unreachable", "error", err)
		}
		if w.onChange != nil {
			w.onChange(online)
		}
	}
	return online
}

// Run checks immediately and then on every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
