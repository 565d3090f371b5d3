package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
)

// DefaultSearchDebounce is the quiet period before a search is sent.
const DefaultSearchDebounce = 300 * time.Millisecond

// Searcher is the search half of a TicketValidator.
type Searcher interface {
	Search(ctx context.Context, sel models.Selection, query string) ([]models.SearchResult, error)
}

// DebouncedSearch runs at most one search at a time. A new call cancels the
// previous one; a superseded call returns (nil, nil).
type DebouncedSearch struct {
	searcher Searcher
	delay    time.Duration

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func NewDebouncedSearch(s Searcher, delay time.Duration) *DebouncedSearch {
	if delay < 0 {
		delay = 0
	}
	return &DebouncedSearch{searcher: s, delay: delay}
}

func (d *DebouncedSearch) Search(ctx context.Context, sel models.Selection, query string) ([]models.SearchResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.seq++
	id := d.seq
	d.cancel = cancel
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.seq == id {
			d.cancel = nil
		}
		d.mu.Unlock()
		cancel()
	}()

	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		if d.superseded(id) {
			return nil, nil
		}
		return nil, ctx.Err()
	case <-timer.C:
	}

	results, err := d.searcher.Search(ctx, sel, query)
	if d.superseded(id) {
		return nil, nil
	}
	return results, err
}

func (d *DebouncedSearch) superseded(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq != id
}
