package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
)

// Binding is anything that consumes snapshots of one collection. *View is one.
type Binding interface {
	Path() string
	Apply(docstore.Snapshot)
}

// Engine keeps bindings subscribed to the store, resubscribing with backoff
// when a subscription fails or its channel closes early.
type Engine struct {
	store      docstore.Store
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewEngine(store docstore.Store) *Engine {
	return &Engine{
		store:      store,
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// SetBackoff overrides the resubscribe delay bounds.
func (e *Engine) SetBackoff(min, max time.Duration) {
	e.minBackoff = min
	e.maxBackoff = max
}

// Start subscribes every binding until the returned stop function is called.
// stop cancels the subscriptions and waits for their goroutines to exit.
func (e *Engine) Start(parent context.Context, bindings ...Binding) (stop func()) {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	for _, b := range bindings {
		wg.Add(1)
		go func(b Binding) {
			defer wg.Done()
			e.run(ctx, b)
		}(b)
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

func (e *Engine) run(ctx context.Context, b Binding) {
	backoff := e.minBackoff
	for {
		ch, err := e.store.Subscribe(ctx, b.Path())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[feed] subscribe path=%s error=%v retry_in=%s", b.Path(), err, backoff)
		} else {
			for snap := range ch {
				b.Apply(snap)
				backoff = e.minBackoff
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("[feed] subscription closed path=%s retry_in=%s", b.Path(), backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > e.maxBackoff {
			backoff = e.maxBackoff
		}
	}
}
