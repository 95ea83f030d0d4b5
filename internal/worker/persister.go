package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
)

// PendingQueue is the durable-write queue shared with ingestion. The
// persister is its only trimmer; running more than one active persister
// against the same queue requires leader election, which this component
// does not provide.
type PendingQueue interface {
	PendingBids(ctx context.Context, limit int) ([]models.Bid, int, error)
	TrimPending(ctx context.Context, n int) error
}

// BatchStore commits bid batches transactionally.
type BatchStore interface {
	InsertBidsTx(ctx context.Context, bids []models.Bid) error
}

// Persister periodically drains the pending queue into the durable store.
// Each cycle peeks a batch, commits it in one transaction, and trims the
// queue only after the commit succeeds; any failure leaves the queue
// untouched for the next cycle. A crash between commit and trim re-inserts
// the batch later, a bounded duplicate risk the store absorbs.
type Persister struct {
	queue     PendingQueue
	store     BatchStore
	interval  time.Duration
	batchSize int
	timeout   time.Duration
	log       zerolog.Logger

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewPersister builds a stopped persister.
func NewPersister(queue PendingQueue, store BatchStore, interval time.Duration,
	batchSize int, log zerolog.Logger) *Persister {
	return &Persister{
		queue:     queue,
		store:     store,
		interval:  interval,
		batchSize: batchSize,
		timeout:   30 * time.Second,
		log:       log.With().Str("component", "persister").Logger(),
	}
}

// Start launches the periodic drain loop. Calling Start on a running
// persister is a no-op.
func (p *Persister) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	p.done = make(chan struct{})

	p.wg.Add(1)
	go p.run(p.done)
	p.log.Info().Dur("interval", p.interval).Int("batch_size", p.batchSize).Msg("persister started")
}

// Stop halts the loop. An in-flight cycle runs to completion; cycles
// either commit-and-trim or leave the queue untouched, never half of each.
func (p *Persister) Stop() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	p.wg.Wait()
	p.log.Info().Msg("persister stopped")
}

func (p *Persister) run(done chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			if err := p.RunOnce(ctx); err != nil {
				p.log.Error().Err(err).Msg("persistence cycle failed, batch left for retry")
			}
			cancel()
		}
	}
}

// RunOnce drains one batch. It is the manual entry point used at shutdown
// and in tests.
func (p *Persister) RunOnce(ctx context.Context) error {
	bids, peeked, err := p.queue.PendingBids(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to peek pending bids: %w", err)
	}
	if peeked == 0 {
		return nil
	}

	if len(bids) > 0 {
		if err := p.store.InsertBidsTx(ctx, bids); err != nil {
			return fmt.Errorf("failed to persist batch of %d bids: %w", len(bids), err)
		}
	}

	if err := p.queue.TrimPending(ctx, peeked); err != nil {
		// The batch is durable but still queued; the next cycle re-inserts
		// it and the store's conflict handling absorbs the duplicates.
		return fmt.Errorf("failed to trim %d persisted bids: %w", peeked, err)
	}

	p.log.Info().Int("count", len(bids)).Msg("persisted bid batch")
	return nil
}
