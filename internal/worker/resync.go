package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
)

// ProjectionCache is the slice of the fast-path cache the resyncer
// rebuilds: projections only, never the pending queue.
type ProjectionCache interface {
	InvalidateAuction(ctx context.Context, auctionID string)
	SetHighestBid(ctx context.Context, auctionID string, hb *models.HighestBid)
	AddBid(ctx context.Context, bid *models.Bid)
}

// ResyncStore is the authoritative source projections are rebuilt from.
type ResyncStore interface {
	TopBids(ctx context.Context, auctionID string, limit int) ([]models.Bid, error)
	AuctionIDs(ctx context.Context) ([]string, error)
	RecentAuctionIDs(ctx context.Context, since time.Time) ([]string, error)
}

// Resyncer periodically rebuilds cached projections for recently touched
// auctions from the durable store, bounding the drift the non-linearized
// write path can accumulate.
type Resyncer struct {
	cache    ProjectionCache
	store    ResyncStore
	access   *AccessSet
	interval time.Duration
	limit    int
	timeout  time.Duration
	log      zerolog.Logger

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// NewResyncer builds a stopped resyncer. limit is the top-bids window
// repopulated per auction.
func NewResyncer(cache ProjectionCache, store ResyncStore, access *AccessSet,
	interval time.Duration, limit int, log zerolog.Logger) *Resyncer {
	return &Resyncer{
		cache:    cache,
		store:    store,
		access:   access,
		interval: interval,
		limit:    limit,
		timeout:  60 * time.Second,
		log:      log.With().Str("component", "resyncer").Logger(),
	}
}

// Start launches the periodic resync loop. No-op if already running.
func (r *Resyncer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	r.done = make(chan struct{})

	r.wg.Add(1)
	go r.run(r.done)
	r.log.Info().Dur("interval", r.interval).Msg("resyncer started")
}

// Stop halts the loop after any in-flight cycle completes.
func (r *Resyncer) Stop() {
	r.mu.Lock()
	done := r.done
	r.done = nil
	r.mu.Unlock()
	if done == nil {
		return
	}
	close(done)
	r.wg.Wait()
	r.log.Info().Msg("resyncer stopped")
}

func (r *Resyncer) run(done chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			if err := r.RunOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("resync cycle failed")
			}
			cancel()
		}
	}
}

// RunOnce rebuilds projections for every auction touched since the last
// cycle. An auction whose authoritative read fails is re-tracked and
// retried next cycle; its projections stay invalidated until then, which
// only costs cache misses.
func (r *Resyncer) RunOnce(ctx context.Context) error {
	auctionIDs := r.access.Drain()
	if len(auctionIDs) == 0 {
		r.log.Debug().Msg("no touched auctions to resync")
		return nil
	}

	r.log.Info().Int("auctions", len(auctionIDs)).Msg("resyncing cached projections")

	var firstErr error
	for _, auctionID := range auctionIDs {
		r.cache.InvalidateAuction(ctx, auctionID)

		bids, err := r.store.TopBids(ctx, auctionID, r.limit)
		if err != nil {
			r.access.Track(auctionID)
			r.log.Error().Err(err).Str("auction_id", auctionID).Msg("authoritative read failed, will retry")
			if firstErr == nil {
				firstErr = fmt.Errorf("resync of auction %s: %w", auctionID, err)
			}
			continue
		}
		if len(bids) == 0 {
			continue
		}

		r.repopulate(ctx, auctionID, bids)
	}
	return firstErr
}

// repopulate rewrites both projections from an authoritative read ordered
// by amount descending then recency descending.
func (r *Resyncer) repopulate(ctx context.Context, auctionID string, bids []models.Bid) {
	top := bids[0]
	r.cache.SetHighestBid(ctx, auctionID, &models.HighestBid{
		BidID:    top.ID,
		Amount:   top.Amount,
		Username: top.Username,
		PlacedAt: top.PlacedAt,
	})

	for i := range bids {
		r.cache.AddBid(ctx, &bids[i])
	}

	r.log.Debug().Str("auction_id", auctionID).Int("bids", len(bids)).Msg("resynced auction cache")
}

// WarmHighestBids rebuilds the highest-bid projection for every auction
// holding at least one durable bid. Run at startup so a fresh process
// never serves missing highest-bid data.
func (r *Resyncer) WarmHighestBids(ctx context.Context) error {
	auctionIDs, err := r.store.AuctionIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list auctions: %w", err)
	}

	for _, auctionID := range auctionIDs {
		bids, err := r.store.TopBids(ctx, auctionID, 1)
		if err != nil {
			r.log.Error().Err(err).Str("auction_id", auctionID).Msg("failed to warm highest bid")
			continue
		}
		if len(bids) == 0 {
			continue
		}

		top := bids[0]
		r.cache.SetHighestBid(ctx, auctionID, &models.HighestBid{
			BidID:    top.ID,
			Amount:   top.Amount,
			Username: top.Username,
			PlacedAt: top.PlacedAt,
		})
	}

	r.log.Info().Int("auctions", len(auctionIDs)).Msg("highest bid cache warmed")
	return nil
}

// WarmRecentBids repopulates the recent-bids index for auctions with bid
// activity inside the window. Startup-only companion to WarmHighestBids.
func (r *Resyncer) WarmRecentBids(ctx context.Context, window time.Duration) error {
	auctionIDs, err := r.store.RecentAuctionIDs(ctx, time.Now().UTC().Add(-window))
	if err != nil {
		return fmt.Errorf("failed to list recently active auctions: %w", err)
	}

	for _, auctionID := range auctionIDs {
		bids, err := r.store.TopBids(ctx, auctionID, r.limit)
		if err != nil {
			r.log.Error().Err(err).Str("auction_id", auctionID).Msg("failed to warm recent bids")
			continue
		}
		for i := range bids {
			r.cache.AddBid(ctx, &bids[i])
		}
	}

	r.log.Info().Int("auctions", len(auctionIDs)).Msg("recent bids cache warmed")
	return nil
}
