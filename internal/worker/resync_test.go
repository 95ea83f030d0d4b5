package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronwang/live-auction/internal/models"
)

type fakeProjectionCache struct {
	highest     map[string]*models.HighestBid
	recent      map[string][]models.Bid
	invalidated []string
}

func newFakeProjectionCache() *fakeProjectionCache {
	return &fakeProjectionCache{
		highest: make(map[string]*models.HighestBid),
		recent:  make(map[string][]models.Bid),
	}
}

func (f *fakeProjectionCache) InvalidateAuction(_ context.Context, auctionID string) {
	delete(f.highest, auctionID)
	delete(f.recent, auctionID)
	f.invalidated = append(f.invalidated, auctionID)
}

func (f *fakeProjectionCache) SetHighestBid(_ context.Context, auctionID string, hb *models.HighestBid) {
	f.highest[auctionID] = hb
}

func (f *fakeProjectionCache) AddBid(_ context.Context, bid *models.Bid) {
	f.recent[bid.AuctionID] = append(f.recent[bid.AuctionID], *bid)
}

type fakeResyncStore struct {
	bids    map[string][]models.Bid
	topErr  map[string]error
	listErr error
}

func (f *fakeResyncStore) TopBids(_ context.Context, auctionID string, limit int) ([]models.Bid, error) {
	if err := f.topErr[auctionID]; err != nil {
		return nil, err
	}
	bids := f.bids[auctionID]
	if len(bids) > limit {
		bids = bids[:limit]
	}
	return bids, nil
}

func (f *fakeResyncStore) AuctionIDs(_ context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var ids []string
	for id := range f.bids {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeResyncStore) RecentAuctionIDs(ctx context.Context, _ time.Time) ([]string, error) {
	return f.AuctionIDs(ctx)
}

func newResyncer(cache *fakeProjectionCache, store *fakeResyncStore, access *AccessSet) *Resyncer {
	return NewResyncer(cache, store, access, time.Minute, 100, zerolog.Nop())
}

func TestRunOnceRebuildsFromDurableStore(t *testing.T) {
	// Crash scenario: three bids were accepted but only two committed
	// before the process died; the cache still holds the stale highest
	// from the uncommitted one.
	cache := newFakeProjectionCache()
	cache.highest["auction-1"] = &models.HighestBid{BidID: "temp-lost", Amount: 90}

	store := &fakeResyncStore{bids: map[string][]models.Bid{
		"auction-1": {
			{ID: "b2", AuctionID: "auction-1", Username: "bob", Amount: 70},
			{ID: "b1", AuctionID: "auction-1", Username: "alice", Amount: 50},
		},
	}}

	access := NewAccessSet()
	access.Track("auction-1")

	r := newResyncer(cache, store, access)
	require.NoError(t, r.RunOnce(context.Background()))

	// The rebuilt projection reflects only durable bids.
	require.NotNil(t, cache.highest["auction-1"])
	assert.Equal(t, 70.0, cache.highest["auction-1"].Amount)
	assert.Equal(t, "bob", cache.highest["auction-1"].Username)
	assert.Len(t, cache.recent["auction-1"], 2)
	assert.Equal(t, []string{"auction-1"}, cache.invalidated)
	assert.Equal(t, 0, access.Len())
}

func TestRunOnceConvergesToMaxRegardlessOfAdmissionOrder(t *testing.T) {
	ctx := context.Background()

	// The store's top-bids ordering, not admission order, decides the
	// rebuilt highest. Both scenarios hold the same bids; only who bid
	// first differs.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for _, ordered := range [][]models.Bid{
		{
			{ID: "b1", AuctionID: "a", Username: "alice", Amount: 80, PlacedAt: base},
			{ID: "b2", AuctionID: "a", Username: "bob", Amount: 40, PlacedAt: base.Add(time.Second)},
		},
		{
			{ID: "b1", AuctionID: "a", Username: "alice", Amount: 80, PlacedAt: base.Add(time.Second)},
			{ID: "b2", AuctionID: "a", Username: "bob", Amount: 40, PlacedAt: base},
		},
	} {
		cache := newFakeProjectionCache()
		store := &fakeResyncStore{bids: map[string][]models.Bid{"a": ordered}}
		access := NewAccessSet()
		access.Track("a")

		r := newResyncer(cache, store, access)
		require.NoError(t, r.RunOnce(ctx))
		assert.Equal(t, 80.0, cache.highest["a"].Amount)
	}
}

func TestRunOnceNoTouchedAuctions(t *testing.T) {
	cache := newFakeProjectionCache()
	store := &fakeResyncStore{}
	r := newResyncer(cache, store, NewAccessSet())

	require.NoError(t, r.RunOnce(context.Background()))
	assert.Empty(t, cache.invalidated)
}

func TestRunOnceRetracksAuctionOnReadFailure(t *testing.T) {
	cache := newFakeProjectionCache()
	store := &fakeResyncStore{
		bids:   map[string][]models.Bid{},
		topErr: map[string]error{"auction-1": errors.New("timeout")},
	}
	access := NewAccessSet()
	access.Track("auction-1")

	r := newResyncer(cache, store, access)
	require.Error(t, r.RunOnce(context.Background()))

	// The auction stays tracked so the next cycle retries it.
	assert.Equal(t, 1, access.Len())
}

func TestWarmHighestBids(t *testing.T) {
	cache := newFakeProjectionCache()
	store := &fakeResyncStore{bids: map[string][]models.Bid{
		"auction-1": {{ID: "b1", AuctionID: "auction-1", Username: "alice", Amount: 120}},
		"auction-2": {{ID: "b2", AuctionID: "auction-2", Username: "bob", Amount: 35}},
	}}

	r := newResyncer(cache, store, NewAccessSet())
	require.NoError(t, r.WarmHighestBids(context.Background()))

	require.NotNil(t, cache.highest["auction-1"])
	assert.Equal(t, 120.0, cache.highest["auction-1"].Amount)
	require.NotNil(t, cache.highest["auction-2"])
	assert.Equal(t, 35.0, cache.highest["auction-2"].Amount)
}

func TestWarmRecentBids(t *testing.T) {
	cache := newFakeProjectionCache()
	store := &fakeResyncStore{bids: map[string][]models.Bid{
		"auction-1": {
			{ID: "b1", AuctionID: "auction-1", Amount: 120},
			{ID: "b2", AuctionID: "auction-1", Amount: 90},
		},
	}}

	r := newResyncer(cache, store, NewAccessSet())
	require.NoError(t, r.WarmRecentBids(context.Background(), 24*time.Hour))
	assert.Len(t, cache.recent["auction-1"], 2)
}
