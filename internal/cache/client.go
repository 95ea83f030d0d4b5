package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
)

const (
	// Cached projections expire after a day so a silently failed write or
	// missed invalidation cannot drift forever.
	projectionTTL = 24 * time.Hour

	pendingKey = "pending:bids"
)

// Client wraps Redis with auction cache operations. Every read degrades to
// a miss and every projection write degrades to a no-op when the backend is
// unavailable; callers never see a cache error. The durable store remains
// authoritative and the resync worker repairs whatever was lost.
type Client struct {
	rdb     *redis.Client
	memoTTL time.Duration
	log     zerolog.Logger
}

// NewClient connects to Redis and verifies the connection.
func NewClient(addr, password string, db int, memoTTL time.Duration, log zerolog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:     rdb,
		memoTTL: memoTTL,
		log:     log.With().Str("component", "cache").Logger(),
	}, nil
}

func topBidKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:topBid", auctionID)
}

func bidsKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:bids", auctionID)
}

// HighestBid returns the cached highest-bid projection, or nil on a miss
// or backend failure.
func (c *Client) HighestBid(ctx context.Context, auctionID string) *models.HighestBid {
	val, err := c.rdb.Get(ctx, topBidKey(auctionID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.log.Warn().Err(err).Str("auction_id", auctionID).Msg("highest bid read failed, treating as miss")
		return nil
	}

	var hb models.HighestBid
	if err := json.Unmarshal([]byte(val), &hb); err != nil {
		c.log.Warn().Err(err).Str("auction_id", auctionID).Msg("corrupt highest bid entry, treating as miss")
		return nil
	}
	return &hb
}

// SetHighestBid overwrites the highest-bid projection for an auction.
func (c *Client) SetHighestBid(ctx context.Context, auctionID string, hb *models.HighestBid) {
	data, err := json.Marshal(hb)
	if err != nil {
		c.log.Error().Err(err).Str("auction_id", auctionID).Msg("failed to marshal highest bid")
		return
	}

	if err := c.rdb.Set(ctx, topBidKey(auctionID), data, projectionTTL).Err(); err != nil {
		c.log.Warn().Err(err).Str("auction_id", auctionID).Msg("highest bid write failed, next resync will repair")
	}
}

// AddBid appends a bid to the auction's recent-bids index, scored by
// placement time so range queries return most recent first.
func (c *Client) AddBid(ctx context.Context, bid *models.Bid) {
	data, err := json.Marshal(bid)
	if err != nil {
		c.log.Error().Err(err).Str("auction_id", bid.AuctionID).Msg("failed to marshal bid")
		return
	}

	key := bidsKey(bid.AuctionID)
	if err := c.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(bid.PlacedAt.UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		c.log.Warn().Err(err).Str("auction_id", bid.AuctionID).Msg("recent bids write failed, next resync will repair")
		return
	}

	if err := c.rdb.Expire(ctx, key, projectionTTL).Err(); err != nil {
		c.log.Warn().Err(err).Str("auction_id", bid.AuctionID).Msg("failed to set recent bids TTL")
	}
}

// RecentBids returns up to limit bids for an auction, most recent first.
// Empty on a miss or backend failure; the caller falls through to the
// durable store.
func (c *Client) RecentBids(ctx context.Context, auctionID string, limit int) []models.Bid {
	results, err := c.rdb.ZRevRange(ctx, bidsKey(auctionID), 0, int64(limit-1)).Result()
	if err != nil && err != redis.Nil {
		c.log.Warn().Err(err).Str("auction_id", auctionID).Msg("recent bids read failed, treating as miss")
		return nil
	}

	bids := make([]models.Bid, 0, len(results))
	for _, raw := range results {
		var bid models.Bid
		if err := json.Unmarshal([]byte(raw), &bid); err != nil {
			c.log.Warn().Err(err).Str("auction_id", auctionID).Msg("skipping corrupt recent bid entry")
			continue
		}
		bids = append(bids, bid)
	}
	return bids
}

// BidExists reports whether the recent-bids index already holds a bid with
// the same bidder and amount, regardless of timing.
func (c *Client) BidExists(ctx context.Context, auctionID, username string, amount float64) bool {
	results, err := c.rdb.ZRevRange(ctx, bidsKey(auctionID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		c.log.Warn().Err(err).Str("auction_id", auctionID).Msg("duplicate scan failed, admitting bid")
		return false
	}

	for _, raw := range results {
		var bid models.Bid
		if err := json.Unmarshal([]byte(raw), &bid); err != nil {
			continue
		}
		if bid.Username == username && bid.Amount == amount {
			return true
		}
	}
	return false
}

// MarkRecent records a (auction, session, amount) submission for the
// duplicate-suppression window. It returns true if this is the first
// sighting within the window; false means an identical submission was
// already recorded. Backend failures admit the bid.
func (c *Client) MarkRecent(ctx context.Context, auctionID, sessionID string, amount float64) bool {
	key := fmt.Sprintf("recent:%s:%s:%v", auctionID, sessionID, amount)
	ok, err := c.rdb.SetNX(ctx, key, 1, c.memoTTL).Result()
	if err != nil {
		c.log.Warn().Err(err).Str("auction_id", auctionID).Msg("duplicate memo unavailable, admitting bid")
		return true
	}
	return ok
}

// EnqueuePending appends a bid to the tail of the durable-write queue.
// This is the only durability-obligation channel between ingestion and the
// batch persister; entries are removed only after their batch commits.
func (c *Client) EnqueuePending(ctx context.Context, bid *models.Bid) {
	data, err := json.Marshal(bid)
	if err != nil {
		c.log.Error().Err(err).Str("auction_id", bid.AuctionID).Msg("failed to marshal pending bid")
		return
	}

	if err := c.rdb.RPush(ctx, pendingKey, data).Err(); err != nil {
		c.log.Error().Err(err).Str("auction_id", bid.AuctionID).Msg("failed to enqueue bid for persistence")
	}
}

// PendingBids peeks up to limit bids from the head of the durable-write
// queue without removing them. The second return is the number of raw
// entries peeked, which can exceed len(bids) when corrupt entries were
// skipped; trimming by that count keeps a corrupt entry from wedging the
// head of the queue.
func (c *Client) PendingBids(ctx context.Context, limit int) ([]models.Bid, int, error) {
	results, err := c.rdb.LRange(ctx, pendingKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read pending bids: %w", err)
	}

	bids := make([]models.Bid, 0, len(results))
	for _, raw := range results {
		var bid models.Bid
		if err := json.Unmarshal([]byte(raw), &bid); err != nil {
			c.log.Warn().Err(err).Msg("skipping corrupt pending bid entry")
			continue
		}
		bids = append(bids, bid)
	}
	return bids, len(results), nil
}

// TrimPending removes exactly n entries from the head of the durable-write
// queue. The persister calls this only after its transaction committed.
func (c *Client) TrimPending(ctx context.Context, n int) error {
	if err := c.rdb.LTrim(ctx, pendingKey, int64(n), -1).Err(); err != nil {
		return fmt.Errorf("failed to trim pending bids: %w", err)
	}
	return nil
}

// InvalidateAuction deletes both cached projections for an auction. The
// pending queue is never touched: it carries durability obligations, not
// disposable state.
func (c *Client) InvalidateAuction(ctx context.Context, auctionID string) {
	if err := c.rdb.Del(ctx, topBidKey(auctionID), bidsKey(auctionID)).Err(); err != nil {
		c.log.Warn().Err(err).Str("auction_id", auctionID).Msg("cache invalidation failed")
	}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
