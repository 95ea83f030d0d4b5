package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
)

// BidCache is the fast-path cache the ingestion service writes through.
// Implementations degrade to misses and no-ops on backend failure.
type BidCache interface {
	HighestBid(ctx context.Context, auctionID string) *models.HighestBid
	SetHighestBid(ctx context.Context, auctionID string, hb *models.HighestBid)
	AddBid(ctx context.Context, bid *models.Bid)
	RecentBids(ctx context.Context, auctionID string, limit int) []models.Bid
	BidExists(ctx context.Context, auctionID, username string, amount float64) bool
	MarkRecent(ctx context.Context, auctionID, sessionID string, amount float64) bool
	EnqueuePending(ctx context.Context, bid *models.Bid)
}

// EventPublisher publishes bid.updated events.
type EventPublisher interface {
	PublishBidUpdated(ctx context.Context, event *models.BidEvent) error
}

// BidStore is the authoritative read used when the cache misses.
type BidStore interface {
	TopBids(ctx context.Context, auctionID string, limit int) ([]models.Bid, error)
}

// AccessTracker records which auctions were touched so the resync worker
// knows what to rebuild.
type AccessTracker interface {
	Track(auctionID string)
}

// StatusReader exposes the auction lifecycle collaborator's read model.
// Wiring one is optional; the core only consults it to gate admissibility.
type StatusReader interface {
	AuctionStatus(ctx context.Context, auctionID string) (string, error)
}

// BiddingService runs the bid admission and write-behind pipeline: admit
// against the cached highest bid, make the bid visible in cache and on the
// event bus immediately, and leave durable persistence to the batch
// worker. An acknowledged bid is therefore visible to subscribers before
// it is durable.
type BiddingService struct {
	cache     BidCache
	publisher EventPublisher
	store     BidStore
	tracker   AccessTracker
	status    StatusReader // nil means every auction is admissible
	listLimit int
	log       zerolog.Logger
}

// NewBiddingService wires the ingestion pipeline. status may be nil.
func NewBiddingService(cache BidCache, publisher EventPublisher, store BidStore,
	tracker AccessTracker, status StatusReader, listLimit int, log zerolog.Logger) *BiddingService {
	return &BiddingService{
		cache:     cache,
		publisher: publisher,
		store:     store,
		tracker:   tracker,
		status:    status,
		listLimit: listLimit,
		log:       log.With().Str("component", "bidding").Logger(),
	}
}

// PlaceBid validates and admits a bid. On acceptance the bid is cached,
// queued for durable persistence and published, all before this returns;
// the durable commit happens off the response path. Rejections are typed:
// *ValidationError, *DuplicateBidError or *LowBidError.
//
// Concurrent bids racing the same cached highest value may both be
// admitted; the projection converges to the last write and the resync
// worker repairs it from the durable store.
func (s *BiddingService) PlaceBid(ctx context.Context, req *models.BidRequest) (*models.Bid, error) {
	if req.AuctionID == "" || req.SessionID == "" || req.Username == "" {
		return nil, &ValidationError{Reason: "missing required fields"}
	}
	if math.IsNaN(req.Amount) || req.Amount <= 0 {
		return nil, &ValidationError{Reason: "bid amount must be a positive number"}
	}

	s.tracker.Track(req.AuctionID)

	if s.status != nil {
		status, err := s.status.AuctionStatus(ctx, req.AuctionID)
		if err == nil && status != "" && status != "active" {
			return nil, &ValidationError{Reason: "auction is not accepting bids"}
		}
	}

	if !s.cache.MarkRecent(ctx, req.AuctionID, req.SessionID, req.Amount) {
		s.log.Info().
			Str("auction_id", req.AuctionID).
			Str("username", req.Username).
			Float64("amount", req.Amount).
			Msg("rejected repeat bid within duplicate window")
		return nil, &DuplicateBidError{
			Reason: "a similar bid was already placed, please wait a moment and try again if needed",
		}
	}

	if s.cache.BidExists(ctx, req.AuctionID, req.Username, req.Amount) {
		s.log.Info().
			Str("auction_id", req.AuctionID).
			Str("username", req.Username).
			Float64("amount", req.Amount).
			Msg("rejected duplicate bid found in cache")
		return nil, &DuplicateBidError{
			Reason: "you have already placed this exact bid amount, please try a different amount",
		}
	}

	highest := s.cache.HighestBid(ctx, req.AuctionID)
	if highest != nil && req.Amount <= highest.Amount {
		return nil, &LowBidError{CurrentHighest: highest.Amount}
	}

	bid := &models.Bid{
		ID:        models.ProvisionalIDPrefix + uuid.NewString(),
		AuctionID: req.AuctionID,
		SessionID: req.SessionID,
		Username:  req.Username,
		Amount:    req.Amount,
		PlacedAt:  time.Now().UTC(),
	}

	s.cache.AddBid(ctx, bid)
	s.cache.EnqueuePending(ctx, bid)

	if highest == nil || bid.Amount > highest.Amount {
		s.cache.SetHighestBid(ctx, bid.AuctionID, &models.HighestBid{
			BidID:    bid.ID,
			Amount:   bid.Amount,
			Username: bid.Username,
			PlacedAt: bid.PlacedAt,
		})
	}

	// A failed publish never rolls back the cache write or the response;
	// the bid simply may not reach other subscribers until resync.
	if err := s.publisher.PublishBidUpdated(ctx, bid.Event()); err != nil {
		s.log.Error().Err(err).
			Str("auction_id", bid.AuctionID).
			Str("bid_id", bid.ID).
			Msg("failed to publish bid update")
	}

	s.log.Info().
		Str("auction_id", bid.AuctionID).
		Str("bid_id", bid.ID).
		Str("username", bid.Username).
		Float64("amount", bid.Amount).
		Msg("bid accepted")
	return bid, nil
}

// BidList is the result of a bid listing: the bids, the highest-bid
// projection and which tier served the read.
type BidList struct {
	Bids    []models.Bid       `json:"bids"`
	Highest *models.HighestBid `json:"highestBid,omitempty"`
	Source  string             `json:"source"`
}

// ListBids reads an auction's bids cache-aside: the recent-bids index
// first, the durable store on a miss, repopulating the index from the
// authoritative read so the next request is served from cache.
func (s *BiddingService) ListBids(ctx context.Context, auctionID string, limit int) (*BidList, error) {
	if auctionID == "" {
		return nil, &ValidationError{Reason: "auction id is required"}
	}
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}

	s.tracker.Track(auctionID)

	bids := s.cache.RecentBids(ctx, auctionID, limit)
	source := "cache"

	if len(bids) == 0 {
		stored, err := s.store.TopBids(ctx, auctionID, limit)
		if err != nil {
			return nil, err
		}
		bids = stored
		source = "database"

		for i := range stored {
			s.cache.AddBid(ctx, &stored[i])
		}
		if len(stored) > 0 {
			s.log.Debug().
				Str("auction_id", auctionID).
				Int("count", len(stored)).
				Msg("repopulated bid cache from database")
		}
	}

	highest := s.cache.HighestBid(ctx, auctionID)
	if highest == nil && len(bids) > 0 {
		top := bids[0]
		for _, bid := range bids[1:] {
			if bid.Amount > top.Amount {
				top = bid
			}
		}
		highest = &models.HighestBid{
			BidID:    top.ID,
			Amount:   top.Amount,
			Username: top.Username,
			PlacedAt: top.PlacedAt,
		}
	}

	return &BidList{Bids: bids, Highest: highest, Source: source}, nil
}
