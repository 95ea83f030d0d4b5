package models

import "time"

// ProvisionalIDPrefix marks bid IDs assigned at ingestion, before the
// persister commits the bid and a permanent ID is issued.
const ProvisionalIDPrefix = "temp-"

// Bid represents a single bid on an auction. A bid is immutable once
// created; its ID is provisional until the batch persister commits it.
type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId"`
	SessionID string    `json:"sessionId"`
	Username  string    `json:"username"`
	Amount    float64   `json:"amount"`
	PlacedAt  time.Time `json:"placedAt"`
}

// HighestBid is the cached projection of the currently winning bid for
// one auction. It is disposable: the durable store is authoritative and
// the resync worker rebuilds it periodically.
type HighestBid struct {
	BidID    string    `json:"id"`
	Amount   float64   `json:"amount"`
	Username string    `json:"username"`
	PlacedAt time.Time `json:"placedAt"`
}

// BidEvent is the payload published on the bid.updated topic and relayed
// to websocket subscribers.
type BidEvent struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId"`
	Username  string    `json:"username"`
	Amount    float64   `json:"amount"`
	PlacedAt  time.Time `json:"placedAt"`
}

// Event builds the bid.updated payload for a bid.
func (b *Bid) Event() *BidEvent {
	return &BidEvent{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		Username:  b.Username,
		Amount:    b.Amount,
		PlacedAt:  b.PlacedAt,
	}
}

// BidRequest is the incoming bid submission from the API.
type BidRequest struct {
	AuctionID string  `json:"auctionId"`
	SessionID string  `json:"sessionId"`
	Username  string  `json:"username"`
	Amount    float64 `json:"amount"`
}
