package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
)

// Broadcaster is the slice of the hub the relay fans out through.
type Broadcaster interface {
	Broadcast(auctionID string, payload []byte) int
}

// Relay forwards consumed bid.updated events to the auction's room. Each
// event is emitted twice, as bidUpdate and bidUpdated, because older
// clients listen for the latter. Rebroadcasting a redelivered event is
// harmless: room membership never changes from a broadcast.
type Relay struct {
	hub Broadcaster
	log zerolog.Logger
}

// NewRelay creates a relay over a hub.
func NewRelay(hub Broadcaster, log zerolog.Logger) *Relay {
	return &Relay{
		hub: hub,
		log: log.With().Str("component", "relay").Logger(),
	}
}

// HandleBidUpdated fans one event out to its auction room,
// fire-and-forget.
func (r *Relay) HandleBidUpdated(event *models.BidEvent) {
	delivered := 0
	for _, msgType := range []string{models.MsgBidUpdate, models.MsgBidUpdated} {
		msg, err := models.NewMessage(msgType, event)
		if err != nil {
			r.log.Error().Err(err).Str("auction_id", event.AuctionID).Msg("failed to build broadcast message")
			return
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			r.log.Error().Err(err).Str("auction_id", event.AuctionID).Msg("failed to marshal broadcast message")
			return
		}
		delivered = r.hub.Broadcast(event.AuctionID, payload)
	}

	r.log.Debug().
		Str("auction_id", event.AuctionID).
		Float64("amount", event.Amount).
		Int("recipients", delivered).
		Msg("broadcast bid update")
}
