package websocket

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub holds the single authoritative mapping from auction id to the set of
// connections in that auction's room. Both broadcast and metrics consult
// this map; there is no parallel bookkeeping to fall out of sync.
type Hub struct {
	log zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:   log.With().Str("component", "hub").Logger(),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Join adds a connection to its auction's room.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.join(c, c.auctionID)
	h.log.Info().Str("client_id", c.ID).Str("auction_id", c.auctionID).Msg("client joined room")
}

// Rejoin moves a connection from its current room to a new auction's room.
func (h *Hub) Rejoin(c *Client, auctionID string) {
	if auctionID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	old := c.auctionID
	if old == auctionID {
		return
	}
	h.leave(c)
	h.join(c, auctionID)
	h.log.Info().Str("client_id", c.ID).Str("from", old).Str("to", auctionID).Msg("client switched room")
}

// Leave removes a connection from its room, discarding the room when it
// empties. Safe to call more than once.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c)
}

// Room returns the auction the connection currently belongs to.
func (h *Hub) Room(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.auctionID
}

func (h *Hub) join(c *Client, auctionID string) {
	c.auctionID = auctionID
	room, ok := h.rooms[auctionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[auctionID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) leave(c *Client) {
	room, ok := h.rooms[c.auctionID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.auctionID)
	}
}

// Broadcast sends a payload to every connection in an auction's room,
// fire-and-forget. A connection whose send buffer is full is dropped so
// one slow client cannot stall the rest. Returns the delivered count.
func (h *Hub) Broadcast(auctionID string, payload []byte) int {
	return h.broadcast(auctionID, nil, payload)
}

// BroadcastExcept sends a payload to every room member but the sender.
// Used for ephemeral client-to-room signals that bypass the event bus.
func (h *Hub) BroadcastExcept(auctionID string, sender *Client, payload []byte) int {
	return h.broadcast(auctionID, sender, payload)
}

func (h *Hub) broadcast(auctionID string, except *Client, payload []byte) int {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[auctionID]))
	for c := range h.rooms[auctionID] {
		if c != except {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	var slow []*Client
	for _, c := range members {
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		h.log.Warn().Str("client_id", c.ID).Str("auction_id", auctionID).Msg("dropping slow client")
		h.Leave(c)
		c.Close()
	}

	return delivered
}

// Count returns how many connections are in an auction's room.
func (h *Hub) Count(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}

// Snapshot returns the total connection count and the per-auction counts,
// for the periodic metrics log.
func (h *Hub) Snapshot() (int, map[string]int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	perAuction := make(map[string]int, len(h.rooms))
	for auctionID, room := range h.rooms {
		perAuction[auctionID] = len(room)
		total += len(room)
	}
	return total, perAuction
}
