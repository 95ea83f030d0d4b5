package models

import "encoding/json"

// Websocket message types. bidUpdate and bidUpdated carry the same
// payload; both are emitted because older clients listen for the latter.
const (
	MsgBidUpdate      = "bidUpdate"
	MsgBidUpdated     = "bidUpdated"
	MsgRoomJoined     = "roomJoined"
	MsgJoinAuction    = "joinAuction"
	MsgBidCooldown    = "bidCooldown"
	MsgCooldownUpdate = "bidCooldownUpdate"
	MsgPing           = "ping"
	MsgPong           = "pong"
)

// Message is the envelope for every frame exchanged with websocket clients.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals data into a Message envelope.
func NewMessage(msgType string, data interface{}) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Data: raw}, nil
}

// JoinAuction is the client request to switch auction rooms.
type JoinAuction struct {
	AuctionID string `json:"auctionId"`
}

// RoomJoined acknowledges that a connection entered an auction room.
type RoomJoined struct {
	AuctionID string `json:"auctionId"`
	Message   string `json:"message"`
}

// CooldownSignal is an ephemeral, non-persisted signal a client shares
// with the rest of its auction room. It never touches the event bus.
type CooldownSignal struct {
	AuctionID string  `json:"auctionId"`
	Seconds   float64 `json:"seconds"`
}

// Pong answers an application-level ping.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}
