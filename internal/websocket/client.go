package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBuffer = 256
)

// Client is one websocket connection. Its lifecycle is serialized through
// its own read pump: Connecting, Joined, any number of Rejoins, then
// Disconnected.
type Client struct {
	ID string

	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	log       zerolog.Logger
	closeOnce sync.Once

	// Current room. Guarded by hub.mu once the client is registered.
	auctionID string
}

// NewClient wraps an upgraded connection destined for an auction room.
func NewClient(id, auctionID string, conn *websocket.Conn, hub *Hub, log zerolog.Logger) *Client {
	return &Client{
		ID:        id,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		log:       log.With().Str("client_id", id).Logger(),
		auctionID: auctionID,
	}
}

// Close tears down the underlying connection. The read pump notices and
// runs the normal disconnect path.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Enqueue marshals a message onto the send buffer, fire-and-forget.
func (c *Client) Enqueue(msgType string, data interface{}) {
	msg, err := models.NewMessage(msgType, data)
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("failed to build message")
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("failed to marshal message")
		return
	}

	select {
	case c.send <- payload:
	default:
		c.log.Warn().Str("type", msgType).Msg("send buffer full, dropping message")
	}
}

// StartPumps launches the read and write loops for this connection.
func (c *Client) StartPumps() {
	go c.writePump()
	go c.readPump()
}

// writePump moves payloads from the send buffer to the wire and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client frames and dispatches them until the
// connection drops, then removes the client from its room.
func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		c.Close()
		c.log.Info().Msg("client disconnected")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var msg models.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug().Err(err).Msg("ignoring unparseable client frame")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *models.Message) {
	switch msg.Type {
	case models.MsgJoinAuction:
		var join models.JoinAuction
		if err := json.Unmarshal(msg.Data, &join); err != nil || join.AuctionID == "" {
			return
		}
		c.hub.Rejoin(c, join.AuctionID)
		c.Enqueue(models.MsgRoomJoined, models.RoomJoined{
			AuctionID: join.AuctionID,
			Message:   "you have joined the auction room for " + join.AuctionID,
		})

	case models.MsgBidCooldown:
		var signal models.CooldownSignal
		if err := json.Unmarshal(msg.Data, &signal); err != nil || signal.AuctionID == "" {
			return
		}
		// Ephemeral room-local signal, never persisted and never on the
		// event bus.
		payload, err := json.Marshal(&models.Message{Type: models.MsgCooldownUpdate, Data: msg.Data})
		if err != nil {
			return
		}
		c.hub.BroadcastExcept(c.hub.Room(c), c, payload)

	case models.MsgPing:
		c.Enqueue(models.MsgPong, models.Pong{Timestamp: time.Now().UnixMilli()})

	default:
		c.log.Debug().Str("type", msg.Type).Msg("ignoring unknown client message")
	}
}
