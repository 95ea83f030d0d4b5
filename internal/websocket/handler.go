package websocket

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades websocket connections into hub clients.
type Handler struct {
	hub *Hub
	log zerolog.Logger
}

// NewHandler creates a new websocket handler.
func NewHandler(hub *Hub, log zerolog.Logger) *Handler {
	return &Handler{
		hub: hub,
		log: log.With().Str("component", "ws-handler").Logger(),
	}
}

// SetupRoutes configures the gateway's HTTP routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/ws", h.HandleWebSocket)
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/stats/auctions/{auctionId}", h.GetStats).Methods("GET")

	return router
}

// HandleWebSocket upgrades the connection and joins it to the auction room
// named in the handshake. A handshake without an auctionId is rejected
// immediately.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	auctionID := r.URL.Query().Get("auctionId")
	if auctionID == "" {
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("rejecting handshake without auction id")
		http.Error(w, "auctionId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(uuid.NewString(), auctionID, conn, h.hub, h.log)
	h.hub.Join(client)
	client.StartPumps()

	client.Enqueue(models.MsgRoomJoined, models.RoomJoined{
		AuctionID: auctionID,
		Message:   "you have joined the auction room for " + auctionID,
	})
}

// HealthCheck returns service health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy","service":"fanout-gateway"}`)
}

// GetStats reports the subscriber count for an auction from the hub's
// authoritative map.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionId"]
	count := h.hub.Count(auctionID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"auctionId":%q,"subscribers":%d}`, auctionID, count)
}
