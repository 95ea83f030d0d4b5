package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/service"
)

// BidService is the slice of the ingestion service the HTTP edge needs.
type BidService interface {
	PlaceBid(ctx context.Context, req *models.BidRequest) (*models.Bid, error)
	ListBids(ctx context.Context, auctionID string, limit int) (*service.BidList, error)
}

// Handler contains the bid-service HTTP handlers.
type Handler struct {
	bidding BidService
	log     zerolog.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(bidding BidService, log zerolog.Logger) *Handler {
	return &Handler{
		bidding: bidding,
		log:     log.With().Str("component", "http").Logger(),
	}
}

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/bids", h.PlaceBid).Methods("POST")
	router.HandleFunc("/bids/{auctionId}", h.ListBids).Methods("GET")

	router.Use(h.loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "bid-service",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// PlaceBid handles bid submissions. Rejections carry a machine-readable
// shape: duplicates are 409, validation and low bids are 400, and a low
// bid discloses the current highest amount.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req models.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, err := h.bidding.PlaceBid(r.Context(), &req)
	if err != nil {
		var validationErr *service.ValidationError
		var duplicateErr *service.DuplicateBidError
		var lowBidErr *service.LowBidError

		switch {
		case errors.As(err, &validationErr):
			respondError(w, http.StatusBadRequest, validationErr.Reason)
		case errors.As(err, &duplicateErr):
			respondError(w, http.StatusConflict, duplicateErr.Reason)
		case errors.As(err, &lowBidErr):
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{
				"success":           false,
				"error":             "bid amount must be higher than the current highest bid",
				"currentHighestBid": lowBidErr.CurrentHighest,
			})
		default:
			h.log.Error().Err(err).Str("auction_id", req.AuctionID).Msg("bid placement failed")
			respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"bid":     bid,
		"message": "bid registered successfully",
	})
}

// ListBids returns an auction's bids, served cache-aside.
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionId"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = parsed
	}

	list, err := h.bidding.ListBids(r.Context(), auctionID, limit)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			respondError(w, http.StatusBadRequest, validationErr.Reason)
			return
		}
		h.log.Error().Err(err).Str("auction_id", auctionID).Msg("bid listing failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := map[string]interface{}{
		"success": true,
		"bids":    list.Bids,
		"source":  list.Source,
	}
	if list.Highest != nil {
		resp["highestBid"] = list.Highest
	}
	if len(list.Bids) == 0 {
		resp["message"] = "no bids found for this auction"
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// loggingMiddleware logs all HTTP requests.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// corsMiddleware adds permissive CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
