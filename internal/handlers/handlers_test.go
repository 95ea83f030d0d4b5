package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronwang/live-auction/internal/models"
	"github.com/aaronwang/live-auction/internal/service"
)

type stubService struct {
	placeBid func(req *models.BidRequest) (*models.Bid, error)
	listBids func(auctionID string, limit int) (*service.BidList, error)
}

func (s *stubService) PlaceBid(_ context.Context, req *models.BidRequest) (*models.Bid, error) {
	return s.placeBid(req)
}

func (s *stubService) ListBids(_ context.Context, auctionID string, limit int) (*service.BidList, error) {
	return s.listBids(auctionID, limit)
}

func postBid(t *testing.T, router http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/bids", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPlaceBidAccepted(t *testing.T) {
	svc := &stubService{
		placeBid: func(req *models.BidRequest) (*models.Bid, error) {
			return &models.Bid{ID: "temp-1", AuctionID: req.AuctionID, Amount: req.Amount}, nil
		},
	}
	router := NewHandler(svc, zerolog.Nop()).SetupRoutes()

	rec := postBid(t, router, models.BidRequest{AuctionID: "a", SessionID: "s", Username: "u", Amount: 50})
	assert.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	require.NotNil(t, body["bid"])
}

func TestPlaceBidRejectionMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", &service.ValidationError{Reason: "missing required fields"}, http.StatusBadRequest},
		{"duplicate", &service.DuplicateBidError{Reason: "duplicate"}, http.StatusConflict},
		{"low bid", &service.LowBidError{CurrentHighest: 100}, http.StatusBadRequest},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{
				placeBid: func(*models.BidRequest) (*models.Bid, error) { return nil, tc.err },
			}
			router := NewHandler(svc, zerolog.Nop()).SetupRoutes()

			rec := postBid(t, router, models.BidRequest{AuctionID: "a", SessionID: "s", Username: "u", Amount: 50})
			assert.Equal(t, tc.wantStatus, rec.Code)

			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestPlaceBidLowBidDisclosesCurrentHighest(t *testing.T) {
	svc := &stubService{
		placeBid: func(*models.BidRequest) (*models.Bid, error) {
			return nil, &service.LowBidError{CurrentHighest: 100}
		},
	}
	router := NewHandler(svc, zerolog.Nop()).SetupRoutes()

	rec := postBid(t, router, models.BidRequest{AuctionID: "a", SessionID: "s", Username: "u", Amount: 99})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, 100.0, body["currentHighestBid"])
}

func TestPlaceBidInvalidBody(t *testing.T) {
	svc := &stubService{
		placeBid: func(*models.BidRequest) (*models.Bid, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	router := NewHandler(svc, zerolog.Nop()).SetupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/bids", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBids(t *testing.T) {
	svc := &stubService{
		listBids: func(auctionID string, limit int) (*service.BidList, error) {
			assert.Equal(t, "auction-1", auctionID)
			assert.Equal(t, 5, limit)
			return &service.BidList{
				Bids:    []models.Bid{{ID: "b1", AuctionID: auctionID, Amount: 50}},
				Highest: &models.HighestBid{BidID: "b1", Amount: 50},
				Source:  "cache",
			}, nil
		},
	}
	router := NewHandler(svc, zerolog.Nop()).SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/bids/auction-1?limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "cache", body["source"])
	assert.NotNil(t, body["highestBid"])
}

func TestListBidsBadLimit(t *testing.T) {
	svc := &stubService{}
	router := NewHandler(svc, zerolog.Nop()).SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/bids/auction-1?limit=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	router := NewHandler(&stubService{}, zerolog.Nop()).SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
}
