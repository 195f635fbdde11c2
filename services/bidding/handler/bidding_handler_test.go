package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	bidding "live-auction/internal/biddingService"
	"live-auction/internal/biddingerrors"
	"live-auction/internal/broadcast"
	"live-auction/internal/lifecycle"
	model "live-auction/internal/models"
	"live-auction/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, setup func(m *MockBiddingServiceInterface)) (*gin.Engine, *broadcast.Hub) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockService := NewMockBiddingServiceInterface(ctrl)
	setup(mockService)

	hub := broadcast.NewHub(16)
	t.Cleanup(hub.Close)

	h := NewBiddingHandler(mockService, hub)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/bids", h.RecordBidHandler)
	router.GET("/auctions/current", h.GetCurrentAuctionHandler)
	router.GET("/auctions/upcoming", h.GetUpcomingAuctionsHandler)
	router.GET("/auctions/:auction_id", h.GetAuctionHandler)
	router.GET("/auctions/:auction_id/bids", h.GetBidsByAuctionHandler)
	router.GET("/auctions/:auction_id/highest", h.GetHighestBidHandler)
	router.GET("/events", h.EventsHandler)
	router.PUT("/connections/:conn_id/subscriptions/:auction_id", h.SubscribeHandler)
	router.DELETE("/connections/:conn_id/subscriptions/:auction_id", h.UnsubscribeHandler)
	router.POST("/admin/auctions", h.CreateAuctionHandler)
	router.POST("/admin/auctions/:auction_id/close", h.CloseAuctionHandler)
	router.POST("/admin/auctions/:auction_id/cancel", h.CancelAuctionHandler)
	router.POST("/admin/auctions/:auction_id/ledger/reset", h.ResetLedgerHandler)
	return router, hub
}

func do(t *testing.T, router *gin.Engine, method, url string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func sampleBid(seq uint64, amt string) model.Bid {
	return model.Bid{
		BidID:          uuid.NewString(),
		AuctionID:      "auction1",
		BidderID:       "user1",
		BidderName:     "Ann",
		Amount:         decimal.RequireFromString(amt),
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SequenceNumber: seq,
	}
}

func sampleAuction(status model.AuctionStatus) model.Auction {
	return model.Auction{
		AuctionID:      "auction1",
		Name:           "Vase",
		Description:    "Ming",
		Image:          "vase.png",
		StartingPrice:  decimal.NewFromInt(100),
		ScheduledStart: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:         status,
	}
}

// Test RecordBidHandler
func TestRecordBidHandler(t *testing.T) {
	t.Parallel()

	valid := helpers.PlaceBidRequest{
		AuctionID:  "auction1",
		BidderID:   "user1",
		BidderName: "Ann",
		Amount:     decimal.NewFromInt(150),
		RequestID:  "req-1",
	}

	tests := []struct {
		name           string
		requestBody    any
		serviceErr     error
		expectCall     bool
		expectedStatus int
		expectedMsg    string
		validateData   func(t *testing.T, resp map[string]any)
	}{
		{
			name:           "success_valid_bid",
			requestBody:    valid,
			expectCall:     true,
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid accepted",
			validateData: func(t *testing.T, resp map[string]any) {
				data := resp["data"].(map[string]any)
				_, parseErr := uuid.Parse(data["bidId"].(string))
				require.NoError(t, parseErr, "BidID should be a valid UUID")
				require.Equal(t, "auction1", data["auctionId"])
				require.Equal(t, "user1", data["bidderId"])
				require.Equal(t, 150.0, data["amount"])
				require.Equal(t, 1.0, data["sequenceNumber"])
			},
		},
		{
			name:           "invalid_json",
			requestBody:    `{invalid json}`,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_auction_id",
			requestBody:    helpers.PlaceBidRequest{BidderID: "user1", BidderName: "Ann", Amount: decimal.NewFromInt(1)},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_bidder_name",
			requestBody:    helpers.PlaceBidRequest{AuctionID: "auction1", BidderID: "user1", Amount: decimal.NewFromInt(1)},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "rejected_bid_too_low",
			requestBody:    valid,
			expectCall:     true,
			serviceErr:     biddingerrors.Reject(model.ReasonBidTooLow, "current highest bid is 200"),
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
			validateData: func(t *testing.T, resp map[string]any) {
				data := resp["data"].(map[string]any)
				require.Equal(t, "BidTooLow", data["reason"])
			},
		},
		{
			name:           "rejected_not_live",
			requestBody:    valid,
			expectCall:     true,
			serviceErr:     biddingerrors.Reject(model.ReasonAuctionNotLive, ""),
			expectedStatus: http.StatusConflict,
			expectedMsg:    "auction is not live",
			validateData: func(t *testing.T, resp map[string]any) {
				require.Equal(t, "AuctionNotLive", resp["data"].(map[string]any)["reason"])
			},
		},
		{
			name:           "rejected_below_starting_price",
			requestBody:    valid,
			expectCall:     true,
			serviceErr:     biddingerrors.Reject(model.ReasonBelowStartingPrice, ""),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "bid amount below starting price",
		},
		{
			name:           "rejected_invalid_amount",
			requestBody:    valid,
			expectCall:     true,
			serviceErr:     biddingerrors.Reject(model.ReasonInvalidAmount, ""),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "bid amount must be positive",
		},
		{
			name:           "auction_not_found",
			requestBody:    valid,
			expectCall:     true,
			serviceErr:     fmt.Errorf("service: %w", biddingerrors.ErrAuctionNotFound),
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name:           "duplicate_request",
			requestBody:    valid,
			expectCall:     true,
			serviceErr:     fmt.Errorf("service: %w", biddingerrors.ErrDuplicateBid),
			expectedStatus: http.StatusConflict,
			expectedMsg:    "duplicate bid request",
		},
		{
			name:           "commit_failed",
			requestBody:    valid,
			expectCall:     true,
			serviceErr:     fmt.Errorf("ledger: %w: disk full", biddingerrors.ErrCommitFailed),
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "bid could not be committed",
		},
		{
			name:           "ledger_halted",
			requestBody:    valid,
			expectCall:     true,
			serviceErr:     fmt.Errorf("ledger: %w", biddingerrors.ErrLedgerHalted),
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "bidding halted for auction",
		},
		{
			name:           "unexpected_error",
			requestBody:    valid,
			expectCall:     true,
			serviceErr:     errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, _ := newTestRouter(t, func(m *MockBiddingServiceInterface) {
				if !tc.expectCall {
					return
				}
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, req bidding.BidRequest) (model.Bid, error) {
						require.Equal(t, valid.AuctionID, req.AuctionID)
						require.Equal(t, valid.RequestID, req.RequestID)
						require.True(t, valid.Amount.Equal(req.Amount))
						if tc.serviceErr != nil {
							return model.Bid{}, tc.serviceErr
						}
						return sampleBid(1, "150"), nil
					})
			})

			w, resp := do(t, router, http.MethodPost, "/bids", tc.requestBody)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Equal(t, tc.expectedMsg, resp["message"])
			if tc.validateData != nil {
				tc.validateData(t, resp)
			}
		})
	}
}

func TestGetAuctionHandler(t *testing.T) {
	t.Parallel()

	live := sampleAuction(model.StatusLive)
	top := sampleBid(2, "150")
	live.HighestBid = &top

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "found", expectedStatus: http.StatusOK},
		{name: "not_found", err: biddingerrors.ErrAuctionNotFound, expectedStatus: http.StatusNotFound},
		{name: "halted", err: biddingerrors.ErrLedgerHalted, expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			router, _ := newTestRouter(t, func(m *MockBiddingServiceInterface) {
				m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(model.AuctionDetails{
					Auction: live,
					Bids:    []model.Bid{sampleBid(1, "120"), top},
				}, tc.err)
			})

			w, resp := do(t, router, http.MethodGet, "/auctions/auction1", nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			if tc.err != nil {
				return
			}

			data := resp["data"].(map[string]any)
			require.Equal(t, "auction1", data["id"])
			require.Equal(t, "Vase", data["name"])
			require.Equal(t, "Live", data["status"])
			require.Equal(t, 100.0, data["startingPrice"])
			require.Equal(t, 150.0, data["currentBid"].(map[string]any)["amount"])
			require.Len(t, data["bids"], 2)
		})
	}
}

func TestGetCurrentAuctionHandler(t *testing.T) {
	t.Parallel()

	t.Run("live", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter(t, func(m *MockBiddingServiceInterface) {
			m.EXPECT().CurrentAuction(gomock.Any()).Return(model.AuctionDetails{Auction: sampleAuction(model.StatusLive)}, nil)
		})
		w, resp := do(t, router, http.MethodGet, "/auctions/current", nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := resp["data"].(map[string]any)
		require.Equal(t, "auction1", data["id"])
		require.Nil(t, data["currentBid"])
	})

	t.Run("none", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter(t, func(m *MockBiddingServiceInterface) {
			m.EXPECT().CurrentAuction(gomock.Any()).Return(model.AuctionDetails{}, fmt.Errorf("service: %w", biddingerrors.ErrAuctionNotFound))
		})
		w, resp := do(t, router, http.MethodGet, "/auctions/current", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		require.Equal(t, "no live auction", resp["message"])
	})
}

func TestGetUpcomingAuctionsHandler(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, func(m *MockBiddingServiceInterface) {
		m.EXPECT().UpcomingAuctions(gomock.Any()).Return([]model.UpcomingAuction{
			{Auction: sampleAuction(model.StatusScheduled), TimeRemaining: 90 * time.Second},
		}, nil)
	})

	w, resp := do(t, router, http.MethodGet, "/auctions/upcoming", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].([]any)
	require.Len(t, data, 1)
	first := data[0].(map[string]any)
	require.Equal(t, "auction1", first["id"])
	require.Equal(t, "Scheduled", first["status"])
	require.Equal(t, 90.0, first["timeRemaining"])
}

func TestGetBidsByAuctionHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		bids           []model.Bid
		err            error
		expectedStatus int
		expectedCount  int
	}{
		{name: "with_bids", bids: []model.Bid{sampleBid(1, "100"), sampleBid(2, "110")}, expectedStatus: http.StatusOK, expectedCount: 2},
		{name: "no_bids", bids: nil, expectedStatus: http.StatusOK, expectedCount: 0},
		{name: "unknown_auction", err: biddingerrors.ErrAuctionNotFound, expectedStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			router, _ := newTestRouter(t, func(m *MockBiddingServiceInterface) {
				m.EXPECT().BidHistory(gomock.Any(), "auction1").Return(tc.bids, tc.err)
			})

			w, resp := do(t, router, http.MethodGet, "/auctions/auction1/bids", nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			if tc.err != nil {
				return
			}
			data := resp["data"].([]any)
			require.Len(t, data, tc.expectedCount)
			for i, raw := range data {
				require.Equal(t, float64(i+1), raw.(map[string]any)["sequenceNumber"])
			}
		})
	}
}

func TestGetHighestBidHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		bid            model.Bid
		err            error
		expectedStatus int
		expectedMsg    string
	}{
		{name: "has_bid", bid: sampleBid(3, "175.5"), expectedStatus: http.StatusOK, expectedMsg: "highest bid retrieved successfully"},
		{name: "no_bids", err: fmt.Errorf("service: %w", biddingerrors.ErrNoBids), expectedStatus: http.StatusNotFound, expectedMsg: "no bids yet"},
		{name: "unknown_auction", err: biddingerrors.ErrAuctionNotFound, expectedStatus: http.StatusNotFound, expectedMsg: "auction not found"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			router, _ := newTestRouter(t, func(m *MockBiddingServiceInterface) {
				m.EXPECT().HighestBid(gomock.Any(), "auction1").Return(tc.bid, tc.err)
			})

			w, resp := do(t, router, http.MethodGet, "/auctions/auction1/highest", nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Equal(t, tc.expectedMsg, resp["message"])
			if tc.err == nil {
				require.Equal(t, 175.5, resp["data"].(map[string]any)["amount"])
			}
		})
	}
}

func TestCreateAuctionHandler(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           any
		serviceErr     error
		expectCall     bool
		expectedStatus int
	}{
		{
			name: "created",
			body: helpers.CreateAuctionRequest{
				Name: "Vase", StartingPrice: decimal.NewFromInt(100), ScheduledStart: start, DurationSeconds: 600,
			},
			expectCall:     true,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing_name",
			body:           helpers.CreateAuctionRequest{StartingPrice: decimal.NewFromInt(100), ScheduledStart: start},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing_start",
			body:           helpers.CreateAuctionRequest{Name: "Vase", StartingPrice: decimal.NewFromInt(100)},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid_auction",
			body:           helpers.CreateAuctionRequest{Name: "Vase", ScheduledStart: start},
			serviceErr:     fmt.Errorf("lifecycle: %w - starting price must be positive", biddingerrors.ErrInvalidAuction),
			expectCall:     true,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "duplicate_id",
			body:           helpers.CreateAuctionRequest{AuctionID: "auction1", Name: "Vase", StartingPrice: decimal.NewFromInt(1), ScheduledStart: start},
			serviceErr:     biddingerrors.ErrAuctionExists,
			expectCall:     true,
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			router, _ := newTestRouter(t, func(m *MockBiddingServiceInterface) {
				if !tc.expectCall {
					return
				}
				m.EXPECT().CreateAuction(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, a model.Auction) (model.Auction, error) {
						if tc.serviceErr != nil {
							return model.Auction{}, tc.serviceErr
						}
						require.Equal(t, 10*time.Minute, a.Duration)
						require.True(t, a.ScheduledStart.Equal(start))
						a.AuctionID = "generated"
						a.Status = model.StatusScheduled
						return a, nil
					})
			})

			w, resp := do(t, router, http.MethodPost, "/admin/auctions", tc.body)
			require.Equal(t, tc.expectedStatus, w.Code, w.Body.String())
			if tc.expectedStatus == http.StatusCreated {
				data := resp["data"].(map[string]any)
				require.Equal(t, "generated", data["id"])
				require.Equal(t, "Scheduled", data["status"])
				require.Equal(t, 600.0, data["durationSeconds"])
			}
		})
	}
}

func TestLifecycleHandlers(t *testing.T) {
	t.Parallel()

	closed := sampleAuction(model.StatusClosed)
	tests := []struct {
		name           string
		path           string
		setup          func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		changed        bool
	}{
		{
			name: "close_changed",
			path: "/admin/auctions/auction1/close",
			setup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CloseAuction(gomock.Any(), "auction1").Return(lifecycle.Transition{Auction: closed, Changed: true}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction closed",
			changed:        true,
		},
		{
			name: "close_already_closed",
			path: "/admin/auctions/auction1/close",
			setup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CloseAuction(gomock.Any(), "auction1").Return(lifecycle.Transition{Auction: closed, Skipped: biddingerrors.ErrAlreadyInState}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    biddingerrors.ErrAlreadyInState.Error(),
		},
		{
			name: "cancel_changed",
			path: "/admin/auctions/auction1/cancel",
			setup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CancelAuction(gomock.Any(), "auction1").Return(lifecycle.Transition{Auction: closed, Changed: true}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction cancelled",
			changed:        true,
		},
		{
			name: "cancel_unknown",
			path: "/admin/auctions/auction1/cancel",
			setup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().CancelAuction(gomock.Any(), "auction1").Return(lifecycle.Transition{}, biddingerrors.ErrAuctionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "auction not found",
		},
		{
			name: "reset_ledger",
			path: "/admin/auctions/auction1/ledger/reset",
			setup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().ResetLedger(gomock.Any(), "auction1").Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "ledger reloaded",
		},
		{
			name: "reset_ledger_still_corrupt",
			path: "/admin/auctions/auction1/ledger/reset",
			setup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().ResetLedger(gomock.Any(), "auction1").Return(biddingerrors.ErrLedgerHalted)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "bidding halted for auction",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			router, _ := newTestRouter(t, tc.setup)

			w, resp := do(t, router, http.MethodPost, tc.path, nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Equal(t, tc.expectedMsg, resp["message"])
			if strings.HasSuffix(tc.path, "/close") || strings.HasSuffix(tc.path, "/cancel") {
				if w.Code == http.StatusOK {
					data := resp["data"].(map[string]any)
					require.Equal(t, tc.changed, data["changed"])
					require.Equal(t, "Closed", data["auction"].(map[string]any)["status"])
				}
			}
		})
	}
}

func TestSubscriptionHandlers(t *testing.T) {
	t.Parallel()
	router, hub := newTestRouter(t, func(m *MockBiddingServiceInterface) {
		m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(model.AuctionDetails{Auction: sampleAuction(model.StatusLive)}, nil).Times(2)
		m.EXPECT().GetAuction(gomock.Any(), "missing").Return(model.AuctionDetails{}, biddingerrors.ErrAuctionNotFound)
	})

	conn, err := hub.Connect()
	require.NoError(t, err)
	path := "/connections/" + conn.ID() + "/subscriptions/"

	w, _ := do(t, router, http.MethodPut, path+"auction1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, router, http.MethodPut, path+"auction1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, hub.Subscriptions(conn.ID()), 1)

	w, _ = do(t, router, http.MethodPut, path+"missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, router, http.MethodDelete, path+"auction1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, hub.Subscriptions(conn.ID()))

	w, resp := do(t, router, http.MethodDelete, "/connections/ghost/subscriptions/auction1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "connection not found", resp["message"])
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestEventsHandler(t *testing.T) {
	t.Parallel()
	router, hub := newTestRouter(t, func(m *MockBiddingServiceInterface) {
		m.EXPECT().GetAuction(gomock.Any(), "auction1").Return(model.AuctionDetails{Auction: sampleAuction(model.StatusLive)}, nil)
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?auction_id=auction1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	connected := readEvent(t, reader)
	require.Equal(t, "connected", connected.name)
	var hello helpers.ConnectedEvent
	require.NoError(t, json.Unmarshal([]byte(connected.data), &hello))
	require.NotEmpty(t, hello.ConnectionID)
	require.Equal(t, []string{"auction1"}, hello.Auctions)

	hub.Publish("other", model.NewBidAcceptedEvent(sampleBid(9, "999")))
	hub.Publish("auction1", model.NewBidAcceptedEvent(sampleBid(1, "120")))

	ev := readEvent(t, reader)
	require.Equal(t, string(model.EventBidAccepted), ev.name)
	var bid helpers.BidResponse
	require.NoError(t, json.Unmarshal([]byte(ev.data), &bid))
	require.Equal(t, uint64(1), bid.SequenceNumber)
	require.Equal(t, "120", bid.Amount.String())

	hub.Announce(model.NewAuctionStartingEvent(model.Auction{AuctionID: "auction2", Name: "Clock"}))
	ev = readEvent(t, reader)
	require.Equal(t, string(model.EventAuctionStarting), ev.name)
	require.Contains(t, ev.data, `"auctionId":"auction2"`)

	cancel()
	require.Eventually(t, func() bool { return len(hub.Subscriptions(hello.ConnectionID)) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventsHandler_UnknownAuction(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter(t, func(m *MockBiddingServiceInterface) {
		m.EXPECT().GetAuction(gomock.Any(), "missing").Return(model.AuctionDetails{}, biddingerrors.ErrAuctionNotFound)
	})

	w, resp := do(t, router, http.MethodGet, "/events?auction_id=missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "auction not found", resp["message"])
}
