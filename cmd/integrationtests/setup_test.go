package integrationtests

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	bidding "live-auction/internal/biddingService"
	"live-auction/internal/broadcast"
	"live-auction/internal/dedupe"
	"live-auction/internal/repository"
	"live-auction/internal/server"
	"live-auction/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// SetupTestRouter initializes the router with an in-memory repository and a live event hub.
func SetupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	hub := broadcast.NewHub(broadcast.DefaultBuffer)
	service := bidding.NewBiddingService(repo, hub,
		bidding.WithDedupe(dedupe.NewMemoryGuard(nil, dedupe.DefaultTTL)))
	t.Cleanup(func() {
		service.Stop()
		hub.Close()
	})
	return server.SetupRouter(service, hub)
}

// SetupTestRouterWithLiveAuction creates one auction that starts immediately and waits until bidding is open.
func SetupTestRouterWithLiveAuction(t *testing.T, auctionID string, startingPrice int64) *gin.Engine {
	t.Helper()
	router := SetupTestRouter(t)
	CreateAuction(t, router, helpers.CreateAuctionRequest{
		AuctionID:      auctionID,
		Name:           "Lot " + auctionID,
		StartingPrice:  decimal.NewFromInt(startingPrice),
		ScheduledStart: time.Now().Add(-time.Second),
	})
	WaitForStatus(t, router, auctionID, "Live")
	return router
}

// CreateAuction schedules an auction through the admin API.
func CreateAuction(t *testing.T, router *gin.Engine, req helpers.CreateAuctionRequest) map[string]any {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/admin/auctions", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return resp
}

// WaitForStatus polls the auction until the scheduler has moved it to the wanted status.
func WaitForStatus(t *testing.T, router *gin.Engine, auctionID, status string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auctions/"+auctionID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		data := resp["data"].(map[string]any)
		return data["status"] == status
	}, 2*time.Second, 10*time.Millisecond)
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := ExecuteRequest(t, router, method, url, reqBody)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		err := json.Unmarshal(w.Body.Bytes(), &resp)
		if err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}

		if w.Code == http.StatusCreated {
			resp = resp["data"].(map[string]any)
		}
	}

	return resp, w
}

type streamEvent struct {
	name string
	data string
}

// ReadStreamEvent reads the next server-sent event from the stream.
func ReadStreamEvent(t *testing.T, r *bufio.Reader) streamEvent {
	t.Helper()
	var ev streamEvent
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
