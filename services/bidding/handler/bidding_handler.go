package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	bidding "live-auction/internal/biddingService"
	"live-auction/internal/biddingerrors"
	"live-auction/internal/broadcast"
	"live-auction/internal/lifecycle"
	model "live-auction/internal/models"
	"live-auction/services/bidding/helpers"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_bidding_handler.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, req bidding.BidRequest) (model.Bid, error)
	GetAuction(ctx context.Context, auctionID string) (model.AuctionDetails, error)
	CurrentAuction(ctx context.Context) (model.AuctionDetails, error)
	BidHistory(ctx context.Context, auctionID string) ([]model.Bid, error)
	HighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	UpcomingAuctions(ctx context.Context) ([]model.UpcomingAuction, error)
	CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error)
	CloseAuction(ctx context.Context, auctionID string) (lifecycle.Transition, error)
	CancelAuction(ctx context.Context, auctionID string) (lifecycle.Transition, error)
	ResetLedger(ctx context.Context, auctionID string) error
}

// EventHub is the connection registry behind the event stream
type EventHub interface {
	Connect() (*broadcast.Connection, error)
	Disconnect(connID string)
	Subscribe(connID, auctionID string) error
	Unsubscribe(connID, auctionID string) error
}

type BiddingHandler struct {
	service BiddingServiceInterface
	hub     EventHub
}

func NewBiddingHandler(service BiddingServiceInterface, hub EventHub) *BiddingHandler {
	return &BiddingHandler{service: service, hub: hub}
}

func (h *BiddingHandler) fail(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := helpers.MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	fields["handler"] = handlerName
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request failed", fields)
}

// RecordBidHandler handles POST /bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}

	bid, err := h.service.PlaceBid(c.Request.Context(), bidding.BidRequest{
		RequestID:  req.RequestID,
		AuctionID:  req.AuctionID,
		BidderID:   req.BidderID,
		BidderName: req.BidderName,
		Amount:     req.Amount,
	})
	if err != nil {
		if reason, ok := biddingerrors.ReasonOf(err); ok {
			status, message := helpers.MapErrorToHTTP(err)
			utils.JSONErrorWithData(c, status, err, helpers.RejectedResponse{Reason: reason}, message)
			utils.Info("RecordBidHandler: bid rejected", map[string]any{
				"auction_id": req.AuctionID,
				"bidder_id":  req.BidderID,
				"reason":     reason,
			})
			return
		}
		h.fail(c, "RecordBidHandler", err, map[string]any{
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToBidResponse(bid), "bid accepted")
	helpers.LogSuccess("RecordBidHandler", "bid accepted", map[string]any{
		"bid_id":          bid.BidID,
		"auction_id":      bid.AuctionID,
		"bidder_id":       bid.BidderID,
		"amount":          bid.Amount.String(),
		"sequence_number": bid.SequenceNumber,
	})
}

// GetCurrentAuctionHandler handles GET /auctions/current
func (h *BiddingHandler) GetCurrentAuctionHandler(c *gin.Context) {
	details, err := h.service.CurrentAuction(c.Request.Context())
	if err != nil {
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			utils.JSONError(c, http.StatusNotFound, err, "no live auction")
			return
		}
		h.fail(c, "GetCurrentAuctionHandler", err, map[string]any{})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionDetailsResponse(details), "current auction retrieved successfully")
}

// GetUpcomingAuctionsHandler handles GET /auctions/upcoming
func (h *BiddingHandler) GetUpcomingAuctionsHandler(c *gin.Context) {
	upcoming, err := h.service.UpcomingAuctions(c.Request.Context())
	if err != nil {
		h.fail(c, "GetUpcomingAuctionsHandler", err, map[string]any{})
		return
	}

	resp := make([]helpers.UpcomingAuctionResponse, 0, len(upcoming))
	for _, u := range upcoming {
		resp = append(resp, helpers.UpcomingAuctionResponse{
			AuctionResponse:      helpers.ToAuctionResponse(u.Auction),
			TimeRemainingSeconds: int64(u.TimeRemaining / time.Second),
		})
	}
	utils.JSONResponse(c, http.StatusOK, resp, "upcoming auctions retrieved successfully")
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	details, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		h.fail(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionDetailsResponse(details), "auction retrieved successfully")
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.BidHistory(c.Request.Context(), auctionID)
	if err != nil {
		h.fail(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetHighestBidHandler handles GET /auctions/:auction_id/highest
func (h *BiddingHandler) GetHighestBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.HighestBid(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no bids yet")
			utils.Info("GetHighestBidHandler: no bids yet", map[string]any{"auction_id": auctionID})
			return
		}
		h.fail(c, "GetHighestBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "highest bid retrieved successfully")
}

// EventsHandler handles GET /events. The stream opens with a "connected" event carrying
// the connection id, then relays per-auction events for every subscribed auction and
// all global announcements until the client goes away.
func (h *BiddingHandler) EventsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	auctionIDs := splitIDs(c.QueryArray("auction_id"))
	for _, auctionID := range auctionIDs {
		if _, err := h.service.GetAuction(ctx, auctionID); err != nil {
			h.fail(c, "EventsHandler", err, map[string]any{"auction_id": auctionID})
			return
		}
	}

	conn, err := h.hub.Connect()
	if err != nil {
		utils.JSONError(c, http.StatusServiceUnavailable, err, "event stream unavailable")
		return
	}
	defer h.hub.Disconnect(conn.ID())

	for _, auctionID := range auctionIDs {
		if err := h.hub.Subscribe(conn.ID(), auctionID); err != nil {
			h.fail(c, "EventsHandler", err, map[string]any{"auction_id": auctionID})
			return
		}
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	utils.Info("EventsHandler: client connected", map[string]any{
		"connection_id": conn.ID(),
		"auctions":      auctionIDs,
	})

	c.SSEvent("connected", helpers.ConnectedEvent{ConnectionID: conn.ID(), Auctions: auctionIDs})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-conn.Done():
			return false
		case ev := <-conn.Events():
			c.SSEvent(string(ev.Type), helpers.ToEventData(ev))
			return true
		}
	})

	utils.Info("EventsHandler: client disconnected", map[string]any{"connection_id": conn.ID()})
}

func splitIDs(values []string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// SubscribeHandler handles PUT /connections/:conn_id/subscriptions/:auction_id
func (h *BiddingHandler) SubscribeHandler(c *gin.Context) {
	connID, auctionID := c.Param("conn_id"), c.Param("auction_id")
	if _, err := h.service.GetAuction(c.Request.Context(), auctionID); err != nil {
		h.fail(c, "SubscribeHandler", err, map[string]any{"connection_id": connID, "auction_id": auctionID})
		return
	}
	if err := h.hub.Subscribe(connID, auctionID); err != nil {
		h.fail(c, "SubscribeHandler", err, map[string]any{"connection_id": connID, "auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, model.Subscription{ConnectionID: connID, AuctionID: auctionID}, "subscribed")
}

// UnsubscribeHandler handles DELETE /connections/:conn_id/subscriptions/:auction_id
func (h *BiddingHandler) UnsubscribeHandler(c *gin.Context) {
	connID, auctionID := c.Param("conn_id"), c.Param("auction_id")
	if err := h.hub.Unsubscribe(connID, auctionID); err != nil {
		h.fail(c, "UnsubscribeHandler", err, map[string]any{"connection_id": connID, "auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, model.Subscription{ConnectionID: connID, AuctionID: auctionID}, "unsubscribed")
}

// CreateAuctionHandler handles POST /admin/auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), req.ToAuction())
	if err != nil {
		h.fail(c, "CreateAuctionHandler", err, map[string]any{"name": req.Name})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToAuctionResponse(auction), "auction scheduled")
	helpers.LogSuccess("CreateAuctionHandler", "auction scheduled", map[string]any{
		"auction_id":      auction.AuctionID,
		"scheduled_start": auction.ScheduledStart,
	})
}

// CloseAuctionHandler handles POST /admin/auctions/:auction_id/close
func (h *BiddingHandler) CloseAuctionHandler(c *gin.Context) {
	h.transition(c, "CloseAuctionHandler", "auction closed", h.service.CloseAuction)
}

// CancelAuctionHandler handles POST /admin/auctions/:auction_id/cancel
func (h *BiddingHandler) CancelAuctionHandler(c *gin.Context) {
	h.transition(c, "CancelAuctionHandler", "auction cancelled", h.service.CancelAuction)
}

func (h *BiddingHandler) transition(c *gin.Context, handlerName, done string, fn func(context.Context, string) (lifecycle.Transition, error)) {
	auctionID := c.Param("auction_id")
	tr, err := fn(c.Request.Context(), auctionID)
	if err != nil {
		h.fail(c, handlerName, err, map[string]any{"auction_id": auctionID})
		return
	}

	message := done
	if !tr.Changed {
		message = biddingerrors.ErrAlreadyInState.Error()
	}
	resp := helpers.TransitionResponse{Auction: helpers.ToAuctionResponse(tr.Auction), Changed: tr.Changed}
	utils.JSONResponse(c, http.StatusOK, resp, message)
	helpers.LogSuccess(handlerName, message, map[string]any{
		"auction_id": auctionID,
		"status":     tr.Auction.Status,
		"changed":    tr.Changed,
	})
}

// ResetLedgerHandler handles POST /admin/auctions/:auction_id/ledger/reset
func (h *BiddingHandler) ResetLedgerHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if err := h.service.ResetLedger(c.Request.Context(), auctionID); err != nil {
		h.fail(c, "ResetLedgerHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"auctionId": auctionID}, "ledger reloaded")
}
