package helpers

import (
	"time"

	model "live-auction/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	AuctionID  string          `json:"auctionId" binding:"required"`
	BidderID   string          `json:"bidderId" binding:"required"`
	BidderName string          `json:"bidderName" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	RequestID  string          `json:"requestId,omitempty"`
}

type CreateAuctionRequest struct {
	AuctionID       string          `json:"id,omitempty"`
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	Image           string          `json:"image"`
	StartingPrice   decimal.Decimal `json:"startingPrice"`
	ScheduledStart  time.Time       `json:"scheduledStart" binding:"required"`
	DurationSeconds int64           `json:"durationSeconds,omitempty" binding:"gte=0"`
}

type BidResponse struct {
	BidID          string          `json:"bidId"`
	AuctionID      string          `json:"auctionId"`
	BidderID       string          `json:"bidderId"`
	BidderName     string          `json:"bidderName"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      string          `json:"timestamp"`
	SequenceNumber uint64          `json:"sequenceNumber"`
}

type RejectedResponse struct {
	Reason model.RejectReason `json:"reason"`
}

type AuctionResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Image          string          `json:"image"`
	StartingPrice  decimal.Decimal `json:"startingPrice"`
	ScheduledStart string          `json:"scheduledStart"`
	DurationSecs   int64           `json:"durationSeconds,omitempty"`
	CurrentBid     *BidResponse    `json:"currentBid,omitempty"`
	Status         string          `json:"status"`
	Bids           []BidResponse   `json:"bids,omitempty"`
}

type UpcomingAuctionResponse struct {
	AuctionResponse
	TimeRemainingSeconds int64 `json:"timeRemaining"`
}

type TransitionResponse struct {
	Auction AuctionResponse `json:"auction"`
	Changed bool            `json:"changed"`
}

type ConnectedEvent struct {
	ConnectionID string   `json:"connectionId"`
	Auctions     []string `json:"auctions"`
}

type AuctionEventData struct {
	AuctionID string `json:"auctionId"`
	Name      string `json:"name"`
}

type AuctionClosedData struct {
	AuctionID       string       `json:"auctionId"`
	FinalHighestBid *BidResponse `json:"finalHighestBid"`
}

// ToBidResponse converts a committed bid to its wire shape
func ToBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:          bid.BidID,
		AuctionID:      bid.AuctionID,
		BidderID:       bid.BidderID,
		BidderName:     bid.BidderName,
		Amount:         bid.Amount,
		Timestamp:      bid.Timestamp.UTC().Format(time.RFC3339Nano),
		SequenceNumber: bid.SequenceNumber,
	}
}

// ToBidResponses converts a bid list, never returning nil
func ToBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, bid := range bids {
		out = append(out, ToBidResponse(bid))
	}
	return out
}

// ToAuctionResponse converts an auction record; bids are attached by the caller
func ToAuctionResponse(a model.Auction) AuctionResponse {
	resp := AuctionResponse{
		ID:             a.AuctionID,
		Name:           a.Name,
		Description:    a.Description,
		Image:          a.Image,
		StartingPrice:  a.StartingPrice,
		ScheduledStart: a.ScheduledStart.UTC().Format(time.RFC3339),
		DurationSecs:   int64(a.Duration / time.Second),
		Status:         string(a.Status),
	}
	if a.HighestBid != nil {
		bid := ToBidResponse(*a.HighestBid)
		resp.CurrentBid = &bid
	}
	return resp
}

// ToAuctionDetailsResponse converts an auction with its bids
func ToAuctionDetailsResponse(d model.AuctionDetails) AuctionResponse {
	resp := ToAuctionResponse(d.Auction)
	resp.Bids = ToBidResponses(d.Bids)
	return resp
}

// ToAuction converts a create request into a Scheduled auction
func (r CreateAuctionRequest) ToAuction() model.Auction {
	return model.Auction{
		AuctionID:      r.AuctionID,
		Name:           r.Name,
		Description:    r.Description,
		Image:          r.Image,
		StartingPrice:  r.StartingPrice,
		ScheduledStart: r.ScheduledStart,
		Duration:       time.Duration(r.DurationSeconds) * time.Second,
	}
}

// ToEventData converts an event payload to the shape pushed over the stream
func ToEventData(ev model.Event) any {
	switch p := ev.Payload.(type) {
	case model.BidAcceptedPayload:
		return BidResponse{
			AuctionID:      ev.AuctionID,
			BidderID:       p.BidderID,
			BidderName:     p.BidderName,
			Amount:         p.Amount,
			Timestamp:      p.Timestamp.UTC().Format(time.RFC3339Nano),
			SequenceNumber: p.SequenceNumber,
		}
	case model.AuctionClosedPayload:
		data := AuctionClosedData{AuctionID: ev.AuctionID}
		if p.FinalHighestBid != nil {
			bid := ToBidResponse(*p.FinalHighestBid)
			data.FinalHighestBid = &bid
		}
		return data
	case model.AuctionAnnouncementPayload:
		return AuctionEventData{AuctionID: p.AuctionID, Name: p.Name}
	default:
		return ev.Payload
	}
}
