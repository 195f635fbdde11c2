package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an event on either the per-auction or the announcement channel
type EventType string

const (
	EventBidAccepted     EventType = "bid-accepted"
	EventAuctionStarted  EventType = "auction-started"
	EventAuctionClosed   EventType = "auction-closed"
	EventAuctionStarting EventType = "auction-starting"
)

// Event is the envelope pushed to connected clients
type Event struct {
	Type      EventType `json:"type"`
	AuctionID string    `json:"auction_id"`
	Payload   any       `json:"payload"`
}

// BidAcceptedPayload is carried by bid-accepted events
type BidAcceptedPayload struct {
	BidderID       string          `json:"bidder_id"`
	BidderName     string          `json:"bidder_name"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      time.Time       `json:"timestamp"`
	SequenceNumber uint64          `json:"sequence_number"`
}

// AuctionClosedPayload is carried by auction-closed events
type AuctionClosedPayload struct {
	FinalHighestBid *Bid `json:"final_highest_bid"`
}

// AuctionAnnouncementPayload is carried by auction-started and auction-starting events
type AuctionAnnouncementPayload struct {
	AuctionID string `json:"auction_id"`
	Name      string `json:"name"`
}

// NewBidAcceptedEvent builds the per-auction event for a committed bid.
func NewBidAcceptedEvent(bid Bid) Event {
	return Event{
		Type:      EventBidAccepted,
		AuctionID: bid.AuctionID,
		Payload: BidAcceptedPayload{
			BidderID:       bid.BidderID,
			BidderName:     bid.BidderName,
			Amount:         bid.Amount,
			Timestamp:      bid.Timestamp,
			SequenceNumber: bid.SequenceNumber,
		},
	}
}

// NewAuctionClosedEvent builds the per-auction close event with the final snapshot.
func NewAuctionClosedEvent(auctionID string, final *Bid) Event {
	return Event{
		Type:      EventAuctionClosed,
		AuctionID: auctionID,
		Payload:   AuctionClosedPayload{FinalHighestBid: final},
	}
}

// NewAuctionStartedEvent builds the per-auction start event.
func NewAuctionStartedEvent(a Auction) Event {
	return Event{
		Type:      EventAuctionStarted,
		AuctionID: a.AuctionID,
		Payload:   AuctionAnnouncementPayload{AuctionID: a.AuctionID, Name: a.Name},
	}
}

// NewAuctionStartingEvent builds the global announcement.
func NewAuctionStartingEvent(a Auction) Event {
	return Event{
		Type:      EventAuctionStarting,
		AuctionID: a.AuctionID,
		Payload:   AuctionAnnouncementPayload{AuctionID: a.AuctionID, Name: a.Name},
	}
}
