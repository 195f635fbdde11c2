package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// amounts travel as JSON numbers, the way clients submit them
	decimal.MarshalJSONWithoutQuotes = true
}

// Bidder is the pre-verified identity attached to a bid
type Bidder struct {
	BidderID   string `json:"bidder_id"`
	BidderName string `json:"bidder_name"`
}

// Auction represents a single lot and its lifecycle state
type Auction struct {
	AuctionID      string          `json:"auction_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Image          string          `json:"image"`
	StartingPrice  decimal.Decimal `json:"starting_price"`
	ScheduledStart time.Time       `json:"scheduled_start"`
	Duration       time.Duration   `json:"duration,omitempty"`
	Status         AuctionStatus   `json:"status"`
	HighestBid     *Bid            `json:"highest_bid,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// EndsAt reports when the end condition closes the auction, if one is configured.
func (a Auction) EndsAt() (time.Time, bool) {
	if a.Duration <= 0 {
		return time.Time{}, false
	}
	return a.ScheduledStart.Add(a.Duration), true
}

// Bid represents an accepted, committed bid on an auction
type Bid struct {
	BidID          string          `json:"bid_id"`
	AuctionID      string          `json:"auction_id"`
	BidderID       string          `json:"bidder_id"`
	BidderName     string          `json:"bidder_name"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      time.Time       `json:"timestamp"`
	SequenceNumber uint64          `json:"sequence_number"`
}

// Subscription records which auction channel a connection observes
type Subscription struct {
	ConnectionID string `json:"connection_id"`
	AuctionID    string `json:"auction_id"`
}
