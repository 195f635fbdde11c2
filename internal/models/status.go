package models

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusScheduled AuctionStatus = "Scheduled"
	StatusLive      AuctionStatus = "Live"
	StatusClosed    AuctionStatus = "Closed"
)

// rank orders statuses along the only permitted direction of travel.
func (s AuctionStatus) rank() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusLive:
		return 1
	case StatusClosed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s AuctionStatus) Valid() bool {
	return s.rank() >= 0
}

// CanMoveTo reports whether a transition from s to next moves forward.
// Scheduled may skip Live when an auction is cancelled.
func (s AuctionStatus) CanMoveTo(next AuctionStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}

// RejectReason explains why a candidate bid was not accepted
type RejectReason string

const (
	ReasonAuctionNotLive     RejectReason = "AuctionNotLive"
	ReasonInvalidAmount      RejectReason = "InvalidAmount"
	ReasonBelowStartingPrice RejectReason = "BelowStartingPrice"
	ReasonBidTooLow          RejectReason = "BidTooLow"
)
