package biddingerrors

import (
	"errors"
	"fmt"

	"live-auction/internal/models"
)

// Repository-level errors
var (
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrAuctionExists     = errors.New("auction already exists")
	ErrDuplicateSequence = errors.New("bid sequence number already recorded")
	ErrNoBids            = errors.New("no bids found for auction")
)

// Validation errors, one per rejection reason
var (
	ErrAuctionNotLive     = errors.New("auction is not live")
	ErrInvalidAmount      = errors.New("bid amount must be positive")
	ErrBelowStartingPrice = errors.New("bid amount below starting price")
	ErrBidTooLow          = errors.New("bid amount too low")
)

// business logic errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidAuction = errors.New("invalid auction")
	ErrDuplicateBid   = errors.New("duplicate bid request")
)

// State errors. AlreadyInState is reported as an outcome, never surfaced as a failure.
var (
	ErrAlreadyInState = errors.New("auction already in requested state")
)

// Infrastructure errors
var (
	ErrCommitFailed  = errors.New("bid commit failed")
	ErrLedgerHalted  = errors.New("bid ledger halted for auction")
	ErrLedgerCorrupt = errors.New("bid ledger corrupted")
)

// RejectionError is returned when a candidate bid fails validation.
type RejectionError struct {
	Reason models.RejectReason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("bid rejected: %s", e.Reason)
	}
	return fmt.Sprintf("bid rejected: %s - %s", e.Reason, e.Detail)
}

// Unwrap lets errors.Is match the sentinel for the reason.
func (e *RejectionError) Unwrap() error {
	return ForReason(e.Reason)
}

// Reject builds a RejectionError for reason.
func Reject(reason models.RejectReason, detail string) error {
	return &RejectionError{Reason: reason, Detail: detail}
}

// ForReason maps a rejection reason to its sentinel.
func ForReason(reason models.RejectReason) error {
	switch reason {
	case models.ReasonAuctionNotLive:
		return ErrAuctionNotLive
	case models.ReasonInvalidAmount:
		return ErrInvalidAmount
	case models.ReasonBelowStartingPrice:
		return ErrBelowStartingPrice
	case models.ReasonBidTooLow:
		return ErrBidTooLow
	default:
		return ErrInvalidBid
	}
}

// ReasonOf extracts the rejection reason from err, if it carries one.
func ReasonOf(err error) (models.RejectReason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
