// Package validator decides whether a candidate bid may be committed.
package validator

import (
	model "live-auction/internal/models"

	"github.com/shopspring/decimal"
)

// MonetaryPrecision is the largest number of fractional digits an amount may carry.
const MonetaryPrecision int32 = 4

// WithinPrecision reports whether amount has at most MonetaryPrecision fractional digits.
// Amounts are never rounded; finer amounts are refused instead.
func WithinPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(MonetaryPrecision))
}

// Validate returns the empty reason when the candidate amount is acceptable, or the
// first rule it breaks:
//  1. the auction must be Live
//  2. the amount must be positive and within MonetaryPrecision
//  3. the first bid must meet the starting price
//  4. later bids must strictly exceed the current highest (ties are rejected)
//
// Validate never mutates its inputs.
func Validate(auction model.Auction, currentHighest *model.Bid, amount decimal.Decimal) model.RejectReason {
	if auction.Status != model.StatusLive {
		return model.ReasonAuctionNotLive
	}

	if !amount.IsPositive() || !WithinPrecision(amount) {
		return model.ReasonInvalidAmount
	}

	if currentHighest == nil {
		if amount.LessThan(auction.StartingPrice) {
			return model.ReasonBelowStartingPrice
		}
		return ""
	}

	if !amount.GreaterThan(currentHighest.Amount) {
		return model.ReasonBidTooLow
	}
	return ""
}
