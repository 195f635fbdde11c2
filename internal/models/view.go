package models

import "time"

// AuctionDetails is an auction together with its committed bids, oldest first
type AuctionDetails struct {
	Auction Auction `json:"auction"`
	Bids    []Bid   `json:"bids"`
}

// UpcomingAuction is a Scheduled auction and the time left until it starts
type UpcomingAuction struct {
	Auction       Auction       `json:"auction"`
	TimeRemaining time.Duration `json:"time_remaining"`
}
