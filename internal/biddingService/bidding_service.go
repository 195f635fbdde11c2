package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"live-auction/internal/auctionlock"
	"live-auction/internal/biddingerrors"
	"live-auction/internal/dedupe"
	"live-auction/internal/ledger"
	"live-auction/internal/lifecycle"
	model "live-auction/internal/models"
	"live-auction/internal/repository"
	"live-auction/internal/scheduler"
	"live-auction/internal/validator"
	"live-auction/utils"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
)

// Broadcaster is the fan-out the service publishes to: per-auction events and global
// announcements.
type Broadcaster interface {
	Publish(auctionID string, ev model.Event)
	Announce(ev model.Event)
}

// BidRequest is one place-bid submission. RequestID is optional; when set, a repeat of
// the same id is refused with biddingerrors.ErrDuplicateBid.
type BidRequest struct {
	RequestID  string
	AuctionID  string
	BidderID   string
	BidderName string
	Amount     decimal.Decimal
}

// Option customizes a BiddingService.
type Option func(*BiddingService)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *BiddingService) { s.clock = clk }
}

// WithDedupe enables request id de-duplication for PlaceBid.
func WithDedupe(guard dedupe.Guard) Option {
	return func(s *BiddingService) { s.dedupe = guard }
}

// BiddingService coordinates bid submissions and exposes the auction operations the
// HTTP layer needs.
//
// Bids for one auction are validated and committed one at a time under that auction's
// token; lifecycle transitions take the same token. Different auctions never contend.
type BiddingService struct {
	repo      repository.AuctionDB
	events    Broadcaster
	clock     clock.Clock
	dedupe    dedupe.Guard
	tokens    *auctionlock.Tokens
	ledger    *ledger.Ledger
	lifecycle *lifecycle.Manager
	scheduler *scheduler.Scheduler
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, events Broadcaster, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:   repo,
		events: events,
		clock:  clock.New(),
		tokens: auctionlock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ledger = ledger.New(repo)
	s.lifecycle = lifecycle.New(repo, s.tokens, s.ledger, events, s.clock)
	s.scheduler = scheduler.New(s.clock, s.lifecycle, events)
	return s
}

// PlaceBid de-duplicates req by its request id and submits it.
func (s *BiddingService) PlaceBid(ctx context.Context, req BidRequest) (model.Bid, error) {
	if req.RequestID == "" || s.dedupe == nil {
		return s.SubmitBid(ctx, req.AuctionID, req.BidderID, req.BidderName, req.Amount)
	}

	first, err := s.dedupe.Claim(ctx, req.RequestID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to claim request %s: %w", req.RequestID, err)
	}
	if !first {
		return model.Bid{}, fmt.Errorf("service: %w - request %s", biddingerrors.ErrDuplicateBid, req.RequestID)
	}

	bid, err := s.SubmitBid(ctx, req.AuctionID, req.BidderID, req.BidderName, req.Amount)
	if err != nil {
		// a failed attempt may be retried with the same id
		if relErr := s.dedupe.Release(ctx, req.RequestID); relErr != nil {
			utils.Warn("service: failed to release request id", map[string]any{
				"request_id": req.RequestID,
				"error":      relErr.Error(),
			})
		}
		return model.Bid{}, err
	}
	return bid, nil
}

// SubmitBid validates the candidate amount against the auction's current highest bid
// and commits it. A rejected bid returns a *biddingerrors.RejectionError and changes
// nothing. An accepted bid is queued for fan-out before the auction token is released,
// so subscribers see bids in sequence order.
func (s *BiddingService) SubmitBid(ctx context.Context, auctionID, bidderID, bidderName string, amount decimal.Decimal) (model.Bid, error) {
	auctionID = strings.TrimSpace(auctionID)
	bidderID = strings.TrimSpace(bidderID)
	if auctionID == "" || bidderID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}

	release := s.tokens.Acquire(auctionID)
	defer release()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}

	highest, err := s.ledger.CurrentHighest(ctx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to read highest bid for auction %s: %w", auctionID, err)
	}

	if reason := validator.Validate(auction, highest, amount); reason != "" {
		utils.Info("service: bid rejected", map[string]any{
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"amount":     amount.String(),
			"reason":     reason,
		})
		return model.Bid{}, biddingerrors.Reject(reason, rejectDetail(reason, auction, highest))
	}

	committed, err := s.ledger.Append(ctx, auctionID, model.Bid{
		BidID:      utils.GenerateID(),
		BidderID:   bidderID,
		BidderName: bidderName,
		Amount:     amount,
		Timestamp:  s.clock.Now().UTC(),
	})
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to record bid for auction %s by bidder %s: %w", auctionID, bidderID, err)
	}

	s.events.Publish(auctionID, model.NewBidAcceptedEvent(committed))
	return committed, nil
}

func rejectDetail(reason model.RejectReason, auction model.Auction, highest *model.Bid) string {
	switch reason {
	case model.ReasonAuctionNotLive:
		return fmt.Sprintf("auction is %s", auction.Status)
	case model.ReasonInvalidAmount:
		return fmt.Sprintf("amount must be positive with at most %d decimal places", validator.MonetaryPrecision)
	case model.ReasonBelowStartingPrice:
		return fmt.Sprintf("starting price is %s", auction.StartingPrice)
	case model.ReasonBidTooLow:
		if highest != nil {
			return fmt.Sprintf("current highest bid is %s", highest.Amount)
		}
	}
	return ""
}

// snapshot reads the auction and its bids under the auction token so the highest bid
// and the history agree with each other.
func (s *BiddingService) snapshot(ctx context.Context, auctionID string) (model.AuctionDetails, error) {
	release := s.tokens.Acquire(auctionID)
	defer release()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.AuctionDetails{}, err
	}
	bids, err := s.ledger.History(ctx, auctionID)
	if err != nil {
		return model.AuctionDetails{}, err
	}
	if n := len(bids); n > 0 {
		top := bids[n-1]
		auction.HighestBid = &top
	}
	return model.AuctionDetails{Auction: auction, Bids: bids}, nil
}

// GetAuction returns an auction with its highest bid and full bid list
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (model.AuctionDetails, error) {
	if strings.TrimSpace(auctionID) == "" {
		return model.AuctionDetails{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	details, err := s.snapshot(ctx, auctionID)
	if err != nil {
		return model.AuctionDetails{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return details, nil
}

// CurrentAuction returns the live auction that started first, with its bids
func (s *BiddingService) CurrentAuction(ctx context.Context) (model.AuctionDetails, error) {
	current, err := s.lifecycle.Current(ctx)
	if err != nil {
		return model.AuctionDetails{}, fmt.Errorf("service: failed to find current auction: %w", err)
	}

	details, err := s.snapshot(ctx, current.AuctionID)
	if err != nil {
		return model.AuctionDetails{}, fmt.Errorf("service: failed to get auction %s: %w", current.AuctionID, err)
	}
	return details, nil
}

// BidHistory returns every committed bid for an auction, oldest first
func (s *BiddingService) BidHistory(ctx context.Context, auctionID string) ([]model.Bid, error) {
	details, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return details.Bids, nil
}

// HighestBid returns the current highest bid for an auction
func (s *BiddingService) HighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	details, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Bid{}, err
	}
	if details.Auction.HighestBid == nil {
		return model.Bid{}, fmt.Errorf("service: auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return *details.Auction.HighestBid, nil
}

// UpcomingAuctions lists Scheduled auctions, soonest first, with their countdowns
func (s *BiddingService) UpcomingAuctions(ctx context.Context) ([]model.UpcomingAuction, error) {
	auctions, err := s.lifecycle.Upcoming(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list upcoming auctions: %w", err)
	}

	now := s.clock.Now()
	upcoming := make([]model.UpcomingAuction, 0, len(auctions))
	for _, a := range auctions {
		upcoming = append(upcoming, model.UpcomingAuction{
			Auction:       a,
			TimeRemaining: lifecycle.TimeRemaining(a, now),
		})
	}
	return upcoming, nil
}

// CreateAuction schedules a new auction and arms its start timer
func (s *BiddingService) CreateAuction(ctx context.Context, auction model.Auction) (model.Auction, error) {
	if strings.TrimSpace(auction.AuctionID) == "" {
		auction.AuctionID = utils.GenerateID()
	}

	created, err := s.lifecycle.Create(ctx, auction)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction: %w", err)
	}

	s.scheduler.ScheduleStartNotification(created.AuctionID, created.ScheduledStart)
	return created, nil
}

// CloseAuction closes a live auction ahead of its end condition
func (s *BiddingService) CloseAuction(ctx context.Context, auctionID string) (lifecycle.Transition, error) {
	tr, err := s.lifecycle.Close(ctx, auctionID)
	if err != nil {
		return lifecycle.Transition{}, fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
	}
	if tr.Changed {
		s.scheduler.Disarm(auctionID)
	}
	return tr, nil
}

// CancelAuction closes a Scheduled auction before it starts. Its start timer is
// disarmed first, so no start or auction-starting event is ever emitted for it.
func (s *BiddingService) CancelAuction(ctx context.Context, auctionID string) (lifecycle.Transition, error) {
	s.scheduler.Disarm(auctionID)

	tr, err := s.lifecycle.Cancel(ctx, auctionID)
	if err != nil {
		return lifecycle.Transition{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
	}

	// the start timer won the race: keep the live auction's end timer
	if !tr.Changed && tr.Auction.Status == model.StatusLive {
		if endsAt, ok := tr.Auction.EndsAt(); ok {
			s.scheduler.ScheduleEnd(auctionID, endsAt)
		}
	}
	return tr, nil
}

// ResetLedger drops the cached bid book of an auction so it is reloaded and verified
// from storage on next use. Operators call it after repairing a halted auction.
func (s *BiddingService) ResetLedger(ctx context.Context, auctionID string) error {
	release := s.tokens.Acquire(auctionID)
	defer release()

	if _, err := s.repo.GetAuction(ctx, auctionID); err != nil {
		return fmt.Errorf("service: failed to reset ledger for auction %s: %w", auctionID, err)
	}
	s.ledger.Reset(auctionID)

	if _, err := s.ledger.LastSequence(ctx, auctionID); err != nil {
		return fmt.Errorf("service: ledger for auction %s still unusable: %w", auctionID, err)
	}
	utils.Info("service: ledger reset", map[string]any{"auction_id": auctionID})
	return nil
}

// Rehydrate re-arms the timers of every stored auction after a restart: start timers
// for Scheduled auctions (already due ones fire at once) and end timers for Live ones.
func (s *BiddingService) Rehydrate(ctx context.Context) error {
	auctions, err := s.lifecycle.List(ctx)
	if err != nil {
		return fmt.Errorf("service: failed to rehydrate timers: %w", err)
	}

	armed := 0
	for _, a := range auctions {
		switch a.Status {
		case model.StatusScheduled:
			s.scheduler.ScheduleStartNotification(a.AuctionID, a.ScheduledStart)
			armed++
		case model.StatusLive:
			if endsAt, ok := a.EndsAt(); ok {
				s.scheduler.ScheduleEnd(a.AuctionID, endsAt)
				armed++
			}
		}
	}
	utils.Info("service: timers rehydrated", map[string]any{"auctions": len(auctions), "armed": armed})
	return nil
}

// Stop disarms every timer. In-flight transitions finish before it returns.
func (s *BiddingService) Stop() {
	s.scheduler.Stop()
}

// IsRejection reports whether err is a validation rejection rather than a failure.
func IsRejection(err error) bool {
	var rej *biddingerrors.RejectionError
	return errors.As(err, &rej)
}
