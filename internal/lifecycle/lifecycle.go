// Package lifecycle owns each auction's state machine:
//
//	Scheduled --start--> Live --close--> Closed
//	Scheduled --cancel--> Closed
//
// Transitions take the same per-auction token the bid coordinator holds while
// committing, so a close never interleaves with a commit and the closing snapshot of
// the highest bid is final.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"live-auction/internal/auctionlock"
	"live-auction/internal/biddingerrors"
	model "live-auction/internal/models"
	"live-auction/internal/repository"
	"live-auction/internal/validator"
	"live-auction/utils"

	"github.com/benbjohnson/clock"
)

// Publisher receives per-auction lifecycle events.
type Publisher interface {
	Publish(auctionID string, ev model.Event)
}

// HighestReader answers the current highest bid of an auction. Callers hold the
// auction's token.
type HighestReader interface {
	CurrentHighest(ctx context.Context, auctionID string) (*model.Bid, error)
}

// Transition is the outcome of a lifecycle request. A request that finds the auction
// already in (or past) the requested state reports Changed=false with Skipped set to
// biddingerrors.ErrAlreadyInState instead of failing.
type Transition struct {
	Auction model.Auction
	From    model.AuctionStatus
	Changed bool
	Skipped error
}

// Manager drives auction state transitions.
type Manager struct {
	repo   repository.AuctionDB
	tokens *auctionlock.Tokens
	ledger HighestReader
	events Publisher
	clock  clock.Clock
}

// New creates a Manager. tokens must be the set shared with the bid coordinator.
func New(repo repository.AuctionDB, tokens *auctionlock.Tokens, ledger HighestReader, events Publisher, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		repo:   repo,
		tokens: tokens,
		ledger: ledger,
		events: events,
		clock:  clk,
	}
}

// Create validates and persists a new auction in the Scheduled state.
func (m *Manager) Create(ctx context.Context, auction model.Auction) (model.Auction, error) {
	if err := checkNewAuction(auction); err != nil {
		return model.Auction{}, err
	}

	auction.Status = model.StatusScheduled
	auction.ScheduledStart = auction.ScheduledStart.UTC()
	auction.HighestBid = nil
	auction.StartedAt = nil
	auction.ClosedAt = nil

	if err := m.repo.CreateAuction(ctx, auction); err != nil {
		return model.Auction{}, fmt.Errorf("lifecycle: create auction %s: %w", auction.AuctionID, err)
	}

	utils.Info("auction scheduled", map[string]any{
		"auction_id":      auction.AuctionID,
		"scheduled_start": auction.ScheduledStart,
		"starting_price":  auction.StartingPrice.String(),
	})
	return auction, nil
}

func checkNewAuction(a model.Auction) error {
	switch {
	case strings.TrimSpace(a.AuctionID) == "":
		return fmt.Errorf("lifecycle: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	case strings.TrimSpace(a.Name) == "":
		return fmt.Errorf("lifecycle: %w - empty name", biddingerrors.ErrInvalidAuction)
	case !a.StartingPrice.IsPositive():
		return fmt.Errorf("lifecycle: %w - starting price must be positive", biddingerrors.ErrInvalidAuction)
	case !validator.WithinPrecision(a.StartingPrice):
		return fmt.Errorf("lifecycle: %w - starting price has more than %d decimal places", biddingerrors.ErrInvalidAuction, validator.MonetaryPrecision)
	case a.ScheduledStart.IsZero():
		return fmt.Errorf("lifecycle: %w - missing scheduled start", biddingerrors.ErrInvalidAuction)
	case a.Duration < 0:
		return fmt.Errorf("lifecycle: %w - negative duration", biddingerrors.ErrInvalidAuction)
	}
	return nil
}

// Start moves a Scheduled auction to Live and emits auction-started.
func (m *Manager) Start(ctx context.Context, auctionID string) (Transition, error) {
	return m.transition(ctx, auctionID, model.StatusScheduled, model.StatusLive)
}

// Close moves a Live auction to Closed and emits auction-closed carrying the final
// highest bid.
func (m *Manager) Close(ctx context.Context, auctionID string) (Transition, error) {
	return m.transition(ctx, auctionID, model.StatusLive, model.StatusClosed)
}

// Cancel closes a Scheduled auction before it ever goes live. The auction-closed
// event carries no winning bid.
func (m *Manager) Cancel(ctx context.Context, auctionID string) (Transition, error) {
	return m.transition(ctx, auctionID, model.StatusScheduled, model.StatusClosed)
}

func (m *Manager) transition(ctx context.Context, auctionID string, from, to model.AuctionStatus) (Transition, error) {
	release := m.tokens.Acquire(auctionID)
	defer release()

	auction, err := m.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return Transition{}, fmt.Errorf("lifecycle: %s auction %s: %w", to, auctionID, err)
	}

	out := Transition{Auction: auction, From: auction.Status}
	if auction.Status != from {
		out.Skipped = biddingerrors.ErrAlreadyInState
		utils.Debug("lifecycle transition skipped", map[string]any{
			"auction_id": auctionID,
			"status":     auction.Status,
			"requested":  to,
		})
		return out, nil
	}

	var final *model.Bid
	if to == model.StatusClosed && from == model.StatusLive {
		final, err = m.ledger.CurrentHighest(ctx, auctionID)
		if err != nil {
			// a halted ledger must not keep the auction open
			utils.Error("lifecycle: highest bid unavailable at close", map[string]any{
				"auction_id": auctionID,
				"error":      err.Error(),
			})
			final = nil
		}
	}

	now := m.clock.Now().UTC()
	if err := m.repo.UpdateAuctionStatus(ctx, auctionID, to, now); err != nil {
		return Transition{}, fmt.Errorf("lifecycle: %s auction %s: %w", to, auctionID, err)
	}

	auction.Status = to
	switch to {
	case model.StatusLive:
		auction.StartedAt = &now
		m.events.Publish(auctionID, model.NewAuctionStartedEvent(auction))
	case model.StatusClosed:
		auction.ClosedAt = &now
		auction.HighestBid = final
		m.events.Publish(auctionID, model.NewAuctionClosedEvent(auctionID, final))
	}

	fields := map[string]any{"auction_id": auctionID, "from": from, "to": to}
	if final != nil {
		fields["winning_bid"] = final.Amount.String()
		fields["winner"] = final.BidderID
	}
	utils.Info("auction transitioned", fields)

	out.Auction = auction
	out.Changed = true
	return out, nil
}

// Get returns the stored auction record.
func (m *Manager) Get(ctx context.Context, auctionID string) (model.Auction, error) {
	auction, err := m.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("lifecycle: get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// List returns every auction ordered by scheduled start.
func (m *Manager) List(ctx context.Context) ([]model.Auction, error) {
	auctions, err := m.repo.ListAuctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list auctions: %w", err)
	}
	return auctions, nil
}

// Upcoming returns the Scheduled auctions, soonest first.
func (m *Manager) Upcoming(ctx context.Context) ([]model.Auction, error) {
	auctions, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	upcoming := make([]model.Auction, 0, len(auctions))
	for _, a := range auctions {
		if a.Status == model.StatusScheduled {
			upcoming = append(upcoming, a)
		}
	}
	return upcoming, nil
}

// Current returns the Live auction that went live first.
func (m *Manager) Current(ctx context.Context) (model.Auction, error) {
	auctions, err := m.List(ctx)
	if err != nil {
		return model.Auction{}, err
	}

	var current *model.Auction
	for i := range auctions {
		a := &auctions[i]
		if a.Status != model.StatusLive {
			continue
		}
		if current == nil || startedAt(*a).Before(startedAt(*current)) {
			current = a
		}
	}
	if current == nil {
		return model.Auction{}, fmt.Errorf("lifecycle: no live auction: %w", biddingerrors.ErrAuctionNotFound)
	}
	return *current, nil
}

func startedAt(a model.Auction) time.Time {
	if a.StartedAt != nil {
		return *a.StartedAt
	}
	return a.ScheduledStart
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time {
	return m.clock.Now().UTC()
}

// TimeRemaining reports how long until the auction's next transition: until start when
// Scheduled, until the end condition when Live with a duration, zero otherwise.
func TimeRemaining(a model.Auction, now time.Time) time.Duration {
	var target time.Time
	switch a.Status {
	case model.StatusScheduled:
		target = a.ScheduledStart
	case model.StatusLive:
		end, ok := a.EndsAt()
		if !ok {
			return 0
		}
		target = end
	default:
		return 0
	}
	if d := target.Sub(now); d > 0 {
		return d
	}
	return 0
}
