// Package ledger keeps the append-only, strictly ordered record of accepted bids
// for each auction.
//
// Per-auction state is not synchronized here: every call for a given auction must be
// made while holding that auction's serialization token. The ledger only guards its
// index of books.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"live-auction/internal/biddingerrors"
	model "live-auction/internal/models"
	"live-auction/internal/repository"
	"live-auction/utils"
)

type book struct {
	loaded bool
	bids   []model.Bid
	halted error
}

func (b *book) highest() *model.Bid {
	if len(b.bids) == 0 {
		return nil
	}
	h := b.bids[len(b.bids)-1]
	return &h
}

func (b *book) lastSequence() uint64 {
	if len(b.bids) == 0 {
		return 0
	}
	return b.bids[len(b.bids)-1].SequenceNumber
}

// Ledger commits bids through the storage collaborator and serves the current
// highest bid from memory.
type Ledger struct {
	store repository.AuctionDB

	mu    sync.Mutex
	books map[string]*book
}

// New creates a ledger backed by store.
func New(store repository.AuctionDB) *Ledger {
	return &Ledger{
		store: store,
		books: make(map[string]*book),
	}
}

func (l *Ledger) book(auctionID string) *book {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.books[auctionID]
	if !ok {
		b = &book{}
		l.books[auctionID] = b
	}
	return b
}

// load fills the book from storage the first time it is touched and verifies that the
// stored sequence has no gaps, duplicates or non-increasing amounts.
func (l *Ledger) load(ctx context.Context, auctionID string) (*book, error) {
	b := l.book(auctionID)
	if b.halted != nil {
		return nil, b.halted
	}
	if b.loaded {
		return b, nil
	}

	bids, err := l.store.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load auction %s: %w", auctionID, err)
	}
	if err := verify(bids); err != nil {
		l.halt(b, auctionID, err)
		return nil, b.halted
	}
	b.bids = bids
	b.loaded = true
	return b, nil
}

func verify(bids []model.Bid) error {
	for i, bid := range bids {
		want := uint64(i + 1)
		if bid.SequenceNumber != want {
			return fmt.Errorf("%w: sequence %d found where %d expected", biddingerrors.ErrLedgerCorrupt, bid.SequenceNumber, want)
		}
		if i > 0 && !bid.Amount.GreaterThan(bids[i-1].Amount) {
			return fmt.Errorf("%w: bid %d amount %s does not exceed %s", biddingerrors.ErrLedgerCorrupt, bid.SequenceNumber, bid.Amount, bids[i-1].Amount)
		}
	}
	return nil
}

func (l *Ledger) halt(b *book, auctionID string, cause error) {
	b.halted = fmt.Errorf("ledger: auction %s: %w: %v", auctionID, biddingerrors.ErrLedgerHalted, cause)
	b.loaded = false
	b.bids = nil
	utils.Error("ledger halted, operator intervention required", map[string]any{
		"auction_id": auctionID,
		"error":      cause.Error(),
	})
}

// CurrentHighest returns the most recently committed bid, or nil when none exists.
func (l *Ledger) CurrentHighest(ctx context.Context, auctionID string) (*model.Bid, error) {
	b, err := l.load(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return b.highest(), nil
}

// Append assigns the next sequence number to candidate and persists it. It must only
// be called after validation passed. On storage failure neither the counter nor the
// list changes and the error matches biddingerrors.ErrCommitFailed.
func (l *Ledger) Append(ctx context.Context, auctionID string, candidate model.Bid) (model.Bid, error) {
	b, err := l.load(ctx, auctionID)
	if err != nil {
		return model.Bid{}, err
	}
	if h := b.highest(); h != nil && !candidate.Amount.GreaterThan(h.Amount) {
		return model.Bid{}, fmt.Errorf("ledger: auction %s: %w: amount %s does not exceed %s",
			auctionID, biddingerrors.ErrBidTooLow, candidate.Amount, h.Amount)
	}

	committed := candidate
	committed.AuctionID = auctionID
	committed.SequenceNumber = b.lastSequence() + 1

	if err := l.store.AppendBid(ctx, committed); err != nil {
		if errors.Is(err, biddingerrors.ErrDuplicateSequence) {
			l.halt(b, auctionID, err)
			return model.Bid{}, b.halted
		}
		return model.Bid{}, fmt.Errorf("ledger: auction %s: %w: %v", auctionID, biddingerrors.ErrCommitFailed, err)
	}

	b.bids = append(b.bids, committed)
	return committed, nil
}

// History returns a snapshot of committed bids, oldest first.
func (l *Ledger) History(ctx context.Context, auctionID string) ([]model.Bid, error) {
	b, err := l.load(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return append([]model.Bid(nil), b.bids...), nil
}

// LastSequence returns the sequence number of the latest committed bid, zero when empty.
func (l *Ledger) LastSequence(ctx context.Context, auctionID string) (uint64, error) {
	b, err := l.load(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	return b.lastSequence(), nil
}

// Halted reports the error that stopped commits for auctionID, if any.
func (l *Ledger) Halted(auctionID string) error {
	return l.book(auctionID).halted
}

// Reset discards the cached book so the next call reloads and re-verifies it from
// storage. Operators call it after repairing a halted auction.
func (l *Ledger) Reset(auctionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.books, auctionID)
}
