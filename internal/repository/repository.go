package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"live-auction/internal/biddingerrors"
	model "live-auction/internal/models"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// AuctionDB defines the storage collaborator the auction core needs: one record per
// auction and one append-only record per bid keyed by (auctionID, sequenceNumber).
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context) ([]model.Auction, error)
	UpdateAuctionStatus(ctx context.Context, auctionID string, status model.AuctionStatus, at time.Time) error
	AppendBid(ctx context.Context, bid model.Bid) error
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu       sync.RWMutex
	auctions map[string]model.Auction       // key: auctionID -> value: auction
	bids     map[string][]model.Bid         // key: auctionID -> value: bids in sequence order
	seqs     map[string]map[uint64]struct{} // key: auctionID -> recorded sequence numbers
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]model.Auction),
		bids:     make(map[string][]model.Bid),
		seqs:     make(map[string]map[uint64]struct{}),
	}
}

// CreateAuction stores a new auction record
func (r *MemoryRepo) CreateAuction(ctx context.Context, auction model.Auction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(auction.AuctionID) == "" {
		return fmt.Errorf("create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
	}
	auction.HighestBid = nil
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns one auction record
func (r *MemoryRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if err := ctx.Err(); err != nil {
		return model.Auction{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// ListAuctions returns every auction ordered by scheduled start
func (r *MemoryRepo) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	auctions := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		auctions = append(auctions, a)
	}
	sort.Slice(auctions, func(i, j int) bool {
		if auctions[i].ScheduledStart.Equal(auctions[j].ScheduledStart) {
			return auctions[i].AuctionID < auctions[j].AuctionID
		}
		return auctions[i].ScheduledStart.Before(auctions[j].ScheduledStart)
	})
	return auctions, nil
}

// UpdateAuctionStatus records a lifecycle transition
func (r *MemoryRepo) UpdateAuctionStatus(ctx context.Context, auctionID string, status model.AuctionStatus, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("update auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	auction.Status = status
	stamp := at.UTC()
	switch status {
	case model.StatusLive:
		auction.StartedAt = &stamp
	case model.StatusClosed:
		auction.ClosedAt = &stamp
	}
	r.auctions[auctionID] = auction
	return nil
}

// AppendBid records a committed bid. A sequence number can be recorded only once per auction.
func (r *MemoryRepo) AppendBid(ctx context.Context, bid model.Bid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[bid.AuctionID]; !ok {
		return fmt.Errorf("append bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}

	seen, ok := r.seqs[bid.AuctionID]
	if !ok {
		seen = make(map[uint64]struct{})
		r.seqs[bid.AuctionID] = seen
	}
	if _, dup := seen[bid.SequenceNumber]; dup {
		return fmt.Errorf("append bid %d for auction %s: %w", bid.SequenceNumber, bid.AuctionID, biddingerrors.ErrDuplicateSequence)
	}
	seen[bid.SequenceNumber] = struct{}{}

	bids := append(r.bids[bid.AuctionID], bid)
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].SequenceNumber < bids[j].SequenceNumber })
	r.bids[bid.AuctionID] = bids
	return nil
}

// GetBidsByAuction returns all bids for an auction in sequence order
func (r *MemoryRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return append([]model.Bid(nil), r.bids[auctionID]...), nil
}
