package perftests

import (
	"context"
	"fmt"
	"testing"
	"time"

	bidding "live-auction/internal/biddingService"
	"live-auction/internal/broadcast"
	model "live-auction/internal/models"
	"live-auction/internal/repository"

	"github.com/shopspring/decimal"
)

// setupService creates a bidding service whose repository already holds numAuctions live auctions
// named auction_0 .. auction_<n-1>, each opening at a starting price of 50.
func setupService(b *testing.B, numAuctions int) *bidding.BiddingService {
	b.Helper()
	repo := repository.NewMemoryRepo()
	hub := broadcast.NewHub(broadcast.DefaultBuffer)
	svc := bidding.NewBiddingService(repo, hub)
	b.Cleanup(func() {
		svc.Stop()
		hub.Close()
	})

	started := time.Now().UTC()
	for i := 0; i < numAuctions; i++ {
		err := repo.CreateAuction(context.Background(), model.Auction{
			AuctionID:      auctionID(i),
			Name:           fmt.Sprintf("Benchmark lot %d", i),
			StartingPrice:  decimal.NewFromInt(50),
			ScheduledStart: started,
			Status:         model.StatusLive,
			StartedAt:      &started,
		})
		if err != nil {
			b.Fatalf("failed to seed auction: %v", err)
		}
	}
	return svc
}

func auctionID(i int) string {
	return fmt.Sprintf("auction_%d", i)
}
