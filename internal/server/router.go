package server

import (
	"net/http"

	"live-auction/services/bidding/handler"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService handler.BiddingServiceInterface, hub handler.EventHub) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService, hub)

	router.GET("/health", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "healthy")
	})

	auctions := router.Group("/auctions")
	{
		auctions.GET("/current", biddingHandler.GetCurrentAuctionHandler)
		auctions.GET("/upcoming", biddingHandler.GetUpcomingAuctionsHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/highest", biddingHandler.GetHighestBidHandler)
	}

	bids := router.Group("/bids")
	{
		bids.POST("", biddingHandler.RecordBidHandler)
	}

	router.GET("/events", biddingHandler.EventsHandler)

	connections := router.Group("/connections")
	{
		connections.PUT("/:conn_id/subscriptions/:auction_id", biddingHandler.SubscribeHandler)
		connections.DELETE("/:conn_id/subscriptions/:auction_id", biddingHandler.UnsubscribeHandler)
	}

	admin := router.Group("/admin/auctions")
	{
		admin.POST("", biddingHandler.CreateAuctionHandler)
		admin.POST("/:auction_id/close", biddingHandler.CloseAuctionHandler)
		admin.POST("/:auction_id/cancel", biddingHandler.CancelAuctionHandler)
		admin.POST("/:auction_id/ledger/reset", biddingHandler.ResetLedgerHandler)
	}

	return router
}
