package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/meridianpay/meridian-backend/internal/middleware"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter, batchHandler *BatchHandler, scheduleHandler *ScheduleHandler, settlementHandler *SettlementHandler, opsHandler *OpsHandler, wsHandler *WebSocketHandler) {
	// API version 1
	api := e.Group("/api/v1")
	api.Use(authMiddleware.Authenticate())
	api.Use(middleware.RateLimitMiddleware(rateLimiter))

	// Batch job routes
	batches := api.Group("/batches")
	batches.POST("", batchHandler.Submit)
	batches.GET("/:id", batchHandler.Status)
	batches.POST("/:id/approve", batchHandler.Approve)
	batches.POST("/:id/cancel", batchHandler.Cancel)
	batches.GET("/:id/failed-items", batchHandler.FailedItems)

	// Failed item routes
	failedItems := api.Group("/failed-items")
	failedItems.GET("", batchHandler.ListFailedItems)
	failedItems.POST("/retry", batchHandler.Retry)

	// Scheduled payment routes
	schedules := api.Group("/scheduled-payments")
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("", scheduleHandler.List)
	schedules.POST("/sweep", scheduleHandler.Sweep)
	schedules.GET("/:id", scheduleHandler.Get)
	schedules.PUT("/:id", scheduleHandler.Update)
	schedules.POST("/:id/pause", scheduleHandler.Pause)
	schedules.POST("/:id/resume", scheduleHandler.Resume)
	schedules.POST("/:id/cancel", scheduleHandler.Cancel)
	schedules.GET("/:id/logs", scheduleHandler.Logs)

	// Settlement routes
	settlements := api.Group("/settlements")
	settlements.POST("", settlementHandler.Create)
	settlements.GET("", settlementHandler.List)
	settlements.GET("/discrepancies", settlementHandler.ListDiscrepancies)
	settlements.GET("/:id", settlementHandler.Get)
	settlements.POST("/:id/resolve", settlementHandler.Resolve)

	// Operational observability routes
	ops := api.Group("/ops")
	ops.GET("/fallback-events", opsHandler.FallbackEvents)

	// WebSocket endpoint (wallet passed as query parameter)
	e.GET("/ws", wsHandler.HandleWS)
}
