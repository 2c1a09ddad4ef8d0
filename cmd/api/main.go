package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/meridianpay/meridian-backend/internal/bridge"
	"github.com/meridianpay/meridian-backend/internal/chain"
	"github.com/meridianpay/meridian-backend/internal/config"
	"github.com/meridianpay/meridian-backend/internal/dispatch"
	"github.com/meridianpay/meridian-backend/internal/domain"
	"github.com/meridianpay/meridian-backend/internal/handler"
	"github.com/meridianpay/meridian-backend/internal/middleware"
	"github.com/meridianpay/meridian-backend/internal/repository/postgres"
	"github.com/meridianpay/meridian-backend/internal/service"
	"github.com/meridianpay/meridian-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Initialize repositories
	batchJobRepo := postgres.NewBatchJobRepository(pool)
	failedItemRepo := postgres.NewFailedItemRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	ledgerRepo := postgres.NewLedgerRepository(pool)
	scheduledRepo := postgres.NewScheduledPaymentRepository(pool)
	scheduledLogRepo := postgres.NewScheduledPaymentLogRepository(pool)
	settlementRepo := postgres.NewSettlementRepository(pool)

	// Chain registry and execution plumbing
	registry := domain.DefaultRegistry()

	signerURL := cfg.RelayerRPCURL
	if signerURL == "" {
		signerURL = cfg.PayoutEngineURL
	}
	transferClient := chain.NewHTTPTransferClient(signerURL, cfg.PayoutEngineTimeout)
	wallet := chain.NewMemoryWallet(1) // Ethereum mainnet by default

	remote := bridge.NewHTTPRemoteEngine(cfg.PayoutEngineURL, cfg.PayoutEngineTimeout)
	breaker := bridge.NewBreaker(cfg.BreakerFailureThreshold, cfg.BreakerCooldown)
	relayer := bridge.NewRelayer(transferClient, registry, cfg.RelayerPrivateKey, cfg.TronPrivateKey, log.Logger)
	execBridge := bridge.NewExecutionBridge(remote, relayer, breaker, registry, cfg.PayoutEngineTimeout, log.Logger)
	router := dispatch.NewRouter(execBridge, wallet, transferClient, registry, log.Logger)

	// WebSocket hub for real-time job and settlement updates
	hub := websocket.NewHub()

	// Initialize services
	batchService := service.NewBatchService(batchJobRepo, failedItemRepo, paymentRepo, ledgerRepo, router, registry, log.Logger)
	batchService.SetEventPublisher(hub)
	retryService := service.NewRetryService(failedItemRepo, batchJobRepo, paymentRepo, ledgerRepo, router, registry, log.Logger)
	scheduleService := service.NewScheduleService(scheduledRepo, scheduledLogRepo, paymentRepo, ledgerRepo, router, registry, log.Logger)
	scheduleService.SetEventPublisher(hub)
	settlementService := service.NewSettlementService(ledgerRepo, settlementRepo, cfg.ReconcileTolerance, log.Logger)
	settlementService.SetEventPublisher(hub)

	// Background sweeper for due scheduled payments
	sweeper := service.NewSweeper(scheduleService, log.Logger, service.SweeperConfig{
		Interval: cfg.SweepInterval,
		Limit:    cfg.SweepLimit,
	})
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.APISecret)
	rateLimiter := middleware.NewRateLimiter()
	defer rateLimiter.Stop()

	// Initialize handlers
	batchHandler := handler.NewBatchHandler(batchService, retryService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService, sweeper)
	settlementHandler := handler.NewSettlementHandler(settlementService)
	opsHandler := handler.NewOpsHandler(execBridge)
	wsHandler := handler.NewWebSocketHandler(hub, cfg.CORSOrigins)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, middleware.WalletHeader, middleware.APISecretHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Register API routes
	handler.RegisterRoutes(e, authMiddleware, rateLimiter, batchHandler, scheduleHandler, settlementHandler, opsHandler, wsHandler)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
