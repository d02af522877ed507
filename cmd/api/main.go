package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/giftcard-ledger/internal/config"
	"github.com/fairyhunter13/giftcard-ledger/internal/handler"
	"github.com/fairyhunter13/giftcard-ledger/internal/pinguard"
	"github.com/fairyhunter13/giftcard-ledger/internal/repository"
	"github.com/fairyhunter13/giftcard-ledger/internal/security"
	"github.com/fairyhunter13/giftcard-ledger/internal/service"
	"github.com/fairyhunter13/giftcard-ledger/internal/telemetry"
	appvalidator "github.com/fairyhunter13/giftcard-ledger/internal/validator"
	"github.com/fairyhunter13/giftcard-ledger/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	initLogger(cfg)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	if cfg.DB.Migrate {
		if err := database.Migrate(cfg.DB.MigrationURL()); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, database.PoolConfig{
		DSN:        cfg.DB.DSN(),
		MaxConns:   cfg.DB.MaxConns,
		MinConns:   cfg.DB.MinConns,
		MaxRetries: cfg.DB.MaxRetries,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	// PIN throttling is optional; without Redis every attempt reaches bcrypt.
	var (
		redisClient *redis.Client
		guard       service.PINAttemptGuard
		cache       handler.Pinger
	)
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		g := pinguard.New(redisClient, cfg.Card.PINMaxAttempts, cfg.Card.PINLockWindow)
		guard, cache = g, g
		if err := g.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, PIN throttling will fail open")
		}
	} else {
		log.Warn().Msg("REDIS_ADDR not set, PIN throttling disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      "Gift Card Ledger",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(telemetry.Middleware())

	validate := appvalidator.New()

	brandRepo := repository.NewBrandRepository(pool)
	stores := service.Stores{
		Brands:        brandRepo,
		Cards:         repository.NewCardRepository(pool),
		Transactions:  repository.NewTransactionRepository(pool),
		StatusChanges: repository.NewStatusChangeRepository(pool),
	}
	hasher := security.NewPINHasher(cfg.Card.PINHashCost)

	brandService := service.NewBrandService(brandRepo)
	issuer := service.NewCardIssuer(pool, stores, hasher)
	ledger := service.NewLedgerService(pool, stores, hasher, guard)
	resolver := service.NewLookupResolver(stores.Cards, ledger)

	brandHandler := handler.NewBrandHandler(brandService, validate)
	cardHandler := handler.NewCardHandler(issuer, ledger, resolver, validate)
	healthHandler := handler.NewHealthHandler(pool, cache)

	app.Get("/health", healthHandler.Check)

	// Public routes
	app.Get("/api/brands", brandHandler.ListBrands)
	app.Post("/api/cards/lookup", cardHandler.LookupCard)
	app.Post("/api/cards/balance", cardHandler.CheckBalance)
	app.Post("/api/cards/redeem", cardHandler.RedeemCard)

	// Admin routes
	admin := app.Group("/api/admin", handler.AdminAuth(cfg.Server.AdminToken))
	admin.Post("/brands", brandHandler.CreateBrand)
	admin.Patch("/brands/:id", brandHandler.UpdateBrand)
	admin.Delete("/brands/:id", brandHandler.DeleteBrand)
	admin.Post("/cards", cardHandler.IssueCard)
	admin.Get("/cards/:id", cardHandler.GetCard)
	admin.Post("/cards/:id/void", cardHandler.VoidCard)
	admin.Post("/cards/:id/status", cardHandler.SetStatus)
	admin.Post("/cards/:id/adjust", cardHandler.AdjustCard)
	admin.Post("/cards/:id/refund", cardHandler.RefundCard)
	admin.Get("/cards/:id/transactions", cardHandler.ListTransactions)
	admin.Get("/cards/:id/status-history", cardHandler.StatusHistory)
	admin.Get("/cards/:id/audit", cardHandler.AuditCard)
	admin.Get("/cards/:id/scan-payload", cardHandler.ScanPayload)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close stores AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing database connections...")
	pool.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis client")
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error flushing traces")
	}
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
