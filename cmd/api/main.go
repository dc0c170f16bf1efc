package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/merchant-escrow/backend/internal/config"
	"github.com/merchant-escrow/backend/internal/db"
	"github.com/merchant-escrow/backend/internal/escrow"
	"github.com/merchant-escrow/backend/internal/events"
	apphttp "github.com/merchant-escrow/backend/internal/http"
	"github.com/merchant-escrow/backend/internal/http/handlers"
	"github.com/merchant-escrow/backend/internal/repositories"
	"github.com/merchant-escrow/backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	merchantRepo := repositories.NewMerchantRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	bus := events.NewRedisBus(rdb, log)

	// Engine + service
	treasury := services.NewPayoutTreasury(payoutRepo)
	engine := escrow.NewEngine(escrow.Config{
		HoldingPeriod: cfg.HoldingPeriod,
		DisputePeriod: cfg.DisputePeriod,
		Arbitrator:    cfg.ArbitratorIdentity,
	}, treasury, bus, log)

	escrowService := services.NewEscrowService(engine, merchantRepo, paymentRepo, auditRepo, log)
	if err := escrowService.Restore(ctx); err != nil {
		log.Fatal("failed to restore engine state", zap.Error(err))
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg, log)
	merchantHandler := handlers.NewMerchantHandler(escrowService, log)
	paymentHandler := handlers.NewPaymentHandler(escrowService, payoutRepo, log)
	wsHub := handlers.NewWSHub(cfg, bus, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, merchantHandler, paymentHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
