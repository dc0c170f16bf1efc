package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/merchant-escrow/backend/internal/config"
	"github.com/merchant-escrow/backend/internal/http/handlers"
	"github.com/merchant-escrow/backend/internal/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	merchantHandler *handlers.MerchantHandler,
	paymentHandler *handlers.PaymentHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Issuer-Secret",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Token issuance (guarded by the issuer secret, not a JWT)
	api.Post("/auth/token", authHandler.IssueToken)

	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Merchants
	protected.Post("/merchants/register", merchantHandler.Register)
	protected.Get("/merchants/:identity", merchantHandler.GetStats)

	// Payments
	protected.Post("/payments", paymentHandler.MakePayment)
	protected.Get("/payments/:id", paymentHandler.GetPayment)
	protected.Post("/payments/:id/release", paymentHandler.Release)
	protected.Post("/payments/:id/dispute", paymentHandler.Dispute)
	protected.Post("/payments/:id/resolve", paymentHandler.Resolve)
	protected.Get("/payments/:id/events", paymentHandler.GetEvents)

	// Withdrawals
	protected.Post("/withdrawals", paymentHandler.Withdraw)
	protected.Get("/withdrawals", paymentHandler.ListWithdrawals)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
