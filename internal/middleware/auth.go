package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/merchant-escrow/backend/internal/auth"
	"github.com/merchant-escrow/backend/internal/config"
	"go.uber.org/zap"
)

const CtxIdentity = "identity"

// AuthMiddleware resolves the authenticated caller identity from the
// bearer token. Every state-changing escrow operation requires it.
func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}
		if claims.Identity == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "token carries no identity"})
		}

		c.Locals(CtxIdentity, claims.Identity)
		return c.Next()
	}
}

func GetIdentity(c *fiber.Ctx) string {
	identity, _ := c.Locals(CtxIdentity).(string)
	return identity
}
