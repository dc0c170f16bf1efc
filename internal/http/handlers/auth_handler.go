package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/merchant-escrow/backend/internal/auth"
	"github.com/merchant-escrow/backend/internal/config"
	"github.com/merchant-escrow/backend/internal/http/dto"
	"go.uber.org/zap"
)

type AuthHandler struct {
	cfg *config.Config
	log *zap.Logger
}

func NewAuthHandler(cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

// IssueToken mints a caller JWT for an identity the upstream identity
// provider has already verified. The provider authenticates itself
// with the shared issuer secret.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	if h.cfg.IssuerSecret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "token issuance is not configured"})
	}

	secret := c.Get("X-Issuer-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.IssuerSecret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "invalid issuer secret"})
	}

	var req dto.IssueTokenRequest
	if err := c.BodyParser(&req); err != nil || req.Identity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "identity is required"})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, req.Identity, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.TokenResponse{Token: token})
}
