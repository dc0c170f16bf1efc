package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/merchant-escrow/backend/internal/http/dto"
	"github.com/merchant-escrow/backend/internal/middleware"
	"github.com/merchant-escrow/backend/internal/services"
	"go.uber.org/zap"
)

type MerchantHandler struct {
	escrowService *services.EscrowService
	log           *zap.Logger
}

func NewMerchantHandler(escrowService *services.EscrowService, log *zap.Logger) *MerchantHandler {
	return &MerchantHandler{escrowService: escrowService, log: log}
}

func (h *MerchantHandler) Register(c *fiber.Ctx) error {
	caller := middleware.GetIdentity(c)
	account, err := h.escrowService.RegisterMerchant(c.Context(), caller)
	if err != nil {
		return engineError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: account})
}

func (h *MerchantHandler) GetStats(c *fiber.Ctx) error {
	identity := c.Params("identity")
	if identity == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "identity is required"})
	}
	stats := h.escrowService.MerchantStats(identity)
	return c.JSON(dto.SuccessResponse{OK: true, Data: stats})
}
