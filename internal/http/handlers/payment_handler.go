package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/merchant-escrow/backend/internal/http/dto"
	"github.com/merchant-escrow/backend/internal/middleware"
	"github.com/merchant-escrow/backend/internal/repositories"
	"github.com/merchant-escrow/backend/internal/services"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	escrowService *services.EscrowService
	payoutRepo    *repositories.PayoutRepo
	log           *zap.Logger
}

func NewPaymentHandler(escrowService *services.EscrowService, payoutRepo *repositories.PayoutRepo, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{escrowService: escrowService, payoutRepo: payoutRepo, log: log}
}

func (h *PaymentHandler) MakePayment(c *fiber.Ctx) error {
	caller := middleware.GetIdentity(c)

	var req dto.MakePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Merchant == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "merchant is required"})
	}

	payment, err := h.escrowService.MakePayment(c.Context(), caller, req.Merchant, req.Amount)
	if err != nil {
		return engineError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	payment, err := h.escrowService.Payment(c.Params("id"))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *PaymentHandler) Release(c *fiber.Ctx) error {
	caller := middleware.GetIdentity(c)
	payment, err := h.escrowService.ReleasePayment(c.Context(), caller, c.Params("id"))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *PaymentHandler) Dispute(c *fiber.Ctx) error {
	caller := middleware.GetIdentity(c)
	payment, err := h.escrowService.DisputePayment(c.Context(), caller, c.Params("id"))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *PaymentHandler) Resolve(c *fiber.Ctx) error {
	caller := middleware.GetIdentity(c)

	var req dto.ResolveDisputeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Merchant == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "merchant is required"})
	}

	payment, err := h.escrowService.ResolveDispute(c.Context(), caller, c.Params("id"), req.RefundToPayer, req.Merchant)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *PaymentHandler) Withdraw(c *fiber.Ctx) error {
	caller := middleware.GetIdentity(c)

	var req dto.WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	instruction, err := h.escrowService.Withdraw(c.Context(), caller, req.Amount)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: instruction})
}

func (h *PaymentHandler) ListWithdrawals(c *fiber.Ctx) error {
	caller := middleware.GetIdentity(c)

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	payouts, err := h.payoutRepo.ListByRecipient(c.Context(), caller, limit, offset)
	if err != nil {
		h.log.Error("failed to list payouts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payouts})
}

func (h *PaymentHandler) GetEvents(c *fiber.Ctx) error {
	entries, err := h.escrowService.PaymentEvents(c.Context(), c.Params("id"))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
