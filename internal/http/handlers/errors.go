package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/merchant-escrow/backend/internal/escrow"
	"github.com/merchant-escrow/backend/internal/http/dto"
)

// statusForError maps the engine's failure taxonomy onto HTTP codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, escrow.ErrPaymentNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, escrow.ErrAlreadyRegistered),
		errors.Is(err, escrow.ErrWrongState),
		errors.Is(err, escrow.ErrMerchantMismatch):
		return fiber.StatusConflict
	case errors.Is(err, escrow.ErrAmountZero),
		errors.Is(err, escrow.ErrMerchantNotRegistered):
		return fiber.StatusBadRequest
	case errors.Is(err, escrow.ErrHoldingPeriodNotElapsed),
		errors.Is(err, escrow.ErrDisputePeriodExpired),
		errors.Is(err, escrow.ErrInsufficientFunds):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func engineError(c *fiber.Ctx, err error) error {
	code := statusForError(err)
	if code == fiber.StatusInternalServerError {
		return c.Status(code).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.Status(code).JSON(dto.ErrorResponse{Error: err.Error()})
}
