package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout reasons
const (
	PayoutReasonWithdrawal = "withdrawal"
	PayoutReasonRefund     = "refund"
)

// PayoutInstruction is an outbound transfer handed to the external
// settlement rail. The engine debits balances before one is created,
// so the sum of instructions can never exceed what was escrowed.
type PayoutInstruction struct {
	ID        uuid.UUID `json:"id"`
	Recipient string    `json:"recipient"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	PaymentID *string   `json:"payment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
