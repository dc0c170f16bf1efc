package models

import "time"

// Payment statuses
const (
	PaymentStatusPending  = "pending"
	PaymentStatusReleased = "released"
	PaymentStatusDisputed = "disputed"
	PaymentStatusResolved = "resolved"
)

// Valid state transitions: from -> []to. Released and resolved are
// terminal; pending is the only entry state.
var ValidPaymentTransitions = map[string][]string{
	PaymentStatusPending:  {PaymentStatusReleased, PaymentStatusDisputed},
	PaymentStatusDisputed: {PaymentStatusResolved},
	PaymentStatusReleased: {},
	PaymentStatusResolved: {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidPaymentTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Payment is a single escrowed payment. Amount is in minor units and
// immutable after creation. Deadlines are derived from CreatedAt once
// and stored so a later config change cannot move the goalposts for
// payments already accepted.
type Payment struct {
	ID              string     `json:"id"`
	Payer           string     `json:"payer"`
	Merchant        string     `json:"merchant"`
	Amount          int64      `json:"amount"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	HoldingDeadline time.Time  `json:"holding_deadline"`
	DisputeDeadline time.Time  `json:"dispute_deadline"`
	ReleasedAt      *time.Time `json:"released_at,omitempty"`
	DisputedAt      *time.Time `json:"disputed_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	// RefundedToPayer is set on resolution: true if the arbitrator
	// returned the funds to the payer, false if they went to the merchant.
	RefundedToPayer *bool `json:"refunded_to_payer,omitempty"`
}
