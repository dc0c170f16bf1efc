package models

import "time"

// MerchantAccount tracks a registered merchant's balances.
//
// TotalBalance is the lifetime gross inflow of accepted payments; it is
// only reduced when the arbitrator refunds a disputed payment back to
// the payer. WithdrawableBalance is the portion that has cleared
// (released or resolved in the merchant's favour) and not yet been
// withdrawn. WithdrawableBalance <= TotalBalance always holds.
type MerchantAccount struct {
	Identity            string    `json:"identity"`
	Registered          bool      `json:"registered"`
	TotalBalance        int64     `json:"total_balance"`
	WithdrawableBalance int64     `json:"withdrawable_balance"`
	RegisteredAt        time.Time `json:"registered_at"`
}

// MerchantStats is the read-only view returned to callers. Unregistered
// identities get the zero value.
type MerchantStats struct {
	Registered          bool  `json:"registered"`
	TotalBalance        int64 `json:"total_balance"`
	WithdrawableBalance int64 `json:"withdrawable_balance"`
}
