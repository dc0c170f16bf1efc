package dto

type IssueTokenRequest struct {
	Identity string `json:"identity"`
}

type MakePaymentRequest struct {
	Merchant string `json:"merchant"`
	Amount   int64  `json:"amount"`
}

type ResolveDisputeRequest struct {
	RefundToPayer bool `json:"refund_to_payer"`
	// Merchant must match the payment record; it is a cross-check, not
	// a lookup key.
	Merchant string `json:"merchant"`
}

type WithdrawRequest struct {
	Amount int64 `json:"amount"`
}
