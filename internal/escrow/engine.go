package escrow

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/merchant-escrow/backend/internal/events"
	"github.com/merchant-escrow/backend/internal/models"
	"go.uber.org/zap"
)

// Config fixes the escrow policy at construction time. The periods and
// the arbitrator identity are not mutable afterwards.
type Config struct {
	HoldingPeriod time.Duration
	DisputePeriod time.Duration
	Arbitrator    string
	// Now overrides the clock used for time gates. Nil means time.Now.
	Now func() time.Time
}

// Engine owns the merchant registry, the payment records, and the
// per-merchant balances, and is their sole mutator. Every operation is
// serialized behind a single mutex and either applies fully or fails
// with no state change: all preconditions are checked before the first
// write. Balances are debited before the treasury handoff on the
// refund and withdrawal paths.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	now       func() time.Time
	merchants map[string]*models.MerchantAccount
	payments  map[string]*models.Payment
	seq       uint64
	treasury  Treasury
	publisher events.Publisher
	log       *zap.Logger
}

func NewEngine(cfg Config, treasury Treasury, publisher events.Publisher, log *zap.Logger) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:       cfg,
		now:       now,
		merchants: make(map[string]*models.MerchantAccount),
		payments:  make(map[string]*models.Payment),
		treasury:  treasury,
		publisher: publisher,
		log:       log,
	}
}

// Restore rehydrates engine state from storage. Call before serving
// requests; it replaces whatever the engine currently holds.
func (e *Engine) Restore(merchants []models.MerchantAccount, payments []models.Payment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.merchants = make(map[string]*models.MerchantAccount, len(merchants))
	for _, m := range merchants {
		cp := m
		e.merchants[m.Identity] = &cp
	}
	e.payments = make(map[string]*models.Payment, len(payments))
	for _, p := range payments {
		cp := p
		e.payments[p.ID] = &cp
	}
	// Records are never deleted, so the count keeps the id sequence
	// strictly increasing across restarts.
	e.seq = uint64(len(payments))
}

// RegisterMerchant creates a zero-balance account for the caller.
func (e *Engine) RegisterMerchant(ctx context.Context, caller string) (models.MerchantAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m, ok := e.merchants[caller]; ok && m.Registered {
		return models.MerchantAccount{}, ErrAlreadyRegistered
	}

	account := &models.MerchantAccount{
		Identity:     caller,
		Registered:   true,
		RegisteredAt: e.now(),
	}
	e.merchants[caller] = account

	e.emit(ctx, events.EventMerchantRegistered, map[string]any{
		"identity": caller,
	})
	return *account, nil
}

// MakePayment accepts funds from payer into escrow for merchant. The
// attached amount is assumed to have been transferred in atomically by
// the surrounding transport.
func (e *Engine) MakePayment(ctx context.Context, payer, merchant string, amount int64) (models.Payment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount <= 0 {
		return models.Payment{}, ErrAmountZero
	}
	account, ok := e.merchants[merchant]
	if !ok || !account.Registered {
		return models.Payment{}, ErrMerchantNotRegistered
	}

	now := e.now()
	e.seq++
	payment := &models.Payment{
		ID:              paymentID(payer, merchant, amount, e.seq, now),
		Payer:           payer,
		Merchant:        merchant,
		Amount:          amount,
		Status:          models.PaymentStatusPending,
		CreatedAt:       now,
		HoldingDeadline: now.Add(e.cfg.HoldingPeriod),
		DisputeDeadline: now.Add(e.cfg.DisputePeriod),
	}
	e.payments[payment.ID] = payment
	account.TotalBalance += amount

	e.emit(ctx, events.EventPaymentReceived, map[string]any{
		"id":       payment.ID,
		"payer":    payer,
		"merchant": merchant,
		"amount":   amount,
	})
	return *payment, nil
}

// ReleasePayment moves a pending payment's amount into the merchant's
// withdrawable balance once the holding period has elapsed. Only the
// payment's merchant may release it, and only once.
func (e *Engine) ReleasePayment(ctx context.Context, caller, id string) (models.Payment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payment, ok := e.payments[id]
	if !ok {
		return models.Payment{}, ErrPaymentNotFound
	}
	if payment.Status != models.PaymentStatusPending {
		return models.Payment{}, ErrWrongState
	}
	if caller != payment.Merchant {
		return models.Payment{}, ErrUnauthorized
	}
	now := e.now()
	if now.Before(payment.HoldingDeadline) {
		return models.Payment{}, ErrHoldingPeriodNotElapsed
	}

	e.setStatus(payment, models.PaymentStatusReleased)
	payment.ReleasedAt = &now
	e.merchants[payment.Merchant].WithdrawableBalance += payment.Amount

	e.emit(ctx, events.EventPaymentReleased, map[string]any{
		"id":       payment.ID,
		"merchant": payment.Merchant,
	})
	return *payment, nil
}

// DisputePayment freezes a pending payment for arbitration. Only the
// payer may dispute, and only while the dispute window is open. A
// released payment can no longer be disputed since dispute is reachable
// only from pending.
func (e *Engine) DisputePayment(ctx context.Context, caller, id string) (models.Payment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payment, ok := e.payments[id]
	if !ok {
		return models.Payment{}, ErrPaymentNotFound
	}
	if payment.Status != models.PaymentStatusPending {
		return models.Payment{}, ErrWrongState
	}
	if caller != payment.Payer {
		return models.Payment{}, ErrUnauthorized
	}
	now := e.now()
	if now.After(payment.DisputeDeadline) {
		return models.Payment{}, ErrDisputePeriodExpired
	}

	e.setStatus(payment, models.PaymentStatusDisputed)
	payment.DisputedAt = &now

	e.emit(ctx, events.EventPaymentDisputed, map[string]any{
		"id":    payment.ID,
		"payer": payment.Payer,
	})
	return *payment, nil
}

// ResolveDispute settles a disputed payment. Arbitrator only. With
// refundToPayer the amount goes back out to the payer and the
// merchant's gross receipts are reduced; otherwise the amount clears
// into the merchant's withdrawable balance. The merchant argument is a
// cross-check against the record, not a lookup key.
func (e *Engine) ResolveDispute(ctx context.Context, caller, id string, refundToPayer bool, merchant string) (models.Payment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Arbitrator {
		return models.Payment{}, ErrUnauthorized
	}
	payment, ok := e.payments[id]
	if !ok {
		return models.Payment{}, ErrPaymentNotFound
	}
	if payment.Status != models.PaymentStatusDisputed {
		return models.Payment{}, ErrWrongState
	}
	if merchant != payment.Merchant {
		return models.Payment{}, ErrMerchantMismatch
	}

	now := e.now()
	account := e.merchants[payment.Merchant]

	if refundToPayer {
		// Debit the receipt and commit the status before handing the
		// amount to the treasury, so a reentrant observer sees the
		// payment already settled.
		e.setStatus(payment, models.PaymentStatusResolved)
		payment.ResolvedAt = &now
		payment.RefundedToPayer = &refundToPayer
		account.TotalBalance -= payment.Amount

		pid := payment.ID
		instruction := models.PayoutInstruction{
			ID:        uuid.New(),
			Recipient: payment.Payer,
			Amount:    payment.Amount,
			Reason:    models.PayoutReasonRefund,
			PaymentID: &pid,
			CreatedAt: now,
		}
		if err := e.treasury.Transfer(ctx, instruction); err != nil {
			// Undo so a failed handoff leaves no trace.
			payment.Status = models.PaymentStatusDisputed
			payment.ResolvedAt = nil
			payment.RefundedToPayer = nil
			account.TotalBalance += payment.Amount
			return models.Payment{}, fmt.Errorf("escrow: refund transfer: %w", err)
		}
		e.emit(ctx, events.EventPayoutRequested, map[string]any{
			"payout_id": instruction.ID.String(),
			"recipient": instruction.Recipient,
			"amount":    instruction.Amount,
			"reason":    instruction.Reason,
		})
	} else {
		e.setStatus(payment, models.PaymentStatusResolved)
		payment.ResolvedAt = &now
		payment.RefundedToPayer = &refundToPayer
		account.WithdrawableBalance += payment.Amount
	}

	e.emit(ctx, events.EventPaymentResolved, map[string]any{
		"id":     payment.ID,
		"refund": refundToPayer,
	})
	return *payment, nil
}

// Withdraw pays cleared funds out to the calling merchant. The balance
// is debited before the treasury handoff.
func (e *Engine) Withdraw(ctx context.Context, caller string, amount int64) (models.PayoutInstruction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, ok := e.merchants[caller]
	if !ok || !account.Registered {
		return models.PayoutInstruction{}, ErrMerchantNotRegistered
	}
	if amount <= 0 {
		return models.PayoutInstruction{}, ErrAmountZero
	}
	if amount > account.WithdrawableBalance {
		return models.PayoutInstruction{}, ErrInsufficientFunds
	}

	account.WithdrawableBalance -= amount
	instruction := models.PayoutInstruction{
		ID:        uuid.New(),
		Recipient: caller,
		Amount:    amount,
		Reason:    models.PayoutReasonWithdrawal,
		CreatedAt: e.now(),
	}
	if err := e.treasury.Transfer(ctx, instruction); err != nil {
		account.WithdrawableBalance += amount
		return models.PayoutInstruction{}, fmt.Errorf("escrow: withdrawal transfer: %w", err)
	}

	e.emit(ctx, events.EventPayoutRequested, map[string]any{
		"payout_id": instruction.ID.String(),
		"recipient": instruction.Recipient,
		"amount":    instruction.Amount,
		"reason":    instruction.Reason,
	})
	return instruction, nil
}

// MerchantStats returns the balance view for an identity. Unknown
// identities get the zero value rather than an error.
func (e *Engine) MerchantStats(identity string) models.MerchantStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, ok := e.merchants[identity]
	if !ok {
		return models.MerchantStats{}
	}
	return models.MerchantStats{
		Registered:          account.Registered,
		TotalBalance:        account.TotalBalance,
		WithdrawableBalance: account.WithdrawableBalance,
	}
}

// MerchantAccount returns a copy of the full account record, for
// persistence after an accepted transition.
func (e *Engine) MerchantAccount(identity string) (models.MerchantAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account, ok := e.merchants[identity]
	if !ok {
		return models.MerchantAccount{}, ErrMerchantNotRegistered
	}
	return *account, nil
}

// Payment returns a copy of the record.
func (e *Engine) Payment(id string) (models.Payment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payment, ok := e.payments[id]
	if !ok {
		return models.Payment{}, ErrPaymentNotFound
	}
	return *payment, nil
}

// setStatus enforces the transition table even though each operation
// already guards its own precondition.
func (e *Engine) setStatus(p *models.Payment, next string) {
	if !models.IsValidTransition(p.Status, next) {
		panic(fmt.Sprintf("escrow: invalid transition %s -> %s for payment %s", p.Status, next, p.ID))
	}
	p.Status = next
}

// emit publishes a notification. The event channel is advisory: a
// publish failure is logged and never rolls back an applied transition.
func (e *Engine) emit(ctx context.Context, eventType string, payload map[string]any) {
	if e.publisher == nil {
		return
	}
	err := e.publisher.Publish(ctx, events.StreamEscrow, events.Event{
		Type:    eventType,
		Payload: payload,
	})
	if err != nil && e.log != nil {
		e.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

// paymentID derives a unique id from the parties, the amount, and a
// monotonic sequence plus timestamp, so identical payments still get
// distinct ids.
func paymentID(payer, merchant string, amount int64, seq uint64, at time.Time) string {
	material := fmt.Sprintf("%s|%s|%d|%d|%d", payer, merchant, amount, seq, at.UnixNano())
	return fmt.Sprintf("%x", sha256.Sum256([]byte(material)))
}
