package escrow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/merchant-escrow/backend/internal/events"
	"github.com/merchant-escrow/backend/internal/models"
)

const (
	holdingPeriod = 24 * time.Hour
	disputePeriod = 7 * 24 * time.Hour

	arbitrator = "arbitrator-1"
	merchantA  = "merchant-a"
	customerC  = "customer-c"
	strangerX  = "stranger-x"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type failingTreasury struct{}

func (failingTreasury) Transfer(context.Context, models.PayoutInstruction) error {
	return errors.New("settlement rail down")
}

func newTestEngine(t *testing.T) (*Engine, *MemoryTreasury, *capturePublisher, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	treasury := NewMemoryTreasury()
	publisher := &capturePublisher{}
	engine := NewEngine(Config{
		HoldingPeriod: holdingPeriod,
		DisputePeriod: disputePeriod,
		Arbitrator:    arbitrator,
		Now:           clock.Now,
	}, treasury, publisher, nil)
	return engine, treasury, publisher, clock
}

func mustRegister(t *testing.T, e *Engine, identity string) {
	t.Helper()
	if _, err := e.RegisterMerchant(context.Background(), identity); err != nil {
		t.Fatalf("RegisterMerchant(%s): %v", identity, err)
	}
}

func mustPay(t *testing.T, e *Engine, payer, merchant string, amount int64) models.Payment {
	t.Helper()
	p, err := e.MakePayment(context.Background(), payer, merchant, amount)
	if err != nil {
		t.Fatalf("MakePayment(%s -> %s, %d): %v", payer, merchant, amount, err)
	}
	return p
}

func TestRegisterMerchant(t *testing.T) {
	engine, _, publisher, _ := newTestEngine(t)
	ctx := context.Background()

	account, err := engine.RegisterMerchant(ctx, merchantA)
	if err != nil {
		t.Fatalf("RegisterMerchant: %v", err)
	}
	if !account.Registered {
		t.Error("account should be registered")
	}
	if account.TotalBalance != 0 || account.WithdrawableBalance != 0 {
		t.Errorf("new account should have zero balances, got total=%d withdrawable=%d",
			account.TotalBalance, account.WithdrawableBalance)
	}

	stats := engine.MerchantStats(merchantA)
	if !stats.Registered {
		t.Error("stats should report registered")
	}

	if _, err := engine.RegisterMerchant(ctx, merchantA); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("double registration: got %v, want ErrAlreadyRegistered", err)
	}

	got := publisher.types()
	if len(got) != 1 || got[0] != events.EventMerchantRegistered {
		t.Errorf("expected single merchant_registered event, got %v", got)
	}
}

func TestMerchantStatsUnknownIdentity(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	stats := engine.MerchantStats(strangerX)
	if stats.Registered || stats.TotalBalance != 0 || stats.WithdrawableBalance != 0 {
		t.Errorf("unknown identity should get zero stats, got %+v", stats)
	}
}

func TestMakePayment(t *testing.T) {
	engine, _, publisher, _ := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)

	payment := mustPay(t, engine, customerC, merchantA, 100)
	if payment.Status != models.PaymentStatusPending {
		t.Errorf("status = %s, want pending", payment.Status)
	}
	if payment.Payer != customerC || payment.Merchant != merchantA || payment.Amount != 100 {
		t.Errorf("payment fields wrong: %+v", payment)
	}
	if got := payment.HoldingDeadline.Sub(payment.CreatedAt); got != holdingPeriod {
		t.Errorf("holding deadline offset = %v, want %v", got, holdingPeriod)
	}
	if got := payment.DisputeDeadline.Sub(payment.CreatedAt); got != disputePeriod {
		t.Errorf("dispute deadline offset = %v, want %v", got, disputePeriod)
	}

	stats := engine.MerchantStats(merchantA)
	if stats.TotalBalance != 100 {
		t.Errorf("total = %d, want 100", stats.TotalBalance)
	}
	if stats.WithdrawableBalance != 0 {
		t.Errorf("withdrawable = %d, want 0 before release", stats.WithdrawableBalance)
	}

	if _, err := engine.MakePayment(ctx, customerC, merchantA, 0); !errors.Is(err, ErrAmountZero) {
		t.Errorf("zero amount: got %v, want ErrAmountZero", err)
	}
	if _, err := engine.MakePayment(ctx, customerC, merchantA, -5); !errors.Is(err, ErrAmountZero) {
		t.Errorf("negative amount: got %v, want ErrAmountZero", err)
	}

	if _, err := engine.MakePayment(ctx, customerC, strangerX, 100); !errors.Is(err, ErrMerchantNotRegistered) {
		t.Errorf("unregistered merchant: got %v, want ErrMerchantNotRegistered", err)
	}
	if stats := engine.MerchantStats(strangerX); stats.TotalBalance != 0 {
		t.Error("failed payment must not create balance for unregistered merchant")
	}

	types := publisher.types()
	received := 0
	for _, typ := range types {
		if typ == events.EventPaymentReceived {
			received++
		}
	}
	if received != 1 {
		t.Errorf("expected exactly 1 payment_received event, got %d (%v)", received, types)
	}
}

func TestPaymentIDsUniqueForIdenticalPayments(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	mustRegister(t, engine, merchantA)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		p := mustPay(t, engine, customerC, merchantA, 100)
		if seen[p.ID] {
			t.Fatalf("duplicate payment id %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestReleasePayment(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	if _, err := engine.ReleasePayment(ctx, merchantA, payment.ID); !errors.Is(err, ErrHoldingPeriodNotElapsed) {
		t.Errorf("early release: got %v, want ErrHoldingPeriodNotElapsed", err)
	}
	if stats := engine.MerchantStats(merchantA); stats.WithdrawableBalance != 0 {
		t.Error("failed release must not credit withdrawable balance")
	}

	clock.Advance(holdingPeriod + time.Second)

	if _, err := engine.ReleasePayment(ctx, strangerX, payment.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("release by non-merchant: got %v, want ErrUnauthorized", err)
	}
	if _, err := engine.ReleasePayment(ctx, customerC, payment.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("release by payer: got %v, want ErrUnauthorized", err)
	}
	if _, err := engine.ReleasePayment(ctx, merchantA, "no-such-id"); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("release unknown id: got %v, want ErrPaymentNotFound", err)
	}

	released, err := engine.ReleasePayment(ctx, merchantA, payment.ID)
	if err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}
	if released.Status != models.PaymentStatusReleased {
		t.Errorf("status = %s, want released", released.Status)
	}
	if stats := engine.MerchantStats(merchantA); stats.WithdrawableBalance != 100 {
		t.Errorf("withdrawable = %d, want 100", stats.WithdrawableBalance)
	}

	// Exactly once.
	if _, err := engine.ReleasePayment(ctx, merchantA, payment.ID); !errors.Is(err, ErrWrongState) {
		t.Errorf("second release: got %v, want ErrWrongState", err)
	}
	if stats := engine.MerchantStats(merchantA); stats.WithdrawableBalance != 100 {
		t.Error("failed second release must not credit again")
	}
}

func TestReleaseAtExactHoldingDeadline(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	clock.Advance(holdingPeriod)
	if _, err := engine.ReleasePayment(context.Background(), merchantA, payment.ID); err != nil {
		t.Errorf("release exactly at deadline should succeed, got %v", err)
	}
}

func TestDisputePayment(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	if _, err := engine.DisputePayment(ctx, strangerX, payment.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("dispute by non-payer: got %v, want ErrUnauthorized", err)
	}
	if _, err := engine.DisputePayment(ctx, merchantA, payment.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("dispute by merchant: got %v, want ErrUnauthorized", err)
	}
	if _, err := engine.DisputePayment(ctx, customerC, "no-such-id"); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("dispute unknown id: got %v, want ErrPaymentNotFound", err)
	}

	disputed, err := engine.DisputePayment(ctx, customerC, payment.ID)
	if err != nil {
		t.Fatalf("DisputePayment: %v", err)
	}
	if disputed.Status != models.PaymentStatusDisputed {
		t.Errorf("status = %s, want disputed", disputed.Status)
	}

	if _, err := engine.DisputePayment(ctx, customerC, payment.ID); !errors.Is(err, ErrWrongState) {
		t.Errorf("second dispute: got %v, want ErrWrongState", err)
	}
}

func TestDisputeAfterDeadlineExpires(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	clock.Advance(disputePeriod + time.Second)
	if _, err := engine.DisputePayment(context.Background(), customerC, payment.ID); !errors.Is(err, ErrDisputePeriodExpired) {
		t.Errorf("late dispute: got %v, want ErrDisputePeriodExpired", err)
	}
}

func TestDisputeAtExactDeadline(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	clock.Advance(disputePeriod)
	if _, err := engine.DisputePayment(context.Background(), customerC, payment.ID); err != nil {
		t.Errorf("dispute exactly at deadline should succeed, got %v", err)
	}
}

func TestDisputeAfterHoldingPeriodStillPending(t *testing.T) {
	// The holding period elapsing does not close the dispute window as
	// long as the merchant has not actually released.
	engine, _, _, clock := newTestEngine(t)
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	clock.Advance(holdingPeriod + time.Hour)
	if _, err := engine.DisputePayment(context.Background(), customerC, payment.ID); err != nil {
		t.Errorf("dispute of still-pending payment after holding period: %v", err)
	}
}

func TestReleasedPaymentCannotBeDisputed(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	clock.Advance(holdingPeriod + time.Second)
	if _, err := engine.ReleasePayment(ctx, merchantA, payment.ID); err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}

	// Dispute deadline has not passed, but the payment left pending.
	if _, err := engine.DisputePayment(ctx, customerC, payment.ID); !errors.Is(err, ErrWrongState) {
		t.Errorf("dispute after release: got %v, want ErrWrongState", err)
	}
}

func TestDisputedPaymentCannotBeReleased(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	if _, err := engine.DisputePayment(ctx, customerC, payment.ID); err != nil {
		t.Fatalf("DisputePayment: %v", err)
	}
	clock.Advance(holdingPeriod + time.Second)
	if _, err := engine.ReleasePayment(ctx, merchantA, payment.ID); !errors.Is(err, ErrWrongState) {
		t.Errorf("release of disputed payment: got %v, want ErrWrongState", err)
	}
}

func TestResolveDisputeRefund(t *testing.T) {
	engine, treasury, _, _ := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)
	if _, err := engine.DisputePayment(ctx, customerC, payment.ID); err != nil {
		t.Fatalf("DisputePayment: %v", err)
	}

	resolved, err := engine.ResolveDispute(ctx, arbitrator, payment.ID, true, merchantA)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if resolved.Status != models.PaymentStatusResolved {
		t.Errorf("status = %s, want resolved", resolved.Status)
	}
	if resolved.RefundedToPayer == nil || !*resolved.RefundedToPayer {
		t.Error("resolution should record refund to payer")
	}

	if got := treasury.Balance(customerC); got != 100 {
		t.Errorf("payer received %d, want 100", got)
	}
	stats := engine.MerchantStats(merchantA)
	if stats.TotalBalance != 0 {
		t.Errorf("total after refund = %d, want 0", stats.TotalBalance)
	}
	if stats.WithdrawableBalance != 0 {
		t.Errorf("withdrawable after refund = %d, want 0", stats.WithdrawableBalance)
	}

	// Terminal: no second settlement of the same payment.
	if _, err := engine.ResolveDispute(ctx, arbitrator, payment.ID, false, merchantA); !errors.Is(err, ErrWrongState) {
		t.Errorf("second resolution: got %v, want ErrWrongState", err)
	}
	if got := treasury.Balance(customerC); got != 100 {
		t.Errorf("payer balance changed on failed re-resolution: %d", got)
	}
}

func TestResolveDisputeReleaseToMerchant(t *testing.T) {
	engine, treasury, _, _ := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)
	if _, err := engine.DisputePayment(ctx, customerC, payment.ID); err != nil {
		t.Fatalf("DisputePayment: %v", err)
	}

	resolved, err := engine.ResolveDispute(ctx, arbitrator, payment.ID, false, merchantA)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if resolved.Status != models.PaymentStatusResolved {
		t.Errorf("status = %s, want resolved", resolved.Status)
	}

	stats := engine.MerchantStats(merchantA)
	if stats.WithdrawableBalance != 100 {
		t.Errorf("withdrawable = %d, want 100", stats.WithdrawableBalance)
	}
	if stats.TotalBalance != 100 {
		t.Errorf("total = %d, want 100", stats.TotalBalance)
	}
	if got := treasury.Balance(customerC); got != 0 {
		t.Errorf("payer should not be paid on merchant-favouring resolution, got %d", got)
	}
}

func TestResolveDisputeGuards(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	// Not disputed yet.
	if _, err := engine.ResolveDispute(ctx, arbitrator, payment.ID, true, merchantA); !errors.Is(err, ErrWrongState) {
		t.Errorf("resolve pending payment: got %v, want ErrWrongState", err)
	}

	if _, err := engine.DisputePayment(ctx, customerC, payment.ID); err != nil {
		t.Fatalf("DisputePayment: %v", err)
	}

	if _, err := engine.ResolveDispute(ctx, merchantA, payment.ID, true, merchantA); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("resolve by merchant: got %v, want ErrUnauthorized", err)
	}
	if _, err := engine.ResolveDispute(ctx, customerC, payment.ID, true, merchantA); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("resolve by payer: got %v, want ErrUnauthorized", err)
	}
	if _, err := engine.ResolveDispute(ctx, arbitrator, "no-such-id", true, merchantA); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("resolve unknown id: got %v, want ErrPaymentNotFound", err)
	}
	if _, err := engine.ResolveDispute(ctx, arbitrator, payment.ID, true, strangerX); !errors.Is(err, ErrMerchantMismatch) {
		t.Errorf("resolve with wrong merchant: got %v, want ErrMerchantMismatch", err)
	}

	// All failed attempts above must leave the dispute live.
	got, err := engine.Payment(payment.ID)
	if err != nil {
		t.Fatalf("Payment: %v", err)
	}
	if got.Status != models.PaymentStatusDisputed {
		t.Errorf("status after failed resolutions = %s, want disputed", got.Status)
	}
}

func TestRefundTransferFailureLeavesStateUnchanged(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine := NewEngine(Config{
		HoldingPeriod: holdingPeriod,
		DisputePeriod: disputePeriod,
		Arbitrator:    arbitrator,
		Now:           clock.Now,
	}, failingTreasury{}, nil, nil)
	ctx := context.Background()

	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)
	if _, err := engine.DisputePayment(ctx, customerC, payment.ID); err != nil {
		t.Fatalf("DisputePayment: %v", err)
	}

	if _, err := engine.ResolveDispute(ctx, arbitrator, payment.ID, true, merchantA); err == nil {
		t.Fatal("expected refund to fail when treasury is down")
	}

	got, err := engine.Payment(payment.ID)
	if err != nil {
		t.Fatalf("Payment: %v", err)
	}
	if got.Status != models.PaymentStatusDisputed {
		t.Errorf("status = %s, want disputed after failed refund", got.Status)
	}
	if stats := engine.MerchantStats(merchantA); stats.TotalBalance != 100 {
		t.Errorf("total = %d, want 100 after failed refund", stats.TotalBalance)
	}
}

func TestWithdraw(t *testing.T) {
	engine, treasury, _, clock := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	clock.Advance(holdingPeriod + time.Second)
	if _, err := engine.ReleasePayment(ctx, merchantA, payment.ID); err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}

	if _, err := engine.Withdraw(ctx, strangerX, 10); !errors.Is(err, ErrMerchantNotRegistered) {
		t.Errorf("withdraw by unregistered: got %v, want ErrMerchantNotRegistered", err)
	}
	if _, err := engine.Withdraw(ctx, merchantA, 0); !errors.Is(err, ErrAmountZero) {
		t.Errorf("withdraw zero: got %v, want ErrAmountZero", err)
	}
	if _, err := engine.Withdraw(ctx, merchantA, 101); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("over-withdraw: got %v, want ErrInsufficientFunds", err)
	}
	if stats := engine.MerchantStats(merchantA); stats.WithdrawableBalance != 100 {
		t.Error("failed withdrawals must not touch the balance")
	}

	instruction, err := engine.Withdraw(ctx, merchantA, 100)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if instruction.Amount != 100 || instruction.Recipient != merchantA {
		t.Errorf("instruction = %+v", instruction)
	}
	if instruction.Reason != models.PayoutReasonWithdrawal {
		t.Errorf("reason = %s, want withdrawal", instruction.Reason)
	}
	if got := treasury.Balance(merchantA); got != 100 {
		t.Errorf("merchant received %d, want 100", got)
	}
	if stats := engine.MerchantStats(merchantA); stats.WithdrawableBalance != 0 {
		t.Errorf("withdrawable = %d, want 0 after withdrawal", stats.WithdrawableBalance)
	}

	if _, err := engine.Withdraw(ctx, merchantA, 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("withdraw from empty balance: got %v, want ErrInsufficientFunds", err)
	}
}

func TestWithdrawPartial(t *testing.T) {
	engine, treasury, _, clock := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)
	clock.Advance(holdingPeriod)
	if _, err := engine.ReleasePayment(ctx, merchantA, payment.ID); err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}

	if _, err := engine.Withdraw(ctx, merchantA, 40); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if _, err := engine.Withdraw(ctx, merchantA, 60); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := treasury.Balance(merchantA); got != 100 {
		t.Errorf("merchant received %d over two withdrawals, want 100", got)
	}
	if stats := engine.MerchantStats(merchantA); stats.WithdrawableBalance != 0 {
		t.Errorf("withdrawable = %d, want 0", stats.WithdrawableBalance)
	}
}

func TestWithdrawTransferFailureRestoresBalance(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine := NewEngine(Config{
		HoldingPeriod: holdingPeriod,
		DisputePeriod: disputePeriod,
		Arbitrator:    arbitrator,
		Now:           clock.Now,
	}, failingTreasury{}, nil, nil)
	ctx := context.Background()

	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)
	clock.Advance(holdingPeriod)
	if _, err := engine.ReleasePayment(ctx, merchantA, payment.ID); err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}

	if _, err := engine.Withdraw(ctx, merchantA, 100); err == nil {
		t.Fatal("expected withdrawal to fail when treasury is down")
	}
	if stats := engine.MerchantStats(merchantA); stats.WithdrawableBalance != 100 {
		t.Errorf("withdrawable = %d, want 100 restored after failed transfer", stats.WithdrawableBalance)
	}
}

func TestWithdrawableNeverExceedsTotal(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)

	check := func(step string) {
		t.Helper()
		stats := engine.MerchantStats(merchantA)
		if stats.WithdrawableBalance > stats.TotalBalance {
			t.Fatalf("%s: withdrawable %d > total %d", step, stats.WithdrawableBalance, stats.TotalBalance)
		}
	}

	p1 := mustPay(t, engine, customerC, merchantA, 100)
	p2 := mustPay(t, engine, customerC, merchantA, 50)
	check("after payments")

	if _, err := engine.DisputePayment(ctx, customerC, p2.ID); err != nil {
		t.Fatalf("DisputePayment: %v", err)
	}
	check("after dispute")

	clock.Advance(holdingPeriod + time.Second)
	if _, err := engine.ReleasePayment(ctx, merchantA, p1.ID); err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}
	check("after release")

	if _, err := engine.ResolveDispute(ctx, arbitrator, p2.ID, true, merchantA); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	check("after refund")

	if _, err := engine.Withdraw(ctx, merchantA, 100); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	check("after withdrawal")
}

func TestFullLifecycleScenario(t *testing.T) {
	// Register; pay 100; wait out the holding period; release; withdraw.
	engine, treasury, publisher, clock := newTestEngine(t)
	ctx := context.Background()

	mustRegister(t, engine, merchantA)
	payment := mustPay(t, engine, customerC, merchantA, 100)

	clock.Advance(holdingPeriod + time.Second)
	if _, err := engine.ReleasePayment(ctx, merchantA, payment.ID); err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}
	if stats := engine.MerchantStats(merchantA); stats.WithdrawableBalance != 100 {
		t.Fatalf("withdrawable = %d, want 100", stats.WithdrawableBalance)
	}

	if _, err := engine.Withdraw(ctx, merchantA, 100); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if stats := engine.MerchantStats(merchantA); stats.WithdrawableBalance != 0 {
		t.Errorf("withdrawable = %d, want 0", stats.WithdrawableBalance)
	}
	if got := treasury.Balance(merchantA); got != 100 {
		t.Errorf("merchant external balance = %d, want 100", got)
	}

	want := []string{
		events.EventMerchantRegistered,
		events.EventPaymentReceived,
		events.EventPaymentReleased,
		events.EventPayoutRequested,
	}
	got := publisher.types()
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRestore(t *testing.T) {
	engine, _, _, clock := newTestEngine(t)
	ctx := context.Background()
	mustRegister(t, engine, merchantA)
	p1 := mustPay(t, engine, customerC, merchantA, 100)
	clock.Advance(holdingPeriod)
	if _, err := engine.ReleasePayment(ctx, merchantA, p1.ID); err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}
	released, _ := engine.Payment(p1.ID)

	fresh, _, _, _ := newTestEngine(t)
	fresh.Restore(
		[]models.MerchantAccount{{
			Identity:            merchantA,
			Registered:          true,
			TotalBalance:        100,
			WithdrawableBalance: 100,
		}},
		[]models.Payment{released},
	)

	stats := fresh.MerchantStats(merchantA)
	if !stats.Registered || stats.TotalBalance != 100 || stats.WithdrawableBalance != 100 {
		t.Errorf("restored stats = %+v", stats)
	}
	got, err := fresh.Payment(p1.ID)
	if err != nil {
		t.Fatalf("Payment after restore: %v", err)
	}
	if got.Status != models.PaymentStatusReleased {
		t.Errorf("restored status = %s, want released", got.Status)
	}

	// New payments after restore still get fresh ids.
	p2 := mustPay(t, fresh, customerC, merchantA, 100)
	if p2.ID == p1.ID {
		t.Error("restored engine reused a payment id")
	}
}
