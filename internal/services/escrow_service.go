package services

import (
	"context"
	"fmt"

	"github.com/merchant-escrow/backend/internal/escrow"
	"github.com/merchant-escrow/backend/internal/models"
	"go.uber.org/zap"
)

// Store interfaces abstract the pgx repositories for testability.

type MerchantStore interface {
	Upsert(ctx context.Context, m models.MerchantAccount) error
	List(ctx context.Context) ([]models.MerchantAccount, error)
}

type PaymentStore interface {
	Upsert(ctx context.Context, p models.Payment) error
	List(ctx context.Context) ([]models.Payment, error)
}

type PayoutStore interface {
	Create(ctx context.Context, p models.PayoutInstruction) error
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)
}

// PayoutTreasury adapts the payout store to the engine's Treasury. A
// stored instruction is the handoff to the external settlement rail.
type PayoutTreasury struct {
	store PayoutStore
}

func NewPayoutTreasury(store PayoutStore) *PayoutTreasury {
	return &PayoutTreasury{store: store}
}

func (t *PayoutTreasury) Transfer(ctx context.Context, instruction models.PayoutInstruction) error {
	return t.store.Create(ctx, instruction)
}

// EscrowService fronts the engine with write-through persistence and
// audit logging. The engine decides; the service records what it
// decided. Persistence failures after an accepted transition are
// logged, not surfaced: the engine remains the authority and the next
// write-through converges the store.
type EscrowService struct {
	engine    *escrow.Engine
	merchants MerchantStore
	payments  PaymentStore
	audit     AuditStore
	log       *zap.Logger
}

func NewEscrowService(engine *escrow.Engine, merchants MerchantStore, payments PaymentStore, audit AuditStore, log *zap.Logger) *EscrowService {
	return &EscrowService{
		engine:    engine,
		merchants: merchants,
		payments:  payments,
		audit:     audit,
		log:       log,
	}
}

// Restore rehydrates the engine from storage. Call once at boot.
func (s *EscrowService) Restore(ctx context.Context) error {
	merchants, err := s.merchants.List(ctx)
	if err != nil {
		return fmt.Errorf("restore merchants: %w", err)
	}
	payments, err := s.payments.List(ctx)
	if err != nil {
		return fmt.Errorf("restore payments: %w", err)
	}
	s.engine.Restore(merchants, payments)
	s.log.Info("engine state restored",
		zap.Int("merchants", len(merchants)),
		zap.Int("payments", len(payments)),
	)
	return nil
}

func (s *EscrowService) RegisterMerchant(ctx context.Context, caller string) (models.MerchantAccount, error) {
	account, err := s.engine.RegisterMerchant(ctx, caller)
	if err != nil {
		return models.MerchantAccount{}, err
	}

	s.persistMerchant(ctx, account)
	s.auditLog(ctx, caller, "merchant", "merchant_registered", "merchant", caller, nil)
	return account, nil
}

func (s *EscrowService) MakePayment(ctx context.Context, payer, merchant string, amount int64) (models.Payment, error) {
	payment, err := s.engine.MakePayment(ctx, payer, merchant, amount)
	if err != nil {
		return models.Payment{}, err
	}

	s.persistPayment(ctx, payment)
	s.persistMerchantByIdentity(ctx, merchant)
	s.auditLog(ctx, payer, "customer", "payment_received", "payment", payment.ID, map[string]any{
		"merchant": merchant,
		"amount":   amount,
	})
	return payment, nil
}

func (s *EscrowService) ReleasePayment(ctx context.Context, caller, id string) (models.Payment, error) {
	payment, err := s.engine.ReleasePayment(ctx, caller, id)
	if err != nil {
		return models.Payment{}, err
	}

	s.persistPayment(ctx, payment)
	s.persistMerchantByIdentity(ctx, payment.Merchant)
	s.auditLog(ctx, caller, "merchant", "payment_status_pending_to_released", "payment", payment.ID, nil)
	return payment, nil
}

func (s *EscrowService) DisputePayment(ctx context.Context, caller, id string) (models.Payment, error) {
	payment, err := s.engine.DisputePayment(ctx, caller, id)
	if err != nil {
		return models.Payment{}, err
	}

	s.persistPayment(ctx, payment)
	s.auditLog(ctx, caller, "customer", "payment_status_pending_to_disputed", "payment", payment.ID, nil)
	return payment, nil
}

func (s *EscrowService) ResolveDispute(ctx context.Context, caller, id string, refundToPayer bool, merchant string) (models.Payment, error) {
	payment, err := s.engine.ResolveDispute(ctx, caller, id, refundToPayer, merchant)
	if err != nil {
		return models.Payment{}, err
	}

	s.persistPayment(ctx, payment)
	s.persistMerchantByIdentity(ctx, payment.Merchant)
	s.auditLog(ctx, caller, "arbitrator", "payment_status_disputed_to_resolved", "payment", payment.ID, map[string]any{
		"refund_to_payer": refundToPayer,
	})
	return payment, nil
}

func (s *EscrowService) Withdraw(ctx context.Context, caller string, amount int64) (models.PayoutInstruction, error) {
	instruction, err := s.engine.Withdraw(ctx, caller, amount)
	if err != nil {
		return models.PayoutInstruction{}, err
	}

	s.persistMerchantByIdentity(ctx, caller)
	s.auditLog(ctx, caller, "merchant", "withdrawal", "payout", instruction.ID.String(), map[string]any{
		"amount": amount,
	})
	return instruction, nil
}

func (s *EscrowService) MerchantStats(identity string) models.MerchantStats {
	return s.engine.MerchantStats(identity)
}

func (s *EscrowService) Payment(id string) (models.Payment, error) {
	return s.engine.Payment(id)
}

func (s *EscrowService) PaymentEvents(ctx context.Context, id string) ([]models.AuditLog, error) {
	if _, err := s.engine.Payment(id); err != nil {
		return nil, err
	}
	return s.audit.GetByEntity(ctx, "payment", id, 100, 0)
}

// --- write-through helpers ---

func (s *EscrowService) persistMerchant(ctx context.Context, account models.MerchantAccount) {
	if err := s.merchants.Upsert(ctx, account); err != nil {
		s.log.Error("persist merchant failed",
			zap.String("identity", account.Identity), zap.Error(err))
	}
}

func (s *EscrowService) persistMerchantByIdentity(ctx context.Context, identity string) {
	account, err := s.engine.MerchantAccount(identity)
	if err != nil {
		s.log.Error("merchant vanished after transition", zap.String("identity", identity))
		return
	}
	s.persistMerchant(ctx, account)
}

func (s *EscrowService) persistPayment(ctx context.Context, payment models.Payment) {
	if err := s.payments.Upsert(ctx, payment); err != nil {
		s.log.Error("persist payment failed",
			zap.String("id", payment.ID), zap.Error(err))
	}
}

func (s *EscrowService) auditLog(ctx context.Context, actor, actorType, action, entityType, entityID string, meta map[string]any) {
	entry := models.AuditLog{
		Actor:      &actor,
		ActorType:  actorType,
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		Meta:       meta,
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
