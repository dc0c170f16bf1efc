package escrow

import (
	"context"
	"sync"

	"github.com/merchant-escrow/backend/internal/models"
)

// Treasury hands escrowed funds back out: refunds to payers and
// withdrawals to merchants. The engine debits its own balances before
// calling Transfer, so an implementation observing the engine mid-call
// can never withdraw the same funds twice.
type Treasury interface {
	Transfer(ctx context.Context, instruction models.PayoutInstruction) error
}

// MemoryTreasury accumulates transfers in memory. Used in tests and as
// a stand-in when no settlement rail is configured.
type MemoryTreasury struct {
	mu        sync.Mutex
	transfers []models.PayoutInstruction
}

func NewMemoryTreasury() *MemoryTreasury {
	return &MemoryTreasury{}
}

func (t *MemoryTreasury) Transfer(_ context.Context, instruction models.PayoutInstruction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transfers = append(t.transfers, instruction)
	return nil
}

// Balance is the total amount transferred out to a recipient.
func (t *MemoryTreasury) Balance(recipient string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for _, tr := range t.transfers {
		if tr.Recipient == recipient {
			total += tr.Amount
		}
	}
	return total
}

// Transfers returns a copy of everything paid out so far.
func (t *MemoryTreasury) Transfers() []models.PayoutInstruction {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.PayoutInstruction, len(t.transfers))
	copy(out, t.transfers)
	return out
}
