package bank

import (
	"context"
	"fmt"
	"time"
	"ticketsales/internal/status"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SimulatedConfig tunes the simulated backend.
type SimulatedConfig struct {
	// DeclineLast4 lists card endings that are always declined.
	DeclineLast4 []string
	// Limit declines charges above it. Zero means no limit.
	Limit decimal.Decimal
}

// SimulatedBank approves every well-formed charge. It stands in for a real card processor.
type SimulatedBank struct {
	decline map[string]bool
	limit   decimal.Decimal
}

func NewSimulatedBank(cfg SimulatedConfig) *SimulatedBank {
	decline := make(map[string]bool, len(cfg.DeclineLast4))
	for _, last4 := range cfg.DeclineLast4 {
		decline[last4] = true
	}
	return &SimulatedBank{decline: decline, limit: cfg.Limit}
}

func (b *SimulatedBank) GetProvider() BankProvider {
	return BankSimulated
}

func (b *SimulatedBank) Charge(ctx context.Context, req *PaymentRequest) (*TransactionStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount", status.ErrFailedPayment)
	}
	if b.decline[req.CardLast4] {
		return nil, fmt.Errorf("%w: card ending %s declined", status.ErrFailedPayment, req.CardLast4)
	}
	if !b.limit.IsZero() && req.Amount.GreaterThan(b.limit) {
		return nil, fmt.Errorf("%w: amount over limit", status.ErrFailedPayment)
	}

	return &TransactionStatus{
		UUID:      req.UUID,
		RefID:     uuid.NewString(),
		Status:    StatusApproved,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Timestamp: time.Now().Unix(),
	}, nil
}

func (b *SimulatedBank) Close(ctx context.Context) error {
	return nil
}
