package bank

import (
	"context"

	"github.com/shopspring/decimal"
)

// BankProvider represents different payment backends
type BankProvider string

const (
	BankSimulated BankProvider = "simulated"
)

// PaymentRequest represents a card charge for one purchase
type PaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	UUID            string          `json:"uuid"`
	ReferenceNumber string          `json:"reference_number"`
	UserID          string          `json:"user_id"`
	CardLast4       string          `json:"card_last4"`
	CardType        string          `json:"card_type"`
	Description     string          `json:"description,omitempty"`
}

// TransactionStatus represents the backend's answer to a charge
type TransactionStatus struct {
	UUID      string          `json:"uuid"`
	RefID     string          `json:"ref_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Timestamp int64           `json:"timestamp"`
}

const (
	StatusApproved = "approved"
	StatusDeclined = "declined"
)

// BankInterface defines the common interface for all payment backends
type BankInterface interface {
	// GetProvider returns the bank provider type
	GetProvider() BankProvider

	// Charge debits the card. A declined charge returns status.ErrFailedPayment.
	Charge(ctx context.Context, req *PaymentRequest) (*TransactionStatus, error)

	// Close gracefully closes any connections
	Close(ctx context.Context) error
}

// BankFactory creates bank instances based on provider type
type BankFactory interface {
	CreateBank(ctx context.Context, provider BankProvider, config any) (BankInterface, error)
	GetSupportedProviders() []BankProvider
}
