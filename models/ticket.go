package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TicketStatusIssued    = "issued"
	TicketStatusCancelled = "cancelled"

	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

type Ticket struct {
	ID            int64  `db:"id" json:"id"`
	CategoryID    int64  `db:"category_id" json:"category_id"`
	EventID       string `db:"event_id" json:"event_id"`
	TransactionID int64  `db:"transaction_id" json:"transaction_id"`
	SeatNo        int    `db:"seat_no" json:"seat_no"`
	Status        string `db:"status" json:"status"`
}

type Transaction struct {
	ID              int64           `db:"id" json:"id"`
	Reference       string          `db:"reference" json:"reference"`
	UserID          string          `db:"user_id" json:"user_id"`
	PaymentMethodID int64           `db:"payment_method_id" json:"payment_method_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// SeatRange is a block of consecutive seat numbers granted by the ledger.
type SeatRange struct {
	CategoryID int64  `json:"category_id"`
	EventID    string `json:"event_id"`
	First      int    `json:"first"`
	Last       int    `json:"last"`
	Remaining  int    `json:"remaining"`
}

// Seats lists every seat number in the range.
func (r SeatRange) Seats() []int {
	if r.Last < r.First {
		return nil
	}
	seats := make([]int, 0, r.Last-r.First+1)
	for n := r.First; n <= r.Last; n++ {
		seats = append(seats, n)
	}
	return seats
}

// Receipt describes one completed purchase.
type Receipt struct {
	TransactionID   int64           `json:"transaction_id"`
	Reference       string          `json:"reference"`
	UserID          string          `json:"user_id"`
	EventID         string          `json:"event_id"`
	EventName       string          `json:"event_name"`
	CategoryID      int64           `json:"category_id"`
	CategoryName    string          `json:"category_name"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Total           decimal.Decimal `json:"total"`
	Seats           []int           `json:"seats"`
	TicketIDs       []int64         `json:"ticket_ids"`
	PaymentMethodID int64           `json:"payment_method_id"`
	CardLast4       string          `json:"card_last4"`
	PurchasedAt     time.Time       `json:"purchased_at"`
}

// PurchaseRecord is a transaction together with the tickets it issued.
type PurchaseRecord struct {
	Transaction
	Tickets []Ticket `json:"tickets"`
}
