package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSeatRange_Seats(t *testing.T) {
	r := SeatRange{First: 4, Last: 6}
	assert.Equal(t, []int{4, 5, 6}, r.Seats())

	empty := SeatRange{First: 3, Last: 2}
	assert.Empty(t, empty.Seats())
}

func TestTicketCategory_Total(t *testing.T) {
	cat := TicketCategory{Price: decimal.RequireFromString("49.90")}

	assert.True(t, decimal.RequireFromString("149.70").Equal(cat.Total(3)))
	assert.True(t, cat.Total(0).IsZero())
}

func TestTicketCategory_SoldOut(t *testing.T) {
	assert.True(t, TicketCategory{SeatsAvailable: 0}.SoldOut())
	assert.False(t, TicketCategory{SeatsAvailable: 1}.SoldOut())
}

func TestQueueEntry_LeaseActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)
	earlier := now.Add(-time.Minute)

	tests := []struct {
		name  string
		entry QueueEntry
		want  bool
	}{
		{"waiting", QueueEntry{Status: QueueStatusWaiting}, false},
		{"admitted without expiry", QueueEntry{Status: QueueStatusAdmitted}, false},
		{"admitted and valid", QueueEntry{Status: QueueStatusAdmitted, LeaseExpiresAt: &later}, true},
		{"admitted but expired", QueueEntry{Status: QueueStatusAdmitted, LeaseExpiresAt: &earlier}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.LeaseActive(now))
		})
	}
}

func validDetails() PaymentDetails {
	return PaymentDetails{
		CardNumber:     "4111 1111 1111 1111",
		CardType:       "visa",
		CVV:            "123",
		ExpiryMonth:    12,
		ExpiryYear:     2030,
		CardHolderName: "Ada Buyer",
	}
}

func TestPaymentDetails_Validate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, _, ok := validDetails().Validate(now)
	assert.True(t, ok)

	tests := []struct {
		name  string
		edit  func(*PaymentDetails)
		field string
	}{
		{"short card", func(p *PaymentDetails) { p.CardNumber = "4111" }, "card_number"},
		{"letters in card", func(p *PaymentDetails) { p.CardNumber = "4111-1111-1111-1111" }, "card_number"},
		{"cvv letters", func(p *PaymentDetails) { p.CVV = "12a" }, "cvv"},
		{"non-ascii digits in card", func(p *PaymentDetails) { p.CardNumber = "4111111111111١١١" }, "card_number"},
		{"non-ascii digits in cvv", func(p *PaymentDetails) { p.CVV = "١٢" }, "cvv"},
		{"bad month", func(p *PaymentDetails) { p.ExpiryMonth = 13 }, "expiry_month"},
		{"expired", func(p *PaymentDetails) { p.ExpiryYear = 2026; p.ExpiryMonth = 2 }, "expiry_year"},
		{"no holder", func(p *PaymentDetails) { p.CardHolderName = " " }, "card_holder_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := validDetails()
			tt.edit(&details)
			field, _, ok := details.Validate(now)
			assert.False(t, ok)
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestPaymentDetails_Last4(t *testing.T) {
	assert.Equal(t, "1111", validDetails().Last4())
	assert.Equal(t, "12", PaymentDetails{CardNumber: "12"}.Last4())
}

func TestPaymentDetails_ExpiresAt(t *testing.T) {
	p := PaymentDetails{ExpiryMonth: 12, ExpiryYear: 2030}
	assert.Equal(t, time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC), p.ExpiresAt())
}
