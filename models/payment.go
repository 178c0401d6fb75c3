package models

import (
	"strings"
	"time"
)

type PaymentMethod struct {
	ID             int64     `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	CardLast4      string    `db:"card_last4" json:"card_last4"`
	CardType       string    `db:"card_type" json:"card_type"`
	CVVHash        string    `db:"cvv_hash" json:"-"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	BillingAddress string    `db:"billing_address" json:"billing_address"`
	CardHolderName string    `db:"card_holder_name" json:"card_holder_name"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentDetails is what the buyer submits at checkout.
type PaymentDetails struct {
	CardNumber     string `json:"card_number"`
	CardType       string `json:"card_type"`
	CVV            string `json:"cvv"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
	BillingAddress string `json:"billing_address"`
	CardHolderName string `json:"card_holder_name"`
}

// Validate returns a field name and reason for the first malformed field.
func (p PaymentDetails) Validate(now time.Time) (string, string, bool) {
	number := p.Digits()
	if len(number) < 12 || len(number) > 19 || len(number) != len(strings.ReplaceAll(p.CardNumber, " ", "")) {
		return "card_number", "must contain 12 to 19 digits", false
	}
	if len(p.CVV) < 3 || len(p.CVV) > 4 || strings.TrimFunc(p.CVV, isDigit) != "" {
		return "cvv", "must contain 3 or 4 digits", false
	}
	if p.ExpiryMonth < 1 || p.ExpiryMonth > 12 {
		return "expiry_month", "must be between 1 and 12", false
	}
	if !p.ExpiresAt().After(now) {
		return "expiry_year", "card has expired", false
	}
	if strings.TrimSpace(p.CardHolderName) == "" {
		return "card_holder_name", "is required", false
	}
	return "", "", true
}

// Digits strips everything except digits from the card number.
func (p PaymentDetails) Digits() string {
	return strings.Map(func(r rune) rune {
		if isDigit(r) {
			return r
		}
		return -1
	}, p.CardNumber)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Last4 returns the last four card digits.
func (p PaymentDetails) Last4() string {
	d := p.Digits()
	if len(d) <= 4 {
		return d
	}
	return d[len(d)-4:]
}

// ExpiresAt is the first instant after the card's expiry month.
func (p PaymentDetails) ExpiresAt() time.Time {
	return time.Date(p.ExpiryYear, time.Month(p.ExpiryMonth)+1, 1, 0, 0, 0, 0, time.UTC)
}
