package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Location struct {
	ID          string `db:"id" json:"id"`
	VenueName   string `db:"venue_name" json:"venue_name"`
	Address     string `db:"address" json:"address"`
	Country     string `db:"country" json:"country"`
	State       string `db:"state" json:"state"`
	PostalCode  string `db:"postal_code" json:"postal_code"`
	Description string `db:"description" json:"description"`
}

type Event struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	StartsAt   time.Time `db:"starts_at" json:"starts_at"`
	EventType  string    `db:"event_type" json:"event_type"`
	LocationID string    `db:"location_id" json:"location_id"`
}

type Image struct {
	ID         int64   `db:"id" json:"id"`
	URL        string  `db:"url" json:"url"`
	Ratio      string  `db:"ratio" json:"ratio"`
	Width      int     `db:"width" json:"width"`
	Height     int     `db:"height" json:"height"`
	EventID    *string `db:"event_id" json:"event_id,omitempty"`
	LocationID *string `db:"location_id" json:"location_id,omitempty"`
}

// TicketCategory is a priced tier of seats for one event.
type TicketCategory struct {
	ID             int64           `db:"id" json:"id"`
	EventID        string          `db:"event_id" json:"event_id"`
	Name           string          `db:"name" json:"name"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Capacity       int             `db:"capacity" json:"capacity"`
	SeatsAvailable int             `db:"seats_available" json:"seats_available"`
	LastSeatNo     int             `db:"last_seat_no" json:"-"`
}

// SoldOut reports whether no seat remains in the category.
func (c TicketCategory) SoldOut() bool {
	return c.SeatsAvailable <= 0
}

// Total is the price of quantity seats of this category.
func (c TicketCategory) Total(quantity int) decimal.Decimal {
	return c.Price.Mul(decimal.NewFromInt(int64(quantity)))
}
