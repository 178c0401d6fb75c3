package services

import (
	"context"
	"log/slog"
	"ticketsales/internal/status"
	"ticketsales/internal/store"
	"ticketsales/models"
)

// Ledger is the only writer of a category's remaining seat count. It hands out blocks of
// consecutive seat numbers and never lets the count go below zero.
type Ledger struct {
	store  *store.Store
	logger *slog.Logger
}

func NewLedger(s *store.Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: s, logger: logger}
}

// Reserve takes quantity seats from the category in its own transaction. The seats are
// held against the category without issuing tickets.
func (l *Ledger) Reserve(ctx context.Context, categoryID int64, quantity int) (models.SeatRange, error) {
	var seats models.SeatRange
	err := l.store.InTx(ctx, func(q *store.Queries) error {
		var err error
		seats, err = l.ReserveTx(q, categoryID, quantity)
		return err
	})
	if err != nil {
		return models.SeatRange{}, err
	}
	return seats, nil
}

// ReserveTx takes quantity seats from the category inside the caller's transaction. The
// category row stays locked until that transaction ends, so concurrent reservations for
// the same category run one after another.
func (l *Ledger) ReserveTx(q *store.Queries, categoryID int64, quantity int) (models.SeatRange, error) {
	if quantity <= 0 {
		return models.SeatRange{}, status.ErrInvalidQuantity
	}

	cat, err := q.LockCategory(categoryID)
	if err != nil {
		return models.SeatRange{}, err
	}
	if cat.SeatsAvailable < quantity {
		l.logger.Info("reservation rejected", "category_id", categoryID, "requested", quantity, "available", cat.SeatsAvailable)
		return models.SeatRange{}, status.ErrSoldOut
	}

	// Seats continue after the highest number ever issued, leaving any gaps alone.
	maxIssued, err := q.MaxSeatNo(categoryID)
	if err != nil {
		return models.SeatRange{}, err
	}
	first := max(cat.LastSeatNo, maxIssued) + 1
	last := first + quantity - 1

	ok, err := q.TakeSeats(categoryID, quantity, last)
	if err != nil {
		return models.SeatRange{}, err
	}
	if !ok {
		return models.SeatRange{}, status.ErrSoldOut
	}

	return models.SeatRange{
		CategoryID: categoryID,
		EventID:    cat.EventID,
		First:      first,
		Last:       last,
		Remaining:  cat.SeatsAvailable - quantity,
	}, nil
}

// Availability is a read-only view of a category's remaining seats.
type Availability struct {
	CategoryID int64 `json:"category_id"`
	Capacity   int   `json:"capacity"`
	Remaining  int   `json:"remaining"`
	Issued     int   `json:"issued"`
	SoldOut    bool  `json:"sold_out"`
}

func (l *Ledger) Availability(ctx context.Context, categoryID int64) (Availability, error) {
	q := l.store.Queries(ctx)

	cat, err := q.GetCategory(categoryID)
	if err != nil {
		return Availability{}, err
	}
	issued, err := q.IssuedCount(categoryID)
	if err != nil {
		return Availability{}, err
	}

	return Availability{
		CategoryID: categoryID,
		Capacity:   cat.Capacity,
		Remaining:  cat.SeatsAvailable,
		Issued:     issued,
		SoldOut:    cat.SoldOut(),
	}, nil
}
