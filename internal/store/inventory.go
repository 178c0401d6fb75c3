package store

import (
	"github.com/pocketbase/dbx"
)

// MaxSeatNo is the highest seat number held by any ticket of the category, 0 when none.
func (q *Queries) MaxSeatNo(categoryID int64) (int, error) {
	var max int
	err := q.query(
		"SELECT COALESCE(MAX(seat_no), 0) FROM tickets WHERE category_id = {:cat}"+q.forUpdate(),
		dbx.Params{"cat": categoryID},
	).Row(&max)
	if err != nil {
		return 0, storageErr("max seat", err)
	}
	return max, nil
}

// TakeSeats removes quantity seats from the category and records lastSeat as the highest
// issued seat number. It reports false, without changing anything, when fewer than
// quantity seats remain.
func (q *Queries) TakeSeats(categoryID int64, quantity, lastSeat int) (bool, error) {
	res, err := q.query(
		`UPDATE ticket_categories
		SET seats_available = seats_available - {:qty}, last_seat_no = {:last}
		WHERE id = {:id} AND seats_available >= {:qty}`,
		dbx.Params{"id": categoryID, "qty": quantity, "last": lastSeat},
	).Execute()
	if err != nil {
		return false, storageErr("take seats", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("take seats", err)
	}
	return n == 1, nil
}

// IssuedCount is the number of non-cancelled tickets of the category.
func (q *Queries) IssuedCount(categoryID int64) (int, error) {
	var n int
	err := q.query(
		"SELECT COUNT(*) FROM tickets WHERE category_id = {:cat} AND status <> 'cancelled'",
		dbx.Params{"cat": categoryID},
	).Row(&n)
	if err != nil {
		return 0, storageErr("count tickets", err)
	}
	return n, nil
}
