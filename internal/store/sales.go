package store

import (
	"ticketsales/internal/status"
	"ticketsales/models"

	"github.com/pocketbase/dbx"
)

const transactionColumns = "id, reference, user_id, payment_method_id, amount, status, created_at"

const ticketColumns = "id, category_id, event_id, transaction_id, seat_no, status"

// SavePaymentMethod stores the user's card, replacing the one saved by an earlier
// purchase. Each user has at most one payment method.
func (q *Queries) SavePaymentMethod(pm models.PaymentMethod) (int64, error) {
	cols := dbx.Params{
		"card_last4":       pm.CardLast4,
		"card_type":        pm.CardType,
		"cvv_hash":         pm.CVVHash,
		"expires_at":       pm.ExpiresAt.UTC(),
		"billing_address":  pm.BillingAddress,
		"card_holder_name": pm.CardHolderName,
		"updated_at":       pm.UpdatedAt.UTC(),
	}

	var id int64
	err := q.query(
		"SELECT id FROM payment_methods WHERE user_id = {:user}"+q.forUpdate(),
		dbx.Params{"user": pm.UserID},
	).Row(&id)
	switch {
	case isNoRows(err):
		cols["user_id"] = pm.UserID
		return q.insert("payment_methods", cols)
	case err != nil:
		return 0, storageErr("find payment method", err)
	}

	if _, err := q.b.Update("payment_methods", cols, dbx.HashExp{"id": id}).WithContext(q.ctx).Execute(); err != nil {
		return 0, storageErr("update payment method", err)
	}
	return id, nil
}

func (q *Queries) GetPaymentMethod(userID string) (*models.PaymentMethod, error) {
	var pm models.PaymentMethod
	err := q.query(
		`SELECT id, user_id, card_last4, card_type, cvv_hash, expires_at, billing_address, card_holder_name, updated_at
		FROM payment_methods WHERE user_id = {:user}`,
		dbx.Params{"user": userID},
	).One(&pm)
	if isNoRows(err) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get payment method", err)
	}
	return &pm, nil
}

// InsertTransaction stores tx and sets its ID.
func (q *Queries) InsertTransaction(tx *models.Transaction) error {
	id, err := q.insert("transactions", dbx.Params{
		"reference":         tx.Reference,
		"user_id":           tx.UserID,
		"payment_method_id": tx.PaymentMethodID,
		"amount":            tx.Amount.StringFixed(2),
		"status":            tx.Status,
		"created_at":        tx.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	tx.ID = id
	return nil
}

// InsertTicket stores t and sets its ID.
func (q *Queries) InsertTicket(t *models.Ticket) error {
	id, err := q.insert("tickets", dbx.Params{
		"category_id":    t.CategoryID,
		"event_id":       t.EventID,
		"transaction_id": t.TransactionID,
		"seat_no":        t.SeatNo,
		"status":         t.Status,
	})
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (q *Queries) GetTransaction(id int64) (*models.Transaction, error) {
	var tx models.Transaction
	err := q.query("SELECT "+transactionColumns+" FROM transactions WHERE id = {:id}", dbx.Params{"id": id}).One(&tx)
	if isNoRows(err) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get transaction", err)
	}
	return &tx, nil
}

// ListTransactions returns the user's transactions, newest first.
func (q *Queries) ListTransactions(userID string) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	err := q.query(
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = {:user} ORDER BY created_at DESC, id DESC",
		dbx.Params{"user": userID},
	).All(&txs)
	if err != nil {
		return nil, storageErr("list transactions", err)
	}
	return txs, nil
}

func (q *Queries) GetTicket(id int64) (*models.Ticket, error) {
	var t models.Ticket
	err := q.query("SELECT "+ticketColumns+" FROM tickets WHERE id = {:id}", dbx.Params{"id": id}).One(&t)
	if isNoRows(err) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get ticket", err)
	}
	return &t, nil
}

func (q *Queries) ListTickets(transactionID int64) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := q.query(
		"SELECT "+ticketColumns+" FROM tickets WHERE transaction_id = {:tx} ORDER BY seat_no",
		dbx.Params{"tx": transactionID},
	).All(&tickets)
	if err != nil {
		return nil, storageErr("list tickets", err)
	}
	return tickets, nil
}

func (q *Queries) ListCategoryTickets(categoryID int64) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := q.query(
		"SELECT "+ticketColumns+" FROM tickets WHERE category_id = {:cat} ORDER BY seat_no",
		dbx.Params{"cat": categoryID},
	).All(&tickets)
	if err != nil {
		return nil, storageErr("list category tickets", err)
	}
	return tickets, nil
}
