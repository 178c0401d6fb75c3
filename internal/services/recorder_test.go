package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"ticketsales/internal/services/bank"
	"ticketsales/internal/status"
	"ticketsales/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRecorder_PurchaseIssuesTicketsAtomically(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 5, "49.90")
	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}
	rec := newRecorder(s, newTestClock(), nil, notifier, publisher)
	ctx := context.Background()

	receipt, err := rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 3, Payment: validPayment()})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, receipt.Seats)
	assert.Len(t, receipt.TicketIDs, 3)
	assert.True(t, decimal.RequireFromString("149.70").Equal(receipt.Total))
	assert.Equal(t, "1111", receipt.CardLast4)
	assert.Equal(t, "Show E1", receipt.EventName)
	assert.NotEmpty(t, receipt.Reference)

	q := s.Queries(ctx)
	cat, err := q.GetCategory(catID)
	require.NoError(t, err)
	assert.Equal(t, 2, cat.SeatsAvailable)

	tickets, err := q.ListTickets(receipt.TransactionID)
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	for _, ticket := range tickets {
		assert.Equal(t, models.TicketStatusIssued, ticket.Status)
		assert.Equal(t, "E1", ticket.EventID)
	}

	tx, err := q.GetTransaction(receipt.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	assert.True(t, receipt.Total.Equal(tx.Amount))

	pm, err := q.GetPaymentMethod("u1")
	require.NoError(t, err)
	assert.Equal(t, pm.ID, tx.PaymentMethodID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(pm.CVVHash), []byte("123")))

	assert.Len(t, notifier.ofType(NotifyPurchaseComplete), 1)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, PurchaseCompletedEvent, publisher.events[0].Type)
	assert.Equal(t, "149.70", publisher.events[0].Total)
}

func TestRecorder_LastSeatsRace(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 2, "10.00")
	rec := newRecorder(s, newTestClock(), nil, nil, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		receipts []*models.Receipt
		errs     []error
	)
	for _, user := range []string{"a", "b"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			r, err := rec.Purchase(context.Background(), PurchaseRequest{UserID: user, CategoryID: catID, Quantity: 2, Payment: validPayment()})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			receipts = append(receipts, r)
		}(user)
	}
	wg.Wait()

	require.Len(t, receipts, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], status.ErrSoldOut)
	assert.Equal(t, []int{1, 2}, receipts[0].Seats)

	tickets, err := s.Queries(context.Background()).ListCategoryTickets(catID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestRecorder_DeclinedPaymentRollsBack(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 5, "10.00")
	rec := newRecorder(s, newTestClock(), nil, nil, nil)
	rec.bank = bank.NewSimulatedBank(bank.SimulatedConfig{DeclineLast4: []string{"1111"}})
	ctx := context.Background()

	_, err := rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 2, Payment: validPayment()})
	assert.ErrorIs(t, err, status.ErrFailedPayment)

	q := s.Queries(ctx)
	cat, err := q.GetCategory(catID)
	require.NoError(t, err)
	assert.Equal(t, 5, cat.SeatsAvailable)
	assert.Equal(t, 0, cat.LastSeatNo)

	tickets, err := q.ListCategoryTickets(catID)
	require.NoError(t, err)
	assert.Empty(t, tickets)

	txs, err := q.ListTransactions("u1")
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = q.GetPaymentMethod("u1")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestRecorder_RejectsBadInputWithoutSideEffects(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 5, "10.00")
	rec := newRecorder(s, newTestClock(), nil, nil, nil)
	ctx := context.Background()

	_, err := rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 0, Payment: validPayment()})
	assert.ErrorIs(t, err, status.ErrInvalidQuantity)

	bad := validPayment()
	bad.CVV = "1"
	_, err = rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 1, Payment: bad})
	assert.ErrorIs(t, err, status.ErrInvalidPayment)
	var fieldErr *status.FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "cvv", fieldErr.Field)

	_, err = rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: 999, Quantity: 1, Payment: validPayment()})
	assert.ErrorIs(t, err, status.ErrCategoryNotFound)

	cat, err := s.Queries(ctx).GetCategory(catID)
	require.NoError(t, err)
	assert.Equal(t, 5, cat.SeatsAvailable)
}

func TestRecorder_LaterPurchaseReplacesPaymentMethod(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 5, "10.00")
	rec := newRecorder(s, newTestClock(), nil, nil, nil)
	ctx := context.Background()

	first, err := rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 1, Payment: validPayment()})
	require.NoError(t, err)

	card := validPayment()
	card.CardNumber = "5500000000000004"
	card.CardType = "mastercard"
	second, err := rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 1, Payment: card})
	require.NoError(t, err)

	assert.Equal(t, first.PaymentMethodID, second.PaymentMethodID)
	pm, err := s.Queries(ctx).GetPaymentMethod("u1")
	require.NoError(t, err)
	assert.Equal(t, "0004", pm.CardLast4)
	assert.Equal(t, "mastercard", pm.CardType)
}

func TestRecorder_SoldOutKeepsPreviousPaymentMethod(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 2, "10.00")
	rec := newRecorder(s, newTestClock(), nil, nil, nil)
	ctx := context.Background()

	_, err := rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 1, Payment: validPayment()})
	require.NoError(t, err)

	card := validPayment()
	card.CardNumber = "5500000000000004"
	card.CardType = "mastercard"
	_, err = rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 2, Payment: card})
	require.ErrorIs(t, err, status.ErrSoldOut)

	q := s.Queries(ctx)
	pm, err := q.GetPaymentMethod("u1")
	require.NoError(t, err)
	assert.Equal(t, "1111", pm.CardLast4)
	assert.Equal(t, "visa", pm.CardType)

	txs, err := q.ListTransactions("u1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	cat, err := q.GetCategory(catID)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.SeatsAvailable)
}

func TestRecorder_RequiresAdmissionLease(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 5, "10.00")
	clock := newTestClock()
	notifier := &recordingNotifier{}
	admission := newAdmission(s, clock, notifier, nil, 1)
	rec := newRecorder(s, clock, admission, notifier, nil)
	ctx := context.Background()

	_, err := admission.Enqueue(ctx, "first", "E1")
	require.NoError(t, err)
	_, err = admission.Enqueue(ctx, "second", "E1")
	require.NoError(t, err)

	_, err = rec.Purchase(ctx, PurchaseRequest{UserID: "second", CategoryID: catID, Quantity: 1, Payment: validPayment()})
	assert.ErrorIs(t, err, status.ErrNotAdmitted)

	_, err = rec.Purchase(ctx, PurchaseRequest{UserID: "first", CategoryID: catID, Quantity: 1, Payment: validPayment()})
	require.NoError(t, err)

	// The lease was used up and the next user moved to the front.
	poll, err := admission.Poll(ctx, "first", "E1")
	require.NoError(t, err)
	assert.Equal(t, PollNotQueued, poll.State)

	poll, err = admission.Poll(ctx, "second", "E1")
	require.NoError(t, err)
	assert.Equal(t, PollAdmitted, poll.State)

	admitted := notifier.ofType(NotifyQueueStatus)
	require.Len(t, admitted, 2)
	assert.Equal(t, "second", admitted[1].UserID)
}

func TestRecorder_FailedPurchaseKeepsLease(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 1, "10.00")
	clock := newTestClock()
	admission := newAdmission(s, clock, nil, nil, 1)
	rec := newRecorder(s, clock, admission, nil, nil)
	ctx := context.Background()

	_, err := admission.Enqueue(ctx, "u1", "E1")
	require.NoError(t, err)

	_, err = rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 2, Payment: validPayment()})
	assert.ErrorIs(t, err, status.ErrSoldOut)

	poll, err := admission.Poll(ctx, "u1", "E1")
	require.NoError(t, err)
	assert.Equal(t, PollAdmitted, poll.State)
}

func TestRecorder_ExpiredLeaseIsRejected(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 5, "10.00")
	clock := newTestClock()
	admission := newAdmission(s, clock, nil, nil, 1)
	rec := newRecorder(s, clock, admission, nil, nil)
	ctx := context.Background()

	_, err := admission.Enqueue(ctx, "u1", "E1")
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)

	_, err = rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 1, Payment: validPayment()})
	assert.ErrorIs(t, err, status.ErrNotAdmitted)
}

func TestRecorder_HistoryAndReceipt(t *testing.T) {
	s := openStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 10, "12.50")
	clock := newTestClock()
	rec := newRecorder(s, clock, nil, nil, nil)
	ctx := context.Background()

	first, err := rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 2, Payment: validPayment()})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := rec.Purchase(ctx, PurchaseRequest{UserID: "u1", CategoryID: catID, Quantity: 1, Payment: validPayment()})
	require.NoError(t, err)

	history, err := rec.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.TransactionID, history[0].ID)
	assert.Len(t, history[1].Tickets, 2)

	receipt, err := rec.Receipt(ctx, "u1", first.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, receipt.Seats)
	assert.True(t, decimal.RequireFromString("25").Equal(receipt.Total))
	assert.Equal(t, "1111", receipt.CardLast4)

	_, err = rec.Receipt(ctx, "someone-else", first.TransactionID)
	assert.ErrorIs(t, err, status.ErrNotFound)

	ticket, _, err := rec.Ticket(ctx, "u1", second.TicketIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 3, ticket.SeatNo)

	_, _, err = rec.Ticket(ctx, "someone-else", second.TicketIDs[0])
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestPurchaseOutcome(t *testing.T) {
	assert.Equal(t, "completed", purchaseOutcome(nil))
	assert.Equal(t, "sold_out", purchaseOutcome(status.ErrSoldOut))
	assert.Equal(t, "invalid", purchaseOutcome(&status.FieldError{Err: status.ErrInvalidPayment, Field: "cvv"}))
	assert.Equal(t, "declined", purchaseOutcome(status.ErrFailedPayment))
	assert.Equal(t, "not_admitted", purchaseOutcome(status.ErrNotAdmitted))
	assert.Equal(t, "error", purchaseOutcome(errors.New("boom")))
}
