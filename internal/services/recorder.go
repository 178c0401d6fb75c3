package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"ticketsales/internal/services/bank"
	"ticketsales/internal/status"
	"ticketsales/internal/store"
	"ticketsales/models"
	"ticketsales/monitoring"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// PurchaseRequest is one buyer's order for seats of a single category.
type PurchaseRequest struct {
	UserID     string                `json:"user_id"`
	CategoryID int64                 `json:"category_id"`
	Quantity   int                   `json:"quantity"`
	Payment    models.PaymentDetails `json:"payment"`
}

// AdmissionGate lets the recorder require and consume a queue lease inside the purchase
// transaction.
type AdmissionGate interface {
	CheckLease(q *store.Queries, userID, eventID string) (*models.QueueEntry, error)
	ConsumeLease(q *store.Queries, lease *models.QueueEntry) ([]models.QueueEntry, error)
	AnnounceAdmitted(ctx context.Context, entries []models.QueueEntry)
}

type RecorderOptions struct {
	Store     *store.Store
	Ledger    *Ledger
	Bank      bank.BankInterface
	Gate      AdmissionGate
	Notifier  Notifier
	Publisher EventPublisher
	Monitor   *monitoring.Monitor
	Logger    *slog.Logger

	BcryptCost int
	Currency   string
}

// Recorder turns a purchase request into one transaction, its tickets and the buyer's
// saved payment method, all committed together or not at all.
type Recorder struct {
	store      *store.Store
	ledger     *Ledger
	bank       bank.BankInterface
	gate       AdmissionGate
	notifier   Notifier
	publisher  EventPublisher
	monitor    *monitoring.Monitor
	logger     *slog.Logger
	bcryptCost int
	currency   string
	now        func() time.Time
}

func NewRecorder(opts RecorderOptions) *Recorder {
	r := &Recorder{
		store:      opts.Store,
		ledger:     opts.Ledger,
		bank:       opts.Bank,
		gate:       opts.Gate,
		notifier:   opts.Notifier,
		publisher:  opts.Publisher,
		monitor:    opts.Monitor,
		logger:     opts.Logger,
		bcryptCost: opts.BcryptCost,
		currency:   opts.Currency,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.ledger == nil {
		r.ledger = NewLedger(opts.Store, r.logger)
	}
	if r.bank == nil {
		r.bank = bank.NewSimulatedBank(bank.SimulatedConfig{})
	}
	if r.notifier == nil {
		r.notifier = NewLogNotifier(r.logger)
	}
	if r.publisher == nil {
		r.publisher = NopPublisher{}
	}
	if r.monitor == nil {
		r.monitor = monitoring.NewMonitor()
	}
	if r.bcryptCost == 0 {
		r.bcryptCost = bcrypt.DefaultCost
	}
	if r.currency == "" {
		r.currency = "USD"
	}
	return r
}

type purchaseResult struct {
	receipt  *models.Receipt
	lease    *models.QueueEntry
	promoted []models.QueueEntry
}

// Purchase sells quantity seats of the category to the user.
func (r *Recorder) Purchase(ctx context.Context, req PurchaseRequest) (*models.Receipt, error) {
	start := time.Now()

	res, err := r.purchase(ctx, req)

	outcome := purchaseOutcome(err)
	if err != nil {
		r.monitor.TrackPurchase(outcome, "", 0, time.Since(start))
		if outcome == "error" {
			r.logger.Error("purchase failed", "user_id", req.UserID, "category_id", req.CategoryID, "error", err)
		} else {
			r.logger.Info("purchase rejected", "user_id", req.UserID, "category_id", req.CategoryID, "outcome", outcome)
		}
		return nil, err
	}

	receipt := res.receipt
	r.monitor.TrackPurchase(outcome, receipt.EventID, receipt.Quantity, time.Since(start))
	r.logger.Info("purchase completed",
		"user_id", receipt.UserID,
		"transaction_id", receipt.TransactionID,
		"category_id", receipt.CategoryID,
		"seats", receipt.Seats,
	)

	r.afterCommit(ctx, res)
	return receipt, nil
}

func (r *Recorder) purchase(ctx context.Context, req PurchaseRequest) (*purchaseResult, error) {
	if req.Quantity <= 0 {
		return nil, status.ErrInvalidQuantity
	}
	now := r.now()
	if field, reason, ok := req.Payment.Validate(now); !ok {
		return nil, &status.FieldError{Err: status.ErrInvalidPayment, Field: field, Reason: reason}
	}

	// Hash outside the transaction so the category lock is not held during bcrypt.
	cvvHash, err := bcrypt.GenerateFromPassword([]byte(req.Payment.CVV), r.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash cvv: %w", err)
	}

	reference := uuid.NewString()
	res := &purchaseResult{}

	err = r.store.InTx(ctx, func(q *store.Queries) error {
		cat, err := q.GetCategory(req.CategoryID)
		if err != nil {
			return err
		}

		if r.gate != nil {
			if res.lease, err = r.gate.CheckLease(q, req.UserID, cat.EventID); err != nil {
				return err
			}
		}

		event, err := q.GetEvent(cat.EventID)
		if err != nil {
			return err
		}

		pmID, err := q.SavePaymentMethod(models.PaymentMethod{
			UserID:         req.UserID,
			CardLast4:      req.Payment.Last4(),
			CardType:       req.Payment.CardType,
			CVVHash:        string(cvvHash),
			ExpiresAt:      req.Payment.ExpiresAt(),
			BillingAddress: req.Payment.BillingAddress,
			CardHolderName: req.Payment.CardHolderName,
			UpdatedAt:      now,
		})
		if err != nil {
			return err
		}

		seats, err := r.ledger.ReserveTx(q, cat.ID, req.Quantity)
		if err != nil {
			return err
		}

		total := cat.Total(req.Quantity)
		if _, err := r.bank.Charge(ctx, &bank.PaymentRequest{
			Amount:          total,
			Currency:        r.currency,
			UUID:            reference,
			ReferenceNumber: fmt.Sprintf("%d-%d", cat.ID, seats.First),
			UserID:          req.UserID,
			CardLast4:       req.Payment.Last4(),
			CardType:        req.Payment.CardType,
			Description:     fmt.Sprintf("%d x %s, %s", req.Quantity, cat.Name, event.Name),
		}); err != nil {
			return err
		}

		tx := &models.Transaction{
			Reference:       reference,
			UserID:          req.UserID,
			PaymentMethodID: pmID,
			Amount:          total,
			Status:          models.TransactionStatusCompleted,
			CreatedAt:       now,
		}
		if err := q.InsertTransaction(tx); err != nil {
			return err
		}

		ticketIDs := make([]int64, 0, req.Quantity)
		for _, seat := range seats.Seats() {
			ticket := &models.Ticket{
				CategoryID:    cat.ID,
				EventID:       cat.EventID,
				TransactionID: tx.ID,
				SeatNo:        seat,
				Status:        models.TicketStatusIssued,
			}
			if err := q.InsertTicket(ticket); err != nil {
				return err
			}
			ticketIDs = append(ticketIDs, ticket.ID)
		}

		if res.lease != nil {
			if res.promoted, err = r.gate.ConsumeLease(q, res.lease); err != nil {
				return err
			}
		}

		res.receipt = &models.Receipt{
			TransactionID:   tx.ID,
			Reference:       reference,
			UserID:          req.UserID,
			EventID:         event.ID,
			EventName:       event.Name,
			CategoryID:      cat.ID,
			CategoryName:    cat.Name,
			Quantity:        req.Quantity,
			UnitPrice:       cat.Price,
			Total:           total,
			Seats:           seats.Seats(),
			TicketIDs:       ticketIDs,
			PaymentMethodID: pmID,
			CardLast4:       req.Payment.Last4(),
			PurchasedAt:     now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// afterCommit runs side effects that must not undo a committed purchase.
func (r *Recorder) afterCommit(ctx context.Context, res *purchaseResult) {
	receipt := res.receipt

	if res.lease != nil && res.lease.AdmittedAt != nil {
		r.monitor.TrackLeaseHeld(receipt.EventID, receipt.PurchasedAt.Sub(*res.lease.AdmittedAt))
	}

	err := r.notifier.Notify(ctx, receipt.UserID, Notification{
		Type:    NotifyPurchaseComplete,
		EventID: receipt.EventID,
		Status:  models.TransactionStatusCompleted,
		Message: fmt.Sprintf("Your %d ticket(s) for %s are confirmed", receipt.Quantity, receipt.EventName),
		Data: map[string]any{
			"transaction_id": receipt.TransactionID,
			"seats":          receipt.Seats,
		},
	})
	if err != nil {
		r.logger.Warn("purchase notification failed", "user_id", receipt.UserID, "error", err)
	}

	err = r.publisher.PublishPurchase(ctx, PurchaseEvent{
		Type:          PurchaseCompletedEvent,
		TransactionID: receipt.TransactionID,
		Reference:     receipt.Reference,
		UserID:        receipt.UserID,
		EventID:       receipt.EventID,
		CategoryID:    receipt.CategoryID,
		Quantity:      receipt.Quantity,
		Total:         receipt.Total.StringFixed(2),
		Seats:         receipt.Seats,
		OccurredAt:    receipt.PurchasedAt,
	})
	if err != nil {
		r.logger.Warn("purchase event not published", "transaction_id", receipt.TransactionID, "error", err)
	}

	if r.gate != nil && len(res.promoted) > 0 {
		r.gate.AnnounceAdmitted(ctx, res.promoted)
	}
}

func purchaseOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, status.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, status.ErrInvalidQuantity), errors.Is(err, status.ErrInvalidPayment):
		return "invalid"
	case errors.Is(err, status.ErrCategoryNotFound), errors.Is(err, status.ErrEventNotFound):
		return "not_found"
	case errors.Is(err, status.ErrNotAdmitted):
		return "not_admitted"
	case errors.Is(err, status.ErrFailedPayment):
		return "declined"
	default:
		return "error"
	}
}

// History lists the user's purchases, newest first.
func (r *Recorder) History(ctx context.Context, userID string) ([]models.PurchaseRecord, error) {
	q := r.store.Queries(ctx)

	txs, err := q.ListTransactions(userID)
	if err != nil {
		return nil, err
	}

	records := make([]models.PurchaseRecord, 0, len(txs))
	for _, tx := range txs {
		tickets, err := q.ListTickets(tx.ID)
		if err != nil {
			return nil, err
		}
		records = append(records, models.PurchaseRecord{Transaction: tx, Tickets: tickets})
	}
	return records, nil
}

// Receipt rebuilds the receipt of one of the user's transactions.
func (r *Recorder) Receipt(ctx context.Context, userID string, transactionID int64) (*models.Receipt, error) {
	q := r.store.Queries(ctx)

	tx, err := q.GetTransaction(transactionID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, status.ErrNotFound
	}

	tickets, err := q.ListTickets(tx.ID)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, status.ErrNotFound
	}

	cat, err := q.GetCategory(tickets[0].CategoryID)
	if err != nil {
		return nil, err
	}
	event, err := q.GetEvent(cat.EventID)
	if err != nil {
		return nil, err
	}

	receipt := &models.Receipt{
		TransactionID:   tx.ID,
		Reference:       tx.Reference,
		UserID:          tx.UserID,
		EventID:         event.ID,
		EventName:       event.Name,
		CategoryID:      cat.ID,
		CategoryName:    cat.Name,
		Quantity:        len(tickets),
		UnitPrice:       cat.Price,
		Total:           tx.Amount,
		PaymentMethodID: tx.PaymentMethodID,
		PurchasedAt:     tx.CreatedAt,
	}
	for _, t := range tickets {
		receipt.Seats = append(receipt.Seats, t.SeatNo)
		receipt.TicketIDs = append(receipt.TicketIDs, t.ID)
	}

	if pm, err := q.GetPaymentMethod(userID); err == nil {
		receipt.CardLast4 = pm.CardLast4
	}
	return receipt, nil
}

// Ticket returns one of the user's tickets.
func (r *Recorder) Ticket(ctx context.Context, userID string, ticketID int64) (*models.Ticket, *models.Transaction, error) {
	q := r.store.Queries(ctx)

	ticket, err := q.GetTicket(ticketID)
	if err != nil {
		return nil, nil, err
	}
	tx, err := q.GetTransaction(ticket.TransactionID)
	if err != nil {
		return nil, nil, err
	}
	if tx.UserID != userID {
		return nil, nil, status.ErrNotFound
	}
	return ticket, tx, nil
}
