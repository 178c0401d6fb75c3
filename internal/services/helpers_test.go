package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"ticketsales/internal/store"
	"ticketsales/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), store.Options{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "tickets.db"),
		Logger: testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEvent(t *testing.T, s *store.Store, eventID string) {
	t.Helper()

	q := s.Queries(context.Background())
	require.NoError(t, q.UpsertLocation(models.Location{ID: "loc-" + eventID, VenueName: "Arena"}))
	require.NoError(t, q.UpsertEvent(models.Event{
		ID:         eventID,
		Name:       "Show " + eventID,
		StartsAt:   time.Date(2027, 2, 1, 19, 30, 0, 0, time.UTC),
		EventType:  "Music",
		LocationID: "loc-" + eventID,
	}))
}

func seedCategory(t *testing.T, s *store.Store, eventID string, seats int, price string) int64 {
	t.Helper()

	id, err := s.Queries(context.Background()).CreateCategory(models.TicketCategory{
		EventID:  eventID,
		Name:     "Cat 1",
		Price:    decimal.RequireFromString(price),
		Capacity: seats,
	})
	require.NoError(t, err)
	return id
}

func validPayment() models.PaymentDetails {
	return models.PaymentDetails{
		CardNumber:     "4111111111111111",
		CardType:       "visa",
		CVV:            "123",
		ExpiryMonth:    12,
		ExpiryYear:     2030,
		BillingAddress: "1 Main St",
		CardHolderName: "Ada Buyer",
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentNotification struct {
	UserID string
	Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(ctx context.Context, userID string, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Notification: msg})
	return nil
}

func (n *recordingNotifier) ofType(typ string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []sentNotification
	for _, s := range n.sent {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []PurchaseEvent
}

func (p *recordingPublisher) PublishPurchase(ctx context.Context, evt PurchaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func newAdmission(s *store.Store, clock *testClock, notifier Notifier, positions *PositionCache, maxAdmitted int) *AdmissionController {
	ac := NewAdmissionController(s, positions, notifier, nil, testLogger(), AdmissionConfig{
		LeaseTimeout: 5 * time.Minute,
		MaxAdmitted:  maxAdmitted,
	})
	ac.now = clock.Now
	return ac
}

func newRecorder(s *store.Store, clock *testClock, gate AdmissionGate, notifier Notifier, publisher EventPublisher) *Recorder {
	r := NewRecorder(RecorderOptions{
		Store:      s,
		Gate:       gate,
		Notifier:   notifier,
		Publisher:  publisher,
		Logger:     testLogger(),
		BcryptCost: bcrypt.MinCost,
	})
	r.now = clock.Now
	return r
}
