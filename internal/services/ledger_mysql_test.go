//go:build mysql

package services

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"ticketsales/internal/status"
	"ticketsales/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: TEST_MYSQL_DSN='user:pass@tcp(localhost:3306)/tickets' go test -tags mysql ./internal/services/
func openMySQLStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}

	s, err := store.Open(context.Background(), store.Options{
		Driver:       "mysql",
		DSN:          dsn,
		MaxOpenConns: 16,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLedgerMySQL_ConcurrentReservationsNeverOversell(t *testing.T) {
	s := openMySQLStore(t)
	eventID := "E-" + uuid.NewString()
	seedEvent(t, s, eventID)
	catID := seedCategory(t, s, eventID, 10, "30.00")
	ledger := NewLedger(s, testLogger())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		seats   []int
		soldOut int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := ledger.Reserve(context.Background(), catID, 2)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, status.ErrSoldOut)
				soldOut++
				return
			}
			seats = append(seats, r.Seats()...)
		}()
	}
	wg.Wait()

	sort.Ints(seats)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seats)
	assert.Equal(t, 11, soldOut)

	cat, err := s.Queries(context.Background()).GetCategory(catID)
	require.NoError(t, err)
	assert.Equal(t, 0, cat.SeatsAvailable)
}

func TestAdmissionMySQL_ConcurrentEnqueueIsIdempotent(t *testing.T) {
	s := openMySQLStore(t)
	eventID := "E-" + uuid.NewString()
	seedEvent(t, s, eventID)
	ac := newAdmission(s, newTestClock(), nil, nil, 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ac.Enqueue(context.Background(), "A", eventID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := s.Queries(context.Background()).ListQueueEntries(eventID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
