package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
	"ticketsales/internal/status"
	"ticketsales/models"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), Options{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "tickets.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEvent(t *testing.T, s *Store, eventID string) {
	t.Helper()

	q := s.Queries(context.Background())
	require.NoError(t, q.UpsertLocation(models.Location{ID: "loc-1", VenueName: "Hall", Country: "NL"}))
	require.NoError(t, q.UpsertEvent(models.Event{
		ID:         eventID,
		Name:       "Concert " + eventID,
		StartsAt:   time.Date(2027, 1, 10, 20, 0, 0, 0, time.UTC),
		EventType:  "Music",
		LocationID: "loc-1",
	}))
}

func seedCategory(t *testing.T, s *Store, eventID string, seats int) int64 {
	t.Helper()

	id, err := s.Queries(context.Background()).CreateCategory(models.TicketCategory{
		EventID:  eventID,
		Name:     "Cat 1",
		Price:    decimal.RequireFromString("25.00"),
		Capacity: seats,
	})
	require.NoError(t, err)
	return id
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "tickets.db")
	ctx := context.Background()

	first, err := Open(ctx, Options{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(ctx, Options{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer second.Close()

	var versions []int
	require.NoError(t, second.db.NewQuery("SELECT version FROM schema_migrations ORDER BY version").Column(&versions))
	assert.Equal(t, []int{1, 2, 3}, versions)
}

func TestOpen_FailedMigrationLeavesNoTrace(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "tickets.db")
	ctx := context.Background()

	raw, err := dbx.Open("sqlite", sqliteDSN(dsn))
	require.NoError(t, err)
	_, err = raw.NewQuery("CREATE TABLE images (id INTEGER PRIMARY KEY)").Execute()
	require.NoError(t, err)

	_, err = Open(ctx, Options{Driver: "sqlite", DSN: dsn})
	require.ErrorIs(t, err, status.ErrStorage)

	var tables []string
	require.NoError(t, raw.NewQuery("SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('locations', 'events')").Column(&tables))
	assert.Empty(t, tables)

	var versions []int
	require.NoError(t, raw.NewQuery("SELECT version FROM schema_migrations").Column(&versions))
	assert.Empty(t, versions)

	_, err = raw.NewQuery("DROP TABLE images").Execute()
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	s, err := Open(ctx, Options{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.db.NewQuery("SELECT version FROM schema_migrations ORDER BY version").Column(&versions))
	assert.Equal(t, []int{1, 2, 3}, versions)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "file:/tmp/a.db?"+sqlitePragmas, sqliteDSN("/tmp/a.db"))
	assert.Equal(t, "file:/tmp/a.db?mode=rwc&"+sqlitePragmas, sqliteDSN("file:/tmp/a.db?mode=rwc"))
}

func TestMysqlDSN_ForcesParseTime(t *testing.T) {
	dsn, err := mysqlDSN("tickets:secret@tcp(db:3306)/tickets")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
}

func TestCatalog_ReadsAndWrites(t *testing.T) {
	s := openTestStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 5)
	q := s.Queries(context.Background())

	event, err := q.GetEvent("E1")
	require.NoError(t, err)
	assert.Equal(t, "Concert E1", event.Name)
	assert.True(t, event.StartsAt.Equal(time.Date(2027, 1, 10, 20, 0, 0, 0, time.UTC)))

	require.NoError(t, q.UpsertEvent(models.Event{ID: "E1", Name: "Renamed", StartsAt: event.StartsAt, LocationID: "loc-1"}))
	event, err = q.GetEvent("E1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", event.Name)

	cat, err := q.GetCategory(catID)
	require.NoError(t, err)
	assert.Equal(t, 5, cat.Capacity)
	assert.Equal(t, 5, cat.SeatsAvailable)
	assert.True(t, decimal.RequireFromString("25").Equal(cat.Price))

	n, err := q.CountCategories("E1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	eventID := "E1"
	_, err = q.AddImage(models.Image{URL: "https://img/1.jpg", Width: 640, Height: 360, Ratio: "16_9", EventID: &eventID})
	require.NoError(t, err)
	images, err := q.ListEventImages("E1")
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, 640, images[0].Width)
	assert.Nil(t, images[0].LocationID)

	upcoming, err := q.ListUpcomingEvents(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Len(t, upcoming, 1)
}

func TestCatalog_NotFound(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries(context.Background())

	_, err := q.GetEvent("missing")
	assert.ErrorIs(t, err, status.ErrEventNotFound)

	_, err = q.GetCategory(999)
	assert.ErrorIs(t, err, status.ErrCategoryNotFound)

	_, err = q.GetLocation("missing")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestTakeSeats_GuardsAvailability(t *testing.T) {
	s := openTestStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 3)
	q := s.Queries(context.Background())

	ok, err := q.TakeSeats(catID, 2, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.TakeSeats(catID, 2, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	cat, err := q.GetCategory(catID)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.SeatsAvailable)
	assert.Equal(t, 2, cat.LastSeatNo)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	seedEvent(t, s, "E1")
	catID := seedCategory(t, s, "E1", 3)
	ctx := context.Background()

	err := s.InTx(ctx, func(q *Queries) error {
		if _, err := q.TakeSeats(catID, 3, 3); err != nil {
			return err
		}
		return status.ErrSoldOut
	})
	assert.ErrorIs(t, err, status.ErrSoldOut)

	cat, err := s.Queries(ctx).GetCategory(catID)
	require.NoError(t, err)
	assert.Equal(t, 3, cat.SeatsAvailable)
}

func TestInTx_WrapsUnknownErrors(t *testing.T) {
	s := openTestStore(t)

	err := s.InTx(context.Background(), func(q *Queries) error {
		return errors.New("disk on fire")
	})
	assert.ErrorIs(t, err, status.ErrStorage)
}

func TestSavePaymentMethod_OnePerUser(t *testing.T) {
	s := openTestStore(t)
	q := s.Queries(context.Background())
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	first, err := q.SavePaymentMethod(models.PaymentMethod{
		UserID: "u1", CardLast4: "1111", CVVHash: "h1", ExpiresAt: at, CardHolderName: "A", UpdatedAt: at,
	})
	require.NoError(t, err)

	second, err := q.SavePaymentMethod(models.PaymentMethod{
		UserID: "u1", CardLast4: "2222", CVVHash: "h2", ExpiresAt: at, CardHolderName: "A", UpdatedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	pm, err := q.GetPaymentMethod("u1")
	require.NoError(t, err)
	assert.Equal(t, "2222", pm.CardLast4)
}

func TestQueue_PositionsAndFront(t *testing.T) {
	s := openTestStore(t)
	seedEvent(t, s, "E1")
	q := s.Queries(context.Background())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	var ids []int64
	for _, user := range []string{"a", "b", "c"} {
		entry := &models.QueueEntry{UserID: user, EventID: "E1", Status: models.QueueStatusWaiting, CreatedAt: now}
		require.NoError(t, q.InsertQueueEntry(entry))
		ids = append(ids, entry.ID)
	}

	pos, err := q.QueuePosition("E1", ids[2], now)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	// An expired lease no longer holds a place in line.
	require.NoError(t, q.Admit(ids[0], now.Add(-10*time.Minute), now.Add(-time.Minute)))

	pos, err = q.QueuePosition("E1", ids[2], now)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	front, err := q.FrontEntry("E1", now)
	require.NoError(t, err)
	require.NotNil(t, front)
	assert.Equal(t, "b", front.UserID)

	expired, err := q.DeleteExpiredLeases("E1", now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "a", expired[0].UserID)

	entry, err := q.FindQueueEntry("a", "E1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	events, err := q.QueuedEventIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, events)
}

func TestQueue_DuplicateEntryRejected(t *testing.T) {
	s := openTestStore(t)
	seedEvent(t, s, "E1")
	q := s.Queries(context.Background())

	entry := &models.QueueEntry{UserID: "a", EventID: "E1", Status: models.QueueStatusWaiting, CreatedAt: time.Now()}
	require.NoError(t, q.InsertQueueEntry(entry))

	dup := &models.QueueEntry{UserID: "a", EventID: "E1", Status: models.QueueStatusWaiting, CreatedAt: time.Now()}
	assert.ErrorIs(t, q.InsertQueueEntry(dup), status.ErrStorage)
}
