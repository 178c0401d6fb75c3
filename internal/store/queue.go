package store

import (
	"time"
	"ticketsales/models"

	"github.com/pocketbase/dbx"
)

const queueColumns = "id, user_id, event_id, status, created_at, admitted_at, lease_expires_at"

// FindQueueEntry returns the user's entry for the event, or nil when there is none.
func (q *Queries) FindQueueEntry(userID, eventID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := q.query(
		"SELECT "+queueColumns+" FROM queue_entries WHERE user_id = {:user} AND event_id = {:event}",
		dbx.Params{"user": userID, "event": eventID},
	).One(&entry)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find queue entry", err)
	}
	return &entry, nil
}

// InsertQueueEntry stores a waiting entry and sets its ID.
func (q *Queries) InsertQueueEntry(entry *models.QueueEntry) error {
	id, err := q.insert("queue_entries", dbx.Params{
		"user_id":    entry.UserID,
		"event_id":   entry.EventID,
		"status":     entry.Status,
		"created_at": entry.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func (q *Queries) DeleteQueueEntry(id int64) error {
	if _, err := q.b.Delete("queue_entries", dbx.HashExp{"id": id}).WithContext(q.ctx).Execute(); err != nil {
		return storageErr("delete queue entry", err)
	}
	return nil
}

// DeleteExpiredLeases removes admitted entries of the event whose lease ended at or
// before now and returns them.
func (q *Queries) DeleteExpiredLeases(eventID string, now time.Time) ([]models.QueueEntry, error) {
	expired := []models.QueueEntry{}
	err := q.query(
		"SELECT "+queueColumns+` FROM queue_entries
		WHERE event_id = {:event} AND status = 'admitted' AND lease_expires_at <= {:now}
		ORDER BY id`+q.forUpdate(),
		dbx.Params{"event": eventID, "now": now.UTC()},
	).All(&expired)
	if err != nil {
		return nil, storageErr("find expired leases", err)
	}

	for _, entry := range expired {
		if err := q.DeleteQueueEntry(entry.ID); err != nil {
			return nil, err
		}
	}
	return expired, nil
}

// CountActiveLeases counts admitted entries of the event whose lease is still running.
func (q *Queries) CountActiveLeases(eventID string, now time.Time) (int, error) {
	var n int
	err := q.query(
		"SELECT COUNT(*) FROM queue_entries WHERE event_id = {:event} AND status = 'admitted' AND lease_expires_at > {:now}",
		dbx.Params{"event": eventID, "now": now.UTC()},
	).Row(&n)
	if err != nil {
		return 0, storageErr("count leases", err)
	}
	return n, nil
}

// NextWaiting returns up to limit waiting entries of the event in arrival order.
func (q *Queries) NextWaiting(eventID string, limit int) ([]models.QueueEntry, error) {
	entries := []models.QueueEntry{}
	if limit <= 0 {
		return entries, nil
	}
	err := q.query(
		"SELECT "+queueColumns+" FROM queue_entries WHERE event_id = {:event} AND status = 'waiting' ORDER BY id LIMIT {:limit}",
		dbx.Params{"event": eventID, "limit": limit},
	).All(&entries)
	if err != nil {
		return nil, storageErr("next waiting", err)
	}
	return entries, nil
}

// Admit grants the entry a lease running until expiresAt.
func (q *Queries) Admit(id int64, admittedAt, expiresAt time.Time) error {
	_, err := q.b.Update("queue_entries", dbx.Params{
		"status":           models.QueueStatusAdmitted,
		"admitted_at":      admittedAt.UTC(),
		"lease_expires_at": expiresAt.UTC(),
	}, dbx.HashExp{"id": id}).WithContext(q.ctx).Execute()
	if err != nil {
		return storageErr("admit queue entry", err)
	}
	return nil
}

// QueuePosition is 1 plus the number of live entries of the event created before the
// given entry. Expired leases do not count.
func (q *Queries) QueuePosition(eventID string, entryID int64, now time.Time) (int, error) {
	var n int
	err := q.query(
		`SELECT COUNT(*) FROM queue_entries
		WHERE event_id = {:event} AND id < {:id}
		AND (status = 'waiting' OR lease_expires_at > {:now})`,
		dbx.Params{"event": eventID, "id": entryID, "now": now.UTC()},
	).Row(&n)
	if err != nil {
		return 0, storageErr("queue position", err)
	}
	return n + 1, nil
}

// FrontEntry returns the earliest live entry of the event, or nil when the queue is empty.
func (q *Queries) FrontEntry(eventID string, now time.Time) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := q.query(
		"SELECT "+queueColumns+` FROM queue_entries
		WHERE event_id = {:event} AND (status = 'waiting' OR lease_expires_at > {:now})
		ORDER BY id LIMIT 1`,
		dbx.Params{"event": eventID, "now": now.UTC()},
	).One(&entry)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("front entry", err)
	}
	return &entry, nil
}

// ListQueueEntries returns every entry of the event in arrival order.
func (q *Queries) ListQueueEntries(eventID string) ([]models.QueueEntry, error) {
	entries := []models.QueueEntry{}
	err := q.query(
		"SELECT "+queueColumns+" FROM queue_entries WHERE event_id = {:event} ORDER BY id",
		dbx.Params{"event": eventID},
	).All(&entries)
	if err != nil {
		return nil, storageErr("list queue entries", err)
	}
	return entries, nil
}

// QueuedEventIDs lists events that currently have at least one queue entry.
func (q *Queries) QueuedEventIDs() ([]string, error) {
	ids := []string{}
	if err := q.query("SELECT DISTINCT event_id FROM queue_entries ORDER BY event_id", nil).Column(&ids); err != nil {
		return nil, storageErr("queued events", err)
	}
	return ids, nil
}

// EventsWithExpiredLeases lists events holding at least one lease that ended by now.
func (q *Queries) EventsWithExpiredLeases(now time.Time) ([]string, error) {
	ids := []string{}
	err := q.query(
		"SELECT DISTINCT event_id FROM queue_entries WHERE status = 'admitted' AND lease_expires_at <= {:now} ORDER BY event_id",
		dbx.Params{"now": now.UTC()},
	).Column(&ids)
	if err != nil {
		return nil, storageErr("events with expired leases", err)
	}
	return ids, nil
}
