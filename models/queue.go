package models

import (
	"time"
)

const (
	QueueStatusWaiting  = "waiting"
	QueueStatusAdmitted = "admitted"
)

type QueueEntry struct {
	ID             int64      `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	EventID        string     `db:"event_id" json:"event_id"`
	Status         string     `db:"status" json:"status"` // waiting, admitted
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	AdmittedAt     *time.Time `db:"admitted_at" json:"admitted_at,omitempty"`
	LeaseExpiresAt *time.Time `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
}

// LeaseActive reports whether the entry holds an unexpired admission lease.
func (q QueueEntry) LeaseActive(now time.Time) bool {
	return q.Status == QueueStatusAdmitted && q.LeaseExpiresAt != nil && q.LeaseExpiresAt.After(now)
}

type QueueMetrics struct {
	EventID      string    `json:"event_id"`
	TotalInQueue int       `json:"total_in_queue"`
	Waiting      int       `json:"waiting"`
	Admitted     int       `json:"admitted"`
	AvgWaitTime  float64   `json:"avg_wait_time"`
	LastUpdated  time.Time `json:"last_updated"`
}
