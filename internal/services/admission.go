package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"ticketsales/internal/status"
	"ticketsales/internal/store"
	"ticketsales/models"
	"ticketsales/monitoring"
)

type AdmissionConfig struct {
	// LeaseTimeout is how long an admitted user may take to buy.
	LeaseTimeout time.Duration
	// MaxAdmitted is the number of users per event holding a lease at the same time.
	MaxAdmitted int
	// SweepInterval is how often expired leases are collected.
	SweepInterval time.Duration
	// PositionInterval is how often positions are cached and announced. Zero disables it.
	PositionInterval time.Duration
}

type EnqueueResult struct {
	Entry         models.QueueEntry `json:"entry"`
	Position      int               `json:"position"`
	AlreadyQueued bool              `json:"already_queued"`
	Admitted      bool              `json:"admitted"`
}

type PollState string

const (
	PollAdmitted  PollState = "admitted"
	PollWaiting   PollState = "waiting"
	PollNotQueued PollState = "not_queued"
)

type PollResult struct {
	State          PollState  `json:"state"`
	Position       int        `json:"position,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// QueuedUser is a queue entry together with its current place in line.
type QueuedUser struct {
	models.QueueEntry
	Position int `json:"position"`
}

// AdmissionController runs one first-come-first-served waiting line per event. Users at
// the front are admitted with a time-boxed lease which a purchase consumes. Expired
// leases are dropped and the next waiting user is admitted.
type AdmissionController struct {
	store     *store.Store
	positions *PositionCache
	notifier  Notifier
	monitor   *monitoring.Monitor
	logger    *slog.Logger
	cfg       AdmissionConfig
	now       func() time.Time

	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	mu           sync.Mutex
	lastNotified map[string]int
}

func NewAdmissionController(s *store.Store, positions *PositionCache, notifier Notifier, monitor *monitoring.Monitor, logger *slog.Logger, cfg AdmissionConfig) *AdmissionController {
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 5 * time.Minute
	}
	if cfg.MaxAdmitted <= 0 {
		cfg.MaxAdmitted = 1
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 15 * time.Second
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	if monitor == nil {
		monitor = monitoring.NewMonitor()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AdmissionController{
		store:        s,
		positions:    positions,
		notifier:     notifier,
		monitor:      monitor,
		logger:       logger,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		stopChan:     make(chan struct{}),
		lastNotified: make(map[string]int),
	}
}

type settled struct {
	expired  []models.QueueEntry
	admitted []models.QueueEntry
}

func (s *settled) merge(other settled) {
	s.expired = append(s.expired, other.expired...)
	s.admitted = append(s.admitted, other.admitted...)
}

// settle drops expired leases of the event and admits waiting entries, oldest first, into
// the free lease slots. The caller must hold the event lock.
func (s *AdmissionController) settle(q *store.Queries, eventID string, now time.Time) (settled, error) {
	var out settled

	expired, err := q.DeleteExpiredLeases(eventID, now)
	if err != nil {
		return out, err
	}
	out.expired = expired

	active, err := q.CountActiveLeases(eventID, now)
	if err != nil {
		return out, err
	}

	next, err := q.NextWaiting(eventID, s.cfg.MaxAdmitted-active)
	if err != nil {
		return out, err
	}

	expiresAt := now.Add(s.cfg.LeaseTimeout)
	for _, entry := range next {
		if err := q.Admit(entry.ID, now, expiresAt); err != nil {
			return out, err
		}
		entry.Status = models.QueueStatusAdmitted
		entry.AdmittedAt = &now
		entry.LeaseExpiresAt = &expiresAt
		out.admitted = append(out.admitted, entry)
	}
	return out, nil
}

// Enqueue places the user at the back of the event's line. A user already in line keeps
// their place and the result is flagged AlreadyQueued.
func (s *AdmissionController) Enqueue(ctx context.Context, userID, eventID string) (EnqueueResult, error) {
	now := s.now()
	var res EnqueueResult
	var changes settled

	err := s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.LockEvent(eventID); err != nil {
			return err
		}

		before, err := s.settle(q, eventID, now)
		if err != nil {
			return err
		}
		changes.merge(before)

		existing, err := q.FindQueueEntry(userID, eventID)
		if err != nil {
			return err
		}

		if existing != nil {
			res.AlreadyQueued = true
		} else {
			entry := &models.QueueEntry{
				UserID:    userID,
				EventID:   eventID,
				Status:    models.QueueStatusWaiting,
				CreatedAt: now,
			}
			if err := q.InsertQueueEntry(entry); err != nil {
				return err
			}

			after, err := s.settle(q, eventID, now)
			if err != nil {
				return err
			}
			changes.merge(after)
		}

		current, err := q.FindQueueEntry(userID, eventID)
		if err != nil {
			return err
		}
		res.Entry = *current
		res.Admitted = current.LeaseActive(now)
		res.Position, err = q.QueuePosition(eventID, current.ID, now)
		return err
	})
	if err != nil {
		s.monitor.TrackQueueOperation("enqueue", eventID, "failure")
		return EnqueueResult{}, err
	}

	if res.AlreadyQueued {
		s.monitor.TrackQueueOperation("enqueue", eventID, "duplicate")
	} else {
		s.monitor.TrackQueueOperation("enqueue", eventID, "success")
		s.logger.Info("user joined queue", "user_id", userID, "event_id", eventID, "position", res.Position)
	}
	s.publish(ctx, eventID, changes)
	return res, nil
}

// PeekFront returns the earliest live entry of the event's line, or nil when the line is
// empty. It changes nothing.
func (s *AdmissionController) PeekFront(ctx context.Context, eventID string) (*models.QueueEntry, error) {
	q := s.store.Queries(ctx)
	if _, err := q.GetEvent(eventID); err != nil {
		return nil, err
	}
	return q.FrontEntry(eventID, s.now())
}

// Poll reports whether the user may buy now. Polling again while the lease runs keeps
// reporting admitted.
func (s *AdmissionController) Poll(ctx context.Context, userID, eventID string) (PollResult, error) {
	now := s.now()
	var res PollResult
	var changes settled

	err := s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.LockEvent(eventID); err != nil {
			return err
		}

		var err error
		if changes, err = s.settle(q, eventID, now); err != nil {
			return err
		}

		entry, err := q.FindQueueEntry(userID, eventID)
		if err != nil {
			return err
		}
		if entry == nil {
			res.State = PollNotQueued
			return nil
		}
		res.State = PollWaiting
		if entry.LeaseActive(now) {
			res.State = PollAdmitted
			res.LeaseExpiresAt = entry.LeaseExpiresAt
		}
		res.Position, err = q.QueuePosition(eventID, entry.ID, now)
		return err
	})
	if err != nil {
		return PollResult{}, err
	}

	s.publish(ctx, eventID, changes)
	return res, nil
}

// Leave removes the user from the event's line, giving up any lease. It reports whether
// the user was in line.
func (s *AdmissionController) Leave(ctx context.Context, userID, eventID string) (bool, error) {
	now := s.now()
	var removed bool
	var changes settled

	err := s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.LockEvent(eventID); err != nil {
			return err
		}

		entry, err := q.FindQueueEntry(userID, eventID)
		if err != nil || entry == nil {
			return err
		}
		if err := q.DeleteQueueEntry(entry.ID); err != nil {
			return err
		}
		removed = true

		changes, err = s.settle(q, eventID, now)
		return err
	})
	if err != nil {
		s.monitor.TrackQueueOperation("leave", eventID, "failure")
		return false, err
	}

	if removed {
		s.monitor.TrackQueueOperation("leave", eventID, "success")
		s.logger.Info("user left queue", "user_id", userID, "event_id", eventID)
		s.forgetPosition(ctx, eventID, userID)
	}
	s.publish(ctx, eventID, changes)
	return removed, nil
}

// CheckLease returns the user's running lease for the event or status.ErrNotAdmitted. It
// locks the event row for the rest of q's transaction.
func (s *AdmissionController) CheckLease(q *store.Queries, userID, eventID string) (*models.QueueEntry, error) {
	if _, err := q.LockEvent(eventID); err != nil {
		return nil, err
	}

	entry, err := q.FindQueueEntry(userID, eventID)
	if err != nil {
		return nil, err
	}
	if entry == nil || !entry.LeaseActive(s.now()) {
		return nil, status.ErrNotAdmitted
	}
	return entry, nil
}

// ConsumeLease removes a used lease inside the purchase transaction and admits the next
// waiting users. The admitted entries must be announced after commit.
func (s *AdmissionController) ConsumeLease(q *store.Queries, lease *models.QueueEntry) ([]models.QueueEntry, error) {
	if err := q.DeleteQueueEntry(lease.ID); err != nil {
		return nil, err
	}

	changes, err := s.settle(q, lease.EventID, s.now())
	if err != nil {
		return nil, err
	}
	if len(changes.expired) > 0 {
		s.monitor.TrackLeaseExpired(lease.EventID, len(changes.expired))
	}

	s.forgetPosition(q.Context(), lease.EventID, lease.UserID)
	s.monitor.TrackQueueOperation("consume_lease", lease.EventID, "success")
	return changes.admitted, nil
}

// AnnounceAdmitted tells newly admitted users they may buy and drops their cached place in
// line.
func (s *AdmissionController) AnnounceAdmitted(ctx context.Context, entries []models.QueueEntry) {
	for _, entry := range entries {
		s.forgetPosition(ctx, entry.EventID, entry.UserID)
		s.monitor.TrackQueueOperation("admit", entry.EventID, "success")
		s.logger.Info("user admitted", "user_id", entry.UserID, "event_id", entry.EventID, "lease_expires_at", entry.LeaseExpiresAt)

		err := s.notifier.Notify(ctx, entry.UserID, Notification{
			Type:    NotifyQueueStatus,
			EventID: entry.EventID,
			Status:  string(PollAdmitted),
			Message: "You can now buy your tickets!",
			Data:    map[string]any{"lease_expires_at": entry.LeaseExpiresAt},
		})
		if err != nil {
			s.logger.Warn("admission notification failed", "user_id", entry.UserID, "error", err)
		}
	}
}

func (s *AdmissionController) publish(ctx context.Context, eventID string, changes settled) {
	if n := len(changes.expired); n > 0 {
		s.monitor.TrackLeaseExpired(eventID, n)
		for _, entry := range changes.expired {
			s.logger.Info("admission lease expired", "user_id", entry.UserID, "event_id", eventID)
			s.forgetPosition(ctx, eventID, entry.UserID)
		}
	}
	s.AnnounceAdmitted(ctx, changes.admitted)
}

func (s *AdmissionController) forgetPosition(ctx context.Context, eventID, userID string) {
	s.mu.Lock()
	delete(s.lastNotified, eventID+":"+userID)
	s.mu.Unlock()

	if s.positions == nil {
		return
	}
	if err := s.positions.Forget(ctx, eventID, userID); err != nil {
		s.logger.Warn("could not clear cached position", "user_id", userID, "event_id", eventID, "error", err)
	}
}

// ExpireLeases drops every expired lease across all events and admits the users behind
// them. It returns the number of leases dropped.
func (s *AdmissionController) ExpireLeases(ctx context.Context) (int, error) {
	now := s.now()

	eventIDs, err := s.store.Queries(ctx).EventsWithExpiredLeases(now)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, eventID := range eventIDs {
		var changes settled
		err := s.store.InTx(ctx, func(q *store.Queries) error {
			if _, err := q.LockEvent(eventID); err != nil {
				return err
			}
			var err error
			changes, err = s.settle(q, eventID, now)
			return err
		})
		if err != nil {
			return total, err
		}

		total += len(changes.expired)
		s.publish(ctx, eventID, changes)
	}
	return total, nil
}

// Snapshot lists the event's line in order with each user's place.
func (s *AdmissionController) Snapshot(ctx context.Context, eventID string) ([]QueuedUser, error) {
	q := s.store.Queries(ctx)
	if _, err := q.GetEvent(eventID); err != nil {
		return nil, err
	}

	entries, err := q.ListQueueEntries(eventID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	users := make([]QueuedUser, 0, len(entries))
	for _, entry := range entries {
		if entry.Status == models.QueueStatusAdmitted && !entry.LeaseActive(now) {
			continue
		}
		users = append(users, QueuedUser{QueueEntry: entry, Position: len(users) + 1})
	}
	return users, nil
}

// Metrics summarizes the event's line.
func (s *AdmissionController) Metrics(ctx context.Context, eventID string) (models.QueueMetrics, error) {
	users, err := s.Snapshot(ctx, eventID)
	if err != nil {
		return models.QueueMetrics{}, err
	}

	now := s.now()
	metrics := models.QueueMetrics{EventID: eventID, LastUpdated: now}
	var waited time.Duration
	for _, u := range users {
		if u.Status == models.QueueStatusAdmitted {
			metrics.Admitted++
			continue
		}
		metrics.Waiting++
		waited += now.Sub(u.CreatedAt)
	}
	metrics.TotalInQueue = metrics.Waiting + metrics.Admitted
	if metrics.Waiting > 0 {
		metrics.AvgWaitTime = waited.Seconds() / float64(metrics.Waiting)
	}
	return metrics, nil
}

// Start launches the lease sweeper and, when configured, the position updater.
func (s *AdmissionController) Start() {
	s.wg.Add(1)
	go s.timeoutManager()

	if s.cfg.PositionInterval > 0 {
		s.wg.Add(1)
		go s.positionUpdater()
	}
}

func (s *AdmissionController) timeoutManager() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.logger.Info("lease sweeper started", "interval", s.cfg.SweepInterval)

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SweepInterval)
			n, err := s.ExpireLeases(ctx)
			cancel()
			if err != nil {
				s.logger.Error("lease sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Info("expired admission leases", "count", n)
			}
		case <-s.stopChan:
			s.logger.Info("lease sweeper stopping")
			return
		}
	}
}

func (s *AdmissionController) positionUpdater() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PositionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PositionInterval)
			s.UpdatePositions(ctx)
			cancel()
		case <-s.stopChan:
			s.logger.Info("position updater stopping")
			return
		}
	}
}

// UpdatePositions caches the place of every waiting user, refreshes the queue gauges and
// notifies users whose place changed. Admitted users are not cached.
func (s *AdmissionController) UpdatePositions(ctx context.Context) {
	eventIDs, err := s.store.Queries(ctx).QueuedEventIDs()
	if err != nil {
		s.logger.Error("listing queued events failed", "error", err)
		return
	}

	totalUsers := 0
	for _, eventID := range eventIDs {
		users, err := s.Snapshot(ctx, eventID)
		if err != nil {
			s.logger.Warn("queue snapshot failed", "event_id", eventID, "error", err)
			continue
		}
		totalUsers += len(users)

		positions := make([]QueuePosition, 0, len(users))
		waiting, admitted := 0, 0
		for _, u := range users {
			if u.Status == models.QueueStatusAdmitted {
				admitted++
				continue
			}
			waiting++
			positions = append(positions, QueuePosition{UserID: u.UserID, Position: u.Position})
			if s.positionChanged(eventID, u.UserID, u.Position) && shouldNotifyPosition(u.Position) {
				s.notifyPosition(ctx, u.UserID, eventID, u.Position)
			}
		}
		s.monitor.SetQueueLength(eventID, waiting, admitted)

		if s.positions != nil {
			if err := s.positions.Store(ctx, eventID, positions); err != nil {
				s.logger.Warn("caching positions failed", "event_id", eventID, "error", err)
			}
		}
	}

	if len(eventIDs) > 0 {
		s.logger.Debug("updated queue positions", "users", totalUsers, "events", len(eventIDs))
	}
}

func (s *AdmissionController) positionChanged(eventID, userID string, position int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := eventID + ":" + userID
	if s.lastNotified[key] == position {
		return false
	}
	s.lastNotified[key] = position
	return true
}

func (s *AdmissionController) notifyPosition(ctx context.Context, userID, eventID string, position int) {
	err := s.notifier.Notify(ctx, userID, Notification{
		Type:     NotifyQueuePosition,
		EventID:  eventID,
		Position: position,
		Message:  positionMessage(position),
	})
	if err != nil {
		s.logger.Warn("position notification failed", "user_id", userID, "error", err)
	}
}

// Shutdown stops the background loops and waits for them to finish.
func (s *AdmissionController) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("admission controller stopped")
	case <-time.After(30 * time.Second):
		s.logger.Warn("timeout waiting for admission loops to stop")
	}
}
