package monitoring

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_length_total",
			Help: "Current queue length per event",
		},
		[]string{"event_id", "queue_type"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue operations",
		},
		[]string{"operation", "event_id", "status"},
	)

	leaseExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_lease_expirations_total",
			Help: "Admission leases that ran out before a purchase",
		},
		[]string{"event_id"},
	)

	leaseHeldDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_lease_held_seconds",
			Help:    "Time between admission and purchase",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"event_id"},
	)

	purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	seatsSold = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_sold_total",
			Help: "Seats issued per event",
		},
		[]string{"event_id"},
	)

	purchaseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "purchase_duration_seconds",
			Help:    "Duration of the purchase transaction",
			Buckets: prometheus.DefBuckets,
		},
	)
)

type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Track queue operations
func (m *Monitor) TrackQueueOperation(operation, eventID, status string) {
	queueOperations.WithLabelValues(operation, eventID, status).Inc()
}

// SetQueueLength publishes the current waiting and admitted counts of an event.
func (m *Monitor) SetQueueLength(eventID string, waiting, admitted int) {
	queueLength.WithLabelValues(eventID, "waiting").Set(float64(waiting))
	queueLength.WithLabelValues(eventID, "admitted").Set(float64(admitted))
}

func (m *Monitor) TrackLeaseExpired(eventID string, count int) {
	leaseExpirations.WithLabelValues(eventID).Add(float64(count))
}

// Track how long a lease was held before it was used
func (m *Monitor) TrackLeaseHeld(eventID string, duration time.Duration) {
	leaseHeldDuration.WithLabelValues(eventID).Observe(duration.Seconds())
}

// TrackPurchase records one purchase attempt. seats and eventID are only used for
// completed purchases.
func (m *Monitor) TrackPurchase(outcome, eventID string, seats int, duration time.Duration) {
	purchases.WithLabelValues(outcome).Inc()
	purchaseDuration.Observe(duration.Seconds())
	if outcome == "completed" && seats > 0 {
		seatsSold.WithLabelValues(eventID).Add(float64(seats))
	}
}

// Serve exposes /metrics on its own port until ctx is cancelled.
func Serve(ctx context.Context, port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err)
	}
}
