package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gearpool_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gearpool_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	reservationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gearpool_reservation_attempts_total",
		Help: "Reservation creation attempts by result code",
	}, []string{"result"})

	reservationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gearpool_reservation_duration_seconds",
		Help:    "Duration of reservation creation including lock wait",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gearpool_transitions_total",
		Help: "Reservation state transitions by source, target and result",
	}, []string{"from", "to", "result"})

	availabilityChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gearpool_availability_checks_total",
		Help: "Availability queries by outcome",
	}, []string{"available"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gearpool_notifications_total",
		Help: "Notification delivery attempts by result",
	}, []string{"result"})

	overdueReservations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gearpool_overdue_reservations",
		Help: "Active reservations past their end date at the last scan",
	})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gearpool_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half open)",
	}, []string{"name"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveReservation records one reservation creation attempt
func ObserveReservation(result string, duration time.Duration) {
	reservationAttempts.WithLabelValues(result).Inc()
	reservationDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveTransition records one attempted state transition
func ObserveTransition(from, to, result string) {
	transitions.WithLabelValues(from, to, result).Inc()
}

// ObserveAvailabilityCheck records an availability query
func ObserveAvailabilityCheck(available bool) {
	label := "false"
	if available {
		label = "true"
	}
	availabilityChecks.WithLabelValues(label).Inc()
}

// ObserveNotification records a delivery attempt: sent, retry, dropped or rejected
func ObserveNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

// SetOverdueReservations records the overdue count from the latest scan
func SetOverdueReservations(n int) {
	overdueReservations.Set(float64(n))
}

// SetBreakerState records a circuit breaker state
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}
