package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studio_booker",
			Name:      "booking_requests_total",
			Help:      "Count of booking requests by outcome.",
		},
		[]string{"outcome"},
	)

	slotsBooked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "studio_booker",
			Name:      "slots_booked_total",
			Help:      "Count of hourly slots reserved.",
		},
	)

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studio_booker",
			Name:      "approval_decisions_total",
			Help:      "Count of approve/reject link calls by action and result.",
		},
		[]string{"action", "result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studio_booker",
			Name:      "notifications_total",
			Help:      "Count of admin notification attempts by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingRequests, slotsBooked, decisions, notifications)
	})
}

func IncBookingRequest(outcome string) {
	bookingRequests.WithLabelValues(outcome).Inc()
}

func AddSlotsBooked(n int) {
	slotsBooked.Add(float64(n))
}

func IncDecision(action, result string) {
	decisions.WithLabelValues(action, result).Inc()
}

// ObserveNotification counts one delivery attempt.
func ObserveNotification(err error) {
	if err != nil {
		notifications.WithLabelValues("failed").Inc()
		return
	}
	notifications.WithLabelValues("sent").Inc()
}
