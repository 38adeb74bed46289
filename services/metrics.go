package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the order engine's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ordersCreated      prometheus.Counter
	orderFailures      *prometheus.CounterVec
	unitsReserved      prometheus.Counter
	unitsReleased      prometheus.Counter
	transitions        *prometheus.CounterVec
	ordersExpired      prometheus.Counter
	orderNumberRetries prometheus.Counter
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ordersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lunchbox",
			Name:      "orders_created_total",
			Help:      "Orders committed by checkout.",
		}),
		orderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lunchbox",
			Name:      "order_failures_total",
			Help:      "Checkout attempts that failed, by error code.",
		}, []string{"code"}),
		unitsReserved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lunchbox",
			Name:      "ledger_units_reserved_total",
			Help:      "Menu plan units added to sold quantity (reserve and reapply).",
		}),
		unitsReleased: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lunchbox",
			Name:      "ledger_units_released_total",
			Help:      "Menu plan units released by cancellation.",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lunchbox",
			Name:      "order_transitions_total",
			Help:      "Committed order state machine actions.",
		}, []string{"action"}),
		ordersExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lunchbox",
			Name:      "orders_expired_total",
			Help:      "Unpaid orders cancelled after their payment deadline.",
		}),
		orderNumberRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lunchbox",
			Name:      "order_number_retries_total",
			Help:      "Checkout transactions rerun after an order number conflict.",
		}),
	}
}

func (m *Metrics) orderCreated() {
	if m != nil {
		m.ordersCreated.Inc()
	}
}

func (m *Metrics) orderFailed(code string) {
	if m != nil {
		m.orderFailures.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) reserved(qty int) {
	if m != nil {
		m.unitsReserved.Add(float64(qty))
	}
}

func (m *Metrics) released(qty int) {
	if m != nil {
		m.unitsReleased.Add(float64(qty))
	}
}

func (m *Metrics) transitioned(action string) {
	if m != nil {
		m.transitions.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) expired(n int) {
	if m != nil && n > 0 {
		m.ordersExpired.Add(float64(n))
	}
}

func (m *Metrics) retriedOrderNumber() {
	if m != nil {
		m.orderNumberRetries.Inc()
	}
}
