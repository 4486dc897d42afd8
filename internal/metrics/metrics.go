package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for webhook reconciliation flows.
type Metrics struct {
	webhookTotal    *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	bookingsTotal   *prometheus.CounterVec
	forwardTotal    *prometheus.CounterVec
	correlatedTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total inbound platform webhooks by event kind and outcome",
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by result",
		}, []string{"result"}),
		forwardTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "forwarder",
			Name:      "pushes_total",
			Help:      "Downstream automation pushes by target and status",
		}, []string{"target", "status"}),
		correlatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "correlation",
			Name:      "duration_attach_total",
			Help:      "End-of-call duration merges by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.webhookLatency, m.bookingsTotal, m.forwardTotal, m.correlatedTotal)
	return m
}

func (m *Metrics) ObserveWebhook(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(kind, status).Inc()
	m.webhookLatency.WithLabelValues(kind).Observe(seconds)
}

// ObserveBooking records created, duplicate, replay, invalid or failed.
func (m *Metrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

// ObserveForward records sent, failed or dropped pushes per target.
func (m *Metrics) ObserveForward(target, status string) {
	if m == nil {
		return
	}
	m.forwardTotal.WithLabelValues(target, status).Inc()
}

func (m *Metrics) ObserveCorrelation(outcome string) {
	if m == nil {
		return
	}
	m.correlatedTotal.WithLabelValues(outcome).Inc()
}
