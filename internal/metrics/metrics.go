// Package metrics exposes parking domain counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use through a nil pointer; calls become no-ops.
type Metrics struct {
	SpotTransitions *prometheus.CounterVec
	GatewayCharges  *prometheus.CounterVec
	PenaltiesTotal  prometheus.Counter
	PenaltyAmount   prometheus.Counter
	Entries         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SpotTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parking_spot_transitions_total",
				Help: "Spot status transitions",
			},
			[]string{"from", "to"},
		),
		GatewayCharges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parking_gateway_charges_total",
				Help: "Payment gateway charge attempts by outcome",
			},
			[]string{"outcome"},
		),
		PenaltiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_penalties_total",
			Help: "Overstay penalties issued",
		}),
		PenaltyAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_penalty_amount_total",
			Help: "Sum of overstay penalty amounts",
		}),
		Entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parking_entries_total",
				Help: "Accepted vehicle entries by reservation kind",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.SpotTransitions, m.GatewayCharges, m.PenaltiesTotal, m.PenaltyAmount, m.Entries)
	return m
}

func (m *Metrics) SpotTransition(from, to string) {
	if m == nil {
		return
	}
	m.SpotTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) GatewayOutcome(outcome string) {
	if m == nil {
		return
	}
	m.GatewayCharges.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Penalty(amount int64) {
	if m == nil {
		return
	}
	m.PenaltiesTotal.Inc()
	m.PenaltyAmount.Add(float64(amount))
}

func (m *Metrics) Entry(kind string) {
	if m == nil {
		return
	}
	m.Entries.WithLabelValues(kind).Inc()
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
