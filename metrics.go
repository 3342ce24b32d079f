package mongo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver counts transaction events. Register it on a database with WithObserver.
type PrometheusObserver struct {
	events *prometheus.CounterVec
	active prometheus.Gauge
}

func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	return &PrometheusObserver{
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mongotxn_transaction_events_total",
				Help: "Transaction lifecycle events by kind, origin and outcome",
			},
			[]string{"event", "origin", "status"},
		),
		active: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "mongotxn_transactions_active",
				Help: "Transactions started and not yet committed or rolled back",
			},
		),
	}
}

func (p *PrometheusObserver) ObserveEvent(e Event) {
	origin := "explicit"
	if e.Implicit {
		origin = "implicit"
	}
	status := "ok"
	if e.Err != nil {
		status = "error"
	}
	p.events.WithLabelValues(e.Kind.String(), origin, status).Inc()

	switch e.Kind {
	case EventTxnStarted:
		if e.State == TxnActive {
			p.active.Inc()
		}
	case EventTxnCommitted, EventTxnRolledBack:
		if e.State != TxnActive {
			p.active.Dec()
		}
	}
}
