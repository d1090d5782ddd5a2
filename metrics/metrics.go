package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// EventsAppliedTotal counts change events projected onto the store, by kind.
	EventsAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metrowatch",
		Subsystem: "listener",
		Name:      "events_applied_total",
		Help:      "Total number of change events applied to the report store, labeled by kind.",
	}, []string{"kind"})

	// EventsDroppedTotal counts malformed change events dropped at the store boundary.
	EventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "metrowatch",
		Subsystem: "listener",
		Name:      "events_dropped_total",
		Help:      "Total number of malformed change events dropped without being applied.",
	})

	// ReportCount is the current size of the in-memory report collection.
	ReportCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "metrowatch",
		Subsystem: "listener",
		Name:      "report_count",
		Help:      "Current number of reports held in the in-memory store.",
	})

	// GeocodeLookupsTotal counts geocode lookups by result.
	GeocodeLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metrowatch",
		Subsystem: "listener",
		Name:      "geocode_lookups_total",
		Help:      "Total number of geocode lookups issued, labeled by result (ok, not_found, unavailable, stale).",
	}, []string{"result"})

	// ConnectedClients is the current number of WebSocket listeners.
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "metrowatch",
		Subsystem: "listener",
		Name:      "connected_clients",
		Help:      "Current number of connected WebSocket clients.",
	})
)

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			EventsAppliedTotal,
			EventsDroppedTotal,
			ReportCount,
			GeocodeLookupsTotal,
			ConnectedClients,
		)
	})
}
