// Package metrics holds the Prometheus collectors shared by the server and
// viewer components. Collectors are package-level so that hot paths can update
// them without threading a registry through every constructor; Register
// attaches them to a registry at wiring time.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "offerstream"

var (
	// StoreMutations counts applied store operations by kind
	// (add, update, delete, batch).
	StoreMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "mutations_total",
		Help:      "Mutating operations applied to the offer store.",
	}, []string{"op"})

	// StoreOffers tracks the number of resident offers.
	StoreOffers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "offers",
		Help:      "Offers currently held by the store.",
	})

	// HubClients tracks connected push-channel subscribers.
	HubClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "clients",
		Help:      "Connected WebSocket subscribers.",
	})

	// HubMessages counts envelopes accepted for fan-out.
	HubMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "messages_total",
		Help:      "Envelopes accepted for fan-out.",
	})

	// HubDropped counts dropped deliveries by reason
	// (queue_full, slow_client, sink_queue_full).
	HubDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "dropped_total",
		Help:      "Envelopes dropped before reaching a subscriber or sink.",
	}, []string{"reason"})

	// SinkErrors counts failed sink writes by sink name.
	SinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "sink_errors_total",
		Help:      "Failed writes to broadcast sinks.",
	}, []string{"sink"})

	// GeneratorCycles counts completed generation cycles.
	GeneratorCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generator",
		Name:      "cycles_total",
		Help:      "Completed generation cycles.",
	})

	// GeneratorFailures counts cycles that failed and entered recovery.
	GeneratorFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generator",
		Name:      "failures_total",
		Help:      "Generation cycles that failed.",
	})

	// ClientReconnectAttempts counts automatic reconnect attempts by outcome.
	ClientReconnectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "reconnect_attempts_total",
		Help:      "Automatic reconnect attempts by outcome.",
	}, []string{"outcome"})

	// PipelineRuns counts snapshot exports and journal archive runs by job
	// and outcome.
	PipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Snapshot export and journal archive runs.",
	}, []string{"job", "outcome"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		StoreMutations, StoreOffers,
		HubClients, HubMessages, HubDropped, SinkErrors,
		GeneratorCycles, GeneratorFailures,
		ClientReconnectAttempts,
		PipelineRuns,
	}
}

// Register attaches every collector to reg. Collectors that are already
// registered are ignored so the call is idempotent.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves the metrics gathered by reg.
// GET /metrics
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
