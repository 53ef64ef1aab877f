// Package observability exports the client's operational metrics to
// Prometheus. Transport health and bridge throughput are only visible here
// and in voco-debug.log; the user-facing console stays quiet about them.
package observability

import (
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the session client records into.
type Metrics struct {
	Connects       promclient.Counter
	Reconnects     promclient.Counter
	DroppedSends   promclient.Counter
	ParseFailures  promclient.Counter
	MessagesIn     *promclient.CounterVec
	MessagesOut    *promclient.CounterVec
	PendingCalls   promclient.Gauge
	CallsDispatched promclient.Counter
	CallTimeouts   promclient.Counter
	CallDuration   promclient.Histogram
	EventsApplied  *promclient.CounterVec
}

// New registers all collectors on reg (DefaultRegisterer when nil).
func New(reg promclient.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}
	const namespace = "voco"

	m := &Metrics{
		Connects: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "connects_total",
			Help: "Successful WebSocket connections established.",
		}),
		Reconnects: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "reconnects_total",
			Help: "Reconnect attempts scheduled after unclean closes.",
		}),
		DroppedSends: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "dropped_sends_total",
			Help: "Outbound messages dropped because no connection was open.",
		}),
		ParseFailures: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "parse_failures_total",
			Help: "Inbound frames discarded as unparsable.",
		}),
		MessagesIn: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "messages_in_total",
			Help: "Inbound messages by wire type.",
		}, []string{"type"}),
		MessagesOut: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "messages_out_total",
			Help: "Outbound messages by wire type.",
		}, []string{"type"}),
		PendingCalls: promclient.NewGauge(promclient.GaugeOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "pending_calls",
			Help: "Capability calls awaiting a correlated result.",
		}),
		CallsDispatched: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "calls_dispatched_total",
			Help: "Capability calls dispatched through the transport.",
		}),
		CallTimeouts: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "call_timeouts_total",
			Help: "Capability calls rejected by the per-call timeout.",
		}),
		CallDuration: promclient.NewHistogram(promclient.HistogramOpts{
			Namespace: namespace, Subsystem: "bridge", Name: "call_duration_seconds",
			Help:    "Latency between dispatch and resolution of a capability call.",
			Buckets: promclient.DefBuckets,
		}),
		EventsApplied: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace, Subsystem: "timeline", Name: "events_applied_total",
			Help: "Timeline events applied to the session store, by event type.",
		}, []string{"type"}),
	}

	collectors := []promclient.Collector{
		m.Connects, m.Reconnects, m.DroppedSends, m.ParseFailures,
		m.MessagesIn, m.MessagesOut,
		m.PendingCalls, m.CallsDispatched, m.CallTimeouts, m.CallDuration,
		m.EventsApplied,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(promclient.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Nop returns metrics backed by unregistered collectors, for tests and for
// components constructed without a registry.
func Nop() *Metrics {
	m, _ := New(promclient.NewRegistry())
	return m
}
