// Package metrics defines the Prometheus collectors shared by the client
// and the relay. Every recorder method is safe on a nil receiver so
// components can run without instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "powerboard"

// Gateway instruments the realtime connection.
type Gateway struct {
	dials     *prometheus.CounterVec
	retries   prometheus.Counter
	frames    *prometheus.CounterVec
	state     *prometheus.GaugeVec
	toasts    prometheus.Counter
	mutations *prometheus.CounterVec
}

// NewGateway creates and registers the client collectors.
func NewGateway(reg prometheus.Registerer) *Gateway {
	m := &Gateway{
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "dials_total",
			Help:      "Channel open attempts by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "retries_scheduled_total",
			Help:      "Reconnect attempts scheduled.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "frames_total",
			Help:      "Inbound frames by result.",
		}, []string{"result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "state",
			Help:      "1 for the current connection state.",
		}, []string{"state"}),
		toasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "toast",
			Name:      "enqueued_total",
			Help:      "Transient alerts enqueued from push events.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "mutations_total",
			Help:      "Mark-read server calls by operation and result.",
		}, []string{"op", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.dials, m.retries, m.frames, m.state, m.toasts, m.mutations)
	}
	return m
}

func (m *Gateway) Dial(ok bool) {
	if m == nil {
		return
	}
	m.dials.WithLabelValues(result(ok)).Inc()
}

func (m *Gateway) RetryScheduled() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Gateway) Frame(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.frames.WithLabelValues("ok").Inc()
		return
	}
	m.frames.WithLabelValues("malformed").Inc()
}

// State marks current as the only active state among all.
func (m *Gateway) State(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *Gateway) Toast() {
	if m == nil {
		return
	}
	m.toasts.Inc()
}

func (m *Gateway) Mutation(op string, ok bool) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, result(ok)).Inc()
}

// Relay instruments the fan-out server.
type Relay struct {
	connections prometheus.Gauge
	published   prometheus.Counter
	dropped     prometheus.Counter
	rejected    prometheus.Counter
}

// NewRelay creates and registers the relay collectors.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Payloads accepted on /publish.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "slow_clients_dropped_total",
			Help:      "Clients disconnected for not keeping up.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "rejected_total",
			Help:      "Websocket handshakes rejected for bad credentials.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.published, m.dropped, m.rejected)
	}
	return m
}

func (m *Relay) Connected() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Relay) Disconnected() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Relay) Published() {
	if m == nil {
		return
	}
	m.published.Inc()
}

func (m *Relay) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Relay) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// Handler serves the registry in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
