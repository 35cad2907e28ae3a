// Package metrics collects server statistics and exposes them in the Prometheus text format.
package metrics

import (
	"net"
	"strconv"
	"time"

	"github.com/indigo-web/webcore/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics is safe for concurrent use. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	websockets  prometheus.Gauge
	requests    *prometheus.CounterVec
	cost        prometheus.Histogram
	stalls      prometheus.Counter
}

func New() *Metrics {
	buckets := []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webcore_connections_active", Help: "currently open connections",
		}),
		websockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webcore_websocket_sessions_active", Help: "currently running websocket sessions",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webcore_requests_total", Help: "served requests",
		}, []string{"site", "method", "code"}),
		cost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "webcore_request_duration_seconds", Help: "time spent serving a request", Buckets: buckets,
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webcore_stalls_total", Help: "connections reported as stalled",
		}),
	}

	m.registry.MustRegister(m.connections, m.websockets, m.requests, m.cost, m.stalls)

	return m
}

// Registry allows registering custom collectors alongside the built-in ones.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.websockets.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.websockets.Dec()
	}
}

func (m *Metrics) Request(site, method string, code int, cost time.Duration) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(site, method, strconv.Itoa(code)).Inc()
	m.cost.Observe(cost.Seconds())
}

// Stall matches transport.StallFunc.
func (m *Metrics) Stall(net.Addr, time.Duration) {
	if m != nil {
		m.stalls.Inc()
	}
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() router.Handler {
	return func(x router.Exchange) error {
		families, err := m.registry.Gather()
		if err != nil {
			return err
		}

		response := x.Response()
		response.ContentType = string(expfmt.FmtText)
		encoder := expfmt.NewEncoder(response, expfmt.FmtText)
		for _, family := range families {
			if err = encoder.Encode(family); err != nil {
				return err
			}
		}

		return x.Finish()
	}
}
