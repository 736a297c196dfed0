package obs

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters shared by the console and the collaborator service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Console metrics
	IntegrityViolationsTotal *prometheus.CounterVec
	PermissionDeniedTotal    *prometheus.CounterVec
	StaleResponsesTotal      *prometheus.CounterVec
	DeduplicatedTotal        *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	WebsocketClients prometheus.Gauge
}

// NewMetrics creates and registers all metrics on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		IntegrityViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_store_integrity_violations_total",
				Help: "Store mutations rejected because they would break an invariant",
			},
			[]string{"op"},
		),
		PermissionDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_permission_denied_total",
				Help: "Actions refused by the permission evaluator",
			},
			[]string{"module", "action"},
		),
		StaleResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_fetch_stale_discarded_total",
				Help: "Responses dropped because a newer request for the same slot was issued",
			},
			[]string{"slot"},
		),
		DeduplicatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_fetch_deduplicated_total",
				Help: "Requests served by an identical in-flight request",
			},
			[]string{"slot"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_ws_clients",
			Help: "Connected websocket clients",
		}),
	}

	registry.MustRegister(
		m.IntegrityViolationsTotal,
		m.PermissionDeniedTotal,
		m.StaleResponsesTotal,
		m.DeduplicatedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebsocketClients,
	)
	return m
}

func (m *Metrics) IntegrityViolation(op string) {
	if m == nil {
		return
	}
	m.IntegrityViolationsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) PermissionDenied(module, action string) {
	if m == nil {
		return
	}
	m.PermissionDeniedTotal.WithLabelValues(module, action).Inc()
}

func (m *Metrics) StaleDiscarded(slot string) {
	if m == nil {
		return
	}
	m.StaleResponsesTotal.WithLabelValues(slot).Inc()
}

func (m *Metrics) Deduplicated(slot string) {
	if m == nil {
		return
	}
	m.DeduplicatedTotal.WithLabelValues(slot).Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.WebsocketClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.WebsocketClients.Dec()
}

// Middleware records request count and latency per matched route
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		route := c.Route().Path
		m.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the prometheus text format
func Handler(gatherer prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
