package obs

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IntegrityViolation("add employee")
		m.PermissionDenied("driver", "write")
		m.StaleDiscarded("search")
		m.Deduplicated("departments")
		m.ClientConnected()
		m.ClientDisconnected()
	})
}

func TestCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.IntegrityViolation("add employee")
	m.IntegrityViolation("add employee")
	m.PermissionDenied("driver", "write")
	m.StaleDiscarded("search")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IntegrityViolationsTotal.WithLabelValues("add employee")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionDeniedTotal.WithLabelValues("driver", "write")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleResponsesTotal.WithLabelValues("search")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DeduplicatedTotal.WithLabelValues("search")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/drivers/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/metrics", Handler(registry))

	resp, err := app.Test(httptest.NewRequest("GET", "/drivers/7", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/drivers/:id", "204")))

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "fleet_http_requests_total"))
}
