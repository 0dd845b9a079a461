package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "housing",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "housing",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	drawdowns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "funding",
			Name:      "drawdowns_total",
			Help:      "Drawdowns applied to or reversed from funding contracts.",
		},
		[]string{"direction"},
	)

	drawdownAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "funding",
			Name:      "drawdown_amount_total",
			Help:      "Dollar amount drawn from or returned to funding contracts.",
		},
		[]string{"direction"},
	)

	claimExports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "claims",
			Name:      "exports_total",
			Help:      "Claim files exported.",
		},
		[]string{"format"},
	)

	claimResponseRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "claims",
			Name:      "response_rows_total",
			Help:      "Claim response rows reconciled.",
		},
		[]string{"outcome"},
	)

	automationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "housing",
			Subsystem: "automation",
			Name:      "runs_total",
			Help:      "Automation runs by type and status.",
		},
		[]string{"type", "status"},
	)

	automationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "housing",
			Subsystem: "automation",
			Name:      "run_duration_seconds",
			Help:      "Duration of automation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"type"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpInFlight,
		httpRequests,
		httpDuration,
		drawdowns,
		drawdownAmount,
		claimExports,
		claimResponseRows,
		automationRuns,
		automationDuration,
	)
}

// Middleware records request count, latency and in-flight requests. The path
// label uses the matched route template to keep cardinality bounded.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			path = r.Path
		}
		httpRequests.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}

func RecordDrawdown(amount float64) {
	drawdowns.WithLabelValues("apply").Inc()
	drawdownAmount.WithLabelValues("apply").Add(amount)
}

func RecordDrawdownReversal(amount float64) {
	drawdowns.WithLabelValues("reverse").Inc()
	drawdownAmount.WithLabelValues("reverse").Add(amount)
}

func RecordClaimExport(format string) {
	claimExports.WithLabelValues(format).Inc()
}

func RecordClaimResponseRow(outcome string) {
	claimResponseRows.WithLabelValues(outcome).Inc()
}

func RecordAutomationRun(automationType, status string, duration time.Duration) {
	automationRuns.WithLabelValues(automationType, status).Inc()
	automationDuration.WithLabelValues(automationType).Observe(duration.Seconds())
}
