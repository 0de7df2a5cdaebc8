package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letter_broker_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "letter_broker_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letter_broker_webhook_events_total",
			Help: "Processor webhook events by normalized type and result.",
		},
		[]string{"type", "result"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letter_broker_notifications_total",
			Help: "Notification channel deliveries by result.",
		},
		[]string{"channel", "result"},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letter_broker_sweep_runs_total",
			Help: "Lifecycle sweep executions.",
		},
		[]string{"sweep"},
	)

	Payouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "letter_broker_payouts_total",
			Help: "Payout attempts by result.",
		},
		[]string{"result"},
	)
)

// Middleware records request counts and latency keyed by the matched route pattern.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		HTTPRequests.WithLabelValues(route, c.Method(), strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(route, c.Method()).Observe(time.Since(start).Seconds())
		return err
	}
}
