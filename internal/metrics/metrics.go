// Package metrics holds the Prometheus collectors for HTTP traffic and the
// transfer pipelines.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telecloud_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telecloud_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telecloud_uploads_total",
		Help: "Upload attempts by media class and result.",
	}, []string{"class", "result"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telecloud_upload_bytes_total",
		Help: "Bytes accepted by Telegram.",
	})

	resolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telecloud_resolves_total",
		Help: "Resolve attempts by delivery mode or failure.",
	}, []string{"mode"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "telecloud_download_duration_seconds",
		Help:    "Duration of proxied downloads from the Telegram file endpoint.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	webhookUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telecloud_webhook_updates_total",
		Help: "Inbound webhook updates by outcome state and reason.",
	}, []string{"state", "reason"})
)

// Upload result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// ObserveUpload records one upload attempt.
func ObserveUpload(class, result string, bytes int64) {
	uploadsTotal.WithLabelValues(class, result).Inc()
	if result == ResultOK && bytes > 0 {
		uploadBytesTotal.Add(float64(bytes))
	}
}

// ObserveResolve records one resolve outcome: "proxy", "redirect" or an error label.
func ObserveResolve(mode string) {
	resolvesTotal.WithLabelValues(mode).Inc()
}

// ObserveDownload records the duration of a proxied fetch.
func ObserveDownload(start time.Time) {
	downloadDuration.Observe(time.Since(start).Seconds())
}

// ObserveWebhook records one processed update.
func ObserveWebhook(state, reason string) {
	webhookUpdatesTotal.WithLabelValues(state, reason).Inc()
}

// Middleware records request counts and latency per registered route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			path := routePath(c)
			method := c.Request().Method
			httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// routePath uses the route template so ids never become label values.
func routePath(c echo.Context) string {
	path := strings.TrimSpace(c.Path())
	if path == "" {
		return "unmatched"
	}
	return path
}

// Handler serves the default registry.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
