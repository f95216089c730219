package middleware

import (
	"strconv"
	"time"

	applogger "ContagionRadar/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds request collectors labelled by route template so
// "/api/latest?origin=ETH" and "?origin=BTC" share a series.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	size     *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contagion_http_requests_total",
			Help: "HTTP requests by route and outcome status",
		}, []string{"route", "method", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contagion_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.ExponentialBuckets(0.002, 2.5, 10),
		}, []string{"route", "method"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "contagion_http_in_flight_requests",
			Help: "Requests currently being served",
		}),
		size: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contagion_http_response_size_bytes",
			Help:    "Response body size",
			Buckets: prometheus.ExponentialBuckets(128, 4, 8),
		}, []string{"route"}),
	}
}

// Middleware records request metrics and warns about requests slower than
// slow. A zero slow disables the warning.
func (m *HTTPMetrics) Middleware(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			status := Outcome(c)
			took := time.Since(start)

			m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(route, method).Observe(took.Seconds())
			m.size.WithLabelValues(route).Observe(float64(c.Response().Size))

			if l != nil && slow > 0 && took >= slow {
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", status),
					applogger.Duration("took", took),
				)
			}
			return nil
		}
	}
}
