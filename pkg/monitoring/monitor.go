package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"method", "endpoint"},
	)

	ParticipantsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_participants_completed_total",
			Help: "Participants that reached the final trial, by group",
		},
		[]string{"group"},
	)

	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_store_errors_total",
			Help: "Persistence failures swallowed by the flow, by operation",
		},
		[]string{"op"},
	)

	LiveViewers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "experiment_live_viewers",
			Help: "Open websocket connections on the live progress feed",
		},
	)

	ProgressEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experiment_progress_events_total",
			Help: "Progress events published to the live feed, by type",
		},
		[]string{"type"},
	)
)

var registerOnce sync.Once

// Init 注册指标，多次调用安全
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(ParticipantsCompleted)
		prometheus.MustRegister(StoreErrors)
		prometheus.MustRegister(LiveViewers)
		prometheus.MustRegister(ProgressEvents)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
