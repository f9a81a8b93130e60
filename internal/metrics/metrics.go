package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "authgate_http_requests_total", Help: "HTTP requests served"},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	backendCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "authgate_backend_calls_total", Help: "Calls made to the Parse backend"},
		[]string{"operation", "status"},
	)
	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_backend_call_duration_seconds",
			Help:    "Parse backend call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)
	activityDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "authgate_activity_dropped_total", Help: "Activity entries that were not persisted"},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, backendCalls, backendDuration, activityDropped)
}

// ObserveBackendCall records a single Parse REST call. status is 0 when the request never got a response.
func ObserveBackendCall(operation string, status int, elapsed time.Duration) {
	backendCalls.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	backendDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func ActivityDropped(reason string) {
	activityDropped.WithLabelValues(reason).Inc()
}

// Middleware counts requests per matched route so path parameters do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
