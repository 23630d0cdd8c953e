// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

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
			Name: "exstem_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exstem_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exstem_sessions_started_total",
		Help: "Exam sessions started",
	})

	// reason is "owner" or "expired".
	SessionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_sessions_completed_total",
			Help: "Exam sessions moved to COMPLETED",
		},
		[]string{"reason"},
	)

	AnswersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_answers_submitted_total",
			Help: "Accepted answer submissions",
		},
		[]string{"correct"},
	)

	SubmissionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exstem_submissions_rejected_total",
			Help: "Answer submissions refused by the engine",
		},
		[]string{"reason"},
	)

	ScoresPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exstem_scores_persisted_total",
		Help: "Session score snapshots written by the scoring worker",
	})

	ScoreQueueRequeued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exstem_score_queue_requeued_total",
		Help: "Session ids pushed back to the scoring queue after a failure",
	})
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			SessionsStarted,
			SessionsCompleted,
			AnswersSubmitted,
			SubmissionsRejected,
			ScoresPersisted,
			ScoreQueueRequeued,
		)
	})
}

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		RequestCounter.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
