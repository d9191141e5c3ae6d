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
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	QuestionsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_questions_generated_total",
			Help: "Questions served by generate",
		},
		[]string{"activity_type"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_answers_total",
			Help: "Save/submit calls by outcome",
		},
		[]string{"operation", "outcome"},
	)

	ArchiveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_archive_failures_total",
			Help: "Submission archive writes that failed",
		},
	)

	GradebookDeadLetters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_gradebook_dead_letters_total",
			Help: "Gradebook notifications that exhausted retries",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(QuestionsGenerated)
		prometheus.MustRegister(AnswersTotal)
		prometheus.MustRegister(ArchiveFailures)
		prometheus.MustRegister(GradebookDeadLetters)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
