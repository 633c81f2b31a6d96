package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "supercv"

var (
	analysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analyses_total",
		Help:      "Analysis records by lifecycle event",
	}, []string{"event"})

	analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analysis_duration_seconds",
		Help:      "Time from PROCESSING to a terminal state",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	creditsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credit_operations_total",
		Help:      "Credit ledger operations by kind and outcome",
	}, []string{"kind", "outcome"})

	claimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claims_total",
		Help:      "Ownership claim attempts by outcome",
	}, []string{"outcome"})

	jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_jobs_total",
		Help:      "Queue jobs handled by the worker",
	}, []string{"kind", "outcome"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route", "status"})
)

func init() {
	analysesTotal = registerOrExisting(analysesTotal)
	analysisDuration = registerOrExisting(analysisDuration)
	creditsTotal = registerOrExisting(creditsTotal)
	claimsTotal = registerOrExisting(claimsTotal)
	jobsTotal = registerOrExisting(jobsTotal)
	httpRequests = registerOrExisting(httpRequests)
	httpLatency = registerOrExisting(httpLatency)
}

func registerOrExisting[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// IncAnalysisSubmitted counts a newly created analysis record.
func IncAnalysisSubmitted() { analysesTotal.WithLabelValues("submitted").Inc() }

// IncAnalysisCompleted counts a record reaching COMPLETED.
func IncAnalysisCompleted() { analysesTotal.WithLabelValues("completed").Inc() }

// IncAnalysisFailed counts a record reaching FAILED.
func IncAnalysisFailed() { analysesTotal.WithLabelValues("failed").Inc() }

// IncCustomizationRequested counts accepted customize requests.
func IncCustomizationRequested() { analysesTotal.WithLabelValues("customize_requested").Inc() }

// ObserveAnalysisDuration records processing time for a finished analysis.
func ObserveAnalysisDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	analysisDuration.Observe(d.Seconds())
}

// IncCredit counts a ledger operation. kind is debit, refresh, grant or signup.
func IncCredit(kind, outcome string) { creditsTotal.WithLabelValues(kind, outcome).Inc() }

// IncClaim counts a claim attempt by outcome.
func IncClaim(outcome string) { claimsTotal.WithLabelValues(outcome).Inc() }

// IncJob counts a worker job by kind and outcome.
func IncJob(kind, outcome string) { jobsTotal.WithLabelValues(kind, outcome).Inc() }

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": c.Request.Method,
			"route":  route,
			"status": strconv.Itoa(c.Writer.Status()),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
