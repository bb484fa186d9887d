package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	canvasAPICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvas_sync",
		Name:      "api_calls_total",
		Help:      "Canvas API calls by method, endpoint and status code.",
	}, []string{"method", "endpoint", "status"})

	canvasAPIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "canvas_sync",
		Name:      "api_call_duration_seconds",
		Help:      "Canvas API call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	syncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvas_sync",
		Name:      "attempts_total",
		Help:      "Sync attempts by scope and outcome.",
	}, []string{"scope", "outcome"})

	coursesSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvas_sync",
		Name:      "courses_synced_total",
		Help:      "Courses reconciled, by action.",
	}, []string{"action"})

	assignmentsSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "canvas_sync",
		Name:      "assignments_synced_total",
		Help:      "Assignments reconciled, by action.",
	}, []string{"action"})
)

// ObserveAPICall records one Canvas API round trip. The endpoint label is
// the route template, not the full URL, to keep cardinality bounded.
func ObserveAPICall(method, endpoint, status string, duration time.Duration) {
	canvasAPICalls.WithLabelValues(method, endpoint, status).Inc()
	canvasAPIDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func ObserveSyncAttempt(scope, outcome string) {
	syncAttempts.WithLabelValues(scope, outcome).Inc()
}

func ObserveCourse(created bool) {
	if created {
		coursesSynced.WithLabelValues("created").Inc()
	} else {
		coursesSynced.WithLabelValues("updated").Inc()
	}
}

func ObserveAssignment(created bool) {
	if created {
		assignmentsSynced.WithLabelValues("created").Inc()
	} else {
		assignmentsSynced.WithLabelValues("updated").Inc()
	}
}
