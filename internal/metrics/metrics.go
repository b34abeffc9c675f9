// Package metrics exposes prometheus collectors for searches, mutations,
// graph reloads and background tasks. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feinschmecker"

// Metrics holds the service collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	searchDuration prometheus.Histogram
	countFallbacks prometheus.Counter
	mutations      *prometheus.CounterVec
	graphReloads   *prometheus.CounterVec
	graphVersion   prometheus.Gauge
	tasks          *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	taskRetries    *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
}

// New creates the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Time spent executing search queries against the graph.",
			Buckets:   prometheus.DefBuckets,
		}),
		countFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_count_fallbacks_total",
			Help:      "Count queries that failed and fell back to zero.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Recipe mutations by operation and result.",
		}, []string{"op", "result"}),
		graphReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_reloads_total",
			Help:      "Graph store loads by result.",
		}, []string{"result"}),
		graphVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_version",
			Help:      "Version token of the graph currently loaded by this process.",
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Task state transitions by task name and state.",
		}, []string{"task", "state"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution time by task name.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10, 20, 30},
		}, []string{"task"}),
		taskRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Scheduled task retries by task name.",
		}, []string{"task"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.searchDuration, m.countFallbacks, m.mutations, m.graphReloads, m.graphVersion,
		m.tasks, m.taskDuration, m.taskRetries, m.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSearch(d time.Duration) {
	if m != nil {
		m.searchDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) CountFallback() {
	if m != nil {
		m.countFallbacks.Inc()
	}
}

func (m *Metrics) Mutation(op string, err error) {
	if m != nil {
		m.mutations.WithLabelValues(op, result(err)).Inc()
	}
}

func (m *Metrics) Reload(err error) {
	if m != nil {
		m.graphReloads.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) SetVersion(v int64) {
	if m != nil {
		m.graphVersion.Set(float64(v))
	}
}

func (m *Metrics) TaskState(task, state string) {
	if m != nil {
		m.tasks.WithLabelValues(task, state).Inc()
	}
}

func (m *Metrics) ObserveTask(task string, d time.Duration) {
	if m != nil {
		m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
	}
}

func (m *Metrics) TaskRetry(task string) {
	if m != nil {
		m.taskRetries.WithLabelValues(task).Inc()
	}
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
