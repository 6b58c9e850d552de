// Package metrics collects engine and startup pipeline telemetry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns a private registry so several engines (and tests) never
// collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	engineStarts       *prometheus.CounterVec
	taskRuns           *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
	cleanupFailures    *prometheus.CounterVec
	repositoryBindings prometheus.Gauge
}

// NewCollector creates a collector under namespace (default "obc").
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "obc"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.engineStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "starts_total",
			Help:      "Engine start attempts by result",
		},
		[]string{"result"},
	)

	c.taskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "startup_task",
			Name:      "runs_total",
			Help:      "Startup task executions by status",
		},
		[]string{"task", "status"},
	)

	c.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "startup_task",
			Name:      "duration_seconds",
			Help:      "Time spent in a startup task's Execute",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"task"},
	)

	c.cleanupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cleanup_failures_total",
			Help:      "Failed teardown steps by resource",
		},
		[]string{"resource"},
	)

	c.repositoryBindings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "repository_bindings",
			Help:      "Repository interfaces currently bound by discovery",
		},
	)

	c.registry.MustRegister(
		c.engineStarts,
		c.taskRuns,
		c.taskDuration,
		c.cleanupFailures,
		c.repositoryBindings,
	)
	return c
}

// Registry exposes the collector's registry for scraping.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Register exposes the collector's metrics on r as well, typically the
// application's default registerer.
func (c *Collector) Register(r prometheus.Registerer) error {
	for _, m := range []prometheus.Collector{
		c.engineStarts,
		c.taskRuns,
		c.taskDuration,
		c.cleanupFailures,
		c.repositoryBindings,
	} {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordEngineStart(err error) {
	c.engineStarts.WithLabelValues(result(err)).Inc()
}

// RecordTask records one Execute call of task.
func (c *Collector) RecordTask(task string, elapsed time.Duration, err error) {
	c.taskRuns.WithLabelValues(task, result(err)).Inc()
	c.taskDuration.WithLabelValues(task).Observe(elapsed.Seconds())
}

func (c *Collector) RecordCleanupFailure(resource string) {
	c.cleanupFailures.WithLabelValues(resource).Inc()
}

func (c *Collector) SetRepositoryBindings(n int) {
	c.repositoryBindings.Set(float64(n))
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
