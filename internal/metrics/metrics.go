// Package metrics exposes Prometheus instrumentation for a running loop:
// iteration counts and durations, active handle count, worker-pool saturation, and
// child-process exits. Grounded on ChuLiYu-raft-recovery's
// internal/metrics.Collector (same prometheus/client_golang +
// promhttp.Handler shape), repurposed for the reactor's own counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the loop and pool report through.
type Registry struct {
	iterations    prometheus.Counter
	iterationTime prometheus.Histogram

	activeHandles prometheus.Gauge
	inflightReqs  prometheus.Gauge

	poolQueueDepth prometheus.Gauge
	poolInFlight   prometheus.Gauge

	processesSpawned prometheus.Counter
	processesExited  prometheus.Counter

	handler http.Handler
}

// NewRegistry builds and registers every metric against a fresh
// prometheus registry (not the global DefaultRegisterer), so multiple
// Loops in one process — or in tests — never collide on metric names.
func NewRegistry() *Registry {
	r := &Registry{
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nyx_loop_iterations_total",
			Help: "Total number of event loop iterations run.",
		}),
		iterationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nyx_loop_iteration_seconds",
			Help:    "Wall-clock duration of one loop iteration.",
			Buckets: prometheus.DefBuckets,
		}),
		activeHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nyx_active_handles",
			Help: "Current count of active, ref'd handles keeping the loop alive.",
		}),
		inflightReqs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nyx_inflight_requests",
			Help: "Current count of in-flight requests.",
		}),
		poolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nyx_pool_queue_depth",
			Help: "Worker-pool items waiting for a slot.",
		}),
		poolInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nyx_pool_inflight",
			Help: "Worker-pool items currently running.",
		}),
		processesSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nyx_processes_spawned_total",
			Help: "Total child processes spawned.",
		}),
		processesExited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nyx_processes_exited_total",
			Help: "Total child processes reaped.",
		}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		r.iterations, r.iterationTime, r.activeHandles, r.inflightReqs,
		r.poolQueueDepth, r.poolInFlight, r.processesSpawned, r.processesExited,
	)
	r.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return r
}

// RecordIteration reports one loop iteration's wall-clock duration.
func (r *Registry) RecordIteration(seconds float64) {
	r.iterations.Inc()
	r.iterationTime.Observe(seconds)
}

// SetActiveHandles reports the current liveness count.
func (r *Registry) SetActiveHandles(n int) { r.activeHandles.Set(float64(n)) }

// SetInflightRequests reports the current in-flight request count.
func (r *Registry) SetInflightRequests(n int) { r.inflightReqs.Set(float64(n)) }

// SetPoolStats reports worker-pool saturation.
func (r *Registry) SetPoolStats(queued, running int) {
	r.poolQueueDepth.Set(float64(queued))
	r.poolInFlight.Set(float64(running))
}

// RecordProcessSpawned increments the spawn counter.
func (r *Registry) RecordProcessSpawned() { r.processesSpawned.Inc() }

// RecordProcessExited increments the reap counter.
func (r *Registry) RecordProcessExited() { r.processesExited.Inc() }

// Serve starts an HTTP server exposing /metrics on addr. It blocks like
// http.ListenAndServe; callers typically run it in its own goroutine.
func (r *Registry) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.handler)
	return http.ListenAndServe(addr, mux)
}
