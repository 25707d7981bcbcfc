// Package metrics owns the server's Prometheus registry. All methods are
// safe on a nil *Registry so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics of the cipherbox server.
type Registry struct {
	LifecycleTransitions *prometheus.CounterVec
	SweepRuns            *prometheus.CounterVec
	SweepPurged          prometheus.Counter
	SweepIncomplete      prometheus.Counter
	SweepDuration        prometheus.Histogram
	UploadedBytes        prometheus.Counter
	AuditWriteFailures   prometheus.Counter
	GRPCRequests         *prometheus.CounterVec
	GRPCDuration         *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewRegistry creates a registry with every cipherbox metric plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{registry: reg}
	f := promauto.With(reg)

	r.LifecycleTransitions = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherbox_lifecycle_transitions_total",
			Help: "Lifecycle transitions by kind and outcome",
		},
		[]string{"transition", "outcome"},
	)
	r.SweepRuns = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherbox_sweep_runs_total",
			Help: "Retention sweeps by outcome",
		},
		[]string{"outcome"},
	)
	r.SweepPurged = f.NewCounter(prometheus.CounterOpts{
		Name: "cipherbox_sweep_purged_total",
		Help: "Files purged by retention sweeps",
	})
	r.SweepIncomplete = f.NewCounter(prometheus.CounterOpts{
		Name: "cipherbox_sweep_incomplete_total",
		Help: "Sweep purges left for a later run",
	})
	r.SweepDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "cipherbox_sweep_duration_seconds",
		Help:    "Retention sweep duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	})
	r.UploadedBytes = f.NewCounter(prometheus.CounterOpts{
		Name: "cipherbox_uploaded_bytes_total",
		Help: "Ciphertext bytes written to the object store",
	})
	r.AuditWriteFailures = f.NewCounter(prometheus.CounterOpts{
		Name: "cipherbox_audit_write_failures_total",
		Help: "Audit records that could not be stored",
	})
	r.GRPCRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherbox_grpc_requests_total",
			Help: "gRPC requests by method and status code",
		},
		[]string{"method", "code"},
	)
	r.GRPCDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cipherbox_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) RecordTransition(transition string, err error) {
	if r == nil {
		return
	}
	r.LifecycleTransitions.WithLabelValues(transition, outcome(err)).Inc()
}

func (r *Registry) RecordSweep(purged, incomplete int, err error, d time.Duration) {
	if r == nil {
		return
	}
	r.SweepRuns.WithLabelValues(outcome(err)).Inc()
	r.SweepPurged.Add(float64(purged))
	r.SweepIncomplete.Add(float64(incomplete))
	r.SweepDuration.Observe(d.Seconds())
}

func (r *Registry) RecordUpload(bytes int64) {
	if r == nil || bytes <= 0 {
		return
	}
	r.UploadedBytes.Add(float64(bytes))
}

func (r *Registry) RecordAuditFailure() {
	if r == nil {
		return
	}
	r.AuditWriteFailures.Inc()
}

func (r *Registry) RecordGRPC(method, code string, d time.Duration) {
	if r == nil {
		return
	}
	r.GRPCRequests.WithLabelValues(method, code).Inc()
	r.GRPCDuration.WithLabelValues(method).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
