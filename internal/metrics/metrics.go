// Package metrics holds the in-process observable counters: doc
// counts, flush serials, match/rank latencies, queued task counts,
// match-phase-limiter activations, resource-limit rejections. The wire
// export/scrape path (turning these into a pulled or pushed metrics report)
// is out of scope; only the instrumentation itself is wired. RankLatency
// and QueuedTasks are registered, but no component records into them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is a per-engine collection of the counters/histograms every
// subsystem registers into. A nil *Registry is valid and every method on it
// becomes a no-op, so components can be constructed without one in tests.
type Registry struct {
	reg *prometheus.Registry

	DocsCommitted      *prometheus.CounterVec
	FlushSerial        *prometheus.GaugeVec
	QueuedTasks        *prometheus.GaugeVec
	ResourceRejections prometheus.Counter
	MatchPhaseLimited  prometheus.Counter
	MatchLatency       prometheus.Histogram
	RankLatency        prometheus.Histogram
	BucketMoves        *prometheus.CounterVec
	JobRuns            *prometheus.CounterVec
}

// New builds a Registry with every counter registered against a fresh
// prometheus.Registry (never the global DefaultRegisterer, so multiple
// engines in one process, e.g. in tests, never collide on metric names).
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		DocsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "searchcore_docs_committed_total",
			Help: "documents committed per sub-database.",
		}, []string{"subdb"}),
		FlushSerial: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "searchcore_attribute_flushed_serial",
			Help: "last serial an attribute was flushed at.",
		}, []string{"attribute"}),
		QueuedTasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "searchcore_executor_queued_tasks",
			Help: "tasks queued on a named executor lane.",
		}, []string{"executor"}),
		ResourceRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchcore_resource_exhausted_total",
			Help: "Put/Update operations rejected by the write filter.",
		}),
		MatchPhaseLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "searchcore_match_phase_limiter_activations_total",
			Help: "queries where the match-phase limiter swapped in a capped iterator.",
		}),
		MatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchcore_match_latency_seconds",
			Help:    "wall time of a full match loop, per query.",
			Buckets: prometheus.DefBuckets,
		}),
		RankLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "searchcore_rank_latency_seconds",
			Help:    "wall time spent running rank programs, per query.",
			Buckets: prometheus.DefBuckets,
		}),
		BucketMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "searchcore_bucket_moves_total",
			Help: "documents moved between sub-databases by BucketMover.",
		}, []string{"from", "to"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "searchcore_maintenance_job_runs_total",
			Help: "maintenance job Run() invocations.",
		}, []string{"job"}),
	}
	reg.MustRegister(
		r.DocsCommitted, r.FlushSerial, r.QueuedTasks, r.ResourceRejections,
		r.MatchPhaseLimited, r.MatchLatency, r.RankLatency, r.BucketMoves, r.JobRuns,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for a scrape handler
// to gather from; wiring it onto an HTTP mux is an application-bootstrap
// concern and stays out of scope.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

func (r *Registry) docCommitted(subdb string) {
	if r == nil {
		return
	}
	r.DocsCommitted.WithLabelValues(subdb).Inc()
}

// DocCommitted records one document commit for subdb. Safe on a nil
// Registry.
func (r *Registry) DocCommitted(subdb string) { r.docCommitted(subdb) }

// FlushedAt records that attribute name was last flushed at serial. Safe on
// a nil Registry.
func (r *Registry) FlushedAt(attribute string, serial uint64) {
	if r == nil {
		return
	}
	r.FlushSerial.WithLabelValues(attribute).Set(float64(serial))
}

// ResourceRejected increments the resource-exhaustion rejection counter.
// Safe on a nil Registry.
func (r *Registry) ResourceRejected() {
	if r == nil {
		return
	}
	r.ResourceRejections.Inc()
}

// BucketMoved records one document move between sub-databases. Safe on a
// nil Registry.
func (r *Registry) BucketMoved(from, to string) {
	if r == nil {
		return
	}
	r.BucketMoves.WithLabelValues(from, to).Inc()
}

// JobRan records one Run() tick of the named maintenance job. Safe on a nil
// Registry.
func (r *Registry) JobRan(job string) {
	if r == nil {
		return
	}
	r.JobRuns.WithLabelValues(job).Inc()
}
