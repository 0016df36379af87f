package dag

import (
	"github.com/arnedepeuter/deppy-go/dag/audit"
	"github.com/arnedepeuter/deppy-go/dag/emit"
)

// Option configures a Run call. Options compose by functional
// application, following the pattern used throughout this codebase's
// teacher lineage for engine configuration.
type Option func(*runConfig)

// runConfig collects Options before a run starts.
type runConfig struct {
	emitter        emit.Emitter
	metrics        *PrometheusMetrics
	progress       Progress
	workerPoolSize int
	maxConcurrent  int
	auditStore     audit.Store
}

func defaultRunConfig() *runConfig {
	return &runConfig{
		emitter:        emit.NullEmitter{},
		progress:       NoopProgress{},
		workerPoolSize: 8,
		maxConcurrent:  0, // 0 = unbounded
	}
}

// WithEmitter wires an observability sink that receives structured
// events for every run/node/scope transition. The default is a no-op
// emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(c *runConfig) { c.emitter = e }
}

// WithMetrics wires a PrometheusMetrics collector. The default records
// nothing.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(c *runConfig) { c.metrics = m }
}

// WithProgress wires a Progress visitor that tracks
// calls-scheduled/calls-completed. The default is a no-op.
func WithProgress(p Progress) Option {
	return func(c *runConfig) { c.progress = p }
}

// WithWorkerPoolSize bounds the number of OffloadToWorker invocations
// that may run concurrently. Default is 8.
func WithWorkerPoolSize(n int) Option {
	return func(c *runConfig) {
		if n > 0 {
			c.workerPoolSize = n
		}
	}
}

// WithMaxConcurrentNodes bounds the number of node invocations (across
// all in-flight nodes, not just one node's fan-out) that may run at
// once. Zero (the default) means unbounded.
func WithMaxConcurrentNodes(n int) Option {
	return func(c *runConfig) { c.maxConcurrent = n }
}

// WithAuditStore wires an audit.Store that records a RunSummary for
// this run once it finishes, succeeding or not. The default persists
// nothing.
func WithAuditStore(s audit.Store) Option {
	return func(c *runConfig) { c.auditStore = s }
}
