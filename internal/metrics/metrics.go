// Package metrics is the backend-neutral metrics facade used by the pipeline.
//
// Core code only calls the package-level helpers; a binary picks a concrete
// backend (Datadog, Prometheus Pushgateway) with SetBackend at startup. Until
// then every call goes to a no-op backend, so tests and library users pay
// nothing.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the pipeline.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	BatchesTotal        = "etl_batches_total"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. nil restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one histogram sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered metrics, if the backend buffers.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one pipeline step and observes its duration.
// status is "ok" or "error".
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRows counts records by kind ("parsed", "converted", "skipped",
// "inserted").
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatches counts committed insert batches.
func RecordBatches(n int) {
	if n <= 0 {
		return
	}
	IncCounter(BatchesTotal, float64(n), nil)
}
