// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// Batch jobs are not scraped, so observations go into a private registry and
// Flush pushes the whole registry to the gateway under the job name.
package prompush

import (
	"errors"
	"fmt"
	"strings"

	"dataload/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend implements metrics.Backend on top of a Prometheus registry.
type Backend struct {
	registry *prometheus.Registry
	pusher   *push.Pusher

	steps     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	records   *prometheus.CounterVec
	batches   prometheus.Counter
}

// NewBackend registers the pipeline collectors and prepares a pusher for
// gatewayURL. Nothing is sent until Flush.
//
// Errors:
//   - empty jobName or gatewayURL
//   - collector registration failures (should not happen on a fresh registry)
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(jobName) == "" {
		return nil, errors.New("prompush: job name is required")
	}
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, errors.New("prompush: pushgateway url is required")
	}

	b := &Backend{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline stages executed, by step and status.",
		}, []string{"step", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Pipeline stage duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 9),
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records processed, by kind.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Insert batches committed.",
		}),
	}

	for _, c := range []prometheus.Collector{b.steps, b.durations, b.records, b.batches} {
		if err := b.registry.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	b.pusher = push.New(gatewayURL, jobName).Gatherer(b.registry)
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names and non-positive
// deltas are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		if labels["kind"] == "" {
			return
		}
		b.records.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.BatchesTotal:
		b.batches.Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry to the gateway, replacing the job's metric group.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
