// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Loads of large spreadsheets or CSV exports can take minutes, so the backend
// buffers observations in memory and submits them on a ticker (default once a
// minute) and once more on Close. Flush swaps the buffers under the lock and
// submits outside it; pipeline code may record at any time.
//
// Only the pipeline metrics declared in internal/metrics are forwarded. Each
// one has a fixed set of labels that become Datadog tags; observations missing
// a required label are dropped. Durations are not sent as distributions: each
// flush window reports nearest-rank percentiles as gauges.
//
// If the process is killed with SIGKILL/OOM, Close() won't run.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"dataload/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// metricPrefix namespaces every series this backend submits.
const metricPrefix = "dataload"

// metricDef maps one internal metric to its Datadog series name and the
// labels that must be present.
type metricDef struct {
	series string
	labels []string
}

var counters = map[string]metricDef{
	metrics.StepTotal:    {series: metricPrefix + ".step.total", labels: []string{"step", "status"}},
	metrics.RecordsTotal: {series: metricPrefix + ".records.total", labels: []string{"kind"}},
	metrics.BatchesTotal: {series: metricPrefix + ".batches.total"},
}

var histograms = map[string]metricDef{
	metrics.StepDurationSeconds: {series: metricPrefix + ".step.duration_seconds", labels: []string{"step", "status"}},
}

// quantiles reported per histogram series, as suffix and rank.
var quantiles = []struct {
	suffix string
	p      float64
}{
	{".p50", 0.50},
	{".p90", 0.90},
	{".p95", 0.95},
	{".p99", 0.99},
	{".max", 1},
}

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "dataload".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "team:data"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of *datadogV2.MetricsApi the backend needs.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// seriesKey identifies one buffered series: the Datadog metric name plus its
// label tags in definition order.
type seriesKey struct {
	metric string
	tags   string // "\x00"-joined
}

func (k seriesKey) tagList() []string {
	if k.tags == "" {
		return nil
	}
	return strings.Split(k.tags, "\x00")
}

// window is the buffered state of one flush interval.
type window struct {
	counts  map[seriesKey]float64
	samples map[seriesKey][]float64
}

func newWindow() window {
	return window{counts: map[seriesKey]float64{}, samples: map[seriesKey][]float64{}}
}

func (w window) empty() bool { return len(w.counts) == 0 && len(w.samples) == 0 }

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api        metricsSubmitter
	ctx        context.Context
	flushEvery time.Duration
	baseTags   []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	stopCh chan struct{}
	doneCh chan struct{}

	mu  sync.Mutex
	cur window
}

func resolveEnvTag() string {
	for _, name := range []string{"ENV", "DD_ENV"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop. Credentials and site come from the client's usual
// DD_API_KEY / DD_SITE environment.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "dataload".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Errors:
//   - Client construction does not fail under normal conditions; network
//     errors surface from Flush().
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "dataload"
	}
	b := &Backend{
		api:        opts.submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: opts.FlushEvery,
		baseTags:   append([]string{resolveEnvTag(), "job:" + job}, opts.Tags...),
		now:        opts.now,
		newTicker:  opts.newTicker,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		cur:        newWindow(),
	}
	if b.flushEvery <= 0 {
		b.flushEvery = 60 * time.Second
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.newTicker == nil {
		b.newTicker = time.NewTicker
	}
	if b.api == nil {
		b.api = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
//
// Close must be called once; a second call panics on the closed stop channel.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// key builds the series key for def, or reports false when a required label
// is missing.
func key(def metricDef, labels metrics.Labels) (seriesKey, bool) {
	tags := make([]string, 0, len(def.labels))
	for _, name := range def.labels {
		v := labels[name]
		if v == "" {
			return seriesKey{}, false
		}
		tags = append(tags, name+":"+v)
	}
	return seriesKey{metric: def.series, tags: strings.Join(tags, "\x00")}, true
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	def, ok := counters[name]
	if !ok || delta <= 0 {
		return
	}
	k, ok := key(def, labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.cur.counts[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	def, ok := histograms[name]
	if !ok || value < 0 {
		return
	}
	k, ok := key(def, labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.cur.samples[k] = append(b.cur.samples[k], value)
	b.mu.Unlock()
}

func (b *Backend) swap() window {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.cur
	b.cur = newWindow()
	return w
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Errors:
//   - Returns any error from Datadog submission.
//   - Returns nil if there is nothing to submit.
//
// Edge cases:
//   - Safe to call concurrently with IncCounter/ObserveHistogram.
//   - Buffers are reset even if submission fails; delivery is at-most-once.
func (b *Backend) Flush() error {
	w := b.swap()
	if w.empty() {
		return nil
	}
	payload := datadogV2.MetricPayload{Series: b.series(w, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// series renders a window at a fixed timestamp. Output order is sorted by
// metric then tags.
func (b *Backend) series(w window, ts int64) []datadogV2.MetricSeries {
	out := make([]datadogV2.MetricSeries, 0, len(w.counts)+(len(quantiles)+1)*len(w.samples))

	for _, k := range sortedKeys(w.counts) {
		out = append(out, point(k.metric, datadogV2.METRICINTAKETYPE_COUNT, w.counts[k], b.tags(k), ts))
	}
	for _, k := range sortedKeys(w.samples) {
		s := append([]float64(nil), w.samples[k]...)
		sort.Float64s(s)
		tags := b.tags(k)
		for _, q := range quantiles {
			out = append(out, point(k.metric+q.suffix, datadogV2.METRICINTAKETYPE_GAUGE, nearestRank(s, q.p), tags, ts))
		}
		out = append(out, point(k.metric+".samples", datadogV2.METRICINTAKETYPE_GAUGE, float64(len(s)), tags, ts))
	}
	return out
}

func (b *Backend) tags(k seriesKey) []string {
	return append(append(make([]string, 0, len(b.baseTags)+2), b.baseTags...), k.tagList()...)
}

func point(metric string, typ datadogV2.MetricIntakeType, v float64, tags []string, ts int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(ts), Value: dd.PtrFloat64(v)}},
		Tags:   tags,
	}
}

func sortedKeys[V any](m map[seriesKey]V) []seriesKey {
	keys := make([]seriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].tags < keys[j].tags
	})
	return keys
}

// nearestRank returns the p-quantile of sorted s; p is clamped to [0,1].
func nearestRank(s []float64, p float64) float64 {
	n := len(s)
	switch {
	case n == 0:
		return 0
	case p <= 0:
		return s[0]
	case p >= 1:
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	return s[min(idx, n-1)]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:data".
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
