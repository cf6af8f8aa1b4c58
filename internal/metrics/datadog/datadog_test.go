package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"dataload/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(_ context.Context, body datadogV2.MetricPayload, _ ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) calls() []datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]datadogV2.MetricPayload(nil), f.payloads...)
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:    "unit",
		Tags:       []string{"team:data"},
		FlushEvery: time.Hour,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		ddEnv string
		want  string
	}{
		{name: "ENV wins", env: "prod", ddEnv: "staging", want: "env:prod"},
		{name: "DD_ENV fallback", env: "", ddEnv: "staging", want: "env:staging"},
		{name: "unknown", env: "", ddEnv: "", want: "env:unknown"},
		{name: "whitespace ignored", env: "  ", ddEnv: " dev ", want: "env:dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			t.Setenv("DD_ENV", tt.ddEnv)
			if got := resolveEnvTag(); got != tt.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	def := metricDef{series: "dataload.step.total", labels: []string{"step", "status"}}
	tests := []struct {
		name   string
		labels metrics.Labels
		want   []string
		ok     bool
	}{
		{name: "definition order", labels: metrics.Labels{"status": "ok", "step": "load"}, want: []string{"step:load", "status:ok"}, ok: true},
		{name: "extra labels ignored", labels: metrics.Labels{"step": "parse", "status": "error", "x": "y"}, want: []string{"step:parse", "status:error"}, ok: true},
		{name: "missing label", labels: metrics.Labels{"step": "load"}},
		{name: "empty value", labels: metrics.Labels{"step": "load", "status": ""}},
		{name: "nil labels", labels: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			k, ok := key(def, tt.labels)
			if ok != tt.ok {
				t.Fatalf("key ok=%v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if k.metric != def.series || !reflect.DeepEqual(k.tagList(), tt.want) {
				t.Fatalf("key=%q %v, want %v", k.metric, k.tagList(), tt.want)
			}
		})
	}

	k, ok := key(metricDef{series: "dataload.batches.total"}, nil)
	if !ok || k.tagList() != nil {
		t.Fatalf("label-free metric: ok=%v tags=%v", ok, k.tagList())
	}
}

func TestTagsDoesNotAliasBase(t *testing.T) {
	t.Parallel()

	b := &Backend{baseTags: make([]string, 1, 8)}
	b.baseTags[0] = "a:1"
	x := b.tags(seriesKey{tags: "b:2"})
	y := b.tags(seriesKey{tags: "c:3"})
	if !reflect.DeepEqual(x, []string{"a:1", "b:2"}) || !reflect.DeepEqual(y, []string{"a:1", "c:3"}) {
		t.Fatalf("tags aliasing: x=%v y=%v", x, y)
	}
}

func TestNearestRank(t *testing.T) {
	t.Parallel()

	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{-1, 1},
		{0, 1},
		{0.5, 6},
		{0.9, 9},
		{1, 10},
		{1.5, 10},
	}
	for _, tt := range tests {
		if got := nearestRank(s, tt.p); got != tt.want {
			t.Fatalf("nearestRank(p=%v)=%v, want %v", tt.p, got, tt.want)
		}
	}
	if got := nearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty slice quantile = %v, want 0", got)
	}
}

func TestSeries_HistogramGauges(t *testing.T) {
	t.Parallel()

	b := &Backend{baseTags: []string{"job:unit"}}
	w := newWindow()
	k := seriesKey{metric: "dataload.step.duration_seconds", tags: "step:parse\x00status:ok"}
	samples := []float64{3, 1, 2}
	w.samples[k] = samples

	series := b.series(w, 1)
	if len(series) != len(quantiles)+1 {
		t.Fatalf("got %d series, want %d", len(series), len(quantiles)+1)
	}
	if samples[0] != 3 {
		t.Fatalf("input samples were mutated: %v", samples)
	}
	byName := map[string]float64{}
	for _, s := range series {
		byName[s.Metric] = *s.Points[0].Value
		if !contains(s.Tags, "job:unit") || !contains(s.Tags, "step:parse") || !contains(s.Tags, "status:ok") {
			t.Fatalf("missing tags on %s: %v", s.Metric, s.Tags)
		}
	}
	if byName["dataload.step.duration_seconds.max"] != 3 {
		t.Fatalf("max = %v", byName["dataload.step.duration_seconds.max"])
	}
	if byName["dataload.step.duration_seconds.p50"] != 2 {
		t.Fatalf("p50 = %v", byName["dataload.step.duration_seconds.p50"])
	}
	if byName["dataload.step.duration_seconds.samples"] != 3 {
		t.Fatalf("samples = %v", byName["dataload.step.duration_seconds.samples"])
	}

	if got := b.series(newWindow(), 1); len(got) != 0 {
		t.Fatalf("empty window rendered %d series", len(got))
	}
}

func TestNewBackend_Defaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("DD_ENV", "")

	b, err := NewBackend(context.Background(), Options{submitter: &fakeSubmitter{}})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer b.Close()

	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%v, want 60s", b.flushEvery)
	}
	if !contains(b.baseTags, "job:dataload") || !contains(b.baseTags, "env:unknown") {
		t.Fatalf("baseTags=%v", b.baseTags)
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer b.Close()

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load", "status": "ok"})
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load", "status": "ok"})
	b.IncCounter(metrics.RecordsTotal, 25, metrics.Labels{"kind": "parsed"})
	b.IncCounter(metrics.BatchesTotal, 3, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "load", "status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	calls := sub.calls()
	if len(calls) != 1 {
		t.Fatalf("submit calls=%d, want 1", len(calls))
	}
	got := map[string]float64{}
	for _, s := range calls[0].Series {
		got[s.Metric] = *s.Points[0].Value
		if *s.Points[0].Timestamp != 1700000000 {
			t.Fatalf("timestamp=%d", *s.Points[0].Timestamp)
		}
		if !contains(s.Tags, "job:unit") || !contains(s.Tags, "team:data") {
			t.Fatalf("base tags missing on %s: %v", s.Metric, s.Tags)
		}
	}
	if got["dataload.step.total"] != 2 {
		t.Fatalf("step total=%v, want 2", got["dataload.step.total"])
	}
	if got["dataload.records.total"] != 25 {
		t.Fatalf("records total=%v, want 25", got["dataload.records.total"])
	}
	if got["dataload.batches.total"] != 3 {
		t.Fatalf("batches total=%v, want 3", got["dataload.batches.total"])
	}
	if got["dataload.step.duration_seconds.p50"] != 0.25 {
		t.Fatalf("p50=%v, want 0.25", got["dataload.step.duration_seconds.p50"])
	}

	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if len(sub.calls()) != 1 {
		t.Fatalf("second flush should not submit after reset")
	}
}

func TestFlush_PropagatesSubmitError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("boom")}
	b := newTestBackend(t, sub)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.BatchesTotal, 1, nil)
	if err := b.Flush(); err == nil {
		t.Fatalf("expected submit error")
	}
}

func TestLoopAndClose(t *testing.T) {
	sub := &fakeSubmitter{}
	tick := make(chan time.Time)
	b, err := NewBackend(context.Background(), Options{
		submitter: sub,
		newTicker: func(time.Duration) *time.Ticker {
			tk := time.NewTicker(time.Hour)
			tk.C = tick
			return tk
		},
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "inserted"})
	tick <- time.Now()

	deadline := time.Now().Add(2 * time.Second)
	for len(sub.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(sub.calls()) != 1 {
		t.Fatalf("ticker flush did not submit")
	}

	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "inserted"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sub.calls()) != 2 {
		t.Fatalf("Close should flush remaining data, calls=%d", len(sub.calls()))
	}
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "parsed"})
				b.ObserveHistogram(metrics.StepDurationSeconds, 0.01, metrics.Labels{"step": "parse", "status": "ok"})
				if j%25 == 0 {
					_ = b.Flush()
				}
			}
		}()
	}
	wg.Wait()
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var total float64
	for _, p := range sub.calls() {
		for _, s := range p.Series {
			if s.Metric == "dataload.records.total" {
				total += *s.Points[0].Value
			}
		}
	}
	if total != 800 {
		t.Fatalf("records total across flushes=%v, want 800", total)
	}
}

func TestIncCounterAndObserveHistogram_EdgeCases(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)
	defer b.Close()

	b.IncCounter(metrics.RecordsTotal, 0, metrics.Labels{"kind": "parsed"})
	b.IncCounter(metrics.RecordsTotal, -1, metrics.Labels{"kind": "parsed"})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{})
	b.IncCounter("unknown_metric", 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, -1, metrics.Labels{"step": "x"})
	b.ObserveHistogram("unknown_hist", 1, nil)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := len(sub.calls()); n != 0 {
		t.Fatalf("ignored observations should not submit, calls=%d", n)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"env:prod", []string{"env:prod"}},
		{" env:prod , team:data ,, ", []string{"env:prod", "team:data"}},
	}
	for _, tt := range tests {
		got := ParseTagsCSV(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tt.in, got, tt.want)
		}
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
