package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kalambet/storemate/internal/task"
)

type mockSink struct {
	saved []Sample
	err   error
}

func (m *mockSink) SaveSample(_ context.Context, s Sample) error {
	m.saved = append(m.saved, s)
	return m.err
}

func TestCollector_RecordAndRecent(t *testing.T) {
	sink := &mockSink{}
	c := NewCollector(prometheus.NewRegistry(), sink, 3)

	for i := 1; i <= 5; i++ {
		c.Record(context.Background(), Sample{ResponseLength: i, Source: SourceModel, AttemptCount: 1})
	}

	got := c.Recent(0)
	if len(got) != 3 {
		t.Fatalf("Recent(0) returned %d samples, want 3", len(got))
	}
	for i, want := range []int{3, 4, 5} {
		if got[i].ResponseLength != want {
			t.Errorf("Recent[%d].ResponseLength = %d, want %d", i, got[i].ResponseLength, want)
		}
	}
	if last := c.Recent(1); len(last) != 1 || last[0].ResponseLength != 5 {
		t.Errorf("Recent(1) = %+v", last)
	}
	if c.Total() != 5 {
		t.Errorf("Total() = %d, want 5", c.Total())
	}
	if len(sink.saved) != 5 {
		t.Errorf("sink received %d samples, want 5", len(sink.saved))
	}
	if sink.saved[0].ID == "" {
		t.Error("sample ID not assigned")
	}
}

func TestCollector_RecentBeforeWrap(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), nil, 10)
	c.Record(context.Background(), Sample{ResponseLength: 1})
	c.Record(context.Background(), Sample{ResponseLength: 2})

	got := c.Recent(5)
	if len(got) != 2 || got[0].ResponseLength != 1 || got[1].ResponseLength != 2 {
		t.Errorf("Recent(5) = %+v", got)
	}
}

func TestCollector_SinkErrorIsSwallowed(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), &mockSink{err: errors.New("disk full")}, 0)
	c.Record(context.Background(), Sample{Source: SourceCache, CacheHit: true})
	if len(c.Recent(0)) != 1 {
		t.Error("sample dropped after sink error")
	}
}

func TestCollector_PrometheusSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, nil, 0)

	c.Record(context.Background(), Sample{Source: SourceCache, CacheHit: true, TaskType: task.ProductInfo})
	c.Record(context.Background(), Sample{Source: SourceModel, AttemptCount: 2, TaskType: task.ProductInfo})
	c.Failure("invoke", errors.New("boom"))

	if got := testutil.ToFloat64(c.cacheHits); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("model", "product_info")); got != 1 {
		t.Errorf("model requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.failures.WithLabelValues("invoke")); got != 1 {
		t.Errorf("invoke failures = %v, want 1", got)
	}

	expected := `
# HELP storemate_cache_hits_total Messages answered from the response cache
# TYPE storemate_cache_hits_total counter
storemate_cache_hits_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "storemate_cache_hits_total"); err != nil {
		t.Error(err)
	}
}

func TestSummarize(t *testing.T) {
	samples := []Sample{
		{TotalTime: 10 * time.Millisecond, CacheLookupTime: time.Millisecond, CacheHit: true, ResponseLength: 100, Source: SourceCache, TaskType: task.ProductInfo},
		{TotalTime: 30 * time.Millisecond, CacheLookupTime: time.Millisecond, APICallTime: 20 * time.Millisecond, AttemptCount: 1, ResponseLength: 200, Source: SourceModel, TaskType: task.ProductInfo},
		{TotalTime: 50 * time.Millisecond, CacheLookupTime: time.Millisecond, APICallTime: 40 * time.Millisecond, AttemptCount: 3, ResponseLength: 300, Source: SourceModel, TaskType: task.SalesReport},
	}

	r := Summarize(samples)

	if r.Count != 3 {
		t.Errorf("Count = %d, want 3", r.Count)
	}
	if r.AvgTotalTime != 30*time.Millisecond {
		t.Errorf("AvgTotalTime = %v, want 30ms", r.AvgTotalTime)
	}
	if r.MedianTotalTime != 30*time.Millisecond {
		t.Errorf("MedianTotalTime = %v, want 30ms", r.MedianTotalTime)
	}
	if r.MaxTotalTime != 50*time.Millisecond {
		t.Errorf("MaxTotalTime = %v, want 50ms", r.MaxTotalTime)
	}
	if r.AvgAPICallTime != 30*time.Millisecond {
		t.Errorf("AvgAPICallTime = %v, want 30ms", r.AvgAPICallTime)
	}
	if r.AvgAttempts != 2 {
		t.Errorf("AvgAttempts = %v, want 2", r.AvgAttempts)
	}
	if r.CacheHitRate < 0.333 || r.CacheHitRate > 0.334 {
		t.Errorf("CacheHitRate = %v, want ~0.333", r.CacheHitRate)
	}
	if r.AvgResponseLength != 200 {
		t.Errorf("AvgResponseLength = %v, want 200", r.AvgResponseLength)
	}
	if r.TaskTypes["product_info"] != 2 || r.TaskTypes["sales_report"] != 1 {
		t.Errorf("TaskTypes = %v", r.TaskTypes)
	}
	if r.Sources["model"] != 2 || r.Sources["cache"] != 1 {
		t.Errorf("Sources = %v", r.Sources)
	}
}

func TestSummarize_EvenMedianAndEmpty(t *testing.T) {
	r := Summarize([]Sample{{TotalTime: 10 * time.Millisecond}, {TotalTime: 20 * time.Millisecond}})
	if r.MedianTotalTime != 15*time.Millisecond {
		t.Errorf("MedianTotalTime = %v, want 15ms", r.MedianTotalTime)
	}

	empty := Summarize(nil)
	if empty.Count != 0 || empty.TaskTypes == nil {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}
