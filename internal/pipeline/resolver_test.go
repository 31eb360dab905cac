package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/storemate/internal/cache"
	"github.com/kalambet/storemate/internal/composer"
	"github.com/kalambet/storemate/internal/conversation"
	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/llm"
	"github.com/kalambet/storemate/internal/logging"
	"github.com/kalambet/storemate/internal/metrics"
	"github.com/kalambet/storemate/internal/task"
)

// --- mocks ---

type mockSearcher struct {
	searchFn func(ctx context.Context, query string) ([]faq.Match, error)
}

func (m *mockSearcher) SearchDefault(ctx context.Context, query string) ([]faq.Match, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil, nil
}

type mockCaller struct {
	mu     sync.Mutex
	calls  [][]llm.Message
	params []task.Params
	callFn func(ctx context.Context, msgs []llm.Message, p task.Params) (llm.Result, error)
}

func (m *mockCaller) Call(ctx context.Context, msgs []llm.Message, p task.Params) (llm.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, msgs)
	m.params = append(m.params, p)
	m.mu.Unlock()
	if m.callFn != nil {
		return m.callFn(ctx, msgs, p)
	}
	return llm.Result{Text: "תשובה מהמודל", Attempts: 1}, nil
}

func (m *mockCaller) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockRecorder struct {
	mu       sync.Mutex
	samples  []metrics.Sample
	failures []string
}

func (m *mockRecorder) Record(_ context.Context, s metrics.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

func (m *mockRecorder) Failure(stage string, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, stage)
}

type mockProfile struct {
	summary string
	err     error
}

func (m *mockProfile) GetSummary() (string, error) { return m.summary, m.err }

type fixture struct {
	resolver *Resolver
	cache    *cache.Cache
	history  *conversation.Store
	searcher *mockSearcher
	caller   *mockCaller
	recorder *mockRecorder
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		cache:    cache.New(time.Hour, 10),
		history:  conversation.NewStore(0),
		searcher: &mockSearcher{},
		caller:   &mockCaller{},
		recorder: &mockRecorder{},
	}
	f.resolver = New(Deps{
		Cache:    f.cache,
		History:  f.history,
		Index:    f.searcher,
		Model:    f.caller,
		Composer: composer.New(0),
		Recorder: f.recorder,
	}, opts)
	return f
}

var inventoryMatch = faq.Match{
	Entry: faq.Entry{ID: "seed-inventory", Question: "איך לנהל מלאי?", Answer: "הגדר רמות מינימום והתראות."},
	Score: 0.92,
}

// --- tests ---

func TestResolve_ModelPath(t *testing.T) {
	f := newFixture(Options{})

	res, err := f.resolver.Resolve(context.Background(), "מה המחיר של המוצר?", "c1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Text != "תשובה מהמודל" || res.Source != metrics.SourceModel {
		t.Errorf("res = %+v", res)
	}
	if res.TaskType != task.ProductInfo {
		t.Errorf("TaskType = %s, want product_info", res.TaskType)
	}
	if f.caller.count() != 1 {
		t.Fatalf("model called %d times, want 1", f.caller.count())
	}
	msgs := f.caller.calls[0]
	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || msgs[1].Content != "מה המחיר של המוצר?" {
		t.Errorf("messages = %+v", msgs)
	}
	if f.caller.params[0] != task.ParamsFor(task.ProductInfo, task.DefaultModel) {
		t.Errorf("params = %+v", f.caller.params[0])
	}

	if v, ok := f.cache.Get("c1", "מה המחיר של המוצר?"); !ok || v != res.Text {
		t.Errorf("cache = %q, %v", v, ok)
	}
	if n := f.history.Len("c1"); n != 2 {
		t.Errorf("history has %d turns, want 2", n)
	}
	if len(f.recorder.samples) != 1 {
		t.Fatalf("recorded %d samples, want 1", len(f.recorder.samples))
	}
	s := f.recorder.samples[0]
	if s.CacheHit || s.AttemptCount != 1 || s.Source != metrics.SourceModel || s.ConversationID != "c1" {
		t.Errorf("sample = %+v", s)
	}
	if s.ResponseLength != len([]rune("תשובה מהמודל")) {
		t.Errorf("ResponseLength = %d", s.ResponseLength)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	first, err := f.resolver.Resolve(ctx, "איך לשפר את החנות?", "c1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.resolver.Resolve(ctx, "איך לשפר את החנות?", "c1")
	if err != nil {
		t.Fatal(err)
	}

	if first.Text != second.Text {
		t.Errorf("second = %q, want %q", second.Text, first.Text)
	}
	if second.Source != metrics.SourceCache || !second.Sample.CacheHit {
		t.Errorf("second resolution = %+v, want cache hit", second)
	}
	if f.caller.count() != 1 {
		t.Errorf("model called %d times, want 1", f.caller.count())
	}
	if n := f.history.Len("c1"); n != 2 {
		t.Errorf("cache hit updated history: %d turns", n)
	}
	if len(f.recorder.samples) != 2 {
		t.Errorf("recorded %d samples, want 2", len(f.recorder.samples))
	}
}

func TestResolve_CacheIsPerConversation(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	f.resolver.Resolve(ctx, "שלום", "c1")
	res, _ := f.resolver.Resolve(ctx, "שלום", "c2")
	if res.Source != metrics.SourceModel {
		t.Errorf("c2 Source = %s, want model", res.Source)
	}
}

func TestResolve_FAQVerbatim(t *testing.T) {
	f := newFixture(Options{RefineFAQ: false})
	f.searcher.searchFn = func(ctx context.Context, q string) ([]faq.Match, error) {
		return []faq.Match{inventoryMatch}, nil
	}

	res, err := f.resolver.Resolve(context.Background(), "איך לנהל את המלאי בחנות?", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != inventoryMatch.Entry.Answer || res.Source != metrics.SourceFAQ {
		t.Errorf("res = %+v", res)
	}
	if res.MatchID != "seed-inventory" {
		t.Errorf("MatchID = %q", res.MatchID)
	}
	if f.caller.count() != 0 {
		t.Errorf("model called %d times, want 0", f.caller.count())
	}
	if _, ok := f.cache.Get("c1", "איך לנהל את המלאי בחנות?"); !ok {
		t.Error("faq answer not cached")
	}
	if f.history.Len("c1") != 2 {
		t.Error("faq answer not appended to history")
	}
}

func TestResolve_FAQRefined(t *testing.T) {
	f := newFixture(Options{RefineFAQ: true})
	f.searcher.searchFn = func(ctx context.Context, q string) ([]faq.Match, error) {
		return []faq.Match{inventoryMatch}, nil
	}
	f.caller.callFn = func(ctx context.Context, msgs []llm.Message, p task.Params) (llm.Result, error) {
		if !strings.Contains(msgs[0].Content, inventoryMatch.Entry.Answer) {
			t.Error("grounding prompt missing matched answer")
		}
		return llm.Result{Text: "תשובה מותאמת", Attempts: 2}, nil
	}

	res, err := f.resolver.Resolve(context.Background(), "איך לנהל מלאי?", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "תשובה מותאמת" || res.Source != metrics.SourceFAQRefined {
		t.Errorf("res = %+v", res)
	}
	if res.Sample.AttemptCount != 2 {
		t.Errorf("AttemptCount = %d, want 2", res.Sample.AttemptCount)
	}
}

func TestResolve_FAQRefineFailureFallsBackToVerbatim(t *testing.T) {
	f := newFixture(Options{RefineFAQ: true})
	f.searcher.searchFn = func(ctx context.Context, q string) ([]faq.Match, error) {
		return []faq.Match{inventoryMatch}, nil
	}
	f.caller.callFn = func(ctx context.Context, msgs []llm.Message, p task.Params) (llm.Result, error) {
		return llm.Result{Attempts: 3}, &llm.ExhaustedError{Attempts: 3, Last: errors.New("timeout")}
	}

	res, err := f.resolver.Resolve(context.Background(), "איך לנהל מלאי?", "c1")
	if err != nil {
		t.Fatalf("refine failure must not surface: %v", err)
	}
	if res.Text != inventoryMatch.Entry.Answer || res.Source != metrics.SourceFAQ {
		t.Errorf("res = %+v, want verbatim faq answer", res)
	}
	if len(f.recorder.failures) != 1 || f.recorder.failures[0] != "refine" {
		t.Errorf("failures = %v, want [refine]", f.recorder.failures)
	}
}

func TestResolve_ModelFailureReturnsApology(t *testing.T) {
	f := newFixture(Options{})
	f.caller.callFn = func(ctx context.Context, msgs []llm.Message, p task.Params) (llm.Result, error) {
		return llm.Result{Attempts: 3}, &llm.ExhaustedError{Attempts: 3, Last: &llm.StatusError{Code: 500, Body: "internal secret detail"}}
	}

	res, err := f.resolver.Resolve(context.Background(), "מה המחיר?", "c1")
	var exhausted *llm.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if res.Text != Apology || res.Source != metrics.SourceFallback {
		t.Errorf("res = %+v", res)
	}
	if strings.Contains(res.Text, "secret") {
		t.Error("apology leaked error detail")
	}
	if _, ok := f.cache.Get("c1", "מה המחיר?"); ok {
		t.Error("apology was cached")
	}
	if f.history.Len("c1") != 0 {
		t.Error("failed resolution appended history")
	}
	if len(f.recorder.samples) != 1 || f.recorder.samples[0].AttemptCount != 3 {
		t.Errorf("samples = %+v", f.recorder.samples)
	}
	if len(f.recorder.failures) != 1 || f.recorder.failures[0] != "invoke" {
		t.Errorf("failures = %v", f.recorder.failures)
	}

	if got := f.resolver.Handle(context.Background(), "מה המחיר?", "c1"); got != Apology {
		t.Errorf("Handle = %q, want apology", got)
	}
}

func TestResolve_AbandonedBeforeFinalize(t *testing.T) {
	f := newFixture(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	f.caller.callFn = func(callCtx context.Context, msgs []llm.Message, p task.Params) (llm.Result, error) {
		cancel()
		if callCtx.Err() != nil {
			t.Error("model call context cancelled with the caller")
		}
		return llm.Result{Text: "תשובה מאוחרת", Attempts: 1}, nil
	}

	_, err := f.resolver.Resolve(ctx, "מה המחיר?", "c1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, ok := f.cache.Get("c1", "מה המחיר?"); ok {
		t.Error("abandoned resolution wrote cache")
	}
	if f.history.Len("c1") != 0 {
		t.Error("abandoned resolution wrote history")
	}
	if len(f.recorder.samples) != 0 {
		t.Error("abandoned resolution recorded a sample")
	}
	if got := f.resolver.Handle(ctx, "שאלה אחרת", "c1"); got == "" {
		t.Error("Handle returned empty text")
	}
}

func TestResolve_EmptyMessage(t *testing.T) {
	f := newFixture(Options{})
	res, err := f.resolver.Resolve(context.Background(), "   ", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != EmptyPrompt {
		t.Errorf("Text = %q", res.Text)
	}
	if f.caller.count() != 0 || f.history.Len("c1") != 0 {
		t.Error("empty message reached the model or history")
	}
}

func TestResolve_ShortReplyContinuesTask(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	first, _ := f.resolver.Resolve(ctx, "תן לי דוח מכירות", "c1")
	if first.TaskType != task.SalesReport {
		t.Fatalf("first TaskType = %s, want sales_report", first.TaskType)
	}
	second, _ := f.resolver.Resolve(ctx, "כן", "c1")
	if second.TaskType != task.SalesReport {
		t.Errorf("second TaskType = %s, want sales_report", second.TaskType)
	}
	if !strings.Contains(f.caller.calls[1][0].Content, "[הקשר השיחה]") {
		t.Error("second prompt missing conversation context")
	}
}

func TestResolve_SimilarityErrorContinuesToModel(t *testing.T) {
	f := newFixture(Options{})
	f.searcher.searchFn = func(ctx context.Context, q string) ([]faq.Match, error) {
		return nil, errors.New("ollama down")
	}

	res, err := f.resolver.Resolve(context.Background(), "שאלה כללית", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != metrics.SourceModel {
		t.Errorf("Source = %s, want model", res.Source)
	}
	if len(f.recorder.failures) != 1 || f.recorder.failures[0] != "similarity" {
		t.Errorf("failures = %v", f.recorder.failures)
	}
}

func TestResolve_ProfileInPrompt(t *testing.T) {
	f := newFixture(Options{})
	f.resolver.deps.Profile = &mockProfile{summary: "שם החנות: בדיקה"}

	f.resolver.Resolve(context.Background(), "שאלה", "c1")
	if !strings.Contains(f.caller.calls[0][0].Content, "שם החנות: בדיקה") {
		t.Error("profile summary missing from system prompt")
	}

	f.resolver.deps.Profile = &mockProfile{err: errors.New("db closed")}
	if _, err := f.resolver.Resolve(context.Background(), "שאלה אחרת", "c1"); err != nil {
		t.Errorf("profile error must not fail resolution: %v", err)
	}
}

func TestResolve_ConcurrentSameConversation(t *testing.T) {
	f := newFixture(Options{})
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.resolver.Resolve(context.Background(), "שאלה "+string(rune('a'+i)), "c1")
		}()
	}
	wg.Wait()

	if n := f.history.Len("c1"); n != 40 {
		t.Errorf("history has %d turns, want 40", n)
	}
}

func TestResolve_ModelCallSeesConversationLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	f := newFixture(Options{})
	f.caller.callFn = func(ctx context.Context, _ []llm.Message, _ task.Params) (llm.Result, error) {
		logging.From(ctx).Info("calling model")
		return llm.Result{Text: "תשובה מהמודל", Attempts: 1}, nil
	}
	if _, err := f.resolver.Resolve(ctx, "מה המחיר של המוצר?", "c-7"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.Contains(buf.String(), `"conversation":"c-7"`) {
		t.Errorf("log output = %s, want conversation attribute", buf.String())
	}
}
