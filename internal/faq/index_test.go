package faq

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

// mockEmbedder returns fixed vectors per text.
type mockEmbedder struct {
	mu       sync.Mutex
	vecs     map[string][]float32
	fallback []float32
	failOn   map[string]bool
	calls    int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOn[text] {
		return nil, errors.New("embedding backend unavailable")
	}
	if v, ok := m.vecs[text]; ok {
		return v, nil
	}
	if m.fallback != nil {
		return m.fallback, nil
	}
	return nil, errors.New("no vector for text")
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestSearch_EmptyIndex(t *testing.T) {
	ix := NewIndex(&mockEmbedder{fallback: []float32{1, 0}}, 0.5, 3)
	got, err := ix.Search(context.Background(), "מה המחיר?", 3, 0.5)
	if err != nil || len(got) != 0 {
		t.Errorf("Search on empty index = %v, %v; want empty, nil", got, err)
	}
}

func TestSearch_CategoryBoostRanksSameCategoryFirst(t *testing.T) {
	query := "איך להגדיל מכירות"
	emb := &mockEmbedder{vecs: map[string][]float32{
		query:        {1, 0},
		"products q": {0.6, 0.8},
		"sales q":    {0.6, 0.8},
	}}
	ix := NewIndex(emb, 0.5, 3)
	ctx := context.Background()
	if _, err := ix.Add(ctx, Entry{ID: "p", Question: "products q", Answer: "a", Category: Products}); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Add(ctx, Entry{ID: "s", Question: "sales q", Answer: "a", Category: Sales}); err != nil {
		t.Fatal(err)
	}

	got, err := ix.Search(ctx, query, 3, 0.5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].Entry.ID != "s" || !approx(got[0].Score, 0.72) {
		t.Errorf("first = %s %.4f, want s 0.72", got[0].Entry.ID, got[0].Score)
	}
	if got[1].Entry.ID != "p" || !approx(got[1].Score, 0.6) {
		t.Errorf("second = %s %.4f, want p 0.6", got[1].Entry.ID, got[1].Score)
	}
}

func TestSearch_ExampleBoostCanExceedOne(t *testing.T) {
	query := "איך למכור יותר?"
	emb := &mockEmbedder{vecs: map[string][]float32{
		query: {1, 0},
		"q":   {1, 0},
	}}
	ix := NewIndex(emb, 0.7, 3)
	ctx := context.Background()
	ix.Add(ctx, Entry{ID: "e", Question: "q", Answer: "a", Category: General, Examples: []string{"איך למכור יותר?"}})

	got, err := ix.Search(ctx, query, 3, 0.7)
	if err != nil || len(got) != 1 {
		t.Fatalf("Search = %v, %v", got, err)
	}
	// general matches the keyword-free query category too: 1.0 × 1.2 × 1.3.
	if !approx(got[0].Score, 1.56) {
		t.Errorf("score = %v, want 1.56", got[0].Score)
	}
}

func TestSearch_ExampleMatchIsCaseInsensitive(t *testing.T) {
	emb := &mockEmbedder{fallback: []float32{1, 0}}
	ix := NewIndex(emb, 0, 3)
	ctx := context.Background()
	ix.Add(ctx, Entry{ID: "e", Question: "q", Answer: "a", Category: Technical, Examples: []string{"Reset API Key"}})

	got, _ := ix.Search(ctx, "reset api key", 3, 0)
	if len(got) != 1 || !approx(got[0].Score, 1.3) {
		t.Errorf("Search = %+v, want score 1.3", got)
	}
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	emb := &mockEmbedder{fallback: []float32{1, 1}}
	ix := NewIndex(emb, 0, 10)
	ctx := context.Background()
	for _, id := range []string{"first", "second", "third"} {
		ix.Add(ctx, Entry{ID: id, Question: id, Answer: "a", Category: Technical})
	}

	got, _ := ix.Search(ctx, "hello", 10, 0)
	if len(got) != 3 {
		t.Fatalf("got %d matches, want 3", len(got))
	}
	for i, id := range []string{"first", "second", "third"} {
		if got[i].Entry.ID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].Entry.ID, id)
		}
	}
}

func TestSearch_ThresholdAndTopK(t *testing.T) {
	emb := &mockEmbedder{vecs: map[string][]float32{
		"query": {1, 0},
		"high":  {0.95, 0.312},
		"mid":   {0.8, 0.6},
		"low":   {0.3, 0.954},
	}}
	ix := NewIndex(emb, 0.7, 3)
	ctx := context.Background()
	for _, q := range []string{"low", "mid", "high"} {
		ix.Add(ctx, Entry{ID: q, Question: q, Answer: "a", Category: Technical})
	}

	got, _ := ix.SearchDefault(ctx, "query")
	if len(got) != 2 || got[0].Entry.ID != "high" || got[1].Entry.ID != "mid" {
		t.Errorf("SearchDefault = %+v, want [high mid]", ids(got))
	}

	got, _ = ix.Search(ctx, "query", 1, 0)
	if len(got) != 1 || got[0].Entry.ID != "high" {
		t.Errorf("top-1 = %v, want [high]", ids(got))
	}
}

func TestSearch_EmbedError(t *testing.T) {
	emb := &mockEmbedder{vecs: map[string][]float32{"q": {1}}, failOn: map[string]bool{"broken query": true}}
	ix := NewIndex(emb, 0.5, 3)
	ix.Add(context.Background(), Entry{Question: "q", Answer: "a"})

	if _, err := ix.Search(context.Background(), "broken query", 3, 0.5); err == nil {
		t.Error("expected error when query embedding fails")
	}
}

func TestLoad_SkipsEntriesWithFailedEmbedding(t *testing.T) {
	emb := &mockEmbedder{
		fallback: []float32{1, 0},
		failOn:   map[string]bool{"bad": true},
	}
	ix := NewIndex(emb, 0.5, 3)

	n, err := ix.Load(context.Background(), []Entry{
		{ID: "1", Question: "good one", Answer: "a"},
		{ID: "2", Question: "bad", Answer: "a"},
		{ID: "3", Question: "good two", Answer: "a"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 || ix.Len() != 2 {
		t.Fatalf("loaded %d (len %d), want 2", n, ix.Len())
	}
	entries := ix.Entries()
	if entries[0].ID != "1" || entries[1].ID != "3" {
		t.Errorf("order = %s,%s; want 1,3", entries[0].ID, entries[1].ID)
	}
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			t.Errorf("entry %s has no embedding", e.ID)
		}
	}
}

func TestLoad_ZeroVectorSkipped(t *testing.T) {
	emb := &mockEmbedder{vecs: map[string][]float32{"zero": {0, 0}}}
	ix := NewIndex(emb, 0.5, 3)
	n, err := ix.Load(context.Background(), []Entry{{Question: "zero", Answer: "a"}})
	if err != nil || n != 0 {
		t.Errorf("Load = %d, %v; want 0, nil", n, err)
	}
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	emb := &mockEmbedder{failOn: map[string]bool{"q": true}}
	ix := NewIndex(emb, 0.5, 3)
	if _, err := ix.Load(ctx, []Entry{{Question: "q", Answer: "a"}}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestAdd_Validation(t *testing.T) {
	ix := NewIndex(&mockEmbedder{fallback: []float32{1}}, 0.5, 3)
	ctx := context.Background()

	if _, err := ix.Add(ctx, Entry{Question: "", Answer: "a"}); err == nil {
		t.Error("expected error for empty question")
	}
	if _, err := ix.Add(ctx, Entry{Question: "q", Answer: "a", Category: "shipping"}); err == nil {
		t.Error("expected error for unknown category")
	}

	e, err := ix.Add(ctx, Entry{Question: "מה המחיר של המוצר?", Answer: "a"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if e.ID == "" {
		t.Error("ID not assigned")
	}
	if e.Category != Products {
		t.Errorf("Category = %q, want products", e.Category)
	}
	if e.Intent != IntentGeneral {
		t.Errorf("Intent = %q, want general", e.Intent)
	}
}

func TestAdd_PreEmbeddedSkipsEmbedder(t *testing.T) {
	emb := &mockEmbedder{}
	ix := NewIndex(emb, 0.5, 3)
	if _, err := ix.Add(context.Background(), Entry{Question: "q", Answer: "a", Embedding: []float32{1, 2}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times, want 0", emb.calls)
	}
}

func TestAddReplaceAndRemove(t *testing.T) {
	ix := NewIndex(&mockEmbedder{fallback: []float32{1}}, 0.5, 3)
	ctx := context.Background()
	ix.Add(ctx, Entry{ID: "x", Question: "q", Answer: "old"})
	ix.Add(ctx, Entry{ID: "x", Question: "q", Answer: "new"})

	if ix.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ix.Len())
	}
	if e, _ := ix.Get("x"); e.Answer != "new" {
		t.Errorf("Answer = %q, want new", e.Answer)
	}
	if !ix.Remove("x") || ix.Remove("x") {
		t.Error("Remove should succeed once")
	}
}

func TestStats(t *testing.T) {
	ix := NewIndex(&mockEmbedder{fallback: []float32{1}}, 0.5, 3)
	ctx := context.Background()
	ix.Add(ctx, Entry{Question: "a", Answer: "a", Category: Sales, Intent: IntentSalesImprovement, Examples: []string{"1", "2"}})
	ix.Add(ctx, Entry{Question: "b", Answer: "b", Category: Sales, Intent: IntentMarketing})
	ix.Add(ctx, Entry{Question: "c", Answer: "c", Category: Analytics, Intent: IntentAnalytics, Examples: []string{"1"}})

	s := ix.Stats()
	if s.Total != 3 || s.Categories[Sales] != 2 || s.Categories[Analytics] != 1 {
		t.Errorf("Stats = %+v", s)
	}
	if s.Intents[IntentMarketing] != 1 {
		t.Errorf("Intents = %v", s.Intents)
	}
	if !approx(s.AvgExamples, 1.0) {
		t.Errorf("AvgExamples = %v, want 1", s.AvgExamples)
	}
}

func TestConcurrentSearchDuringAdd(t *testing.T) {
	ix := NewIndex(&mockEmbedder{fallback: []float32{1, 1}}, 0, 5)
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 100 {
			ix.Add(ctx, Entry{Question: "q", Answer: "a"})
		}
	}()
	go func() {
		defer wg.Done()
		for range 100 {
			if _, err := ix.Search(ctx, "q", 5, 0); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()
	if ix.Len() != 100 {
		t.Errorf("Len = %d, want 100", ix.Len())
	}
}

func ids(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Entry.ID
	}
	return out
}

// batchEmbedder serves EmbedBatch from the wrapped mock, or fails every batch.
type batchEmbedder struct {
	*mockEmbedder
	batches   [][]string
	failBatch bool
}

func (b *batchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	b.batches = append(b.batches, texts)
	if b.failBatch {
		return nil, errors.New("batch endpoint unavailable")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := b.mockEmbedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestLoad_UsesBatchEmbedding(t *testing.T) {
	emb := &batchEmbedder{mockEmbedder: &mockEmbedder{fallback: []float32{1, 0}}}
	ix := NewIndex(emb, 0.5, 3)

	n, err := ix.Load(context.Background(), []Entry{
		{ID: "1", Question: "one", Answer: "a"},
		{ID: "2", Question: "two", Answer: "a"},
		{ID: "3", Question: "pre", Answer: "a", Embedding: []float32{0, 1}},
	})
	if err != nil || n != 3 {
		t.Fatalf("Load = %d, %v; want 3, nil", n, err)
	}
	if len(emb.batches) != 1 || len(emb.batches[0]) != 2 {
		t.Errorf("batches = %v, want one batch of the two unembedded questions", emb.batches)
	}
	if emb.calls != 2 {
		t.Errorf("embedder calls = %d, want 2 (all through the batch)", emb.calls)
	}
}

func TestLoad_BatchFailureFallsBackPerEntry(t *testing.T) {
	emb := &batchEmbedder{
		mockEmbedder: &mockEmbedder{fallback: []float32{1, 0}, failOn: map[string]bool{"bad": true}},
		failBatch:    true,
	}
	ix := NewIndex(emb, 0.5, 3)

	n, err := ix.Load(context.Background(), []Entry{
		{ID: "1", Question: "good", Answer: "a"},
		{ID: "2", Question: "bad", Answer: "a"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 || ix.Len() != 1 {
		t.Errorf("loaded %d (len %d), want 1", n, ix.Len())
	}
	if len(emb.batches) != 1 {
		t.Errorf("batches = %d, want 1", len(emb.batches))
	}
}
