// Package faq holds the curated FAQ bank and ranks entries against operator
// queries by embedding similarity with category and phrasing boosts.
package faq

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	categoryBoost = 1.2
	exampleBoost  = 1.3

	embedConcurrency = 4
	embedBatchSize   = 32
)

// Embedder turns text into a fixed-length vector. Queries and entries must
// be embedded by the same Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is an Embedder that can embed many texts per request. Load
// uses it for bulk loads and falls back to per-entry calls if a batch fails.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index ranks FAQ entries against queries. Lookups read an immutable snapshot
// and never lock; Add and Remove publish a new snapshot.
type Index struct {
	embedder  Embedder
	threshold float64
	topK      int

	mu      sync.Mutex
	entries atomic.Pointer[[]Entry]
}

// NewIndex creates an empty Index with default search threshold and top-k.
func NewIndex(embedder Embedder, threshold float64, topK int) *Index {
	ix := &Index{embedder: embedder, threshold: threshold, topK: topK}
	ix.entries.Store(&[]Entry{})
	return ix
}

func (ix *Index) snapshot() []Entry {
	return *ix.entries.Load()
}

// Load embeds entries concurrently and adds them to the index. An entry whose
// embedding fails is logged and left out; only cancellation of ctx is an
// error. Returns the number of entries added.
func (ix *Index) Load(ctx context.Context, entries []Entry) (int, error) {
	if be, ok := ix.embedder.(BatchEmbedder); ok {
		entries = slices.Clone(entries)
		if err := prefill(ctx, be, entries); err != nil {
			return 0, fmt.Errorf("loading FAQ entries: %w", err)
		}
	}

	prepared := make([]Entry, len(entries))
	ok := make([]bool, len(entries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, e := range entries {
		g.Go(func() error {
			e, err := ix.prepare(gCtx, e)
			if err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("skipping FAQ entry", "question", e.Question, "error", err)
				return nil
			}
			prepared[i], ok[i] = e, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("loading FAQ entries: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	next := slices.Clone(ix.snapshot())
	added := 0
	for i, e := range prepared {
		if ok[i] {
			next = append(next, e)
			added++
		}
	}
	ix.entries.Store(&next)
	return added, nil
}

// prefill embeds entries lacking a vector in batches, in place. A failed
// batch is logged and left for the per-entry path; only ctx errors return.
func prefill(ctx context.Context, be BatchEmbedder, entries []Entry) error {
	var (
		idx   []int
		texts []string
	)
	for i, e := range entries {
		if len(e.Embedding) > 0 || Validate(&e) != nil {
			continue
		}
		idx = append(idx, i)
		texts = append(texts, e.embeddingText())
	}
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vecs, err := be.EmbedBatch(ctx, texts[start:end])
		if err == nil && len(vecs) != end-start {
			err = fmt.Errorf("got %d embeddings for %d texts", len(vecs), end-start)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Warn("batch embedding failed, embedding entries one by one", "size", end-start, "error", err)
			continue
		}
		for j, vec := range vecs {
			if len(vec) > 0 && norm(vec) > 0 {
				entries[idx[start+j]].Embedding = vec
			}
		}
	}
	return nil
}

// Add embeds a single entry (unless it already carries an embedding) and
// publishes it. An entry with an existing ID replaces the previous one in place.
func (ix *Index) Add(ctx context.Context, e Entry) (Entry, error) {
	e, err := ix.prepare(ctx, e)
	if err != nil {
		return Entry{}, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	next := slices.Clone(ix.snapshot())
	if i := slices.IndexFunc(next, func(x Entry) bool { return x.ID == e.ID }); i >= 0 {
		next[i] = e
	} else {
		next = append(next, e)
	}
	ix.entries.Store(&next)
	return e, nil
}

// Remove drops the entry with id. Reports whether it was present.
func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	cur := ix.snapshot()
	i := slices.IndexFunc(cur, func(x Entry) bool { return x.ID == id })
	if i < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	ix.entries.Store(&next)
	return true
}

// prepare validates e, fills defaults and computes a missing embedding.
func (ix *Index) prepare(ctx context.Context, e Entry) (Entry, error) {
	if err := Validate(&e); err != nil {
		return e, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if len(e.Embedding) > 0 {
		return e, nil
	}
	vec, err := ix.embedder.Embed(ctx, e.embeddingText())
	if err != nil {
		return e, fmt.Errorf("embedding FAQ question: %w", err)
	}
	if len(vec) == 0 || norm(vec) == 0 {
		return e, errors.New("embedding FAQ question: empty or zero vector")
	}
	e.Embedding = vec
	return e, nil
}

// Validate checks required fields and fills the category and intent defaults.
func Validate(e *Entry) error {
	e.Question = strings.TrimSpace(e.Question)
	e.Answer = strings.TrimSpace(e.Answer)
	if e.Question == "" || e.Answer == "" {
		return errors.New("FAQ entry requires question and answer")
	}
	if e.Category == "" {
		e.Category = ClassifyCategory(e.Question)
	} else if _, err := ParseCategory(string(e.Category)); err != nil {
		return err
	}
	intent, err := ParseIntent(string(e.Intent))
	if err != nil {
		return err
	}
	e.Intent = intent
	return nil
}

// Search ranks every entry against query: cosine similarity, ×1.2 when the
// entry shares the query's keyword category, ×1.3 when the query equals one of
// its example phrasings (case-insensitive). Results are sorted by score
// descending with ties kept in insertion order, filtered by threshold and
// truncated to topK.
func (ix *Index) Search(ctx context.Context, query string, topK int, threshold float64) ([]Match, error) {
	entries := ix.snapshot()
	query = strings.TrimSpace(query)
	if len(entries) == 0 || query == "" || topK <= 0 {
		return nil, nil
	}

	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qNorm := norm(vec)
	category := ClassifyCategory(query)

	scored := make([]Match, 0, len(entries))
	for _, e := range entries {
		score := cosine(vec, e.Embedding, qNorm)
		if e.Category == category {
			score *= categoryBoost
		}
		if matchesExample(query, e.Examples) {
			score *= exampleBoost
		}
		scored = append(scored, Match{Entry: e, Score: score})
	}
	slices.SortStableFunc(scored, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})

	var out []Match
	for _, m := range scored {
		if m.Score < threshold || len(out) == topK {
			break
		}
		out = append(out, m)
	}

	slog.Debug("FAQ search",
		"category", category,
		"candidates", len(entries),
		"matches", len(out),
		"threshold", threshold,
	)
	return out, nil
}

// SearchDefault runs Search with the index's configured top-k and threshold.
func (ix *Index) SearchDefault(ctx context.Context, query string) ([]Match, error) {
	return ix.Search(ctx, query, ix.topK, ix.threshold)
}

// TopK returns the configured number of results per search.
func (ix *Index) TopK() int { return ix.topK }

// Threshold returns the configured minimum score.
func (ix *Index) Threshold() float64 { return ix.threshold }

func matchesExample(query string, examples []string) bool {
	for _, ex := range examples {
		if strings.EqualFold(query, strings.TrimSpace(ex)) {
			return true
		}
	}
	return false
}

// Get returns the entry with id.
func (ix *Index) Get(id string) (Entry, bool) {
	for _, e := range ix.snapshot() {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns the indexed entries in insertion order.
func (ix *Index) Entries() []Entry {
	return slices.Clone(ix.snapshot())
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	return len(ix.snapshot())
}

// Stats reports entry counts per category and intent and the mean number of
// example phrasings.
func (ix *Index) Stats() Stats {
	entries := ix.snapshot()
	s := Stats{
		Total:      len(entries),
		Categories: make(map[Category]int),
		Intents:    make(map[Intent]int),
	}
	examples := 0
	for _, e := range entries {
		s.Categories[e.Category]++
		s.Intents[e.Intent]++
		examples += len(e.Examples)
	}
	if len(entries) > 0 {
		s.AvgExamples = float64(examples) / float64(len(entries))
	}
	return s
}
