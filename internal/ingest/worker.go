// Package ingest publishes operator-added FAQ entries: it persists them,
// queues an embedding job and runs the worker that embeds queued entries and
// adds them to the live similarity index.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/storemate/internal/faq"
	"github.com/kalambet/storemate/internal/storage"
)

// JobStore abstracts the job queue and FAQ entry persistence.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	GetFAQEntry(ctx context.Context, id string) (faq.Entry, error)
	UpdateFAQEmbedding(ctx context.Context, id string, vec []float32) error
}

// ContentEmbedder generates embeddings for text.
type ContentEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Publisher receives embedded entries.
type Publisher interface {
	Add(ctx context.Context, e faq.Entry) (faq.Entry, error)
	Remove(id string) bool
}

// Worker processes faq_embed jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	index    Publisher
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, index Publisher, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		index:    index,
		poll:     pollInterval,
		logger:   slog.Default().With("component", "ingest"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single faq_embed job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{storage.JobFAQEmbed})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload storage.FAQEmbedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	entry, err := w.store.GetFAQEntry(ctx, payload.EntryID)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted before the job ran.
		w.logger.Info("skipping embed job for deleted entry", "entry_id", payload.EntryID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading faq entry %s: %w", payload.EntryID, err)
	}

	vec, err := w.embedder.Embed(ctx, entry.Question)
	if err != nil {
		return fmt.Errorf("embedding question: %w", err)
	}
	if len(vec) == 0 {
		return errors.New("embedding question: empty vector")
	}

	err = w.store.UpdateFAQEmbedding(ctx, entry.ID, vec)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.Info("faq entry deleted while embedding", "entry_id", entry.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("storing embedding: %w", err)
	}

	entry.Embedding = vec
	if _, err := w.index.Add(ctx, entry); err != nil {
		return fmt.Errorf("publishing entry: %w", err)
	}
	// A delete that ran between the update and Add missed the index.
	// Storage is deleted first, so a missing row here means withdraw.
	if _, err := w.store.GetFAQEntry(ctx, entry.ID); errors.Is(err, storage.ErrNotFound) {
		w.index.Remove(entry.ID)
		w.logger.Info("faq entry deleted while publishing", "entry_id", entry.ID)
		return nil
	}
	w.logger.Info("faq entry indexed", "entry_id", entry.ID, "category", entry.Category)
	return nil
}

// EntryStore persists entries and queues their embedding.
type EntryStore interface {
	SaveFAQEntry(ctx context.Context, e faq.Entry) error
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Submit validates e, assigns an ID if missing, persists it and queues the
// faq_embed job. The entry becomes searchable once the worker has run.
func Submit(ctx context.Context, store EntryStore, e faq.Entry) (faq.Entry, error) {
	if err := faq.Validate(&e); err != nil {
		return faq.Entry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Embedding = nil
	e.Source = "operator"

	if err := store.SaveFAQEntry(ctx, e); err != nil {
		return faq.Entry{}, err
	}
	payload, err := json.Marshal(storage.FAQEmbedPayload{EntryID: e.ID})
	if err != nil {
		return faq.Entry{}, fmt.Errorf("encoding payload: %w", err)
	}
	job := storage.Job{ID: uuid.NewString(), Type: storage.JobFAQEmbed, PayloadJSON: string(payload)}
	if err := store.EnqueueJob(ctx, job); err != nil {
		return faq.Entry{}, err
	}
	return e, nil
}

// EntryLister lists persisted entries.
type EntryLister interface {
	ListFAQEntries(ctx context.Context) ([]faq.Entry, error)
}

// Loader bulk-loads entries into the index.
type Loader interface {
	Load(ctx context.Context, entries []faq.Entry) (int, error)
}

// Restore loads previously embedded operator entries into the index.
// Entries still waiting for their embedding are left to the worker.
func Restore(ctx context.Context, store EntryLister, index Loader) (int, error) {
	entries, err := store.ListFAQEntries(ctx)
	if err != nil {
		return 0, err
	}
	ready := entries[:0]
	for _, e := range entries {
		if len(e.Embedding) > 0 {
			ready = append(ready, e)
		}
	}
	if len(ready) == 0 {
		return 0, nil
	}
	return index.Load(ctx, ready)
}
