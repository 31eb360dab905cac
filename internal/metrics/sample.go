// Package metrics records per-message performance samples and summarizes them.
package metrics

import (
	"context"
	"time"

	"github.com/kalambet/storemate/internal/task"
)

// Source names the pipeline stage that produced a response.
type Source string

const (
	SourceCache      Source = "cache"
	SourceFAQ        Source = "faq"
	SourceFAQRefined Source = "faq_refined"
	SourceModel      Source = "model"
	SourceFallback   Source = "fallback"
)

// Sample is one append-only record of a message resolution.
type Sample struct {
	ID              string        `json:"id"`
	ConversationID  string        `json:"conversation_id"`
	TotalTime       time.Duration `json:"total_time"`
	CacheLookupTime time.Duration `json:"cache_lookup_time"`
	APICallTime     time.Duration `json:"api_call_time"`
	CacheHit        bool          `json:"cache_hit"`
	AttemptCount    int           `json:"attempt_count"`
	ResponseLength  int           `json:"response_length"`
	TaskType        task.Type     `json:"task_type"`
	Source          Source        `json:"source"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Recorder receives samples and failure notices from the pipeline.
type Recorder interface {
	Record(ctx context.Context, s Sample)
	Failure(stage string, err error)
}

// SampleSink persists samples beyond the in-memory window.
type SampleSink interface {
	SaveSample(ctx context.Context, s Sample) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, Sample) {}
func (Nop) Failure(string, error)          {}
