package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/storemate/internal/metrics"
	"github.com/kalambet/storemate/internal/task"
)

// SaveSample persists a performance sample. It satisfies metrics.SampleSink.
func (s *Store) SaveSample(ctx context.Context, smp metrics.Sample) error {
	ts := smp.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performance_samples (id, conversation_id, total_time_ms, cache_lookup_time_ms, api_call_time_ms,
			cache_hit, attempt_count, response_length, task_type, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		smp.ID, smp.ConversationID, millis(smp.TotalTime), millis(smp.CacheLookupTime), millis(smp.APICallTime),
		smp.CacheHit, smp.AttemptCount, smp.ResponseLength, string(smp.TaskType), string(smp.Source),
		ts.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving sample %s: %w", smp.ID, err)
	}
	return nil
}

// RecentSamples returns up to limit samples, newest first.
func (s *Store) RecentSamples(ctx context.Context, limit int) ([]metrics.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, total_time_ms, cache_lookup_time_ms, api_call_time_ms,
			cache_hit, attempt_count, response_length, task_type, source, created_at
		FROM performance_samples ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	var out []metrics.Sample
	for rows.Next() {
		var smp metrics.Sample
		var total, lookup, api float64
		var taskType, source, createdAt string
		if err := rows.Scan(&smp.ID, &smp.ConversationID, &total, &lookup, &api,
			&smp.CacheHit, &smp.AttemptCount, &smp.ResponseLength, &taskType, &source, &createdAt); err != nil {
			return nil, err
		}
		smp.TotalTime = fromMillis(total)
		smp.CacheLookupTime = fromMillis(lookup)
		smp.APICallTime = fromMillis(api)
		smp.TaskType = task.Type(taskType)
		smp.Source = metrics.Source(source)
		if smp.Timestamp, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func fromMillis(ms float64) time.Duration { return time.Duration(ms * float64(time.Millisecond)) }
