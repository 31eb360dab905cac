package metrics

import (
	"slices"
	"time"
)

// Report aggregates a set of samples.
type Report struct {
	Count             int            `json:"count"`
	AvgTotalTime      time.Duration  `json:"avg_total_time"`
	MedianTotalTime   time.Duration  `json:"median_total_time"`
	MaxTotalTime      time.Duration  `json:"max_total_time"`
	AvgCacheLookup    time.Duration  `json:"avg_cache_lookup_time"`
	AvgAPICallTime    time.Duration  `json:"avg_api_call_time"`
	CacheHitRate      float64        `json:"cache_hit_rate"`
	AvgAttempts       float64        `json:"avg_attempts"`
	AvgResponseLength float64        `json:"avg_response_length"`
	TaskTypes         map[string]int `json:"task_types"`
	Sources           map[string]int `json:"sources"`
}

// Summarize computes a Report. Averages of API time and attempts only count
// samples that reached the model.
func Summarize(samples []Sample) Report {
	r := Report{TaskTypes: map[string]int{}, Sources: map[string]int{}}
	if len(samples) == 0 {
		return r
	}
	r.Count = len(samples)

	var total, lookup, api time.Duration
	var hits, apiCalls, attempts, length int
	durations := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		total += s.TotalTime
		lookup += s.CacheLookupTime
		durations = append(durations, s.TotalTime)
		r.MaxTotalTime = max(r.MaxTotalTime, s.TotalTime)
		if s.CacheHit {
			hits++
		}
		if s.AttemptCount > 0 {
			apiCalls++
			api += s.APICallTime
			attempts += s.AttemptCount
		}
		length += s.ResponseLength
		if s.TaskType != "" {
			r.TaskTypes[string(s.TaskType)]++
		}
		if s.Source != "" {
			r.Sources[string(s.Source)]++
		}
	}

	n := time.Duration(r.Count)
	r.AvgTotalTime = total / n
	r.AvgCacheLookup = lookup / n
	r.CacheHitRate = float64(hits) / float64(r.Count)
	r.AvgResponseLength = float64(length) / float64(r.Count)
	if apiCalls > 0 {
		r.AvgAPICallTime = api / time.Duration(apiCalls)
		r.AvgAttempts = float64(attempts) / float64(apiCalls)
	}

	slices.Sort(durations)
	mid := len(durations) / 2
	if len(durations)%2 == 0 {
		r.MedianTotalTime = (durations[mid-1] + durations[mid]) / 2
	} else {
		r.MedianTotalTime = durations[mid]
	}
	return r
}
