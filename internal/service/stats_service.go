// Package service contains application services.
package service

import (
	"sync"
	"sync/atomic"
)

// StatsService tracks runtime statistics using lock-free atomic counters.
// All counter operations are safe for concurrent access from multiple goroutines.
type StatsService struct {
	completions atomic.Int64
	rateLimited atomic.Int64
	authFailed  atomic.Int64
	errors      atomic.Int64

	// Per-model completion counters (mutex-protected map).
	mu          sync.Mutex
	modelCounts map[string]int64
}

// NewStatsService creates a new StatsService with all counters initialized to zero.
func NewStatsService() *StatsService {
	return &StatsService{
		modelCounts: make(map[string]int64),
	}
}

// RecordCompletion increments the completion counter and the per-model count.
// Empty model strings are skipped in the per-model map.
func (s *StatsService) RecordCompletion(model string) {
	s.completions.Add(1)
	if model == "" {
		return
	}
	s.mu.Lock()
	s.modelCounts[model]++
	s.mu.Unlock()
}

// RecordRateLimited increments the rate-limited counter.
func (s *StatsService) RecordRateLimited() {
	s.rateLimited.Add(1)
}

// RecordAuthFailure increments the failed-authentication counter.
func (s *StatsService) RecordAuthFailure() {
	s.authFailed.Add(1)
}

// RecordError increments the error counter.
func (s *StatsService) RecordError() {
	s.errors.Add(1)
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	Completions int64            `json:"completions"`
	RateLimited int64            `json:"rate_limited"`
	AuthFailed  int64            `json:"auth_failed"`
	Errors      int64            `json:"errors"`
	ModelCounts map[string]int64 `json:"model_counts"`
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	mc := make(map[string]int64, len(s.modelCounts))
	for k, v := range s.modelCounts {
		mc[k] = v
	}
	s.mu.Unlock()

	return Stats{
		Completions: s.completions.Load(),
		RateLimited: s.rateLimited.Load(),
		AuthFailed:  s.authFailed.Load(),
		Errors:      s.errors.Load(),
		ModelCounts: mc,
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.completions.Store(0)
	s.rateLimited.Store(0)
	s.authFailed.Store(0)
	s.errors.Store(0)

	s.mu.Lock()
	s.modelCounts = make(map[string]int64)
	s.mu.Unlock()
}
