package pipeline

import (
	"sync"
	"time"
)

// ProcessingStats summarizes handler wall times for terminal attempts.
type ProcessingStats struct {
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Snapshot is a point-in-time view of pipeline activity.
type Snapshot struct {
	TotalTasks      int64 // terminal outcomes (completed + failed)
	SuccessfulTasks int64
	FailedTasks     int64
	RetriedAttempts int64
	CacheHits       int64
	CacheMisses     int64
	Processing      ProcessingStats
	ErrorCounts     map[string]int64 // terminal + retried errors by category
}

// stats accumulates pipeline counters. A single mutex keeps the snapshot
// internally consistent: totals always add up.
type stats struct {
	mu sync.Mutex

	successful int64
	failed     int64
	retried    int64
	cacheHits  int64
	cacheMiss  int64

	processing  ProcessingStats
	errorCounts map[string]int64
}

func (s *stats) recordSuccess(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successful++
	s.observeDuration(elapsed)
}

func (s *stats) recordFailure(category string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	s.countError(category)
	s.observeDuration(elapsed)
}

func (s *stats) recordRetry(category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried++
	s.countError(category)
}

func (s *stats) recordCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheHits++
}

func (s *stats) recordCacheMiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheMiss++
}

func (s *stats) observeDuration(elapsed time.Duration) {
	p := &s.processing
	p.Count++
	p.Total += elapsed
	if p.Min == 0 || elapsed < p.Min {
		p.Min = elapsed
	}
	if elapsed > p.Max {
		p.Max = elapsed
	}
}

func (s *stats) countError(category string) {
	if s.errorCounts == nil {
		s.errorCounts = make(map[string]int64)
	}
	s.errorCounts[category]++
}

// snapshot copies the counters under the lock.
func (s *stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64, len(s.errorCounts))
	for k, v := range s.errorCounts {
		counts[k] = v
	}
	return Snapshot{
		TotalTasks:      s.successful + s.failed,
		SuccessfulTasks: s.successful,
		FailedTasks:     s.failed,
		RetriedAttempts: s.retried,
		CacheHits:       s.cacheHits,
		CacheMisses:     s.cacheMiss,
		Processing:      s.processing,
		ErrorCounts:     counts,
	}
}

// Metrics returns the pipeline's activity snapshot.
func (p *Pipeline) Metrics() Snapshot {
	return p.stats.snapshot()
}
