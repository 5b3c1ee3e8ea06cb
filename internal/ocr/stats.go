package ocr

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks ensemble usage across calls. It is an explicit, injected
// collector owned by the caller so tests can instantiate fresh instances.
// Updates are cheap counter operations and never block the OCR path.
type Stats struct {
	totalRequests atomic.Int64
	totalNanos    atomic.Int64

	mu        sync.RWMutex
	perEngine map[string]int64
}

// NewStats creates an empty collector.
func NewStats() *Stats {
	return &Stats{perEngine: make(map[string]int64)}
}

// RecordRequest notes one engine invocation and its duration.
func (s *Stats) RecordRequest(engine string, elapsed time.Duration) {
	s.totalRequests.Add(1)
	s.totalNanos.Add(int64(elapsed))

	s.mu.Lock()
	s.perEngine[engine]++
	s.mu.Unlock()
}

// TotalRequests returns the number of engine invocations recorded.
func (s *Stats) TotalRequests() int64 {
	return s.totalRequests.Load()
}

// EngineRequests returns per-engine invocation counts.
func (s *Stats) EngineRequests() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.perEngine))
	for k, v := range s.perEngine {
		out[k] = v
	}
	return out
}

// AverageProcessingTime returns the running mean engine latency.
func (s *Stats) AverageProcessingTime() time.Duration {
	n := s.totalRequests.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(s.totalNanos.Load() / n)
}
