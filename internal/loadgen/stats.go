package loadgen

import (
	"sort"
	"time"
)

// Stats holds runtime statistics for one task kind (or the whole run)
type Stats struct {
	CompletedRequests     int
	SuccessCount          int
	ErrorCount            int     // Transport errors (timeouts, connection failures)
	UnexpectedStatusCount int     // Responses outside the task's success codes
	AnomalyCount          int     // Success status with an unusable body
	Durations             []int64 // For percentile calculation
	TotalDurationMs       int64
	MinDurationMs         int64
	MaxDurationMs         int64
}

// NewStats creates a new Stats instance
func NewStats() *Stats {
	return &Stats{
		Durations:     make([]int64, 0, 1000),
		MinDurationMs: -1,
		MaxDurationMs: -1,
	}
}

// AddResult adds a request outcome to the statistics
func (s *Stats) AddResult(durationMs int64, outcome Outcome) {
	s.CompletedRequests++
	s.TotalDurationMs += durationMs
	s.Durations = append(s.Durations, durationMs)

	switch outcome {
	case OutcomeSuccess:
		s.SuccessCount++
	case OutcomeError:
		s.ErrorCount++
	case OutcomeUnexpectedStatus:
		s.UnexpectedStatusCount++
	case OutcomeAnomaly:
		s.AnomalyCount++
	}

	// Update min/max
	if s.MinDurationMs == -1 || durationMs < s.MinDurationMs {
		s.MinDurationMs = durationMs
	}
	if s.MaxDurationMs == -1 || durationMs > s.MaxDurationMs {
		s.MaxDurationMs = durationMs
	}
}

// FailureCount returns every non-success outcome
func (s *Stats) FailureCount() int {
	return s.ErrorCount + s.UnexpectedStatusCount + s.AnomalyCount
}

// Clone returns a deep copy
func (s *Stats) Clone() *Stats {
	c := *s
	c.Durations = make([]int64, len(s.Durations))
	copy(c.Durations, s.Durations)
	return &c
}

// AvgDurationMs returns the average duration in milliseconds
func (s *Stats) AvgDurationMs() float64 {
	if s.CompletedRequests == 0 {
		return 0
	}
	return float64(s.TotalDurationMs) / float64(s.CompletedRequests)
}

// Min returns the minimum duration, or 0 if no results
func (s *Stats) Min() int64 {
	if s.MinDurationMs == -1 {
		return 0
	}
	return s.MinDurationMs
}

// Max returns the maximum duration, or 0 if no results
func (s *Stats) Max() int64 {
	if s.MaxDurationMs == -1 {
		return 0
	}
	return s.MaxDurationMs
}

// Percentile calculates the percentile value (p should be between 0 and 100)
func (s *Stats) Percentile(p float64) int64 {
	if len(s.Durations) == 0 {
		return 0
	}

	sorted := make([]int64, len(s.Durations))
	copy(sorted, s.Durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between lower and upper
	weight := index - float64(lower)
	return int64(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight)
}

// P50 returns the 50th percentile (median)
func (s *Stats) P50() int64 {
	return s.Percentile(50)
}

// P95 returns the 95th percentile
func (s *Stats) P95() int64 {
	return s.Percentile(95)
}

// P99 returns the 99th percentile
func (s *Stats) P99() int64 {
	return s.Percentile(99)
}

// SuccessRate returns the success rate as a percentage
func (s *Stats) SuccessRate() float64 {
	if s.CompletedRequests == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.CompletedRequests) * 100
}

// FailureRate returns the rate of non-success outcomes as a percentage
func (s *Stats) FailureRate() float64 {
	if s.CompletedRequests == 0 {
		return 0
	}
	return float64(s.FailureCount()) / float64(s.CompletedRequests) * 100
}

// Snapshot is a consistent copy of the run's statistics
type Snapshot struct {
	Tasks          map[TaskKind]*Stats
	Total          *Stats
	Registry       Counts
	ActiveSessions int
	Elapsed        time.Duration
}

// Task returns the stats of one task kind, empty if nothing was recorded
func (s *Snapshot) Task(kind TaskKind) *Stats {
	if stats, ok := s.Tasks[kind]; ok {
		return stats
	}
	return NewStats()
}

// RequestsPerSecond returns the completed request throughput
func (s *Snapshot) RequestsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Total.CompletedRequests) / s.Elapsed.Seconds()
}
