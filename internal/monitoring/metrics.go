package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds in-process grading metrics.
type Metrics struct {
	PapersGraded    int64
	QuestionsGraded int64
	Disagreements   int64
	ZeroVoterCount  int64
	StartTime       time.Time

	// Per-provider call accounting.
	providerCalls     map[string]int64
	providerFailures  map[string]map[string]int64 // provider -> status -> count
	providerLatencyNs map[string]int64
	providerMutex     sync.RWMutex
}

// NewMetrics creates a metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:         time.Now(),
		providerCalls:     make(map[string]int64),
		providerFailures:  make(map[string]map[string]int64),
		providerLatencyNs: make(map[string]int64),
	}
}

// IncrementPapers counts a completed paper.
func (m *Metrics) IncrementPapers() {
	atomic.AddInt64(&m.PapersGraded, 1)
}

// IncrementQuestions counts a consolidated question.
func (m *Metrics) IncrementQuestions() {
	atomic.AddInt64(&m.QuestionsGraded, 1)
}

// IncrementDisagreements counts a question flagged as disagreed.
func (m *Metrics) IncrementDisagreements() {
	atomic.AddInt64(&m.Disagreements, 1)
}

// IncrementZeroVoter counts a question where every provider failed.
func (m *Metrics) IncrementZeroVoter() {
	atomic.AddInt64(&m.ZeroVoterCount, 1)
}

// RecordProviderCall records one terminal provider attempt.
func (m *Metrics) RecordProviderCall(providerID, status string, duration time.Duration) {
	m.providerMutex.Lock()
	defer m.providerMutex.Unlock()

	m.providerCalls[providerID]++
	m.providerLatencyNs[providerID] += duration.Nanoseconds()
	if status != "ok" {
		if m.providerFailures[providerID] == nil {
			m.providerFailures[providerID] = make(map[string]int64)
		}
		m.providerFailures[providerID][status]++
	}
}

// ProviderStats is a point-in-time snapshot for one provider.
type ProviderStats struct {
	Calls        int64            `json:"calls"`
	Failures     map[string]int64 `json:"failures,omitempty"`
	AvgLatencyMS int64            `json:"avg_latency_ms"`
}

// Snapshot returns a copy of all metrics for the stats endpoint.
func (m *Metrics) Snapshot() map[string]interface{} {
	m.providerMutex.RLock()
	providers := make(map[string]ProviderStats, len(m.providerCalls))
	for id, calls := range m.providerCalls {
		stats := ProviderStats{Calls: calls}
		if calls > 0 {
			stats.AvgLatencyMS = m.providerLatencyNs[id] / calls / int64(time.Millisecond)
		}
		if failures, ok := m.providerFailures[id]; ok {
			stats.Failures = make(map[string]int64, len(failures))
			for status, n := range failures {
				stats.Failures[status] = n
			}
		}
		providers[id] = stats
	}
	m.providerMutex.RUnlock()

	return map[string]interface{}{
		"papers_graded":    atomic.LoadInt64(&m.PapersGraded),
		"questions_graded": atomic.LoadInt64(&m.QuestionsGraded),
		"disagreements":    atomic.LoadInt64(&m.Disagreements),
		"zero_voter_count": atomic.LoadInt64(&m.ZeroVoterCount),
		"uptime_seconds":   int64(time.Since(m.StartTime).Seconds()),
		"providers":        providers,
	}
}
