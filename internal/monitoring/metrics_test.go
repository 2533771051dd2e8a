package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.IncrementPapers()
	m.IncrementQuestions()
	m.IncrementQuestions()
	m.IncrementDisagreements()
	m.IncrementZeroVoter()

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap["papers_graded"])
	assert.Equal(t, int64(2), snap["questions_graded"])
	assert.Equal(t, int64(1), snap["disagreements"])
	assert.Equal(t, int64(1), snap["zero_voter_count"])
}

func TestRecordProviderCall(t *testing.T) {
	m := NewMetrics()

	m.RecordProviderCall("gemini", "ok", 100*time.Millisecond)
	m.RecordProviderCall("gemini", "ok", 300*time.Millisecond)
	m.RecordProviderCall("gemini", "timeout", 2*time.Second)
	m.RecordProviderCall("qwen", "malformed", 50*time.Millisecond)

	snap := m.Snapshot()
	providers, ok := snap["providers"].(map[string]ProviderStats)
	require.True(t, ok)

	gemini := providers["gemini"]
	assert.Equal(t, int64(3), gemini.Calls)
	assert.Equal(t, int64(1), gemini.Failures["timeout"])

	qwen := providers["qwen"]
	assert.Equal(t, int64(1), qwen.Calls)
	assert.Equal(t, int64(1), qwen.Failures["malformed"])
	assert.Equal(t, int64(50), qwen.AvgLatencyMS)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.RecordProviderCall("gemini", "timeout", time.Millisecond)

	snap := m.Snapshot()
	providers := snap["providers"].(map[string]ProviderStats)
	providers["gemini"].Failures["timeout"] = 99

	again := m.Snapshot()["providers"].(map[string]ProviderStats)
	assert.Equal(t, int64(1), again["gemini"].Failures["timeout"])
}
