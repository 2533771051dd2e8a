package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGradingResponse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		maxScore  float64
		wantScore float64
		wantErr   bool
	}{
		{
			name:      "plain json",
			raw:       `{"analysis": "correct working", "score": 8, "is_correct": true, "comment": "good"}`,
			maxScore:  10,
			wantScore: 8,
		},
		{
			name:      "fenced json",
			raw:       "Here is my grading:\n```json\n{\"analysis\": \"ok\", \"score\": 5}\n```\nDone.",
			maxScore:  10,
			wantScore: 5,
		},
		{
			name:      "bare fence",
			raw:       "```\n{\"score\": 3, \"comment\": \"partial\"}\n```",
			maxScore:  10,
			wantScore: 3,
		},
		{
			name:      "prose preamble",
			raw:       `Let me assess this answer. {"analysis": "wrong sign", "score": 2.5} hope that helps`,
			maxScore:  10,
			wantScore: 2.5,
		},
		{
			name:      "quoted score",
			raw:       `{"analysis": "fine", "score": "7"}`,
			maxScore:  10,
			wantScore: 7,
		},
		{
			name:      "score above max clamps",
			raw:       `{"score": 15}`,
			maxScore:  10,
			wantScore: 10,
		},
		{
			name:      "negative score clamps",
			raw:       `{"score": -2}`,
			maxScore:  10,
			wantScore: 0,
		},
		{
			name:      "truncated object",
			raw:       `{"analysis": "the student forgot the constant", "score": 6, "comment": "missing +C`,
			maxScore:  10,
			wantScore: 6,
		},
		{name: "empty", raw: "", maxScore: 10, wantErr: true},
		{name: "no json", raw: "I cannot grade this.", maxScore: 10, wantErr: true},
		{name: "null score", raw: `{"analysis": "?", "score": null}`, maxScore: 10, wantErr: true},
		{name: "missing score", raw: `{"analysis": "?"}`, maxScore: 10, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseGradingResponse(tt.raw, tt.maxScore)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, resp.Score)
		})
	}
}

func TestParseGradingResponsePicksLongestFence(t *testing.T) {
	raw := "```json\n{\"score\": 1}\n```\nrevised:\n```json\n{\"analysis\": \"second, fuller pass\", \"score\": 4}\n```"

	resp, err := ParseGradingResponse(raw, 10)

	require.NoError(t, err)
	assert.Equal(t, 4.0, resp.Score)
	assert.Equal(t, "second, fuller pass", resp.Analysis)
}

func TestCleanAnalysis(t *testing.T) {
	raw := `{"analysis": "## Assessment\n**wrong** step · sign error", "score": 4}`

	resp, err := ParseGradingResponse(raw, 10)

	require.NoError(t, err)
	assert.NotContains(t, resp.Analysis, "**")
	assert.NotContains(t, resp.Analysis, "##")
	assert.NotContains(t, resp.Analysis, "·")
}

func TestRationale(t *testing.T) {
	withAnalysis := GradingResponse{Analysis: "full analysis", Comment: "short"}
	assert.Equal(t, "full analysis", withAnalysis.Rationale())

	commentOnly := GradingResponse{Comment: "short"}
	assert.Equal(t, "short", commentOnly.Rationale())
}
