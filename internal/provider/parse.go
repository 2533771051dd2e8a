package provider

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// GradingResponse is the JSON shape the grading prompt asks every backend
// to return.
type GradingResponse struct {
	Analysis  string  `json:"analysis"`
	Score     float64 `json:"score"`
	IsCorrect bool    `json:"is_correct"`
	Comment   string  `json:"comment"`
}

// Rationale returns the best available explanation text: the full
// analysis when present, otherwise the short comment.
func (g GradingResponse) Rationale() string {
	if strings.TrimSpace(g.Analysis) != "" {
		return g.Analysis
	}
	return g.Comment
}

var (
	errNoJSON = errors.New("no JSON object found in response")

	codeFenceRe = regexp.MustCompile("(?is)```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	boldRe      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	headingRe   = regexp.MustCompile(`#+\s*`)
)

// ParseGradingResponse extracts a grading result from a raw model
// response. Models wrap JSON in code fences, prepend prose, or truncate
// the object mid-stream; all of these are repaired before giving up. The
// score is clamped to [0, maxScore].
func ParseGradingResponse(raw string, maxScore float64) (GradingResponse, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return GradingResponse{}, errNoJSON
	}

	// Fenced code blocks first, longest block wins.
	if blocks := codeFenceRe.FindAllStringSubmatch(raw, -1); len(blocks) > 0 {
		best := ""
		for _, b := range blocks {
			if len(b[1]) > len(best) {
				best = b[1]
			}
		}
		if resp, err := parseCandidate(best, maxScore); err == nil {
			return resp, nil
		}
	}

	// Outermost braces in the raw text.
	candidate := raw
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			candidate = raw[start : end+1]
		} else {
			candidate = raw[start:]
		}
	}
	if resp, err := parseCandidate(candidate, maxScore); err == nil {
		return resp, nil
	}

	// Truncation repair: balance a dangling quote and close open braces.
	repaired := strings.TrimRight(candidate, " \t\r\n")
	if strings.Count(repaired, `"`)%2 != 0 {
		repaired += `"`
	}
	if open, closed := strings.Count(repaired, "{"), strings.Count(repaired, "}"); open > closed {
		repaired += strings.Repeat("}", open-closed)
	}
	return parseCandidate(repaired, maxScore)
}

func parseCandidate(candidate string, maxScore float64) (GradingResponse, error) {
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return GradingResponse{}, errNoJSON
	}

	// Score arrives as a number or, from sloppier backends, a quoted
	// number. Decode it leniently.
	var wire struct {
		Analysis  string          `json:"analysis"`
		Score     json.RawMessage `json:"score"`
		IsCorrect bool            `json:"is_correct"`
		Comment   string          `json:"comment"`
	}
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &wire); err != nil {
		return GradingResponse{}, err
	}

	resp := GradingResponse{
		Analysis:  wire.Analysis,
		IsCorrect: wire.IsCorrect,
		Comment:   wire.Comment,
	}
	scoreText := strings.Trim(strings.TrimSpace(string(wire.Score)), `"`)
	if scoreText == "" || scoreText == "null" {
		return GradingResponse{}, errors.New("response carries no score")
	}
	if err := json.Unmarshal([]byte(scoreText), &resp.Score); err != nil {
		return GradingResponse{}, err
	}

	if resp.Score < 0 {
		resp.Score = 0
	}
	if resp.Score > maxScore {
		resp.Score = maxScore
	}
	resp.Analysis = cleanAnalysis(resp.Analysis)
	return resp, nil
}

// cleanAnalysis strips markdown decoration the prompt forbids but models
// emit anyway.
func cleanAnalysis(analysis string) string {
	if analysis == "" {
		return ""
	}
	analysis = strings.NewReplacer("·", "-", "•", "-").Replace(analysis)
	analysis = boldRe.ReplaceAllString(analysis, "$1")
	analysis = headingRe.ReplaceAllString(analysis, "")
	return strings.TrimSpace(analysis)
}
