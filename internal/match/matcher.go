// Package match aligns detected question regions with rubric entries.
package match

import (
	"strconv"
	"strings"

	"github.com/paperscore/paperscore/internal/rubric"
	"github.com/paperscore/paperscore/internal/structure"
)

// Policy names the matching strategy that produced a result. Positional
// matching is a deliberate documented heuristic for pages whose markers
// cannot be resolved; callers can inspect which policy was active.
type Policy string

const (
	PolicyNumber     Policy = "number"
	PolicyPositional Policy = "positional"
)

// MatchedQuestion pairs one region with its rubric entry. A nil Entry
// means the region has no rubric match: it is gradable only heuristically
// and its score is withheld.
type MatchedQuestion struct {
	Region structure.Region
	Entry  *rubric.Entry
}

// Unmatched reports whether the region has no rubric entry.
func (m MatchedQuestion) Unmatched() bool { return m.Entry == nil }

// Result is the full alignment outcome: matched pairs in reading order,
// rubric entries with no region on the page, and the policy in effect.
type Result struct {
	Matched        []MatchedQuestion
	MissingAnswers []rubric.Entry
	Policy         Policy
}

// Match aligns regions to rubric entries by inferred question number.
// Two regions claiming the same number are treated as one question: the
// later region in reading order is a continuation and its bounding box is
// merged into the earlier one. When any region lacks a resolvable number
// the matcher falls back to positional matching: region i pairs with
// rubric entry i in reading order.
func Match(regions []structure.Region, r rubric.Rubric) Result {
	if canMatchByNumber(regions) {
		return matchByNumber(regions, r)
	}
	return matchPositional(regions, r)
}

func canMatchByNumber(regions []structure.Region) bool {
	if len(regions) == 0 {
		return false
	}
	for _, region := range regions {
		if strings.TrimSpace(region.QuestionNumber) == "" {
			return false
		}
	}
	return true
}

func matchByNumber(regions []structure.Region, r rubric.Rubric) Result {
	// Continuation merge: keep the first region per number, grow its box.
	merged := make([]structure.Region, 0, len(regions))
	index := make(map[string]int, len(regions))
	for _, region := range regions {
		key := normalizeNumber(region.QuestionNumber)
		if at, seen := index[key]; seen {
			merged[at].Box = merged[at].Box.Union(region.Box)
			if !merged[at].HasPoints && region.HasPoints {
				merged[at].Points = region.Points
				merged[at].HasPoints = true
			}
			continue
		}
		index[key] = len(merged)
		merged = append(merged, region)
	}

	result := Result{Policy: PolicyNumber}
	claimed := make(map[string]bool, len(merged))

	for _, region := range merged {
		key := normalizeNumber(region.QuestionNumber)
		entry, ok := findEntry(r, key)
		if ok {
			claimed[entry.QuestionID] = true
			e := entry
			result.Matched = append(result.Matched, MatchedQuestion{Region: region, Entry: &e})
		} else {
			result.Matched = append(result.Matched, MatchedQuestion{Region: region})
		}
	}

	for _, entry := range r.Entries {
		if !claimed[entry.QuestionID] {
			result.MissingAnswers = append(result.MissingAnswers, entry)
		}
	}
	return result
}

func matchPositional(regions []structure.Region, r rubric.Rubric) Result {
	result := Result{Policy: PolicyPositional}

	for i, region := range regions {
		if i < len(r.Entries) {
			e := r.Entries[i]
			result.Matched = append(result.Matched, MatchedQuestion{Region: region, Entry: &e})
		} else {
			result.Matched = append(result.Matched, MatchedQuestion{Region: region})
		}
	}

	if len(r.Entries) > len(regions) {
		result.MissingAnswers = append(result.MissingAnswers, r.Entries[len(regions):]...)
	}
	return result
}

// findEntry resolves a normalized question number against rubric ids,
// first verbatim and then numerically ("01" matches "1").
func findEntry(r rubric.Rubric, key string) (rubric.Entry, bool) {
	if entry, ok := r.ByQuestionID(key); ok {
		return entry, true
	}
	n, err := strconv.Atoi(key)
	if err != nil {
		return rubric.Entry{}, false
	}
	for _, entry := range r.Entries {
		if id, err := strconv.Atoi(strings.TrimSpace(entry.QuestionID)); err == nil && id == n {
			return entry, true
		}
	}
	return rubric.Entry{}, false
}

func normalizeNumber(number string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(number), "0")
	if trimmed == "" && strings.TrimSpace(number) != "" {
		return "0"
	}
	return trimmed
}
