// Package consensus reduces divergent per-model judgments into one
// authoritative score per question.
package consensus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paperscore/paperscore/internal/provider"
)

// Options holds the consensus policy constants. They are policy choices,
// not laws of nature, so they are tunable rather than hardcoded.
type Options struct {
	// MalformedWeight is a malformed voter's weight relative to an ok
	// voter's 1.0. Malformed voters still contribute rationale text
	// without skewing the score.
	MalformedWeight float64
	// DisagreementThreshold flags disagreement when the voter score
	// spread exceeds this fraction of the maximum score.
	DisagreementThreshold float64
	// MalformedPenalty is subtracted from confidence when any
	// contributing assessment was malformed.
	MalformedPenalty float64
	// LowConfidenceCap caps confidence for questions whose region came
	// from the degenerate whole-column segmentation fallback.
	LowConfidenceCap float64
}

// DefaultOptions returns the production policy constants.
func DefaultOptions() Options {
	return Options{
		MalformedWeight:       0.5,
		DisagreementThreshold: 0.2,
		MalformedPenalty:      0.3,
		LowConfidenceCap:      0.5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MalformedWeight <= 0 {
		o.MalformedWeight = d.MalformedWeight
	}
	if o.DisagreementThreshold <= 0 {
		o.DisagreementThreshold = d.DisagreementThreshold
	}
	if o.MalformedPenalty <= 0 {
		o.MalformedPenalty = d.MalformedPenalty
	}
	if o.LowConfidenceCap <= 0 {
		o.LowConfidenceCap = d.LowConfidenceCap
	}
	return o
}

// ScoringResult is the authoritative outcome for one question. Immutable
// once computed; consolidating the same assessment set again yields an
// identical result.
type ScoringResult struct {
	QuestionID   string                `json:"question_id"`
	FinalScore   float64               `json:"final_score"`
	MaxScore     float64               `json:"max_score"`
	Confidence   float64               `json:"confidence"`
	Disagreement bool                  `json:"disagreement"`
	Assessments  []provider.Assessment `json:"assessments"`
	Rationale    string                `json:"rationale"`
}

// Consolidate reduces the assessments for one question into a single
// scoring result. lowConfidenceRegion caps confidence when segmentation
// was degenerate. All providers failing is a non-fatal terminal state:
// the question scores zero with zero confidence.
func Consolidate(questionID string, maxScore float64, assessments []provider.Assessment, lowConfidenceRegion bool, opts Options) ScoringResult {
	opts = opts.withDefaults()

	voters := make([]provider.Assessment, 0, len(assessments))
	for _, a := range assessments {
		if a.Usable() {
			voters = append(voters, a)
		}
	}

	if len(voters) == 0 {
		return ScoringResult{
			QuestionID: questionID,
			MaxScore:   maxScore,
			Rationale:  "no model produced a usable assessment",
		}
	}

	finalScore := weightedMedian(voters, opts.MalformedWeight)
	if finalScore < 0 {
		finalScore = 0
	}
	if finalScore > maxScore {
		finalScore = maxScore
	}

	minScore, maxVoterScore := voters[0].Score, voters[0].Score
	hasMalformed := false
	for _, v := range voters {
		if v.Score < minScore {
			minScore = v.Score
		}
		if v.Score > maxVoterScore {
			maxVoterScore = v.Score
		}
		if v.Status == provider.StatusMalformed {
			hasMalformed = true
		}
	}
	spread := maxVoterScore - minScore

	disagreement := maxScore > 0 && spread > opts.DisagreementThreshold*maxScore

	confidence := 1.0
	if maxScore > 0 {
		confidence = 1.0 - spread/maxScore
	}
	if hasMalformed {
		confidence -= opts.MalformedPenalty
	}
	if lowConfidenceRegion && confidence > opts.LowConfidenceCap {
		confidence = opts.LowConfidenceCap
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return ScoringResult{
		QuestionID:   questionID,
		FinalScore:   finalScore,
		MaxScore:     maxScore,
		Confidence:   confidence,
		Disagreement: disagreement,
		Assessments:  voters,
		Rationale:    mergeRationales(voters),
	}
}

// weightedMedian returns the weighted median of voter scores. A tie
// between two middle scores resolves to the lower one; the median itself
// is preferred over the mean so a single outlier provider cannot drag the
// grade.
func weightedMedian(voters []provider.Assessment, malformedWeight float64) float64 {
	type weighted struct {
		score  float64
		weight float64
	}

	entries := make([]weighted, 0, len(voters))
	total := 0.0
	for _, v := range voters {
		w := 1.0
		if v.Status == provider.StatusMalformed {
			w = malformedWeight
		}
		entries = append(entries, weighted{score: v.Score, weight: w})
		total += w
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].score < entries[j].score })

	// Walking from the lowest score, the first entry whose cumulative
	// weight reaches half the total is the median; reaching exactly half
	// picks the lower of two middle scores.
	cumulative := 0.0
	for _, e := range entries {
		cumulative += e.weight
		if cumulative >= total/2 {
			return e.score
		}
	}
	return entries[len(entries)-1].score
}

func mergeRationales(voters []provider.Assessment) string {
	parts := make([]string, 0, len(voters))
	for _, v := range voters {
		text := strings.TrimSpace(v.Rationale)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", v.ProviderID, text))
	}
	return strings.Join(parts, "\n\n")
}
