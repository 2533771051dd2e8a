// Package session assembles per-question scoring results into the
// paper-level grading result handed to the reporting layer.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/paperscore/paperscore/internal/consensus"
	apperrors "github.com/paperscore/paperscore/internal/errors"
	"github.com/paperscore/paperscore/internal/match"
	"github.com/paperscore/paperscore/internal/rubric"
)

// GradingSession is the unit returned to the reporting collaborator:
// one scoring result per rubric entry in rubric order, totals, and the
// regions that matched no rubric entry. Pure data, no mutation once
// assembled.
type GradingSession struct {
	PaperID     string                    `json:"paper_id"`
	Rubric      rubric.Rubric             `json:"rubric"`
	MatchPolicy match.Policy              `json:"match_policy"`
	Results     []consensus.ScoringResult `json:"results"`
	Unmatched   []consensus.ScoringResult `json:"unmatched,omitempty"`
	TotalScore  float64                   `json:"total_score"`
	TotalMax    float64                   `json:"total_max"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// Assemble builds the session from the orchestrator's results. Output
// preserves rubric order, not completion order. The rubric is validated
// here as the session-scope precondition; everything downstream of a
// valid rubric is non-fatal.
func Assemble(paperID string, r rubric.Rubric, matchResult match.Result, results []consensus.ScoringResult) (*GradingSession, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if paperID == "" {
		paperID = uuid.NewString()
	}

	byQuestion := make(map[string]consensus.ScoringResult, len(results))
	claimed := make(map[string]bool, len(results))
	for _, res := range results {
		if _, dup := byQuestion[res.QuestionID]; !dup {
			byQuestion[res.QuestionID] = res
		}
	}

	ordered := make([]consensus.ScoringResult, 0, r.Len())
	totalScore := 0.0
	for _, entry := range r.Entries {
		res, ok := byQuestion[entry.QuestionID]
		if !ok {
			// Defensive terminal state; the orchestrator synthesizes a
			// result for every rubric entry, but the invariant "one
			// result per entry" holds regardless.
			res = consensus.ScoringResult{
				QuestionID: entry.QuestionID,
				MaxScore:   entry.MaxScore,
				Rationale:  "no answer region detected for this question",
			}
		}
		claimed[entry.QuestionID] = true

		if res.FinalScore < 0 {
			res.FinalScore = 0
		}
		if res.FinalScore > entry.MaxScore {
			return nil, apperrors.NewInternalError("final score exceeds max score for question "+entry.QuestionID, nil)
		}
		totalScore += res.FinalScore
		ordered = append(ordered, res)
	}

	// Regions that matched no rubric entry ride along flagged, with
	// their scores withheld from the total.
	var unmatched []consensus.ScoringResult
	for _, res := range results {
		if !claimed[res.QuestionID] {
			unmatched = append(unmatched, res)
		}
	}

	return &GradingSession{
		PaperID:     paperID,
		Rubric:      r,
		MatchPolicy: matchResult.Policy,
		Results:     ordered,
		Unmatched:   unmatched,
		TotalScore:  totalScore,
		TotalMax:    r.TotalMax(),
		CreatedAt:   time.Now(),
	}, nil
}
