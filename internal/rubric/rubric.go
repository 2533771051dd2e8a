package rubric

import (
	"strings"

	apperrors "github.com/paperscore/paperscore/internal/errors"
)

// Entry is one question in the scoring standard: its identifier, the
// maximum score it carries, and the canonical/acceptable answer text the
// models grade against.
type Entry struct {
	QuestionID string  `json:"question_id"`
	MaxScore   float64 `json:"max_score"`
	AnswerSpec string  `json:"answer_spec"`
}

// Rubric is the ordered scoring standard for one grading run. Order is
// the authoritative output order for the session.
type Rubric struct {
	Entries []Entry `json:"entries"`
}

// New builds a rubric from entries, preserving order.
func New(entries []Entry) Rubric {
	return Rubric{Entries: entries}
}

// TotalMax is the sum of maximum scores over all entries.
func (r Rubric) TotalMax() float64 {
	total := 0.0
	for _, e := range r.Entries {
		total += e.MaxScore
	}
	return total
}

// Len returns the number of entries.
func (r Rubric) Len() int { return len(r.Entries) }

// ByQuestionID returns the entry with the given id, if present.
func (r Rubric) ByQuestionID(id string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.QuestionID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Validate checks the caller-supplied preconditions for a grading run.
// Violations here are fatal: grading never starts on a broken rubric.
func (r Rubric) Validate() error {
	if len(r.Entries) == 0 {
		return apperrors.NewInvalidRubricError("rubric has no entries")
	}

	seen := make(map[string]struct{}, len(r.Entries))
	for i, e := range r.Entries {
		id := strings.TrimSpace(e.QuestionID)
		if id == "" {
			return apperrors.NewInvalidRubricError("rubric entry %d has an empty question id", i)
		}
		if _, dup := seen[id]; dup {
			return apperrors.NewInvalidRubricError("rubric has duplicate question id %q", id)
		}
		seen[id] = struct{}{}

		if e.MaxScore <= 0 {
			return apperrors.NewInvalidRubricError("rubric entry %q has non-positive max score %v", id, e.MaxScore)
		}
	}

	return nil
}
