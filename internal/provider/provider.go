// Package provider defines the uniform capability every vision-language
// model backend implements, and the assessment values those backends
// produce. One adapter per backend; core logic never depends on any one
// backend's response shape.
package provider

import (
	"context"
	"time"

	apperrors "github.com/paperscore/paperscore/internal/errors"
)

// Status classifies the terminal outcome of one provider attempt.
type Status string

const (
	// StatusOK means a parseable score and rationale were returned.
	StatusOK Status = "ok"
	// StatusTimeout means the call exceeded its deadline budget.
	StatusTimeout Status = "timeout"
	// StatusError means a transport or auth failure before any usable
	// response arrived.
	StatusError Status = "error"
	// StatusMalformed means a response arrived but its score/rationale
	// could not be parsed. The score is clamped to zero and consensus
	// down-weights the voter.
	StatusMalformed Status = "malformed"
)

// Terminal reports whether the status ends the attempt sequence for a
// provider: successes and malformed responses are never retried.
func (s Status) Terminal() bool {
	return s == StatusOK || s == StatusMalformed
}

// Request carries everything a backend needs to grade one question: the
// cropped region image and the rubric entry it was matched to.
type Request struct {
	QuestionID string
	MaxScore   float64
	AnswerSpec string

	// ImageJPEG is the region crop, already scaled to the payload budget.
	ImageJPEG []byte

	// LowConfidenceRegion is set when segmentation fell back to a whole
	// column; the prompt tells the model to locate the question itself.
	LowConfidenceRegion bool
}

// Assessment is the value-typed result of one (provider, question)
// attempt. Every call path terminates in an Assessment; failures are
// tagged statuses, never errors crossing the adapter boundary.
type Assessment struct {
	ProviderID string  `json:"provider_id"`
	QuestionID string  `json:"question_id"`
	Score      float64 `json:"score"`
	Rationale  string  `json:"rationale"`
	LatencyMS  int64   `json:"latency_ms"`
	Status     Status  `json:"status"`
}

// Usable reports whether the assessment can vote in consensus.
func (a Assessment) Usable() bool {
	return a.Status == StatusOK || a.Status == StatusMalformed
}

// Provider is the uniform capability of one VLM backend. Assess must be
// safe to invoke concurrently across questions with no shared mutable
// state between calls, and must never panic or leak an error: every path
// yields an Assessment.
type Provider interface {
	ID() string
	Assess(ctx context.Context, req Request) Assessment
}

// Failure builds a terminal failure assessment for a provider attempt.
func Failure(providerID, questionID string, status Status, rationale string, latency time.Duration) Assessment {
	return Assessment{
		ProviderID: providerID,
		QuestionID: questionID,
		Score:      0,
		Rationale:  rationale,
		LatencyMS:  latency.Milliseconds(),
		Status:     status,
	}
}

// FromResponse turns a raw model response into an assessment, classifying
// unparseable payloads as malformed with a zero score.
func FromResponse(providerID, questionID, raw string, maxScore float64, latency time.Duration) Assessment {
	parsed, err := ParseGradingResponse(raw, maxScore)
	if err != nil {
		mErr := apperrors.NewMalformedResponseError("unparseable response").
			WithProvider(providerID).WithQuestion(questionID)
		return Failure(providerID, questionID, StatusMalformed, mErr.Error(), latency)
	}
	return Assessment{
		ProviderID: providerID,
		QuestionID: questionID,
		Score:      parsed.Score,
		Rationale:  parsed.Rationale(),
		LatencyMS:  latency.Milliseconds(),
		Status:     StatusOK,
	}
}
