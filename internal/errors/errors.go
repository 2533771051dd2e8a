package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
)

// ErrorCategory defines the scope of a grading failure for proper handling.
type ErrorCategory string

const (
	// CategoryValidation covers caller-supplied precondition violations
	// (invalid rubric, bad request payloads). Fatal for the session.
	CategoryValidation ErrorCategory = "validation"
	// CategorySegmentation covers low-confidence structure analysis.
	// Recoverable: grading proceeds with capped confidence.
	CategorySegmentation ErrorCategory = "segmentation"
	// CategoryMatch covers region/rubric alignment ambiguity. Recoverable
	// via positional fallback.
	CategoryMatch ErrorCategory = "match"
	// CategoryProvider covers transport/auth failures of a single VLM
	// backend. Recoverable per provider: that voter is excluded.
	CategoryProvider ErrorCategory = "provider"
	// CategoryTimeout covers provider calls exceeding their deadline.
	CategoryTimeout ErrorCategory = "timeout"
	// CategoryMalformed covers provider responses that arrived but could
	// not be parsed into a score/rationale.
	CategoryMalformed ErrorCategory = "malformed"
	// CategoryRateLimit covers provider rate-limit rejections.
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryConsensus covers consolidation-scope conditions such as no
	// usable voters. Recoverable at question scope.
	CategoryConsensus ErrorCategory = "consensus"
	// CategoryInternal covers unexpected engine failures.
	CategoryInternal ErrorCategory = "internal"
)

// GradingError wraps an errbuilder error with grading-specific context.
type GradingError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	QuestionID string        `json:"question_id,omitempty"`
	ProviderID string        `json:"provider_id,omitempty"`
}

// Error implements the error interface.
func (e *GradingError) Error() string {
	codeStr := "UNKNOWN_ERROR"
	switch e.ErrBuilder.ErrCode() {
	case errbuilder.CodeInvalidArgument:
		codeStr = "VALIDATION_ERROR"
	case errbuilder.CodeUnavailable:
		codeStr = "PROVIDER_ERROR"
	case errbuilder.CodeDeadlineExceeded:
		codeStr = "TIMEOUT_ERROR"
	case errbuilder.CodeResourceExhausted:
		codeStr = "RATE_LIMIT_EXCEEDED"
	case errbuilder.CodeDataLoss:
		codeStr = "MALFORMED_RESPONSE"
	case errbuilder.CodeNotFound:
		codeStr = "NO_VOTERS"
	case errbuilder.CodeFailedPrecondition:
		codeStr = "MATCH_AMBIGUOUS"
	case errbuilder.CodeInternal:
		codeStr = "INTERNAL_ERROR"
	}
	return fmt.Sprintf("[%s] %s", codeStr, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause.
func (e *GradingError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// WithQuestion attaches the question scope to the error.
func (e *GradingError) WithQuestion(questionID string) *GradingError {
	e.QuestionID = questionID
	return e
}

// WithProvider attaches the provider scope to the error.
func (e *GradingError) WithProvider(providerID string) *GradingError {
	e.ProviderID = providerID
	return e
}

func newGradingError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *GradingError {
	return &GradingError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewInvalidRubricError creates the fatal precondition error for a broken
// rubric. Grading is rejected before it starts.
func NewInvalidRubricError(format string, args ...interface{}) *GradingError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf(format, args...))
	return newGradingError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewValidationError creates a generic request validation error.
func NewValidationError(message string) *GradingError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)
	return newGradingError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewProviderError creates a transport/auth failure for one VLM backend.
func NewProviderError(message string, cause error) *GradingError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return newGradingError(builder, CategoryProvider, http.StatusBadGateway)
}

// NewTimeoutError creates a deadline-exceeded failure for a provider call.
func NewTimeoutError(message string, cause error) *GradingError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return newGradingError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewMalformedResponseError marks a provider response that arrived but
// could not be parsed into a usable assessment.
func NewMalformedResponseError(message string) *GradingError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDataLoss).
		WithMsg(message)
	return newGradingError(builder, CategoryMalformed, http.StatusBadGateway)
}

// NewRateLimitError marks a provider rate-limit rejection.
func NewRateLimitError(providerID string) *GradingError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg(fmt.Sprintf("rate limit exceeded for provider %s", providerID))
	err := newGradingError(builder, CategoryRateLimit, http.StatusTooManyRequests)
	err.ProviderID = providerID
	return err
}

// NewMatchAmbiguityError records that number-based matching could not
// resolve and positional fallback was applied. Logged, never fatal.
func NewMatchAmbiguityError(message string) *GradingError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)
	return newGradingError(builder, CategoryMatch, http.StatusOK)
}

// NewNoVotersError records that every provider failed for a question.
// The question is scored zero with zero confidence; the session continues.
func NewNoVotersError(questionID string) *GradingError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("no model produced a usable assessment for question %s", questionID))
	err := newGradingError(builder, CategoryConsensus, http.StatusOK)
	err.QuestionID = questionID
	return err
}

// NewInternalError creates an unexpected engine failure.
func NewInternalError(message string, cause error) *GradingError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return newGradingError(builder, CategoryInternal, http.StatusInternalServerError)
}

// ToGradingError converts any error into a GradingError, classifying
// context errors into the timeout category.
func ToGradingError(err error) *GradingError {
	if err == nil {
		return nil
	}

	var gradingErr *GradingError
	if errors.As(err, &gradingErr) {
		return gradingErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("operation deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewProviderError("operation canceled", err)
	}

	return NewInternalError(err.Error(), err)
}

// IsFatal reports whether the error must abort session creation.
// Only caller-supplied precondition violations are fatal.
func IsFatal(err error) bool {
	gradingErr := ToGradingError(err)
	if gradingErr == nil {
		return false
	}
	return gradingErr.Category == CategoryValidation
}
