package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		name       string
		err        *GradingError
		category   ErrorCategory
		httpStatus int
		fatal      bool
	}{
		{"invalid rubric", NewInvalidRubricError("broken"), CategoryValidation, http.StatusBadRequest, true},
		{"validation", NewValidationError("bad payload"), CategoryValidation, http.StatusBadRequest, true},
		{"provider", NewProviderError("connection refused", nil), CategoryProvider, http.StatusBadGateway, false},
		{"timeout", NewTimeoutError("deadline", nil), CategoryTimeout, http.StatusGatewayTimeout, false},
		{"malformed", NewMalformedResponseError("not json"), CategoryMalformed, http.StatusBadGateway, false},
		{"rate limit", NewRateLimitError("gemini"), CategoryRateLimit, http.StatusTooManyRequests, false},
		{"no voters", NewNoVotersError("3"), CategoryConsensus, http.StatusOK, false},
		{"internal", NewInternalError("boom", nil), CategoryInternal, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestToGradingErrorClassifiesContextErrors(t *testing.T) {
	deadline := ToGradingError(context.DeadlineExceeded)
	require.NotNil(t, deadline)
	assert.Equal(t, CategoryTimeout, deadline.Category)

	canceled := ToGradingError(context.Canceled)
	require.NotNil(t, canceled)
	assert.Equal(t, CategoryProvider, canceled.Category)
}

func TestToGradingErrorPassthrough(t *testing.T) {
	orig := NewRateLimitError("qwen")
	wrapped := fmt.Errorf("attempt 1: %w", orig)

	got := ToGradingError(wrapped)
	assert.Same(t, orig, got)
	assert.Equal(t, "qwen", got.ProviderID)
}

func TestToGradingErrorUnknown(t *testing.T) {
	got := ToGradingError(errors.New("mystery"))
	require.NotNil(t, got)
	assert.Equal(t, CategoryInternal, got.Category)

	assert.Nil(t, ToGradingError(nil))
}

func TestErrorScopes(t *testing.T) {
	err := NewProviderError("401 unauthorized", nil).
		WithQuestion("5").
		WithProvider("glm")

	assert.Equal(t, "5", err.QuestionID)
	assert.Equal(t, "glm", err.ProviderID)
}

func TestErrorStringCarriesCode(t *testing.T) {
	err := NewTimeoutError("provider call timed out", nil)
	assert.Contains(t, err.Error(), "TIMEOUT_ERROR")
	assert.Contains(t, err.Error(), "provider call timed out")
}
