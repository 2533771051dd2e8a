package openaic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscore/paperscore/internal/provider"
	"github.com/paperscore/paperscore/internal/resilience"
)

func testRequest() provider.Request {
	return provider.Request{
		QuestionID: "1",
		MaxScore:   10,
		AnswerSpec: "42",
		ImageJPEG:  []byte{0xff, 0xd8, 0xff, 0xd9},
	}
}

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}, "finish_reason": "stop"},
		},
	})
	return string(body)
}

func newTestProvider(url string) *Provider {
	return New(Config{
		ID:      "qwen",
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "qwen-vl-max",
	})
}

func TestAssessSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "data:image/jpeg;base64,")

		io.WriteString(w, chatReply(`{"analysis": "right", "score": 8, "is_correct": true}`))
	}))
	defer srv.Close()

	a := newTestProvider(srv.URL).Assess(context.Background(), testRequest())

	assert.Equal(t, provider.StatusOK, a.Status)
	assert.Equal(t, 8.0, a.Score)
	assert.Equal(t, "qwen", a.ProviderID)
}

func TestAssessMalformedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, chatReply("I refuse to emit JSON today."))
	}))
	defer srv.Close()

	a := newTestProvider(srv.URL).Assess(context.Background(), testRequest())

	assert.Equal(t, provider.StatusMalformed, a.Status)
	assert.Equal(t, 0.0, a.Score)
}

func TestAssessEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices": []}`)
	}))
	defer srv.Close()

	a := newTestProvider(srv.URL).Assess(context.Background(), testRequest())

	assert.Equal(t, provider.StatusMalformed, a.Status)
	assert.Contains(t, a.Rationale, "MALFORMED_RESPONSE")
	assert.Contains(t, a.Rationale, "unparseable response")
}

func TestAssessServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newTestProvider(srv.URL).Assess(context.Background(), testRequest())

	assert.Equal(t, provider.StatusError, a.Status)
	assert.Contains(t, a.Rationale, "status 502")
}

func TestAssessAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error": {"message": "model overloaded"}}`)
	}))
	defer srv.Close()

	a := newTestProvider(srv.URL).Assess(context.Background(), testRequest())

	assert.Equal(t, provider.StatusError, a.Status)
	assert.Equal(t, "model overloaded", a.Rationale)
}

func TestAssessRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := newTestProvider(srv.URL).Assess(context.Background(), testRequest())

	assert.Equal(t, provider.StatusError, a.Status)
	assert.Contains(t, a.Rationale, "RATE_LIMIT_EXCEEDED")
	assert.Contains(t, a.Rationale, "qwen")
	assert.False(t, a.Status.Terminal())
}

func TestAssessTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, chatReply(`{"analysis": "late", "score": 5}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	a := newTestProvider(srv.URL).Assess(ctx, testRequest())

	assert.Equal(t, provider.StatusTimeout, a.Status)
	assert.Contains(t, a.Rationale, "TIMEOUT_ERROR")
}

func TestCircuitBreakerOpensAfterConfiguredFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{
		ID:      "qwen",
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "qwen-vl-max",
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 2,
			RecoveryTimeout:  time.Hour,
		},
	})

	for i := 0; i < 2; i++ {
		a := p.Assess(context.Background(), testRequest())
		assert.Equal(t, provider.StatusError, a.Status)
		assert.Contains(t, a.Rationale, "status 500")
	}

	a := p.Assess(context.Background(), testRequest())
	assert.Equal(t, provider.StatusError, a.Status)
	assert.Contains(t, a.Rationale, "circuit breaker is open")
	assert.Equal(t, int32(2), calls.Load())
}

func TestAssessMissingCredential(t *testing.T) {
	p := New(Config{ID: "qwen", BaseURL: "http://localhost:0", Model: "qwen-vl-max"})

	a := p.Assess(context.Background(), testRequest())

	assert.Equal(t, provider.StatusError, a.Status)
	assert.False(t, p.Available())
}

func TestAssessMissingImage(t *testing.T) {
	p := newTestProvider("http://localhost:0")

	req := testRequest()
	req.ImageJPEG = nil
	a := p.Assess(context.Background(), req)

	assert.Equal(t, provider.StatusError, a.Status)
	require.Contains(t, a.Rationale, "no region image")
}
