// Package openaic implements the provider capability over any
// OpenAI-compatible chat-completions endpoint with vision support:
// Qwen-VL behind DashScope's compatible mode, GLM-4V, or proxy-hosted
// Gemini deployments.
package openaic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/paperscore/paperscore/internal/errors"
	"github.com/paperscore/paperscore/internal/provider"
	"github.com/paperscore/paperscore/internal/resilience"
)

// Config identifies one OpenAI-compatible backend.
type Config struct {
	ID        string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	// Breaker tunes the per-endpoint circuit breaker. Zero values fall
	// back to the breaker defaults.
	Breaker resilience.CircuitBreakerConfig
}

// Provider grades question regions through a chat-completions endpoint.
// Calls go through a pooled, circuit-breaker-protected HTTP client; one
// backend's outage never affects the others.
type Provider struct {
	config Config
	client *resilience.Client
}

// New creates a provider for the given endpoint.
func New(config Config) *Provider {
	config.BaseURL = strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	return &Provider{
		config: config,
		client: resilience.NewClient(resilience.DefaultHTTPClientConfig(), resilience.NewCircuitBreaker(config.Breaker)),
	}
}

// ID returns the provider identifier used in assessments and metrics.
func (p *Provider) ID() string { return p.config.ID }

// Available reports whether a credential is configured.
func (p *Provider) Available() bool { return p.config.APIKey != "" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Assess grades one region image against its rubric entry. Every path
// terminates in an Assessment value.
func (p *Provider) Assess(ctx context.Context, req provider.Request) (out provider.Assessment) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = provider.Failure(p.config.ID, req.QuestionID, provider.StatusError,
				fmt.Sprintf("provider panic: %v", r), time.Since(start))
		}
	}()

	if p.config.APIKey == "" {
		return provider.Failure(p.config.ID, req.QuestionID, provider.StatusError,
			"API key not configured", time.Since(start))
	}
	if len(req.ImageJPEG) == 0 {
		return provider.Failure(p.config.ID, req.QuestionID, provider.StatusError,
			"no region image supplied", time.Since(start))
	}

	payload := chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: provider.BuildGradingPrompt(req)},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.ImageJPEG),
				}},
			},
		}},
		MaxTokens: p.config.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return provider.Failure(p.config.ID, req.QuestionID, provider.StatusError,
			"request encoding failed: "+err.Error(), time.Since(start))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return provider.Failure(p.config.ID, req.QuestionID, provider.StatusError,
			"request build failed: "+err.Error(), time.Since(start))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return p.classify(ctx, req.QuestionID, err, start)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return p.classify(ctx, req.QuestionID, err, start)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rlErr := apperrors.NewRateLimitError(p.config.ID).WithQuestion(req.QuestionID)
		return provider.Failure(p.config.ID, req.QuestionID, provider.StatusError,
			rlErr.Error(), time.Since(start))
	}
	if resp.StatusCode != http.StatusOK {
		return provider.Failure(p.config.ID, req.QuestionID, provider.StatusError,
			fmt.Sprintf("endpoint returned status %d: %s", resp.StatusCode, truncate(respBody, 200)),
			time.Since(start))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return provider.Failure(p.config.ID, req.QuestionID, provider.StatusMalformed,
			apperrors.NewMalformedResponseError("unparseable response").Error(), time.Since(start))
	}
	if chat.Error != nil {
		return provider.Failure(p.config.ID, req.QuestionID, provider.StatusError,
			chat.Error.Message, time.Since(start))
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return provider.Failure(p.config.ID, req.QuestionID, provider.StatusMalformed,
			apperrors.NewMalformedResponseError("unparseable response").Error(), time.Since(start))
	}

	return provider.FromResponse(p.config.ID, req.QuestionID,
		chat.Choices[0].Message.Content, req.MaxScore, time.Since(start))
}

// classify maps a transport error onto the grading error taxonomy and
// tags the assessment status from the resulting category.
func (p *Provider) classify(ctx context.Context, questionID string, err error, start time.Time) provider.Assessment {
	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() == context.DeadlineExceeded ||
		(errors.As(err, &netErr) && netErr.Timeout())

	var gerr *apperrors.GradingError
	status := provider.StatusError
	if timedOut {
		gerr = apperrors.NewTimeoutError("provider call exceeded its deadline", err)
		status = provider.StatusTimeout
	} else {
		gerr = apperrors.NewProviderError(err.Error(), err)
	}
	gerr = gerr.WithProvider(p.config.ID).WithQuestion(questionID)
	return provider.Failure(p.config.ID, questionID, status, gerr.Error(), time.Since(start))
}

func truncate(b []byte, limit int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
