// Package gemini implements the provider capability on Google's Gemini
// vision models via the generative-ai-go SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	apperrors "github.com/paperscore/paperscore/internal/errors"
	"github.com/paperscore/paperscore/internal/provider"
)

// Provider grades question regions through a Gemini multimodal model.
type Provider struct {
	id     string
	apiKey string
	model  string
	opts   []option.ClientOption
}

// New creates a Gemini-backed provider. Extra client options allow
// routing through a proxy endpoint.
func New(id, apiKey, model string, opts ...option.ClientOption) *Provider {
	return &Provider{
		id:     strings.TrimSpace(id),
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		opts:   opts,
	}
}

// ID returns the provider identifier used in assessments and metrics.
func (p *Provider) ID() string { return p.id }

// Available reports whether a credential is configured.
func (p *Provider) Available() bool { return p.apiKey != "" }

// Assess grades one region image against its rubric entry. Every path
// terminates in an Assessment value.
func (p *Provider) Assess(ctx context.Context, req provider.Request) (out provider.Assessment) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = provider.Failure(p.id, req.QuestionID, provider.StatusError,
				fmt.Sprintf("provider panic: %v", r), time.Since(start))
		}
	}()

	if p.apiKey == "" {
		return provider.Failure(p.id, req.QuestionID, provider.StatusError,
			"API key not configured", time.Since(start))
	}
	if len(req.ImageJPEG) == 0 {
		return provider.Failure(p.id, req.QuestionID, provider.StatusError,
			"no region image supplied", time.Since(start))
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(p.apiKey)}, p.opts...)
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return p.classify(ctx, req.QuestionID, err, start)
	}
	defer client.Close()

	model := client.GenerativeModel(p.model)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	parts := []genai.Part{
		genai.Text(provider.BuildGradingPrompt(req)),
		&genai.Blob{MIMEType: "image/jpeg", Data: req.ImageJPEG},
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return p.classify(ctx, req.QuestionID, err, start)
	}

	text := firstText(resp)
	if text == "" {
		return provider.Failure(p.id, req.QuestionID, provider.StatusMalformed,
			apperrors.NewMalformedResponseError("unparseable response").Error(), time.Since(start))
	}
	return provider.FromResponse(p.id, req.QuestionID, text, req.MaxScore, time.Since(start))
}

// classify maps an SDK error onto the grading error taxonomy and tags
// the assessment status from the resulting category.
func (p *Provider) classify(ctx context.Context, questionID string, err error, start time.Time) provider.Assessment {
	var gerr *apperrors.GradingError
	status := provider.StatusError
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		gerr = apperrors.NewTimeoutError("provider call exceeded its deadline", err)
		status = provider.StatusTimeout
	} else {
		gerr = apperrors.NewProviderError(err.Error(), err)
	}
	gerr = gerr.WithProvider(p.id).WithQuestion(questionID)
	return provider.Failure(p.id, questionID, status, gerr.Error(), time.Since(start))
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func ptrFloat32(v float32) *float32 { return &v }
