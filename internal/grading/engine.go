// Package grading is the library surface of the engine: one call takes a
// page and a rubric and returns an assembled grading session.
package grading

import (
	"context"
	"time"

	apperrors "github.com/paperscore/paperscore/internal/errors"
	"github.com/paperscore/paperscore/internal/match"
	"github.com/paperscore/paperscore/internal/monitoring"
	"github.com/paperscore/paperscore/internal/orchestrator"
	"github.com/paperscore/paperscore/internal/provider"
	"github.com/paperscore/paperscore/internal/ratelimit"
	"github.com/paperscore/paperscore/internal/rubric"
	"github.com/paperscore/paperscore/internal/session"
	"github.com/paperscore/paperscore/internal/structure"
)

// Engine wires structure analysis, matching, orchestration and consensus
// behind one entry point. Safe for concurrent use across papers.
type Engine struct {
	providers     []provider.Provider
	limiter       *ratelimit.ProviderLimiter
	logger        *monitoring.Logger
	metrics       *monitoring.Metrics
	policy        orchestrator.Policy
	structureOpts structure.Options
}

// New creates an engine over the given providers.
func New(providers []provider.Provider, limiter *ratelimit.ProviderLimiter, logger *monitoring.Logger, metrics *monitoring.Metrics, policy orchestrator.Policy, structureOpts structure.Options) *Engine {
	if logger == nil {
		logger = monitoring.NewLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	return &Engine{
		providers:     providers,
		limiter:       limiter,
		logger:        logger,
		metrics:       metrics,
		policy:        policy,
		structureOpts: structureOpts,
	}
}

// Metrics exposes the engine's metrics for the stats surface.
func (e *Engine) Metrics() *monitoring.Metrics { return e.metrics }

// ProviderInfo describes one configured backend for availability checks.
type ProviderInfo struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
}

// Providers lists the configured backends. Backends reporting their own
// availability (credential presence) are consulted; the rest are assumed
// available.
func (e *Engine) Providers() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(e.providers))
	for _, p := range e.providers {
		available := true
		if a, ok := p.(interface{ Available() bool }); ok {
			available = a.Available()
		}
		infos = append(infos, ProviderInfo{ID: p.ID(), Available: available})
	}
	return infos
}

// GradePaper runs the full pipeline for one page. The rubric is validated
// up front; a broken rubric is the only fatal failure. Cancelling ctx
// stops dispatching provider calls while letting in-flight calls finish,
// so the returned session is well-formed even when cancelled mid-paper.
func (e *Engine) GradePaper(ctx context.Context, paperID string, page structure.Page, r rubric.Rubric, progress orchestrator.Progress) (*session.GradingSession, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	regions := structure.Analyze(page, e.structureOpts)
	lowConfidence := false
	columns := 1
	for _, region := range regions {
		if region.LowConfidence {
			lowConfidence = true
		}
		if region.Column+1 > columns {
			columns = region.Column + 1
		}
	}
	e.logger.Segmentation(paperID, columns, len(regions), lowConfidence)

	matched := match.Match(regions, r)
	if matched.Policy == match.PolicyPositional {
		ambiguity := apperrors.NewMatchAmbiguityError("question numbers could not be aligned with the rubric")
		e.logger.MatchFallback(paperID, ambiguity, len(regions), r.Len())
	}

	orch := orchestrator.New(e.providers, e.limiter, e.logger, e.metrics, e.policy)
	results := orch.GradePaper(ctx, page, matched, progress)

	sess, err := session.Assemble(paperID, r, matched, results)
	if err != nil {
		return nil, err
	}

	e.metrics.IncrementPapers()
	e.logger.PaperGraded(sess.PaperID, sess.TotalScore, sess.TotalMax, len(sess.Results), time.Since(start))
	return sess, nil
}
