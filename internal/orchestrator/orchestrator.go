// Package orchestrator drives concurrent provider calls across the
// questions of a paper: bounded fan-out, per-provider retry, per-question
// join, and consolidation through the consensus engine.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/paperscore/paperscore/internal/consensus"
	apperrors "github.com/paperscore/paperscore/internal/errors"
	"github.com/paperscore/paperscore/internal/imaging"
	"github.com/paperscore/paperscore/internal/match"
	"github.com/paperscore/paperscore/internal/monitoring"
	"github.com/paperscore/paperscore/internal/provider"
	"github.com/paperscore/paperscore/internal/ratelimit"
	"github.com/paperscore/paperscore/internal/resilience"
	"github.com/paperscore/paperscore/internal/structure"
)

// Policy bundles the orchestration tunables: the global concurrency cap,
// per-attempt deadlines, and the consensus constants.
type Policy struct {
	// MaxConcurrent caps in-flight provider calls across all questions.
	MaxConcurrent int
	// AttemptTimeout is the deadline budget for a first attempt.
	AttemptTimeout time.Duration
	// RetryTimeout is the shorter budget for the single retry after a
	// timeout or transport failure. A second failure is final.
	RetryTimeout time.Duration
	// Consensus holds the consolidation constants.
	Consensus consensus.Options
	// Imaging controls region crop preparation.
	Imaging imaging.Options
}

// DefaultPolicy returns the production orchestration settings.
func DefaultPolicy() Policy {
	return Policy{
		MaxConcurrent:  8,
		AttemptTimeout: 90 * time.Second,
		RetryTimeout:   45 * time.Second,
		Consensus:      consensus.DefaultOptions(),
		Imaging:        imaging.DefaultOptions(),
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = d.MaxConcurrent
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	if p.RetryTimeout <= 0 {
		p.RetryTimeout = d.RetryTimeout
	}
	return p
}

// Orchestrator fans grading work out to the configured providers.
type Orchestrator struct {
	providers []provider.Provider
	limiter   *ratelimit.ProviderLimiter
	logger    *monitoring.Logger
	metrics   *monitoring.Metrics
	policy    Policy
}

// New creates an orchestrator. A nil limiter disables rate limiting; nil
// logger and metrics default to fresh instances.
func New(providers []provider.Provider, limiter *ratelimit.ProviderLimiter, logger *monitoring.Logger, metrics *monitoring.Metrics, policy Policy) *Orchestrator {
	if logger == nil {
		logger = monitoring.NewLogger()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	return &Orchestrator{
		providers: providers,
		limiter:   limiter,
		logger:    logger,
		metrics:   metrics,
		policy:    policy.withDefaults(),
	}
}

// Progress is called after each question reaches its terminal result.
type Progress func(done, total int)

// GradePaper grades every matched question concurrently and returns one
// scoring result per question plus one per rubric entry that had no
// region on the page. Question-scoped failures never abort the paper.
//
// Cancelling ctx stops issuing new provider calls; calls already in
// flight finish or time out on their own budget so partial results stay
// well-formed.
func (o *Orchestrator) GradePaper(ctx context.Context, page structure.Page, matched match.Result, progress Progress) []consensus.ScoringResult {
	total := len(matched.Matched) + len(matched.MissingAnswers)
	results := make([]consensus.ScoringResult, total)

	// Bounded worker pool: one task per (question, provider) pair.
	tasks := make(chan func())
	var workers sync.WaitGroup
	for i := 0; i < o.policy.MaxConcurrent; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for task := range tasks {
				task()
			}
		}()
	}

	var questions sync.WaitGroup
	done := 0
	var doneMu sync.Mutex
	reportDone := func() {
		if progress == nil {
			return
		}
		doneMu.Lock()
		done++
		d := done
		doneMu.Unlock()
		progress(d, total)
	}

	for i, mq := range matched.Matched {
		i, mq := i, mq

		if mq.Unmatched() {
			// No rubric entry: score withheld, no provider calls.
			results[i] = unmatchedResult(mq.Region)
			reportDone()
			continue
		}

		questions.Add(1)
		go func() {
			defer questions.Done()
			results[i] = o.gradeQuestion(ctx, page, mq, tasks)
			reportDone()
		}()
	}

	questions.Wait()
	close(tasks)
	workers.Wait()

	// Rubric entries with no region on the page still get a result so
	// the session reports one ScoringResult per entry.
	for j, entry := range matched.MissingAnswers {
		results[len(matched.Matched)+j] = consensus.ScoringResult{
			QuestionID: entry.QuestionID,
			MaxScore:   entry.MaxScore,
			Rationale:  "no answer region detected for this question",
		}
		reportDone()
	}

	return results
}

// gradeQuestion fans one question out to every provider, waits for all
// terminal statuses, and consolidates. The join barrier is the WaitGroup:
// consensus never runs on a partial assessment set.
func (o *Orchestrator) gradeQuestion(ctx context.Context, page structure.Page, mq match.MatchedQuestion, tasks chan<- func()) consensus.ScoringResult {
	entry := *mq.Entry
	req := provider.Request{
		QuestionID:          entry.QuestionID,
		MaxScore:            entry.MaxScore,
		AnswerSpec:          entry.AnswerSpec,
		LowConfidenceRegion: mq.Region.LowConfidence,
	}

	imageJPEG, err := imaging.RegionJPEG(page, mq.Region.Box, o.policy.Imaging)
	if err != nil {
		o.logger.Warn("region image unavailable, providers skipped",
			"question", entry.QuestionID, "error", err)
		return consensus.Consolidate(entry.QuestionID, entry.MaxScore, nil, mq.Region.LowConfidence, o.policy.Consensus)
	}
	req.ImageJPEG = imageJPEG

	assessments := make([]provider.Assessment, len(o.providers))
	var wg sync.WaitGroup
	for i, p := range o.providers {
		i, p := i, p
		wg.Add(1)
		tasks <- func() {
			defer wg.Done()
			assessments[i] = o.assessWithRetry(ctx, p, req)
		}
	}
	wg.Wait()

	result := consensus.Consolidate(entry.QuestionID, entry.MaxScore, assessments, mq.Region.LowConfidence, o.policy.Consensus)

	o.metrics.IncrementQuestions()
	if result.Disagreement {
		o.metrics.IncrementDisagreements()
	}
	if len(result.Assessments) == 0 {
		o.metrics.IncrementZeroVoter()
		o.logger.Warn("no usable voters, scoring zero",
			"question", entry.QuestionID,
			"error", apperrors.NewNoVotersError(entry.QuestionID).Error())
	}
	o.logger.QuestionGraded(entry.QuestionID, result.FinalScore, entry.MaxScore, result.Confidence, result.Disagreement, len(result.Assessments))

	return result
}

// assessWithRetry runs the bounded attempt sequence for one provider:
// first attempt on the full budget, then a single retry on a shorter one
// after a timeout or transport failure. Malformed responses and successes
// are terminal immediately.
func (o *Orchestrator) assessWithRetry(ctx context.Context, p provider.Provider, req provider.Request) provider.Assessment {
	budgets := [2]time.Duration{o.policy.AttemptTimeout, o.policy.RetryTimeout}

	var last provider.Assessment
	for attempt := 0; attempt < len(budgets); attempt++ {
		// The paper-level token gates dispatch only: once a call is in
		// flight it runs to its own deadline.
		if ctx.Err() != nil {
			return provider.Failure(p.ID(), req.QuestionID, provider.StatusError, "grading canceled before dispatch", 0)
		}

		if o.limiter != nil {
			if err := o.limiter.Wait(ctx, p.ID()); err != nil {
				return provider.Failure(p.ID(), req.QuestionID, provider.StatusError, "grading canceled before dispatch", 0)
			}
		}

		callCtx, cancel := resilience.WithDeadline(context.WithoutCancel(ctx), budgets[attempt])
		start := time.Now()
		last = p.Assess(callCtx, req)
		cancel()

		duration := time.Since(start)
		o.metrics.RecordProviderCall(p.ID(), string(last.Status), duration)
		o.logger.ProviderCall(p.ID(), req.QuestionID, string(last.Status), attempt+1, duration)

		if last.Status.Terminal() {
			return last
		}
	}
	return last
}

func unmatchedResult(region structure.Region) consensus.ScoringResult {
	id := region.QuestionNumber
	if id == "" {
		id = region.ID
	}
	return consensus.ScoringResult{
		QuestionID: id,
		Rationale:  "unmatched region/no rubric entry",
	}
}
