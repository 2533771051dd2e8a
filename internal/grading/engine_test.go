package grading

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscore/paperscore/internal/match"
	"github.com/paperscore/paperscore/internal/orchestrator"
	"github.com/paperscore/paperscore/internal/provider"
	"github.com/paperscore/paperscore/internal/rubric"
	"github.com/paperscore/paperscore/internal/structure"
)

type stubProvider struct {
	id    string
	score float64
}

func (s *stubProvider) ID() string { return s.id }

func (s *stubProvider) Assess(_ context.Context, req provider.Request) provider.Assessment {
	score := s.score
	if score > req.MaxScore {
		score = req.MaxScore
	}
	return provider.Assessment{
		ProviderID: s.id,
		QuestionID: req.QuestionID,
		Score:      score,
		Rationale:  "stub grade",
		Status:     provider.StatusOK,
	}
}

func twoQuestionPage() structure.Page {
	tok := func(text string, x, y float64) structure.Token {
		return structure.Token{Text: text, Box: structure.Box{X: x, Y: y, W: 40, H: 20}}
	}
	return structure.Page{
		Width:  800,
		Height: 1000,
		Tokens: []structure.Token{
			tok("1.", 40, 80),
			tok("first answer", 120, 80),
			tok("2.", 40, 500),
			tok("second answer", 120, 500),
		},
		Raster: image.NewRGBA(image.Rect(0, 0, 800, 1000)),
	}
}

func testEngine(providers []provider.Provider) *Engine {
	policy := orchestrator.Policy{
		MaxConcurrent:  4,
		AttemptTimeout: time.Second,
		RetryTimeout:   500 * time.Millisecond,
	}
	return New(providers, nil, nil, nil, policy, structure.Options{})
}

func TestGradePaperEndToEnd(t *testing.T) {
	engine := testEngine([]provider.Provider{
		&stubProvider{id: "a", score: 4},
		&stubProvider{id: "b", score: 4},
	})

	r := rubric.New([]rubric.Entry{
		{QuestionID: "1", MaxScore: 10, AnswerSpec: "42"},
		{QuestionID: "2", MaxScore: 5, AnswerSpec: "7"},
	})

	sess, err := engine.GradePaper(context.Background(), "paper-1", twoQuestionPage(), r, nil)

	require.NoError(t, err)
	assert.Equal(t, "paper-1", sess.PaperID)
	assert.Equal(t, match.PolicyNumber, sess.MatchPolicy)
	require.Len(t, sess.Results, 2)
	assert.Equal(t, "1", sess.Results[0].QuestionID)
	assert.Equal(t, 4.0, sess.Results[0].FinalScore)
	assert.Equal(t, "2", sess.Results[1].QuestionID)
	assert.Equal(t, 4.0, sess.Results[1].FinalScore)
	assert.Equal(t, 8.0, sess.TotalScore)
	assert.Equal(t, 15.0, sess.TotalMax)
}

func TestGradePaperRejectsBrokenRubric(t *testing.T) {
	engine := testEngine(nil)

	_, err := engine.GradePaper(context.Background(), "p", twoQuestionPage(), rubric.Rubric{}, nil)

	require.Error(t, err)
}

func TestGradePaperMissingAnswerScoresZero(t *testing.T) {
	engine := testEngine([]provider.Provider{&stubProvider{id: "a", score: 4}})

	r := rubric.New([]rubric.Entry{
		{QuestionID: "1", MaxScore: 10},
		{QuestionID: "2", MaxScore: 5},
		{QuestionID: "3", MaxScore: 15},
	})

	sess, err := engine.GradePaper(context.Background(), "p", twoQuestionPage(), r, nil)

	require.NoError(t, err)
	require.Len(t, sess.Results, 3)
	assert.Equal(t, 0.0, sess.Results[2].FinalScore)
	assert.Equal(t, 0.0, sess.Results[2].Confidence)
	assert.Equal(t, 8.0, sess.TotalScore)
}

func TestGradePaperPositionalFallback(t *testing.T) {
	engine := testEngine([]provider.Provider{&stubProvider{id: "a", score: 3}})

	// No question markers anywhere: matching cannot resolve numbers and
	// falls back to positional alignment.
	page := structure.Page{
		Width:  800,
		Height: 1000,
		Tokens: []structure.Token{
			{Text: "an answer with no question marker", Box: structure.Box{X: 60, Y: 80, W: 400, H: 20}},
		},
		Raster: image.NewRGBA(image.Rect(0, 0, 800, 1000)),
	}
	r := rubric.New([]rubric.Entry{{QuestionID: "1", MaxScore: 10}})

	sess, err := engine.GradePaper(context.Background(), "p", page, r, nil)

	require.NoError(t, err)
	assert.Equal(t, match.PolicyPositional, sess.MatchPolicy)
	require.Len(t, sess.Results, 1)
	assert.Equal(t, "1", sess.Results[0].QuestionID)
	assert.Equal(t, 3.0, sess.Results[0].FinalScore)
}

func TestProvidersAvailability(t *testing.T) {
	engine := testEngine([]provider.Provider{&stubProvider{id: "a"}})

	infos := engine.Providers()

	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].ID)
	// Providers that do not report availability are assumed available.
	assert.True(t, infos[0].Available)
}
