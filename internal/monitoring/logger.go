package monitoring

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger provides structured logging with grading-domain helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger writing to stdout.
func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})
	return &Logger{Logger: slog.New(handler)}
}

// ProviderCall logs one terminal provider attempt.
func (l *Logger) ProviderCall(providerID, questionID, status string, attempt int, duration time.Duration) {
	l.Info("provider call",
		"provider", providerID,
		"question", questionID,
		"status", status,
		"attempt", attempt,
		"duration_ms", duration.Milliseconds(),
	)
}

// QuestionGraded logs one consolidated question outcome.
func (l *Logger) QuestionGraded(questionID string, finalScore, maxScore, confidence float64, disagreement bool, voters int) {
	l.Info("question graded",
		"question", questionID,
		"final_score", finalScore,
		"max_score", maxScore,
		"confidence", confidence,
		"disagreement", disagreement,
		"voters", voters,
	)
}

// PaperGraded logs session-level completion.
func (l *Logger) PaperGraded(paperID string, totalScore, totalMax float64, questions int, duration time.Duration) {
	l.Info("paper graded",
		"paper", paperID,
		"total_score", totalScore,
		"total_max", totalMax,
		"questions", questions,
		"duration_ms", duration.Milliseconds(),
	)
}

// MatchFallback logs that positional matching took over.
func (l *Logger) MatchFallback(paperID string, cause error, regions, rubricEntries int) {
	l.Warn("number matching unresolvable, using positional fallback",
		"paper", paperID,
		"error", cause.Error(),
		"regions", regions,
		"rubric_entries", rubricEntries,
	)
}

// Segmentation logs the structure-analysis outcome for a page.
func (l *Logger) Segmentation(paperID string, columns, regions int, lowConfidence bool) {
	level := slog.LevelInfo
	if lowConfidence {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "page segmented",
		"paper", paperID,
		"columns", columns,
		"regions", regions,
		"low_confidence", lowConfidence,
	)
}
