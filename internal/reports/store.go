// Package reports persists assembled grading sessions as JSON artifacts
// and serves them back through an in-memory cache.
package reports

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paperscore/paperscore/internal/cache"
	"github.com/paperscore/paperscore/internal/session"
)

// Store writes one JSON report per graded paper under a base directory.
type Store struct {
	dir   string
	cache *cache.Cache
}

// NewStore creates the report directory if needed.
func NewStore(dir string, cacheTTL time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}
	return &Store{
		dir:   dir,
		cache: cache.New(cacheTTL),
	}, nil
}

// Close stops the cache janitor. The store holds no other resources;
// reports already on disk stay readable through a fresh store.
func (s *Store) Close() {
	s.cache.Stop()
}

// Save writes the session report to disk and refreshes the cache.
func (s *Store) Save(sess *session.GradingSession) (string, error) {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	path := s.path(sess.PaperID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	s.cache.Set(sess.PaperID, data)
	return path, nil
}

// Load returns the raw JSON report for a paper, from cache when fresh.
func (s *Store) Load(paperID string) ([]byte, error) {
	if data, ok := s.cache.Get(paperID); ok {
		return data, nil
	}

	data, err := os.ReadFile(s.path(paperID))
	if err != nil {
		return nil, err
	}
	s.cache.Set(paperID, data)
	return data, nil
}

func (s *Store) path(paperID string) string {
	// Base() strips any path separators a caller-supplied id could carry.
	return filepath.Join(s.dir, fmt.Sprintf("grading_%s.json", filepath.Base(paperID)))
}
