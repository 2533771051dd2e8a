// Package ratelimit enforces per-provider request budgets. The token
// buckets are the only mutable state shared across concurrent grading
// tasks; everything else is task-owned.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// Config is the request budget for one provider.
type Config struct {
	RequestsPerMinute int
	Burst             int
}

// DefaultConfig returns a conservative budget suitable for most hosted
// VLM endpoints.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Burst:             5,
	}
}

func (c Config) limiter() *rate.Limiter {
	burst := c.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(c.RequestsPerMinute)/60.0), burst)
}

// ProviderLimiter holds one token bucket per provider id. The cap is
// global per provider, not per paper: concurrent sessions share the same
// bucket.
type ProviderLimiter struct {
	mu           sync.RWMutex
	limiters     map[string]*rate.Limiter
	defaultConf  Config
	providerConf map[string]Config
}

// NewProviderLimiter creates a limiter with the given default budget.
func NewProviderLimiter(defaultConf Config) *ProviderLimiter {
	if defaultConf.RequestsPerMinute <= 0 {
		defaultConf = DefaultConfig()
	}
	return &ProviderLimiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultConf:  defaultConf,
		providerConf: make(map[string]Config),
	}
}

// Configure sets a provider-specific budget. Takes effect for buckets
// created afterwards; existing buckets are replaced.
func (pl *ProviderLimiter) Configure(providerID string, conf Config) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.providerConf[providerID] = conf
	pl.limiters[providerID] = conf.limiter()
	slog.Debug("provider rate budget configured",
		"provider", providerID,
		"rpm", conf.RequestsPerMinute,
		"burst", conf.Burst,
	)
}

// Wait blocks until the provider's bucket grants a token or the context
// is done. Called before every provider attempt.
func (pl *ProviderLimiter) Wait(ctx context.Context, providerID string) error {
	return pl.bucket(providerID).Wait(ctx)
}

// Allow reports whether a token is immediately available, consuming it
// when so.
func (pl *ProviderLimiter) Allow(providerID string) bool {
	return pl.bucket(providerID).Allow()
}

func (pl *ProviderLimiter) bucket(providerID string) *rate.Limiter {
	pl.mu.RLock()
	limiter, ok := pl.limiters[providerID]
	pl.mu.RUnlock()
	if ok {
		return limiter
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()
	if limiter, ok = pl.limiters[providerID]; ok {
		return limiter
	}
	conf, ok := pl.providerConf[providerID]
	if !ok {
		conf = pl.defaultConf
	}
	limiter = conf.limiter()
	pl.limiters[providerID] = limiter
	return limiter
}
