package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurst(t *testing.T) {
	pl := NewProviderLimiter(Config{RequestsPerMinute: 60, Burst: 2})

	assert.True(t, pl.Allow("gemini"))
	assert.True(t, pl.Allow("gemini"))
	assert.False(t, pl.Allow("gemini"))
}

func TestBucketsAreProviderScoped(t *testing.T) {
	pl := NewProviderLimiter(Config{RequestsPerMinute: 60, Burst: 1})

	require.True(t, pl.Allow("gemini"))
	assert.False(t, pl.Allow("gemini"))

	// A different provider draws from its own bucket.
	assert.True(t, pl.Allow("qwen"))
}

func TestConfigureOverridesDefault(t *testing.T) {
	pl := NewProviderLimiter(Config{RequestsPerMinute: 60, Burst: 1})
	pl.Configure("glm", Config{RequestsPerMinute: 120, Burst: 3})

	assert.True(t, pl.Allow("glm"))
	assert.True(t, pl.Allow("glm"))
	assert.True(t, pl.Allow("glm"))
	assert.False(t, pl.Allow("glm"))
}

func TestWaitHonorsCancelledContext(t *testing.T) {
	pl := NewProviderLimiter(Config{RequestsPerMinute: 1, Burst: 1})
	require.True(t, pl.Allow("gemini"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pl.Wait(ctx, "gemini")
	assert.Error(t, err)
}

func TestZeroConfigFallsBackToDefault(t *testing.T) {
	pl := NewProviderLimiter(Config{})

	// Default burst is 5.
	for i := 0; i < 5; i++ {
		assert.True(t, pl.Allow("gemini"), "token %d", i)
	}
	assert.False(t, pl.Allow("gemini"))
}
