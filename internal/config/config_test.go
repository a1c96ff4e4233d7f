package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("SUBSTACK_URL", "https://example.substack.com/")

	cfg := FromEnv()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "https://example.substack.com", cfg.SubstackURL)
	assert.Equal(t, "https://example.substack.com/feed", cfg.FeedURL())
	assert.Equal(t, 300*time.Second, cfg.ListingCacheTTL)
	assert.Equal(t, time.Hour, cfg.AnalyticsTTL)
	assert.Equal(t, RetentionKeep, cfg.RetentionPolicy)
	assert.True(t, cfg.SyncOnStart)
	assert.False(t, cfg.R2Enabled())
	require.NoError(t, cfg.Validate())
}

func TestDurationAcceptsPlainSeconds(t *testing.T) {
	t.Setenv("CACHE_TTL_LISTING", "120")
	t.Setenv("CACHE_TTL_ANALYTICS", "2h")

	cfg := FromEnv()

	assert.Equal(t, 120*time.Second, cfg.ListingCacheTTL)
	assert.Equal(t, 2*time.Hour, cfg.AnalyticsTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing substack url", func(c *Config) { c.SubstackURL = "" }},
		{"relative substack url", func(c *Config) { c.SubstackURL = "example.com" }},
		{"bad retention", func(c *Config) { c.RetentionPolicy = "sometimes" }},
		{"zero concurrency", func(c *Config) { c.SyncConcurrency = 0 }},
		{"zero ttl", func(c *Config) { c.ListingCacheTTL = 0 }},
		{"partial r2", func(c *Config) { c.R2Endpoint = "https://r2.example.com" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SUBSTACK_URL", "https://example.substack.com")
			cfg := FromEnv()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
