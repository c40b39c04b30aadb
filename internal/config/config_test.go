package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Pagination.PageSize)
	assert.Equal(t, 15, cfg.Enrichment.AddressPrefixLen)
	assert.Equal(t, 2, cfg.Enrichment.MaxAttempts)
	assert.Equal(t, "auction-images", cfg.Storage.Bucket)
	assert.Equal(t, "ko-KR", cfg.Browser.Locale)
	assert.Equal(t, "Asia/Seoul", cfg.Browser.TimezoneID)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.PollInterval)
	assert.Equal(t, 90, cfg.Retention.Days)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENRICH_ADDRESS_PREFIX_LEN", "20")
	t.Setenv("MAX_ITEMS", "120")
	t.Setenv("CAPTURE_POLL_INTERVAL", "250ms")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Enrichment.AddressPrefixLen)
	assert.Equal(t, 120, cfg.Pagination.MaxItems)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.PollInterval)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 5432, cfg.Database.Port, "invalid ints fall back to the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero polls", func(c *Config) { c.Capture.Polls = 0 }, "CAPTURE_POLLS"},
		{"zero page size", func(c *Config) { c.Pagination.PageSize = 0 }, "PAGE_SIZE"},
		{"zero budget", func(c *Config) { c.Pagination.MaxItems = 0 }, "MAX_ITEMS"},
		{"zero prefix", func(c *Config) { c.Enrichment.AddressPrefixLen = 0 }, "ENRICH_ADDRESS_PREFIX_LEN"},
		{"inverted cascade delay", func(c *Config) {
			c.Timing.CascadeMin = 2 * time.Second
			c.Timing.CascadeMax = time.Second
		}, "TIMING_CASCADE"},
		{"missing bucket", func(c *Config) { c.Storage.Bucket = "" }, "STORAGE_BUCKET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
