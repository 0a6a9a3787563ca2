package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "1", cfg.Identity.DefaultCountryCode)
	assert.Equal(t, 0.8, cfg.Identity.ResolveThreshold)
	assert.Equal(t, 75, cfg.Identity.NameMatchFloor)

	assert.Equal(t, "memory", cfg.Store.Engine)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Store.RetryDelay)

	assert.Equal(t, 10, cfg.Retrieval.MaxItems)
	assert.Equal(t, 90, cfg.Retrieval.WindowDays)
	assert.Equal(t, 30, cfg.Retrieval.DecayWindowDays)
	assert.Equal(t, 7, cfg.Retrieval.ThreadWindowDays)
	assert.Equal(t, 200, cfg.Retrieval.FetchLimit)
	assert.Equal(t, 50, cfg.Retrieval.NeighborK)
	assert.Equal(t, 0.1, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, time.Hour, cfg.Retrieval.ProfileTTL)

	assert.Equal(t, 4096, cfg.Profile.CacheSize)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SWITCHBOARD_COUNTRY_CODE", "44")
	t.Setenv("SWITCHBOARD_RESOLVE_THRESHOLD", "0.9")
	t.Setenv("SWITCHBOARD_STORE_ENGINE", "sqlite")
	t.Setenv("SWITCHBOARD_SQLITE_PATH", "/tmp/test.db")
	t.Setenv("SWITCHBOARD_STORE_TIMEOUT", "10s")
	t.Setenv("SWITCHBOARD_MAX_ITEMS", "25")
	t.Setenv("SWITCHBOARD_PROFILE_TTL", "30m")

	cfg := LoadConfig()
	assert.Equal(t, "44", cfg.Identity.DefaultCountryCode)
	assert.Equal(t, 0.9, cfg.Identity.ResolveThreshold)
	assert.Equal(t, "sqlite", cfg.Store.Engine)
	assert.Equal(t, "/tmp/test.db", cfg.Store.SQLitePath)
	assert.Equal(t, 10*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 25, cfg.Retrieval.MaxItems)
	assert.Equal(t, 30*time.Minute, cfg.Retrieval.ProfileTTL)
}

func TestLoadConfigIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("SWITCHBOARD_MAX_ITEMS", "not-a-number")
	t.Setenv("SWITCHBOARD_RESOLVE_THRESHOLD", "lots")
	t.Setenv("SWITCHBOARD_STORE_TIMEOUT", "soon")

	cfg := LoadConfig()
	assert.Equal(t, 10, cfg.Retrieval.MaxItems)
	assert.Equal(t, 0.8, cfg.Identity.ResolveThreshold)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
}
