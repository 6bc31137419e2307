package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8787", c.Addr)
	assert.Equal(t, "secretKey", c.SecretKey)
	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 30*24*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, 200, c.RateLimitPerMinute)
	assert.Equal(t, 1000, c.TombstonePageSize)
	assert.Equal(t, 500, c.PullPageSize)
	assert.Empty(t, c.S3Bucket, "archive sink is off by default")
	assert.Empty(t, c.MirrorURL, "mirror sink is off by default")
	assert.Equal(t, 30*time.Minute, c.TemplatesCacheTTL)
	assert.Equal(t, time.Hour, c.SentencesCacheTTL)
}

func TestLoadConfig_Layering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"addr": ":9000",
		"tombstone_page_size": 50,
		"mirror_url": "http://json-mirror",
		"access_token_validity_duration": "5m"
	}`), 0o600))

	t.Setenv("MIRROR_URL", "http://env-mirror")
	t.Setenv("TOMBSTONE_PAGE_SIZE", "")

	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = []string{"server", "-c", path, "-a", ":9100", "-t", "7"}

	c := LoadConfig()
	require.NotNil(t, c)

	// флаги побеждают всё остальное
	assert.Equal(t, ":9100", c.Addr)
	assert.Equal(t, 7*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, "http://env-mirror", c.MirrorURL)
	assert.Equal(t, 50, c.TombstonePageSize)
	assert.Equal(t, 500, c.PullPageSize)
}

func TestParseEnv(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("JWT_SECRET", "s3cr3t")
	t.Setenv("REFRESH_TOKEN_TTL", "2h")
	t.Setenv("SIDECHANNEL_WORKERS", "4")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("SENTENCES_CACHE_TTL", "0s")

	c := &Config{}
	c.LoadDefaults()
	parseEnv(c)

	assert.Equal(t, "postgres://env", c.DatabaseDSN)
	assert.Equal(t, "s3cr3t", c.SecretKey)
	assert.Equal(t, 2*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, 4, c.SideChannelWorkers)
	assert.True(t, c.CookieSecure)
	assert.Zero(t, c.SentencesCacheTTL)
}

func TestParseEnv_BadValuePanics(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "lots")

	c := &Config{}
	require.Panics(t, func() { parseEnv(c) })
}
