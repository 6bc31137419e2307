package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJson(t *testing.T) {
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })

	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{
		"database_dsn": "postgres://json",
		"refresh_token_validity_duration": "48h",
		"cookie_secure": true,
		"side_channel_rate_per_sec": 2.5,
		"s3_bucket": "archive",
		"templates_cache_ttl": "10m"
	}`), 0o600))
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"addr":`), 0o600))

	t.Run("overlay", func(t *testing.T) {
		os.Args = []string{"server", "-config", good}
		c := &Config{}
		c.LoadDefaults()
		parseJson(c)

		assert.Equal(t, "postgres://json", c.DatabaseDSN)
		assert.Equal(t, 48*time.Hour, c.RefreshTokenValidityDuration)
		assert.True(t, c.CookieSecure)
		assert.Equal(t, 2.5, c.SideChannelRatePerSec)
		assert.Equal(t, "archive", c.S3Bucket)
		assert.Equal(t, 10*time.Minute, c.TemplatesCacheTTL)
		assert.Equal(t, ":8787", c.Addr, "absent keys keep defaults")
	})

	t.Run("no flag", func(t *testing.T) {
		os.Args = []string{"server"}
		c := &Config{Addr: "x"}
		parseJson(c)
		assert.Equal(t, "x", c.Addr)
	})

	t.Run("missing file", func(t *testing.T) {
		os.Args = []string{"server", "-c", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("broken file", func(t *testing.T) {
		os.Args = []string{"server", "-c", broken}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
