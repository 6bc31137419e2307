package config

import (
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/flagx"
	"github.com/dmitrijs2005/radsync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Duration fields use timex.Duration, which accepts both strings such as
// "15m" and integer nanoseconds. Keys absent from the file leave the current
// value untouched.
type JsonConfig struct {
	Addr                         string          `json:"addr"`
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	AllowedOrigin                string          `json:"allowed_origin"`
	RateLimitPerMinute           int             `json:"rate_limit_per_minute"`
	TombstonePageSize            int             `json:"tombstone_page_size"`
	PullPageSize                 int             `json:"pull_page_size"`
	ShutdownTimeout              *timex.Duration `json:"shutdown_timeout"`
	CookieSecure                 *bool           `json:"cookie_secure"`
	LogLevel                     string          `json:"log_level"`
	TemplatesCacheTTL            *timex.Duration `json:"templates_cache_ttl"`
	SentencesCacheTTL            *timex.Duration `json:"sentences_cache_ttl"`
	MirrorURL                    string          `json:"mirror_url"`
	MirrorKey                    string          `json:"mirror_key"`
	S3RootUser                   string          `json:"s3_root_user"`
	S3RootPassword               string          `json:"s3_root_password"`
	S3Bucket                     string          `json:"s3_bucket"`
	S3Region                     string          `json:"s3_region"`
	S3BaseEndpoint               string          `json:"s3_base_endpoint"`
	SideChannelWorkers           int             `json:"side_channel_workers"`
	SideChannelRetries           int             `json:"side_channel_retries"`
	SideChannelQueueSize         int             `json:"side_channel_queue_size"`
	SideChannelRatePerSec        float64         `json:"side_channel_rate_per_sec"`
	SideChannelTaskTimeout       *timex.Duration `json:"side_channel_task_timeout"`
}

// parseJson loads configuration values from the JSON file named by the -c or
// -config flag into config. Without the flag nothing is loaded. A file that
// cannot be read or parsed panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.Addr, c.Addr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.AllowedOrigin, c.AllowedOrigin)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.MirrorURL, c.MirrorURL)
	setString(&config.MirrorKey, c.MirrorKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
	setDuration(&config.SideChannelTaskTimeout, c.SideChannelTaskTimeout)
	setDuration(&config.TemplatesCacheTTL, c.TemplatesCacheTTL)
	setDuration(&config.SentencesCacheTTL, c.SentencesCacheTTL)

	setInt(&config.RateLimitPerMinute, c.RateLimitPerMinute)
	setInt(&config.TombstonePageSize, c.TombstonePageSize)
	setInt(&config.PullPageSize, c.PullPageSize)
	setInt(&config.SideChannelWorkers, c.SideChannelWorkers)
	setInt(&config.SideChannelRetries, c.SideChannelRetries)
	setInt(&config.SideChannelQueueSize, c.SideChannelQueueSize)
	if c.SideChannelRatePerSec > 0 {
		config.SideChannelRatePerSec = c.SideChannelRatePerSec
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
