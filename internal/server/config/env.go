package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// parseEnv overlays config with RADSYNC_* environment variables. Values from a
// .env file are visible here once the caller ran godotenv.Load.
func parseEnv(config *Config) {
	envString(&config.Addr, "RADSYNC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.SecretKey, "JWT_SECRET")
	envString(&config.AllowedOrigin, "ALLOWED_ORIGIN")
	envString(&config.LogLevel, "RADSYNC_LOG_LEVEL")
	envString(&config.MirrorURL, "MIRROR_URL")
	envString(&config.MirrorKey, "MIRROR_KEY")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")

	envDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL")
	envDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_TTL")
	envDuration(&config.TemplatesCacheTTL, "TEMPLATES_CACHE_TTL")
	envDuration(&config.SentencesCacheTTL, "SENTENCES_CACHE_TTL")

	envInt(&config.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
	envInt(&config.TombstonePageSize, "TOMBSTONE_PAGE_SIZE")
	envInt(&config.SideChannelWorkers, "SIDECHANNEL_WORKERS")
	envInt(&config.SideChannelRetries, "SIDECHANNEL_RETRIES")

	if v, ok := os.LookupEnv("COOKIE_SECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Errorf("COOKIE_SECURE: %w", err))
		}
		config.CookieSecure = b
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = n
}

func envDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s: %w", key, err))
	}
	*dst = d
}
