// Package common contains shared constants and sentinel errors used across
// radsync components.
package common

// Header names shared by the client transport and the HTTP API.
const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	IfNoneMatchHeader   = "If-None-Match"
	ETagHeader          = "ETag"
	CorrelationIDHeader = "X-Correlation-Id"
	CacheStatusHeader   = "X-Cache"
)

// RefreshCookieName carries the refresh token when the client relies on a cookie jar.
const RefreshCookieName = "rr_refresh"

// CursorEpoch is the sync cursor used before the first successful pull.
const CursorEpoch = "1970-01-01T00:00:00Z"

// Metadata keys persisted in the client Local Store.
const (
	CursorMetadataPrefix  = "sync.cursor."
	ValidatorMetadataKey  = "sync.validators"
	RefreshTokenMetaKey   = "auth.refresh_token"
	AccessTokenMetaKey    = "auth.access_token"
	DeviceIDMetadataKey   = "device.id"
	LastOnlineMetadataKey = "sync.last_online"
)
