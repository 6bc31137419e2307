// Package common defines shared constants and sentinel errors used across
// client and server layers of radsync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Request validation errors.
	ErrInvalidCursor     = errors.New("invalid cursor")
	ErrUnknownEntityKind = errors.New("unknown entity kind")
	ErrInvalidPayload    = errors.New("invalid payload")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Push batch was rolled back; none of its ops were recorded.
	ErrPushFailed = errors.New("push failed")
)
