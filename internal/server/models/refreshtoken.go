// Package models holds server-only persistence types.
package models

import "time"

// RefreshToken is a server-stored, single-use refresh credential.
type RefreshToken struct {
	UserID  string
	Token   string
	Expires time.Time
}

// Expired reports whether the token is no longer usable at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.Expires)
}
