package models

// DeltaRequest is the body of POST /v1/sync/delta.
type DeltaRequest struct {
	Since    string       `json:"since,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Entities []EntityKind `json:"entities,omitempty" validate:"omitempty,max=3,dive,oneof=templates smart_sentences findings"`
}

// DeltaResponse carries every change and tombstone after the requested
// cursor. HasMore is set when the tombstone page was truncated.
type DeltaResponse struct {
	Changes   []Entity    `json:"changes"`
	Deleted   []Tombstone `json:"deleted"`
	NextSince string      `json:"nextSince"`
	HasMore   bool        `json:"hasMore,omitempty"`
}

// PushRequest is the body of POST /v1/sync/push.
type PushRequest struct {
	Ops []Operation `json:"ops" validate:"required,max=500,dive"`
}

// PushResponse lists the op ids applied by this call only.
type PushResponse struct {
	Applied []string `json:"applied"`
}

// PullResponse is the legacy operation-log feed.
type PullResponse struct {
	Changes   []LogEntry `json:"changes"`
	NextSince string     `json:"nextSince"`
	HasMore   bool       `json:"hasMore,omitempty"`
}

// TokenResponse is returned by the refresh endpoint.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// RefreshRequest is the optional body of POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// DataEnvelope wraps read endpoint payloads.
type DataEnvelope[T any] struct {
	Data T `json:"data"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error         string         `json:"error"`
	Message       string         `json:"message,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}
