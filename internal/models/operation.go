package models

import (
	"time"

	"github.com/goccy/go-json"
)

// OpKind names the target of a client operation. It is wider than
// EntityKind because clients also push usage events and preferences.
type OpKind string

const (
	OpKindTemplates   OpKind = "templates"
	OpKindSentences   OpKind = "smart_sentences"
	OpKindFindings    OpKind = "findings"
	OpKindUsage       OpKind = "usage_history"
	OpKindPreferences OpKind = "user_preferences"
)

// OpType is the mutation an operation describes.
type OpType string

const (
	OpInsert OpType = "insert"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// Operation is an immutable client-originated mutation keyed by OpID.
type Operation struct {
	OpID     string          `json:"op_id" validate:"required,max=128"`
	Kind     OpKind          `json:"entity_kind" validate:"required,oneof=templates smart_sentences findings usage_history user_preferences"`
	EntityID string          `json:"entity_id,omitempty" validate:"max=256"`
	Type     OpType          `json:"op_type" validate:"required,oneof=insert update delete"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	DeviceID string          `json:"device_id,omitempty" validate:"max=128"`
	ActorID  string          `json:"actor_id,omitempty" validate:"max=128"`
	ClientTS time.Time       `json:"client_ts"`
}

// LogEntry is a row of the server operation log as served by the legacy pull.
type LogEntry struct {
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}
