// Package models holds the wire and domain types exchanged between the sync
// client and the API server.
package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/common"
)

// EntityKind names a server-owned reference collection.
type EntityKind string

const (
	KindTemplates EntityKind = "templates"
	KindSentences EntityKind = "smart_sentences"
	KindFindings  EntityKind = "findings"

	// KindPreferences is a local-only collection. The delta endpoint never
	// serves it.
	KindPreferences EntityKind = "prefs"
)

// AllKinds is the default set requested by a delta pull.
var AllKinds = []EntityKind{KindTemplates, KindSentences, KindFindings}

func (k EntityKind) Valid() bool {
	switch k {
	case KindTemplates, KindSentences, KindFindings:
		return true
	}
	return false
}

// ParseEntityKind accepts the wire name of a kind.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownEntityKind, s)
	}
	return k, nil
}

// NormalizeKinds drops duplicates and falls back to AllKinds for an empty set.
func NormalizeKinds(kinds []EntityKind) ([]EntityKind, error) {
	if len(kinds) == 0 {
		return append([]EntityKind(nil), AllKinds...), nil
	}
	seen := make(map[EntityKind]struct{}, len(kinds))
	out := make([]EntityKind, 0, len(kinds))
	for _, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %q", common.ErrUnknownEntityKind, k)
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}

// KindStrings converts kinds to plain strings for SQL array parameters.
func KindStrings(kinds []EntityKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// Entity is one row of a reference collection. Payload is the kind-specific
// document; see DecodePayload.
type Entity struct {
	Kind      EntityKind      `json:"entity_kind"`
	ID        string          `json:"entity_id"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Key identifies an entity within the Local Store.
type Key struct {
	Kind EntityKind
	ID   string
}

func (e Entity) Key() Key { return Key{Kind: e.Kind, ID: e.ID} }

// Tombstone marks an entity as deleted on the server.
type Tombstone struct {
	Kind      EntityKind `json:"entity_kind"`
	ID        string     `json:"entity_id"`
	DeletedAt time.Time  `json:"deleted_at"`
}

func (t Tombstone) Key() Key { return Key{Kind: t.Kind, ID: t.ID} }
