package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/common"
)

// Payload is the closed set of kind-specific entity documents.
type Payload interface {
	Kind() EntityKind
	EntityID() string
}

// TemplatePayload is a report template.
type TemplatePayload struct {
	TemplateID    string          `json:"template_id" validate:"required,max=128"`
	Title         string          `json:"title" validate:"required,max=512"`
	Modality      string          `json:"modality,omitempty" validate:"max=20"`
	StructureJSON json.RawMessage `json:"structure_json,omitempty"`
	Version       int             `json:"version,omitempty" validate:"min=0"`
	SortOrder     int             `json:"sort_order,omitempty"`
}

func (TemplatePayload) Kind() EntityKind   { return KindTemplates }
func (p TemplatePayload) EntityID() string { return p.TemplateID }

// SentencePayload is a reusable smart sentence.
type SentencePayload struct {
	FraseID   string          `json:"frase_id" validate:"required,max=128"`
	Modality  string          `json:"modality,omitempty" validate:"max=20"`
	Text      string          `json:"text" validate:"required"`
	Variables json.RawMessage `json:"variables,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
}

func (SentencePayload) Kind() EntityKind   { return KindSentences }
func (p SentencePayload) EntityID() string { return p.FraseID }

// FindingPayload is a catalogued radiology finding.
type FindingPayload struct {
	FindingID   string `json:"finding_id" validate:"required,max=128"`
	Modality    string `json:"modality,omitempty" validate:"max=20"`
	Description string `json:"description" validate:"required"`
	ReadyPhrase string `json:"ready_phrase,omitempty"`
}

func (FindingPayload) Kind() EntityKind   { return KindFindings }
func (p FindingPayload) EntityID() string { return p.FindingID }

// Validator is satisfied by validation.ValidateStruct adapters; kept as a
// func so this package stays free of the validator import.
type Validator func(any) error

// DecodePayload parses e.Payload into the struct matching e.Kind, runs
// validate on it and checks the payload id against e.ID.
func DecodePayload(e Entity, validate Validator) (Payload, error) {
	var p Payload
	switch e.Kind {
	case KindTemplates:
		var v TemplatePayload
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", common.ErrInvalidPayload, e.Kind, e.ID, err)
		}
		p = v
	case KindSentences:
		var v SentencePayload
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", common.ErrInvalidPayload, e.Kind, e.ID, err)
		}
		p = v
	case KindFindings:
		var v FindingPayload
		if err := json.Unmarshal(e.Payload, &v); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", common.ErrInvalidPayload, e.Kind, e.ID, err)
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownEntityKind, e.Kind)
	}

	if validate != nil {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", common.ErrInvalidPayload, e.Kind, e.ID, err)
		}
	}
	if p.EntityID() != e.ID {
		return nil, fmt.Errorf("%w: %s/%s: payload id %q", common.ErrInvalidPayload, e.Kind, e.ID, p.EntityID())
	}
	return p, nil
}

// Preferences are per-user UI settings synced through push and /v1/prefs.
type Preferences struct {
	UserID            string          `json:"user_id"`
	FavoriteTemplates []string        `json:"favorite_templates" validate:"omitempty,max=500,dive,uuid"`
	FavoriteSentences []string        `json:"favorite_sentences" validate:"omitempty,max=1000,dive,uuid"`
	DarkMode          bool            `json:"dark_mode"`
	VoiceName         *string         `json:"voice_name,omitempty" validate:"omitempty,max=128"`
	VoiceRate         float64         `json:"voice_rate" validate:"gte=0.5,lte=2"`
	StylePrefs        json.RawMessage `json:"style_prefs,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at,omitempty"`
}

// DefaultPreferences is served when a user has never stored preferences.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:            userID,
		FavoriteTemplates: []string{},
		FavoriteSentences: []string{},
		DarkMode:          true,
		VoiceRate:         1.0,
	}
}

// UsageEvent records that a user generated a report from a template.
type UsageEvent struct {
	TemplateID   *string         `json:"template_id,omitempty" validate:"omitempty,uuid"`
	FrasesUsadas []string        `json:"frases_usadas" validate:"omitempty,max=1000,dive,uuid"`
	Modality     *string         `json:"modality,omitempty" validate:"omitempty,min=1,max=20"`
	Action       string          `json:"action" validate:"min=2,max=20"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// Normalize fills defaults the way the API expects them.
func (u *UsageEvent) Normalize() {
	if u.Action == "" {
		u.Action = "generate"
	}
	if u.FrasesUsadas == nil {
		u.FrasesUsadas = []string{}
	}
	if len(u.Metadata) == 0 {
		u.Metadata = json.RawMessage(`{}`)
	}
}
