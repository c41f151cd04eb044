// Package profile defines the provider-agnostic user profile produced by
// the field mappers in the provider registry. A Profile is built fresh on
// every callback and never persisted as-is; only its serialized snapshot is
// stored for diagnostics.
package profile

import (
	"encoding/json"
	"strings"
)

// Profile is the canonical, normalized shape of a remote user profile.
type Profile struct {
	// ID is the provider's stable user identifier. Always present.
	ID string `json:"id"`

	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	PictureURL  string `json:"picture_url,omitempty"`
	Locale      string `json:"locale,omitempty"`

	// Extra keeps provider attributes that have no canonical slot.
	Extra map[string]any `json:"extra,omitempty"`
}

// FullName compone un nombre presentable a partir de las partes disponibles.
func (p Profile) FullName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	return name
}

// Snapshot serializes the profile for the diagnostics column.
func (p Profile) Snapshot() []byte {
	b, _ := json.Marshal(p)
	return b
}
