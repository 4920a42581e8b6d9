package session

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/fastygo/portal/domain"
)

// PersistVersion is bumped whenever the persisted document layout changes.
// Documents written under another version are ignored on rehydration.
const PersistVersion = 1

// PersistConfig selects which session fields survive a restart and where they live.
type PersistConfig struct {
	Key       string
	Whitelist []string
}

// DefaultPersistConfig persists only the user under the "root" key.
func DefaultPersistConfig() PersistConfig {
	return PersistConfig{
		Key:       "root",
		Whitelist: []string{domain.FieldUser},
	}
}

func (p PersistConfig) allows(field string) bool {
	return slices.Contains(p.Whitelist, field)
}

func (p PersistConfig) touches(cmd Command) bool {
	for _, f := range cmd.Fields() {
		if p.allows(f) {
			return true
		}
	}
	return false
}

type persistMeta struct {
	Version    int  `json:"version"`
	Rehydrated bool `json:"rehydrated"`
}

type persistedDoc struct {
	User       *domain.User `json:"user,omitempty"`
	Token      *string      `json:"token,omitempty"`
	IsLoggedIn *bool        `json:"isLoggedIn,omitempty"`
	Persist    persistMeta  `json:"_persist"`
}

func (p PersistConfig) encode(s domain.SessionState) ([]byte, error) {
	doc := persistedDoc{Persist: persistMeta{Version: PersistVersion, Rehydrated: true}}
	if p.allows(domain.FieldUser) {
		doc.User = s.User
	}
	if p.allows(domain.FieldToken) && s.Token != "" {
		token := s.Token
		doc.Token = &token
	}
	if p.allows(domain.FieldIsLoggedIn) {
		flag := s.LoginFlag
		doc.IsLoggedIn = &flag
	}
	return json.Marshal(doc)
}

// decode merges the whitelisted fields of a persisted document into s.
// Fields outside the whitelist are ignored even if present.
func (p PersistConfig) decode(data []byte, s domain.SessionState) (domain.SessionState, error) {
	var doc persistedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return s, domain.WrapError(domain.ErrCodeMalformed, "persisted session state", err)
	}
	if doc.Persist.Version != PersistVersion {
		return s, domain.NewError(domain.ErrCodeMalformed,
			fmt.Sprintf("persisted session state version %d, want %d", doc.Persist.Version, PersistVersion))
	}
	if p.allows(domain.FieldUser) && doc.User != nil {
		s.User = doc.User
	}
	if p.allows(domain.FieldToken) && doc.Token != nil {
		s.Token = *doc.Token
	}
	if p.allows(domain.FieldIsLoggedIn) && doc.IsLoggedIn != nil {
		s.LoginFlag = *doc.IsLoggedIn
	}
	return s, nil
}
