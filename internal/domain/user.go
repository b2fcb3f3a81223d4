// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxUserIDLen      = 128
	MaxDisplayNameLen = 64
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

// Identity is what the identity provider vouches for. It is bound to a
// connection for the connection's whole lifetime.
type Identity struct {
	ID          UserID `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
// An empty display name falls back to the email's local part, then to the id.
func NewIdentity(id, displayName, email string) (*Identity, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	u := &Identity{ID: UserID(id), Email: email}
	u.SetDisplayName(displayName)
	return u, nil
}

// SetDisplayName trims and clamps the name; never leaves it empty.
func (u *Identity) SetDisplayName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		if at := strings.IndexByte(u.Email, '@'); at > 0 {
			name = u.Email[:at]
		} else {
			name = string(u.ID)
		}
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		name = string([]rune(name)[:MaxDisplayNameLen])
	}
	u.DisplayName = name
}
