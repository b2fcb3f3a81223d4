package domain

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleHost        Role = "host"
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleHost, RoleModerator, RoleParticipant:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidPayload, s)
}

// CanModerate reports whether the role may act on other participants.
func (r Role) CanModerate() bool { return r == RoleHost || r == RoleModerator }

// PresenceField names one of the participant's mutable status flags.
type PresenceField string

const (
	PresenceAudioMuted    PresenceField = "isAudioMuted"
	PresenceVideoMuted    PresenceField = "isVideoMuted"
	PresenceHandRaised    PresenceField = "isHandRaised"
	PresenceScreenSharing PresenceField = "isScreenSharing"
)

// Participant represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Participant struct {
	UserID          UserID    `json:"userId"`
	DisplayName     string    `json:"displayName"`
	Email           string    `json:"email,omitempty"`
	ConnectionID    string    `json:"connectionId"`
	JoinedAt        time.Time `json:"joinedAt"`
	Role            Role      `json:"role"`
	IsAudioMuted    bool      `json:"isAudioMuted"`
	IsVideoMuted    bool      `json:"isVideoMuted"`
	IsHandRaised    bool      `json:"isHandRaised"`
	IsScreenSharing bool      `json:"isScreenSharing"`
	IsActive        bool      `json:"isActive"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id *Identity, connectionID string, role Role, now time.Time) *Participant {
	return &Participant{
		UserID:       id.ID,
		DisplayName:  id.DisplayName,
		Email:        id.Email,
		ConnectionID: connectionID,
		JoinedAt:     now,
		Role:         role,
		IsActive:     true,
	}
}

// Presence returns the current value of f.
func (p *Participant) Presence(f PresenceField) bool {
	switch f {
	case PresenceAudioMuted:
		return p.IsAudioMuted
	case PresenceVideoMuted:
		return p.IsVideoMuted
	case PresenceHandRaised:
		return p.IsHandRaised
	case PresenceScreenSharing:
		return p.IsScreenSharing
	}
	return false
}

// SetPresence writes f and reports whether the value changed.
func (p *Participant) SetPresence(f PresenceField, v bool) bool {
	var dst *bool
	switch f {
	case PresenceAudioMuted:
		dst = &p.IsAudioMuted
	case PresenceVideoMuted:
		dst = &p.IsVideoMuted
	case PresenceHandRaised:
		dst = &p.IsHandRaised
	case PresenceScreenSharing:
		dst = &p.IsScreenSharing
	default:
		return false
	}
	changed := *dst != v
	*dst = v
	return changed
}
