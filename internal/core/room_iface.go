package core

import (
	"errors"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// ErrRoomClosed is returned by a room that already emptied out and left the
// registry. Callers retry against a fresh room.
var ErrRoomClosed = errors.New("room closed")

// Recipient addresses one active participant's current connection.
type Recipient struct {
	UserID       domain.UserID
	ConnectionID string
}

type JoinRequest struct {
	Identity     *domain.Identity
	ConnectionID string
	// MeetingRef must match the meeting the room was created for.
	MeetingRef   string
	Now          time.Time
}

type JoinResult struct {
	Participant  domain.Participant
	Participants []domain.Participant // active, in join order
	History      []domain.ChatMessage
	Others       []Recipient // active participants except the joiner
	Count        int
	// Rejoined is set when the participant was still active under an older
	// connection; the others already know about them.
	Rejoined     bool
}

type LeaveResult struct {
	Participant domain.Participant
	Remaining   []Recipient
	Count       int
	Left        bool // false for an already inactive or unknown participant
	Closed      bool // the room emptied and removed itself from the registry
	Summary     domain.RoomSummary // set when Closed
}

// MemberUpdate carries a participant after a change and who should hear about it.
type MemberUpdate struct {
	Participant domain.Participant
	Recipients  []Recipient
}

type PresenceResult struct {
	MemberUpdate
	Field domain.PresenceField
	Value bool
}

type ChatResult struct {
	Message    domain.ChatMessage
	Recipients []Recipient
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
// All mutating calls on one room are serialized.
type RoomService interface {
	Room() *domain.Room
	Capacity() int
	MemberCount() int
	MembersSnapshot() []domain.Participant
	IsActive(user domain.UserID) bool

	Join(req JoinRequest) (JoinResult, error)
	// Leave deactivates user. A non-empty connectionID only matches the
	// participant's current connection, so a stale socket cannot evict a
	// reconnected user.
	Leave(user domain.UserID, connectionID string, now time.Time) LeaveResult
	// SetPresence writes the caller's own flag; nil value toggles it.
	SetPresence(user domain.UserID, field domain.PresenceField, value *bool) (PresenceResult, bool)
	ForceMute(actor, target domain.UserID) (PresenceResult, error)
	SetRole(actor, target domain.UserID, role domain.Role) (MemberUpdate, error)
	AppendChat(user domain.UserID, text string, now time.Time) (ChatResult, error)

	// Close deactivates everyone and removes the room from the registry.
	Close(now time.Time) (domain.RoomSummary, bool)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"roomId"`
	MeetingRef  string        `json:"meetingRef"`
	MemberCount int           `json:"participantCount"`
	Capacity    int           `json:"capacity"`
	CreatedAt   time.Time     `json:"createdAt"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID, meetingRef string, capacity int) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	// DeleteIf removes id only while it still maps to rs.
	DeleteIf(id domain.RoomID, rs RoomService) bool
	List() []RoomInfo
	Rooms() []RoomService
}
