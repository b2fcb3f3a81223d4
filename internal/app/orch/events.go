package orch

import (
	"encoding/json"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// Outbound event types.
const (
	EventRoomJoined       = "room-joined"
	EventRoomParticipants = "room-participants"
	EventChatHistory      = "chat-history"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventRoomLeft         = "room-left"
	EventChatMessage      = "chat-message"
	EventRoleChanged      = "participant-role-changed"
	EventError            = "error"
)

type SignalKind string

const (
	KindOffer        SignalKind = "offer"
	KindAnswer       SignalKind = "answer"
	KindICECandidate SignalKind = "ice-candidate"
)

var presenceEvents = map[domain.PresenceField]string{
	domain.PresenceAudioMuted:    "participant-audio-changed",
	domain.PresenceVideoMuted:    "participant-video-changed",
	domain.PresenceHandRaised:    "participant-hand-changed",
	domain.PresenceScreenSharing: "participant-screen-share-changed",
}

// PresenceEventType maps a presence field to its outbound event type.
func PresenceEventType(f domain.PresenceField) (string, bool) {
	t, ok := presenceEvents[f]
	return t, ok
}

type RoomJoinedEvent struct {
	Type             string        `json:"type"`
	RoomID           domain.RoomID `json:"roomId"`
	ParticipantCount int           `json:"participantCount"`
	Success          bool          `json:"success"`
}

type RoomParticipantsEvent struct {
	Type         string               `json:"type"`
	RoomID       domain.RoomID        `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
}

type ChatHistoryEvent struct {
	Type     string               `json:"type"`
	RoomID   domain.RoomID        `json:"roomId"`
	Messages []domain.ChatMessage `json:"messages"`
}

type MemberEvent struct {
	Type              string             `json:"type"`
	RoomID            domain.RoomID      `json:"roomId"`
	Participant       domain.Participant `json:"participant"`
	TotalParticipants int                `json:"totalParticipants"`
}

type RoomLeftEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type ChatEvent struct {
	Type    string             `json:"type"`
	RoomID  domain.RoomID      `json:"roomId"`
	Message domain.ChatMessage `json:"message"`
}

type PresenceEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
	Field  string        `json:"field"`
	Value  any           `json:"value"`
}

// SignalPayload is relayed as-is; validation happens at the gateway.
type SignalPayload struct {
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type SignalEvent struct {
	Type       SignalKind    `json:"type"`
	FromUserID domain.UserID `json:"fromUserId"`
	RoomID     domain.RoomID `json:"roomId"`
	SignalPayload
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewErrorEvent builds the client-facing error for err.
func NewErrorEvent(err error) ErrorEvent {
	code, _ := domain.ErrorCode(err)
	return ErrorEvent{Type: EventError, Message: err.Error(), Code: code}
}

func encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
