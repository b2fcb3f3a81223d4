package domain

import (
	"strings"
	"time"
)

const MaxRoomIDLen = 64

type RoomID string

// ParseRoomID validates a client supplied room identifier.
func ParseRoomID(s string) (RoomID, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > MaxRoomIDLen {
		return "", ErrInvalidRoomID
	}
	return RoomID(s), nil
}

type Room struct {
	ID         RoomID    `json:"roomId"`
	MeetingRef string    `json:"meetingRef"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RoomSummary is handed to meeting persistence when a room closes.
type RoomSummary struct {
	RoomID       RoomID        `json:"roomId"`
	MeetingRef   string        `json:"meetingRef"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"createdAt"`
	ClosedAt     time.Time     `json:"closedAt"`
	Duration     time.Duration `json:"duration"`
}
