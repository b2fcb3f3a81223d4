package meeting

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

var ErrMeetingNotFound = errors.New("meeting not found")

// Meeting is the durable record a room may be bound to.
type Meeting struct {
	Ref          string `gorm:"primaryKey;size:64"`
	Title        string `gorm:"size:255"`
	PasswordHash string `gorm:"size:100"`
	Capacity     int
	Locked       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SummaryRecord is one closed room.
type SummaryRecord struct {
	ID               uint   `gorm:"primaryKey"`
	RoomID           string `gorm:"size:64;index"`
	MeetingRef       string `gorm:"size:64;index"`
	ParticipantCount int
	Participants     string `gorm:"type:text"`
	StartedAt        time.Time
	EndedAt          time.Time
	DurationSeconds  int64
	CreatedAt        time.Time
}

type summaryParticipant struct {
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
	Role        domain.Role   `json:"role"`
}

func newSummaryRecord(s domain.RoomSummary) (*SummaryRecord, error) {
	ps := make([]summaryParticipant, 0, len(s.Participants))
	for _, p := range s.Participants {
		ps = append(ps, summaryParticipant{UserID: p.UserID, DisplayName: p.DisplayName, Role: p.Role})
	}
	raw, err := json.Marshal(ps)
	if err != nil {
		return nil, err
	}
	return &SummaryRecord{
		RoomID:           string(s.RoomID),
		MeetingRef:       s.MeetingRef,
		ParticipantCount: len(ps),
		Participants:     string(raw),
		StartedAt:        s.CreatedAt,
		EndedAt:          s.ClosedAt,
		DurationSeconds:  int64(s.Duration / time.Second),
	}, nil
}
