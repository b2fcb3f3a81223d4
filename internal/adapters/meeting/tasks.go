package meeting

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeRoomSummary = "room:summary"

func NewSummaryTask(s domain.RoomSummary) (*asynq.Task, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return asynq.NewTask(TypeRoomSummary, payload), nil
}

func ParseSummaryTask(t *asynq.Task) (domain.RoomSummary, error) {
	var s domain.RoomSummary
	if err := json.Unmarshal(t.Payload(), &s); err != nil {
		return s, fmt.Errorf("unmarshal summary: %w", err)
	}
	if s.RoomID == "" {
		return s, fmt.Errorf("summary without room id")
	}
	return s, nil
}
