package meeting

import (
	"context"
	"fmt"

	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const (
	summaryQueue    = "default"
	summaryMaxRetry = 5
)

func RedisOpt(cfg config.Redis) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands room summaries to the asynq worker.
type Queue struct {
	client enqueuer
	closer func() error
}

func NewQueue(opt asynq.RedisClientOpt) *Queue {
	c := asynq.NewClient(opt)
	return &Queue{client: c, closer: c.Close}
}

func (q *Queue) Handoff(ctx context.Context, s domain.RoomSummary) error {
	task, err := NewSummaryTask(s)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task, asynq.Queue(summaryQueue), asynq.MaxRetry(summaryMaxRetry))
	if err != nil {
		return fmt.Errorf("enqueue %s for room %s: %w", TypeRoomSummary, s.RoomID, err)
	}
	log.Debug().Str("module", "meeting").Str("task_id", info.ID).Str("room", string(s.RoomID)).Msg("summary enqueued")
	return nil
}

func (q *Queue) Close() error {
	if q.closer == nil {
		return nil
	}
	return q.closer()
}
