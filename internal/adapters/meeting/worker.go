package meeting

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// SummaryHandler writes queued summaries through sink.
type SummaryHandler struct {
	sink core.SummarySink
}

func NewSummaryHandler(sink core.SummarySink) *SummaryHandler {
	return &SummaryHandler{sink: sink}
}

func (h *SummaryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retry, _ := asynq.GetRetryCount(ctx)
	s, err := ParseSummaryTask(t)
	if err != nil {
		log.Error().Err(err).Str("module", "meeting").Str("task_type", t.Type()).Msg("bad summary payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := h.sink.Handoff(ctx, s); err != nil {
		log.Warn().Err(err).Str("module", "meeting").Str("room", string(s.RoomID)).Int("retry", retry).Msg("summary write failed")
		return err
	}
	return nil
}

// Worker runs the asynq server that drains the summary queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(opt asynq.RedisClientOpt, handler *SummaryHandler) *Worker {
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{summaryQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retry, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Error().Err(err).Str("module", "meeting").Str("task_type", task.Type()).Int("retry", retry).Int("max_retry", maxRetry).Msg("task failed")
		}),
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypeRoomSummary, handler)
	return &Worker{server: server, mux: mux}
}

// Start launches the worker's goroutines and returns.
func (w *Worker) Start() error {
	log.Info().Str("module", "meeting").Msg("summary worker starting")
	if err := w.server.Start(w.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return fmt.Errorf("summary worker: %w", err)
	}
	return nil
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
	log.Info().Str("module", "meeting").Msg("summary worker stopped")
}
