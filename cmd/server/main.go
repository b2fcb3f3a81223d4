package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Meet/internal/adapters/auth"
	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/meeting"
	wsignal "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	log.Info().Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config loaded")

	var (
		gate  core.MeetingGate = meeting.OpenGate{}
		sink  core.SummarySink
		store *meeting.Store
	)
	if cfg.Database.DSN != "" {
		db, err := meeting.OpenMySQL(cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("database")
		}
		if err := meeting.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("database migration")
		}
		store = meeting.NewStore(meeting.NewGormRepository(db))
		if err := store.Seed(ctx, cfg.Meetings); err != nil {
			log.Fatal().Err(err).Msg("seed meetings")
		}
		gate, sink = store, store
	} else {
		log.Warn().Msg("no database configured: every join is admitted and summaries are not stored")
	}

	var (
		queue  *meeting.Queue
		worker *meeting.Worker
	)
	if cfg.Redis.Addr != "" {
		opt := meeting.RedisOpt(cfg.Redis)
		queue = meeting.NewQueue(opt)
		sink = queue
		if store != nil {
			worker = meeting.NewWorker(opt, meeting.NewSummaryHandler(store))
			if err := worker.Start(); err != nil {
				log.Fatal().Err(err).Msg("summary worker")
			}
		}
	}

	verifier, err := auth.NewJWTVerifier(cfg.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("identity verifier")
	}

	policy, err := app.PolicyFor(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("backpressure policy")
	}

	o := &orch.Orchestrator{
		Registry:       app.NewRegistry(),
		Rooms:          app.NewRoomManager(app.WithChatLimits(cfg.ChatHistoryLimit, cfg.ChatMaxLen)),
		Policy:         policy,
		Sink:           sink,
		HandoffTimeout: cfg.HandoffTimeout,
	}
	ctrl := wsignal.NewSignalWSController(o, verifier, gate,
		wsignal.NewRoomRateLimiter(cfg.ChatRateLimit, cfg.ChatRateInterval),
		wsignal.OptionsFromConfig(cfg))

	r := router.SetupRouter(ctx, cfg, o, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		log.Info().Str("addr", addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	o.Shutdown()
	if worker != nil {
		worker.Shutdown()
	}
	if queue != nil {
		if err := queue.Close(); err != nil {
			log.Error().Err(err).Msg("close summary queue")
		}
	}
	wg.Wait()
	log.Info().Msg("Server exited gracefully")
}
