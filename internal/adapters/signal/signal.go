package signal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dkeye/Meet/internal/adapters/auth"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Subprotocol is echoed to browsers that pass their token as the second
// Sec-WebSocket-Protocol value.
const Subprotocol = "meet.v1"

type Options struct {
	ReadLimit        int64
	PingPeriod       time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	SendBuffer       int
	AuthTimeout      time.Duration
	JoinCheckTimeout time.Duration
	DefaultCapacity  int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:        cfg.ReadLimit,
		PingPeriod:       cfg.PingPeriod,
		PongWait:         cfg.PongWait,
		WriteWait:        cfg.WriteWait,
		SendBuffer:       cfg.SendBuffer,
		AuthTimeout:      cfg.AuthTimeout,
		JoinCheckTimeout: cfg.JoinCheckTimeout,
		DefaultCapacity:  cfg.RoomCapacity,
	}
}

func (o *Options) fill() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 128 << 10
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 3 * time.Second
	}
	if o.JoinCheckTimeout <= 0 {
		o.JoinCheckTimeout = 3 * time.Second
	}
	if o.DefaultCapacity <= 0 {
		o.DefaultCapacity = core.DefaultCapacity
	}
}

type SignalWSController struct {
	Orch *orch.Orchestrator

	verifier core.IdentityVerifier
	gate     core.MeetingGate
	limiter  *RoomRateLimiter
	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, verifier core.IdentityVerifier, gate core.MeetingGate, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	opts.fill()
	return &SignalWSController{
		Orch:     o,
		verifier: auth.WithTimeout(verifier, opts.AuthTimeout),
		gate:     gate,
		limiter:  limiter,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{Subprotocol},
		},
	}
}

// HandleSignal authenticates before upgrading; failures never reach the
// registry.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	identity, err := ctl.authenticate(c.Request)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("remote", c.ClientIP()).Msg("auth rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, orch.ErrorEvent{
			Type:    orch.EventError,
			Message: "unauthorized",
			Code:    "auth",
		})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sid := core.SessionID(uuid.NewString())
	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	sess := core.NewMemberSession(sid, identity, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Connect(sess, cancel)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("user", string(identity.ID)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn)
}

func (ctl *SignalWSController) authenticate(r *http.Request) (*domain.Identity, error) {
	token, err := auth.ExtractToken(r)
	if err != nil {
		return nil, err
	}
	return ctl.verifier.Verify(r.Context(), token)
}

func (ctl *SignalWSController) canJoin(ctx context.Context, meetingRef, password string) (core.Admission, error) {
	if ctl.gate == nil {
		return core.Admission{Allowed: true}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, ctl.opts.JoinCheckTimeout)
	defer cancel()
	adm, err := ctl.gate.CanJoin(ctx, meetingRef, password)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("meeting", meetingRef).Msg("join check failed")
		return core.Admission{}, errJoinCheckUnavailable
	}
	return adm, nil
}

var errJoinCheckUnavailable = fmt.Errorf("%w: meeting check unavailable", domain.ErrJoinDenied)

func (ctl *SignalWSController) reply(sid core.SessionID, v any) {
	ctl.Orch.SendTo(sid, v)
}

func (ctl *SignalWSController) replyError(sid core.SessionID, err error) {
	if _, ok := domain.ErrorCode(err); !ok {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("handler failed")
		ctl.reply(sid, orch.ErrorEvent{Type: orch.EventError, Message: "internal error"})
		return
	}
	log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("rejected message")
	ctl.reply(sid, orch.NewErrorEvent(err))
}
