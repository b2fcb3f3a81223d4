package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

const defaultHandoffTimeout = 5 * time.Second

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Sink     core.SummarySink

	HandoffTimeout time.Duration
	Now            func() time.Time

	// life is held shared by joins and leaves and exclusively by Shutdown,
	// so no room can close and hand off after Shutdown stops waiting.
	life     sync.RWMutex
	stopping bool
	handoffs sync.WaitGroup
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Connect binds a freshly authenticated session. A previous live session of
// the same user is closed; its own disconnect cleans it up.
func (o *Orchestrator) Connect(sess core.MemberSession, cancel context.CancelFunc) {
	if prev := o.Registry.Bind(sess, cancel); prev != nil {
		log.Info().Str("module", "orch").Str("user", string(sess.Identity().ID)).Str("old_sid", string(prev.ID())).Msg("replacing session")
		o.Registry.Cancel(prev.ID())
		prev.Signal().Close()
	}
}

// OnDisconnect runs once the connection's read loop has ended.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.life.RLock()
	defer o.life.RUnlock()
	roomID, sess, ok := o.Registry.Unbind(sid)
	if !ok {
		return
	}
	if roomID != "" {
		o.leaveRoom(sess, roomID)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("session disconnected")
}

// KickBySID closes the session's connection; cleanup follows via OnDisconnect.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	o.Registry.Cancel(sid)
	sess.Signal().Close()
}

// SendTo delivers v to a single session.
func (o *Orchestrator) SendTo(sid core.SessionID, v any) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	frame, err := encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode event")
		return
	}
	o.deliver(nil, sess, frame)
}

func (o *Orchestrator) fanout(room core.RoomService, to []core.Recipient, v any) {
	if len(to) == 0 {
		return
	}
	frame, err := encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode event")
		return
	}
	for _, rc := range to {
		sess, ok := o.Registry.GetSession(core.SessionID(rc.ConnectionID))
		if !ok {
			continue
		}
		o.deliver(room, sess, frame)
	}
}

func (o *Orchestrator) deliver(room core.RoomService, sess core.MemberSession, frame core.Frame) {
	err := sess.Signal().TrySend(frame)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrBackpressure):
		if o.Policy == nil {
			return
		}
		switch o.Policy.OnBackPressure(room, sess) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(sess.ID())).Msg("slow connection kicked")
			o.KickBySID(sess.ID())
		case app.DropFrame, app.NoAction:
			log.Debug().Str("module", "orch").Str("sid", string(sess.ID())).Msg("frame dropped")
		}
	default:
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sess.ID())).Msg("send failed")
	}
}

// activeIn resolves the session's room and checks it is roomID.
func (o *Orchestrator) activeIn(sid core.SessionID, roomID domain.RoomID) (core.MemberSession, core.RoomService, error) {
	cur, sess, ok := o.Registry.RoomOf(sid)
	if !ok || cur != roomID {
		return nil, nil, domain.ErrNotInRoom
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok || !room.IsActive(sess.Identity().ID) {
		return nil, nil, domain.ErrNotInRoom
	}
	return sess, room, nil
}
