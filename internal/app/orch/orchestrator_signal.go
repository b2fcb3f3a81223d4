package orch

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Relay forwards an offer, answer or ICE candidate to a single peer in the
// same room. A target that is gone or elsewhere is dropped silently.
func (o *Orchestrator) Relay(sid core.SessionID, kind SignalKind, target domain.UserID, roomID domain.RoomID, payload SignalPayload) error {
	sess, room, err := o.activeIn(sid, roomID)
	if err != nil {
		return err
	}
	to, toRoom, ok := o.Registry.Lookup(target)
	if !ok || toRoom != roomID || !room.IsActive(target) {
		log.Debug().Str("module", "orch").Str("kind", string(kind)).Str("room", string(roomID)).Str("target", string(target)).Msg("stale relay target, dropped")
		return nil
	}
	frame, err := encode(SignalEvent{
		Type:          kind,
		FromUserID:    sess.Identity().ID,
		RoomID:        roomID,
		SignalPayload: payload,
	})
	if err != nil {
		return err
	}
	o.deliver(room, to, frame)
	return nil
}
