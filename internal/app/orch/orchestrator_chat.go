package orch

import (
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// SendChat appends a message to the room history and broadcasts it to every
// active participant, sender included.
func (o *Orchestrator) SendChat(sid core.SessionID, roomID domain.RoomID, text string) (domain.ChatMessage, error) {
	sess, room, err := o.activeIn(sid, roomID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	res, err := room.AppendChat(sess.Identity().ID, text, o.now())
	if err != nil {
		return domain.ChatMessage{}, err
	}
	o.fanout(room, res.Recipients, ChatEvent{Type: EventChatMessage, RoomID: roomID, Message: res.Message})
	return res.Message, nil
}

// SetPresence updates the caller's own presence flag. value nil toggles.
// Anything that does not resolve is ignored.
func (o *Orchestrator) SetPresence(sid core.SessionID, roomID domain.RoomID, field domain.PresenceField, value *bool) {
	sess, room, err := o.activeIn(sid, roomID)
	if err != nil {
		return
	}
	res, ok := room.SetPresence(sess.Identity().ID, field, value)
	if !ok {
		return
	}
	o.broadcastPresence(room, res)
}

// ForceMute mutes target's audio on behalf of a host or moderator.
func (o *Orchestrator) ForceMute(sid core.SessionID, roomID domain.RoomID, target domain.UserID) error {
	sess, room, err := o.activeIn(sid, roomID)
	if err != nil {
		return err
	}
	res, err := room.ForceMute(sess.Identity().ID, target)
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("by", string(sess.Identity().ID)).Str("target", string(target)).Msg("participant muted")
	o.broadcastPresence(room, res)
	return nil
}

func (o *Orchestrator) SetRole(sid core.SessionID, roomID domain.RoomID, target domain.UserID, role domain.Role) error {
	sess, room, err := o.activeIn(sid, roomID)
	if err != nil {
		return err
	}
	upd, err := room.SetRole(sess.Identity().ID, target, role)
	if err != nil {
		return err
	}
	o.fanout(room, upd.Recipients, PresenceEvent{
		Type:   EventRoleChanged,
		RoomID: roomID,
		UserID: target,
		Field:  "role",
		Value:  upd.Participant.Role,
	})
	return nil
}

func (o *Orchestrator) broadcastPresence(room core.RoomService, res core.PresenceResult) {
	typ, ok := PresenceEventType(res.Field)
	if !ok {
		return
	}
	o.fanout(room, res.Recipients, PresenceEvent{
		Type:   typ,
		RoomID: room.Room().ID,
		UserID: res.Participant.UserID,
		Field:  string(res.Field),
		Value:  res.Value,
	})
}
