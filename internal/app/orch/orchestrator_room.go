package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxJoinAttempts = 4

var (
	errShuttingDown = fmt.Errorf("%w: server is shutting down", domain.ErrJoinDenied)
	errRoomChurn    = fmt.Errorf("%w: room keeps closing, try again", domain.ErrJoinDenied)
)

// Join places the session into roomID. capacity applies only when the room
// gets created by this call. A previous room is left only once the new seat
// is taken, so a rejected join changes nothing.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID, meetingRef string, capacity int) (core.JoinResult, error) {
	o.life.RLock()
	defer o.life.RUnlock()
	if o.stopping {
		return core.JoinResult{}, errShuttingDown
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return core.JoinResult{}, domain.ErrUnauthorized
	}

	req := core.JoinRequest{Identity: sess.Identity(), ConnectionID: string(sid), MeetingRef: meetingRef, Now: o.now()}
	var (
		room core.RoomService
		res  core.JoinResult
		err  error
	)
	for range maxJoinAttempts {
		room = o.Rooms.GetOrCreate(roomID, meetingRef, capacity)
		res, err = room.Join(req)
		if !errors.Is(err, core.ErrRoomClosed) {
			break
		}
		log.Debug().Str("module", "orch").Str("room", string(roomID)).Msg("room closed during join, retrying")
	}
	if errors.Is(err, core.ErrRoomClosed) {
		err = errRoomChurn
	}
	if err != nil {
		return core.JoinResult{}, fmt.Errorf("join %s: %w", roomID, err)
	}

	if cur, _, ok := o.Registry.RoomOf(sid); ok && cur != roomID {
		o.leaveRoom(sess, cur)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(cur)).Msg("left previous room")
	}
	o.Registry.UpdateRoom(sid, roomID)

	o.SendTo(sid, RoomJoinedEvent{Type: EventRoomJoined, RoomID: roomID, ParticipantCount: res.Count, Success: true})
	o.SendTo(sid, RoomParticipantsEvent{Type: EventRoomParticipants, RoomID: roomID, Participants: res.Participants})
	o.SendTo(sid, ChatHistoryEvent{Type: EventChatHistory, RoomID: roomID, Messages: res.History})
	if !res.Rejoined {
		o.fanout(room, res.Others, MemberEvent{
			Type:              EventUserJoined,
			RoomID:            roomID,
			Participant:       res.Participant,
			TotalParticipants: res.Count,
		})
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Int("count", res.Count).Bool("rejoin", res.Rejoined).Msg("joined room")
	return res, nil
}

// Leave is a no-op unless the session currently sits in roomID.
func (o *Orchestrator) Leave(sid core.SessionID, roomID domain.RoomID) {
	o.life.RLock()
	defer o.life.RUnlock()
	cur, sess, ok := o.Registry.RoomOf(sid)
	if !ok || cur != roomID {
		return
	}
	if o.leaveRoom(sess, roomID) {
		o.SendTo(sid, RoomLeftEvent{Type: EventRoomLeft, RoomID: roomID})
	}
}

// leaveRoom expects o.life to be held.
func (o *Orchestrator) leaveRoom(sess core.MemberSession, roomID domain.RoomID) bool {
	o.Registry.RemoveRoom(sess.ID(), roomID)
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return false
	}
	res := room.Leave(sess.Identity().ID, string(sess.ID()), o.now())
	if !res.Left {
		return false
	}
	o.fanout(room, res.Remaining, MemberEvent{
		Type:              EventUserLeft,
		RoomID:            roomID,
		Participant:       res.Participant,
		TotalParticipants: res.Count,
	})
	if res.Closed {
		log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("room closed")
		o.handoff(res.Summary)
	}
	return true
}

// Shutdown refuses further joins, closes every live room, disconnects its
// participants and waits for the summary handoffs.
func (o *Orchestrator) Shutdown() {
	o.life.Lock()
	o.stopping = true
	for _, room := range o.Rooms.Rooms() {
		members := room.MembersSnapshot()
		summary, ok := room.Close(o.now())
		if !ok {
			continue
		}
		for _, p := range members {
			o.KickBySID(core.SessionID(p.ConnectionID))
		}
		o.handoff(summary)
	}
	o.life.Unlock()

	o.handoffs.Wait()
	log.Info().Str("module", "orch").Msg("rooms evicted")
}

func (o *Orchestrator) handoff(summary domain.RoomSummary) {
	if o.Sink == nil {
		return
	}
	timeout := o.HandoffTimeout
	if timeout <= 0 {
		timeout = defaultHandoffTimeout
	}
	o.handoffs.Add(1)
	go func() {
		defer o.handoffs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := o.Sink.Handoff(ctx, summary); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("room", string(summary.RoomID)).Msg("summary handoff failed")
			return
		}
		log.Info().Str("module", "orch").Str("room", string(summary.RoomID)).Dur("duration", summary.Duration).Msg("summary handed off")
	}()
}
