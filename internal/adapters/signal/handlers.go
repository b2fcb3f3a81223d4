package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type handlerFunc func(ctl *SignalWSController, ctx context.Context, sess core.MemberSession, data []byte) error

var (
	on  = true
	off = false
)

var handlers = map[string]handlerFunc{
	"join-room":          handleJoin,
	"leave-room":         handleLeave,
	"offer":              relayHandler(orch.KindOffer),
	"answer":             relayHandler(orch.KindAnswer),
	"ice-candidate":      relayHandler(orch.KindICECandidate),
	"chat-message":       handleChat,
	"mute-audio":         presenceHandler(domain.PresenceAudioMuted, nil),
	"mute-video":         presenceHandler(domain.PresenceVideoMuted, nil),
	"hand-raise":         presenceHandler(domain.PresenceHandRaised, nil),
	"start-screen-share": presenceHandler(domain.PresenceScreenSharing, &on),
	"stop-screen-share":  presenceHandler(domain.PresenceScreenSharing, &off),
	"set-role":           handleSetRole,
	"mute-participant":   handleMuteParticipant,
	"ping":               handlePing,
	"whoami":             handleWhoAmI,
}

func (ctl *SignalWSController) dispatch(ctx context.Context, sess core.MemberSession, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.replyError(sess.ID(), fmt.Errorf("%w: bad json", domain.ErrInvalidPayload))
		return
	}
	h, ok := handlers[env.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.replyError(sess.ID(), fmt.Errorf("%w: unknown message type %q", domain.ErrInvalidPayload, env.Type))
		return
	}
	if err := h(ctl, ctx, sess, data); err != nil {
		ctl.replyError(sess.ID(), err)
	}
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

func (p roomPayload) room() (domain.RoomID, error) {
	return domain.ParseRoomID(p.RoomID)
}

func handleJoin(ctl *SignalWSController, ctx context.Context, sess core.MemberSession, data []byte) error {
	var p struct {
		roomPayload
		MeetingRef string `json:"meetingRef"`
		Password   string `json:"password"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := p.room()
	if err != nil {
		return err
	}
	adm, err := ctl.canJoin(ctx, p.MeetingRef, p.Password)
	if err != nil {
		return err
	}
	if !adm.Allowed {
		log.Info().Str("module", "signal").Str("sid", string(sess.ID())).Str("meeting", p.MeetingRef).Str("reason", adm.Reason).Msg("join denied")
		return fmt.Errorf("%w: %s", domain.ErrJoinDenied, adm.Reason)
	}
	capacity := adm.Capacity
	if capacity <= 0 {
		capacity = ctl.opts.DefaultCapacity
	}
	_, err = ctl.Orch.Join(sess.ID(), roomID, p.MeetingRef, capacity)
	return err
}

func handleLeave(ctl *SignalWSController, _ context.Context, sess core.MemberSession, data []byte) error {
	var p roomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := p.room()
	if err != nil {
		return err
	}
	ctl.Orch.Leave(sess.ID(), roomID)
	return nil
}

type relayPayload struct {
	roomPayload
	TargetUserID  string          `json:"targetUserId"`
	SDP           string          `json:"sdp"`
	Candidate     json.RawMessage `json:"candidate"`
	SDPMid        *string         `json:"sdpMid"`
	SDPMLineIndex *uint16         `json:"sdpMLineIndex"`
}

// candidateInit accepts either an RTCIceCandidateInit object or a bare
// candidate string with sdpMid/sdpMLineIndex beside it.
func (p relayPayload) candidateInit() (json.RawMessage, error) {
	raw := p.Candidate
	var s string
	if len(raw) > 0 && json.Unmarshal(raw, &s) == nil {
		b, err := json.Marshal(webrtc.ICECandidateInit{Candidate: s, SDPMid: p.SDPMid, SDPMLineIndex: p.SDPMLineIndex})
		if err != nil {
			return nil, err
		}
		raw = b
	}
	init, err := rtc.ParseCandidate(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(init)
}

func relayHandler(kind orch.SignalKind) handlerFunc {
	return func(ctl *SignalWSController, _ context.Context, sess core.MemberSession, data []byte) error {
		var p relayPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		roomID, err := p.room()
		if err != nil {
			return err
		}
		if p.TargetUserID == "" {
			return fmt.Errorf("%w: missing targetUserId", domain.ErrInvalidPayload)
		}
		var payload orch.SignalPayload
		switch kind {
		case orch.KindOffer, orch.KindAnswer:
			if err := rtc.ValidateSDP(webrtc.NewSDPType(string(kind)), p.SDP); err != nil {
				return err
			}
			payload.SDP = p.SDP
		case orch.KindICECandidate:
			if payload.Candidate, err = p.candidateInit(); err != nil {
				return err
			}
		}
		return ctl.Orch.Relay(sess.ID(), kind, domain.UserID(p.TargetUserID), roomID, payload)
	}
}

func handleChat(ctl *SignalWSController, _ context.Context, sess core.MemberSession, data []byte) error {
	var p struct {
		roomPayload
		Text string `json:"text"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := p.room()
	if err != nil {
		return err
	}
	if !ctl.limiter.Allow(sess.Identity().ID) {
		return domain.ErrRateLimited
	}
	_, err = ctl.Orch.SendChat(sess.ID(), roomID, p.Text)
	return err
}

func presenceHandler(field domain.PresenceField, fixed *bool) handlerFunc {
	return func(ctl *SignalWSController, _ context.Context, sess core.MemberSession, data []byte) error {
		var p struct {
			roomPayload
			Value *bool `json:"value"`
		}
		if err := decode(data, &p); err != nil {
			return err
		}
		roomID, err := p.room()
		if err != nil {
			return err
		}
		value := p.Value
		if fixed != nil {
			value = fixed
		}
		ctl.Orch.SetPresence(sess.ID(), roomID, field, value)
		return nil
	}
}

type targetPayload struct {
	roomPayload
	TargetUserID string `json:"targetUserId"`
	Role         string `json:"role"`
}

func handleSetRole(ctl *SignalWSController, _ context.Context, sess core.MemberSession, data []byte) error {
	var p targetPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := p.room()
	if err != nil {
		return err
	}
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		return err
	}
	return ctl.Orch.SetRole(sess.ID(), roomID, domain.UserID(p.TargetUserID), role)
}

func handleMuteParticipant(ctl *SignalWSController, _ context.Context, sess core.MemberSession, data []byte) error {
	var p targetPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := p.room()
	if err != nil {
		return err
	}
	return ctl.Orch.ForceMute(sess.ID(), roomID, domain.UserID(p.TargetUserID))
}

func handlePing(ctl *SignalWSController, _ context.Context, sess core.MemberSession, _ []byte) error {
	ctl.reply(sess.ID(), struct {
		Type string `json:"type"`
	}{Type: "pong"})
	return nil
}

func handleWhoAmI(ctl *SignalWSController, _ context.Context, sess core.MemberSession, _ []byte) error {
	resp := struct {
		Type      string           `json:"type"`
		SessionID core.SessionID   `json:"sessionId"`
		User      *domain.Identity `json:"user"`
		RoomID    domain.RoomID    `json:"roomId,omitempty"`
	}{
		Type:      "whoami",
		SessionID: sess.ID(),
		User:      sess.Identity(),
	}
	if room, _, ok := ctl.Orch.Registry.RoomOf(sess.ID()); ok {
		resp.RoomID = room
	}
	ctl.reply(sess.ID(), resp)
	return nil
}
