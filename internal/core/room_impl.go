package core

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultCapacity = 6

type RoomOptions struct {
	Capacity   int
	HistoryCap int
	ChatMaxLen int
	// OnClosed runs under the room lock once the room is closed. The room
	// manager uses it to drop the room from its map atomically with the close.
	OnClosed func(RoomService)
}

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room       *domain.Room
	capacity   int
	historyCap int
	chatMaxLen int
	onClosed   func(RoomService)

	mu      sync.RWMutex
	members []*domain.Participant
	byUser  map[domain.UserID]*domain.Participant
	history []domain.ChatMessage
	seq     uint64
	closed  bool
}

func NewRoomService(room *domain.Room, opts RoomOptions) RoomService {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = domain.ChatHistoryCap
	}
	if opts.ChatMaxLen <= 0 {
		opts.ChatMaxLen = domain.MaxChatTextLen
	}
	return &roomImpl{
		room:       room,
		capacity:   opts.Capacity,
		historyCap: opts.HistoryCap,
		chatMaxLen: opts.ChatMaxLen,
		onClosed:   opts.OnClosed,
		byUser:     make(map[domain.UserID]*domain.Participant),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }
func (r *roomImpl) Capacity() int      { return r.capacity }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

func (r *roomImpl) MembersSnapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *roomImpl) IsActive(user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byUser[user]
	return ok && p.IsActive && !r.closed
}

func (r *roomImpl) Join(req JoinRequest) (JoinResult, error) {
	u := req.Identity.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return JoinResult{}, ErrRoomClosed
	}
	if req.MeetingRef != r.room.MeetingRef {
		log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(u)).Str("meeting", req.MeetingRef).Msg("meeting mismatch")
		return JoinResult{}, fmt.Errorf("%w: room %s belongs to another meeting", domain.ErrJoinDenied, r.room.ID)
	}

	p, rejoin := r.byUser[u]
	wasActive := rejoin && p.IsActive
	// An active participant reconnecting does not take a new seat.
	if !wasActive && r.activeLocked() >= r.capacity {
		log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(u)).Int("capacity", r.capacity).Msg("room full")
		return JoinResult{}, domain.ErrRoomFull
	}

	if rejoin {
		p.IsActive = true
		p.ConnectionID = req.ConnectionID
		p.JoinedAt = req.Now
		p.DisplayName = req.Identity.DisplayName
	} else {
		role := domain.RoleParticipant
		if len(r.members) == 0 {
			role = domain.RoleHost
		}
		p = domain.NewParticipant(req.Identity, req.ConnectionID, role, req.Now)
		r.members = append(r.members, p)
		r.byUser[u] = p
	}

	res := JoinResult{
		Participant:  *p,
		Participants: r.snapshotLocked(),
		History:      r.historyLocked(),
		Others:       r.recipientsLocked(u),
		Count:        r.activeLocked(),
		Rejoined:     wasActive,
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(u)).Bool("rejoin", rejoin).Int("count", res.Count).Msg("participant joined")
	return res, nil
}

func (r *roomImpl) Leave(user domain.UserID, connectionID string, now time.Time) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUser[user]
	if !ok || !p.IsActive || r.closed {
		return LeaveResult{}
	}
	if connectionID != "" && p.ConnectionID != connectionID {
		log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(user)).Msg("stale connection leave ignored")
		return LeaveResult{Participant: *p, Count: r.activeLocked()}
	}

	p.IsActive = false
	p.IsScreenSharing = false
	res := LeaveResult{
		Participant: *p,
		Remaining:   r.recipientsLocked(""),
		Count:       r.activeLocked(),
		Left:        true,
	}
	if res.Count == 0 {
		res.Summary = r.closeLocked(now)
		res.Closed = true
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(user)).Int("count", res.Count).Bool("closed", res.Closed).Msg("participant left")
	return res
}

func (r *roomImpl) SetPresence(user domain.UserID, field domain.PresenceField, value *bool) (PresenceResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUser[user]
	if !ok || !p.IsActive || r.closed {
		return PresenceResult{}, false
	}
	v := !p.Presence(field)
	if value != nil {
		v = *value
	}
	switch field {
	case domain.PresenceAudioMuted, domain.PresenceVideoMuted, domain.PresenceHandRaised, domain.PresenceScreenSharing:
	default:
		return PresenceResult{}, false
	}
	p.SetPresence(field, v)
	return PresenceResult{
		MemberUpdate: MemberUpdate{Participant: *p, Recipients: r.recipientsLocked("")},
		Field:        field,
		Value:        v,
	}, true
}

func (r *roomImpl) ForceMute(actor, target domain.UserID) (PresenceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, t, err := r.moderationPairLocked(actor, target)
	if err != nil {
		return PresenceResult{}, err
	}
	if !a.Role.CanModerate() {
		return PresenceResult{}, domain.ErrForbidden
	}
	t.SetPresence(domain.PresenceAudioMuted, true)
	return PresenceResult{
		MemberUpdate: MemberUpdate{Participant: *t, Recipients: r.recipientsLocked("")},
		Field:        domain.PresenceAudioMuted,
		Value:        true,
	}, nil
}

func (r *roomImpl) SetRole(actor, target domain.UserID, role domain.Role) (MemberUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, t, err := r.moderationPairLocked(actor, target)
	if err != nil {
		return MemberUpdate{}, err
	}
	// Only the host hands out roles, and the host seat is not transferable.
	if a.Role != domain.RoleHost || role == domain.RoleHost || a == t {
		return MemberUpdate{}, domain.ErrForbidden
	}
	t.Role = role
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(target)).Str("role", string(role)).Msg("role changed")
	return MemberUpdate{Participant: *t, Recipients: r.recipientsLocked("")}, nil
}

func (r *roomImpl) AppendChat(user domain.UserID, text string, now time.Time) (ChatResult, error) {
	text, err := domain.NormalizeChatText(text, r.chatMaxLen)
	if err != nil {
		return ChatResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUser[user]
	if !ok || !p.IsActive || r.closed {
		return ChatResult{}, domain.ErrNotInRoom
	}
	r.seq++
	msg := domain.ChatMessage{
		ID:          strconv.FormatUint(r.seq, 10),
		UserID:      user,
		DisplayName: p.DisplayName,
		Text:        text,
		Timestamp:   now,
	}
	if len(r.history) >= r.historyCap {
		n := copy(r.history, r.history[len(r.history)-r.historyCap+1:])
		r.history = r.history[:n]
	}
	r.history = append(r.history, msg)
	return ChatResult{Message: msg, Recipients: r.recipientsLocked("")}, nil
}

func (r *roomImpl) Close(now time.Time) (domain.RoomSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.RoomSummary{}, false
	}
	for _, p := range r.members {
		p.IsActive = false
	}
	return r.closeLocked(now), true
}

func (r *roomImpl) closeLocked(now time.Time) domain.RoomSummary {
	r.closed = true
	if r.onClosed != nil {
		r.onClosed(r)
	}
	all := make([]domain.Participant, 0, len(r.members))
	for _, p := range r.members {
		all = append(all, *p)
	}
	return domain.RoomSummary{
		RoomID:       r.room.ID,
		MeetingRef:   r.room.MeetingRef,
		Participants: all,
		CreatedAt:    r.room.CreatedAt,
		ClosedAt:     now,
		Duration:     now.Sub(r.room.CreatedAt),
	}
}

func (r *roomImpl) moderationPairLocked(actor, target domain.UserID) (*domain.Participant, *domain.Participant, error) {
	if r.closed {
		return nil, nil, domain.ErrNotInRoom
	}
	a, ok := r.byUser[actor]
	if !ok || !a.IsActive {
		return nil, nil, domain.ErrNotInRoom
	}
	t, ok := r.byUser[target]
	if !ok || !t.IsActive {
		return nil, nil, domain.ErrNotInRoom
	}
	return a, t, nil
}

func (r *roomImpl) activeLocked() int {
	n := 0
	for _, p := range r.members {
		if p.IsActive {
			n++
		}
	}
	return n
}

func (r *roomImpl) snapshotLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.members))
	for _, p := range r.members {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out
}

func (r *roomImpl) recipientsLocked(exclude domain.UserID) []Recipient {
	out := make([]Recipient, 0, len(r.members))
	for _, p := range r.members {
		if p.IsActive && p.UserID != exclude {
			out = append(out, Recipient{UserID: p.UserID, ConnectionID: p.ConnectionID})
		}
	}
	return out
}

func (r *roomImpl) historyLocked() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(r.history))
	copy(out, r.history)
	return out
}
