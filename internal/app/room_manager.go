package app

import (
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl is the room registry. Lock order is room -> manager: a room
// removes itself via DeleteIf while holding its own lock, so the manager never
// calls into a room while holding mu.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService

	historyCap int
	chatMaxLen int
	now        func() time.Time
}

type RoomManagerOption func(*RoomManagerImpl)

func WithChatLimits(historyCap, maxLen int) RoomManagerOption {
	return func(f *RoomManagerImpl) {
		f.historyCap = historyCap
		f.chatMaxLen = maxLen
	}
}

func WithClock(now func() time.Time) RoomManagerOption {
	return func(f *RoomManagerImpl) { f.now = now }
}

func NewRoomManager(opts ...RoomManagerOption) *RoomManagerImpl {
	f := &RoomManagerImpl{
		rooms: make(map[domain.RoomID]core.RoomService),
		now:   time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// GetOrCreate returns the live room for id, creating it on first use.
// Concurrent callers for the same id always observe the same room.
func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID, meetingRef string, capacity int) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(
		&domain.Room{ID: id, MeetingRef: meetingRef, CreatedAt: f.now()},
		core.RoomOptions{
			Capacity:   capacity,
			HistoryCap: f.historyCap,
			ChatMaxLen: f.chatMaxLen,
			OnClosed:   func(rs core.RoomService) { f.DeleteIf(id, rs) },
		},
	)
	f.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("meeting", meetingRef).Int("capacity", room.Capacity()).Msg("room created")
	return room
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

// DeleteIf removes id only while it still maps to rs, so a closing room can
// never evict a successor created under the same id.
func (f *RoomManagerImpl) DeleteIf(id domain.RoomID, rs core.RoomService) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rooms[id]; ok && cur == rs {
		delete(f.rooms, id)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted")
		return true
	}
	return false
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	rooms := make([]core.RoomService, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	f.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		room := r.Room()
		out = append(out, core.RoomInfo{
			ID:          room.ID,
			MeetingRef:  room.MeetingRef,
			MemberCount: r.MemberCount(),
			Capacity:    r.Capacity(),
			CreatedAt:   room.CreatedAt,
		})
	}
	return out
}

// Rooms returns every live room. Used at shutdown.
func (f *RoomManagerImpl) Rooms() []core.RoomService {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomService, 0, len(f.rooms))
	for _, r := range f.rooms {
		out = append(out, r)
	}
	return out
}
