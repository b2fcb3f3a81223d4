package app

import (
	"context"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomID  domain.RoomID
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry is the connection-identity map: one live session per user, plus the
// room each session currently sits in.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[domain.UserID]core.SessionID
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[domain.UserID]core.SessionID),
	}
}

// Bind registers an authenticated session. If the user already had a live
// session it is returned so the caller can close it; its entry stays until its
// own disconnect unbinds it.
func (r *Registry) Bind(sess core.MemberSession, cancel context.CancelFunc) (previous core.MemberSession) {
	u := sess.Identity().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.users[u]; ok && old != sess.ID() {
		if e, ok := r.sessions[old]; ok {
			previous = e.Session
		}
	}
	r.sessions[sess.ID()] = &sessionEntry{Session: sess, Cancel: cancel}
	r.users[u] = sess.ID()
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID())).Str("user", string(u)).Bool("replaced", previous != nil).Msg("bound session")
	return previous
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Lookup resolves a user to its live session and current room.
func (r *Registry) Lookup(user domain.UserID) (core.MemberSession, domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.users[user]
	if !ok {
		return nil, "", false
	}
	e, ok := r.sessions[sid]
	if !ok {
		return nil, "", false
	}
	return e.Session, e.RoomID, true
}

// Unbind drops the session and returns the room it was in, if any. The user
// mapping is removed only if it still points at this session.
func (r *Registry) Unbind(sid core.SessionID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", nil, false
	}
	delete(r.sessions, sid)
	u := e.Session.Identity().ID
	if cur, ok := r.users[u]; ok && cur == sid {
		delete(r.users, u)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(u)).Msg("unbind session")
	return e.RoomID, e.Session, true
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.RoomID == "" {
		return "", nil, false
	}
	return entry.RoomID, entry.Session, true
}

func (r *Registry) UpdateRoom(sid core.SessionID, newRoom domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.RoomID = newRoom
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(newRoom)).Msg("updated room")
	return true
}

// RemoveRoom clears the room association if it is still room.
func (r *Registry) RemoveRoom(sid core.SessionID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok && entry.RoomID == room {
		entry.RoomID = ""
		log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("removed room association")
	}
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
