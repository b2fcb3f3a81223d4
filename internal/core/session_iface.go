package core

import "github.com/dkeye/Meet/internal/domain"

type SessionID string

// MemberSession binds an authenticated identity and its transport endpoint.
// This is what the connection-identity map stores and relays to.
type MemberSession interface {
	ID() SessionID
	Identity() *domain.Identity
	Signal() SignalConnection
}
