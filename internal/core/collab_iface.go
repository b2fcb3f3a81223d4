package core

import (
	"context"

	"github.com/dkeye/Meet/internal/domain"
)

// IdentityVerifier turns an opaque connection token into an identity.
// Implementations must honor ctx cancellation.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// Admission is the meeting store's answer to a join-time check.
// Capacity <= 0 means "use the server default".
type Admission struct {
	Allowed  bool
	Reason   string
	Capacity int
}

// MeetingGate is consulted before a join reaches room logic.
type MeetingGate interface {
	CanJoin(ctx context.Context, meetingRef, password string) (Admission, error)
}

// SummarySink accepts the closing summary of a room. Fire-and-forget from the
// room's point of view: errors are logged by the caller, never rolled back.
type SummarySink interface {
	Handoff(ctx context.Context, summary domain.RoomSummary) error
}
