package meeting

import (
	"context"

	"github.com/dkeye/Meet/internal/core"
)

// OpenGate admits every join. Used when no meeting store is configured.
type OpenGate struct{}

func (OpenGate) CanJoin(context.Context, string, string) (core.Admission, error) {
	return core.Admission{Allowed: true}, nil
}
