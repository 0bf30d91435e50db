package cybergear

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// ReleaseTimeout bounds the disable frame sent by Guard.Release.
var ReleaseTimeout = time.Second

// Guard disables its motor when released. Obtain one with Engage and defer
// Release so the motor is disabled on every exit path.
type Guard struct {
	m        *Motor
	released bool
}

// Engage enables m and returns a guard for it. The guard is returned even
// when the enable send fails, since the motor may have received it; the
// caller should still Release it.
func (m *Motor) Engage(ctx context.Context) (*Guard, error) {
	err := m.Enable(ctx)
	return &Guard{m: m}, err
}

// Motor returns the guarded motor.
func (g *Guard) Motor() *Motor { return g.m }

// Release sends a disable frame. It ignores cancellation of ctx so that
// cleanup runs after an interrupt, bounded by ReleaseTimeout. Only the first
// call sends; later calls return nil.
func (g *Guard) Release(ctx context.Context) error {
	if g.released {
		return nil
	}
	g.released = true
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ReleaseTimeout)
	defer cancel()
	return g.m.Disable(ctx)
}

// ReleaseInto is Release for use in a defer with a named error result:
//
//	defer g.ReleaseInto(ctx, &err)
//
// The disable error is appended to *errp.
func (g *Guard) ReleaseInto(ctx context.Context, errp *error) {
	multierr.AppendInto(errp, g.Release(ctx))
}
