package engine

import (
	"context"
	"errors"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/store"
	"github.com/frameline/screenroom/internal/telemetry"
)

// LivenessGuard enforces the global singleton: at most one session across
// the whole catalog is live at any instant. It is a thin layer over the
// store's live-pointer compare-and-swap; every structural transition moves
// the pointer and writes the affected documents in one atomic step, so
// there is no window with two live sessions and no window where an empty
// pointer lets an unrelated start slip in mid-rotation.
type LivenessGuard struct {
	store store.SessionStorer
}

func NewLivenessGuard(sessions store.SessionStorer) *LivenessGuard {
	return &LivenessGuard{store: sessions}
}

// Current returns the session key holding the live slot, empty when none.
func (g *LivenessGuard) Current(ctx context.Context) (string, error) {
	return g.store.LiveKey(ctx)
}

// Acquire claims the live slot for the given session and commits its
// document. A lost race is reported as *core.AlreadyLiveError naming the
// current holder so the host console can offer a stop-then-start.
func (g *LivenessGuard) Acquire(ctx context.Context, session *core.Session) error {
	err := g.store.SwapLive(ctx, "", session.Key(), session)
	if errors.Is(err, core.ErrStaleWrite) {
		return g.alreadyLive(ctx)
	}
	return err
}

// Release gives the live slot back, committing the ended document in the
// same step. Fails with core.ErrStaleWrite when the slot is no longer held
// by this session.
func (g *LivenessGuard) Release(ctx context.Context, session *core.Session) error {
	return g.store.SwapLive(ctx, session.Key(), "", session)
}

// Rotate hands the live slot from one session to the next, committing both
// the ended and the freshly live document atomically. Used by block
// advance.
func (g *LivenessGuard) Rotate(ctx context.Context, ended, next *core.Session) error {
	return g.store.SwapLive(ctx, ended.Key(), next.Key(), ended, next)
}

func (g *LivenessGuard) alreadyLive(ctx context.Context) error {
	telemetry.LivenessConflict()

	current, err := g.store.LiveKey(ctx)
	if err != nil || current == "" {
		// the holder vanished between the failed swap and the re-read;
		// the caller retries with fresh state either way
		return core.ErrStaleWrite
	}
	return &core.AlreadyLiveError{LiveKey: current}
}
