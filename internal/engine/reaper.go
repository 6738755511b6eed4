package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/store"
	"github.com/frameline/screenroom/internal/telemetry"
)

const reaperWriterID = "reaper"

// Reaper protects the liveness invariant against a host process crashing
// while live: a live session whose last write is older than the staleness
// threshold is force-transitioned to ended. The threshold is generous, a
// multiple of the heartbeat interval, so a merely slow host is never
// reaped.
type Reaper struct {
	store     store.SessionStorer
	guard     *LivenessGuard
	interval  time.Duration
	threshold time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewReaper(sessions store.SessionStorer, guard *LivenessGuard, interval, threshold time.Duration, logger zerolog.Logger) *Reaper {
	if threshold <= 0 {
		threshold = 10 * DefaultHeartbeatInterval
	}
	if interval <= 0 {
		interval = threshold / 2
	}
	return &Reaper{
		store:     sessions,
		guard:     guard,
		interval:  interval,
		threshold: threshold,
		log:       logger.With().Str("service", "reaper").Logger(),
		now:       time.Now,
	}
}

// Run sweeps until the context is canceled.
func (r *Reaper) Run(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Dur("threshold", r.threshold).Msg("reaper started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// Sweep runs one pass: reap the pointed-to live session when stale, and
// repair any stray live document that does not hold the pointer.
func (r *Reaper) Sweep(ctx context.Context) error {
	liveKey, err := r.guard.Current(ctx)
	if err != nil {
		return err
	}

	if liveKey != "" {
		if err := r.reapPointer(ctx, liveKey); err != nil {
			return err
		}
	}

	return r.repairStrays(ctx, liveKey)
}

func (r *Reaper) reapPointer(ctx context.Context, liveKey string) error {
	session, err := r.store.Read(ctx, liveKey)
	if errors.Is(err, core.ErrSessionNotFound) {
		// dangling pointer, clear it
		return r.ignoreStale(r.store.SwapLive(ctx, liveKey, ""))
	}
	if err != nil {
		return err
	}

	if !session.IsLive() {
		return r.ignoreStale(r.store.SwapLive(ctx, liveKey, ""))
	}
	if r.now().Sub(session.LastWriteTime) < r.threshold {
		return nil
	}

	session.End(reaperWriterID, r.now())
	if err := r.ignoreStale(r.guard.Release(ctx, session)); err != nil {
		return err
	}

	telemetry.SessionReaped()
	r.log.Warn().
		Str("sessionKey", liveKey).
		Time("lastWrite", session.LastWriteTime).
		Msg("reaped stale live session")

	return nil
}

// repairStrays ends any document claiming to be live without holding the
// pointer. These can only appear through outside interference, but leaving
// one around would mislead readers scanning the store.
func (r *Reaper) repairStrays(ctx context.Context, liveKey string) error {
	sessions, err := r.store.ReadAll(ctx)
	if err != nil {
		return err
	}

	for _, session := range sessions {
		if !session.IsLive() || session.Key() == liveKey {
			continue
		}

		version := session.Version
		session.End(reaperWriterID, r.now())
		if err := r.ignoreStale(r.store.ConditionalWrite(ctx, version, session)); err != nil {
			return err
		}

		telemetry.SessionReaped()
		r.log.Warn().Str("sessionKey", session.Key()).Msg("ended stray live session")
	}

	return nil
}

// ignoreStale drops lost races: someone else moved the state first, which
// is exactly the outcome the reaper wanted.
func (r *Reaper) ignoreStale(err error) error {
	if errors.Is(err, core.ErrStaleWrite) {
		return nil
	}
	return err
}
