package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/frameline/screenroom/internal/core"
)

// DefaultHeartbeatInterval is how often the host console refreshes the
// authoritative position while playing.
const DefaultHeartbeatInterval = 5 * time.Second

// HeartbeatRunner pushes position-only heartbeats for one live session so
// reconnecting viewers and the staleness reaper always see a recent write,
// even when the host takes no explicit action for a long stretch. At most
// one runner exists per process: there is at most one live session.
type HeartbeatRunner struct {
	engine   *Engine
	interval time.Duration
	log      zerolog.Logger
}

func NewHeartbeatRunner(engine *Engine, interval time.Duration, logger zerolog.Logger) *HeartbeatRunner {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &HeartbeatRunner{
		engine:   engine,
		interval: interval,
		log:      logger.With().Str("service", "heartbeat").Logger(),
	}
}

// Run heartbeats the given session until it stops being live or the context
// is canceled. The position is extrapolated from the last authoritative
// write while playing; paused sessions are left untouched.
func (h *HeartbeatRunner) Run(ctx context.Context, key string, host core.Identity) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		session, err := h.engine.GetSession(ctx, key)
		if err != nil {
			if errors.Is(err, core.ErrSessionNotFound) {
				return
			}
			h.log.Error().Err(err).Str("sessionKey", key).Msg("heartbeat read failed")
			continue
		}
		if !session.IsLive() {
			return
		}
		if !session.IsPlaying {
			continue
		}

		position := session.Position + h.engine.now().Sub(session.LastWriteTime).Seconds()
		if err := h.engine.Heartbeat(ctx, key, host, position); err != nil {
			if errors.Is(err, core.ErrNotLive) || errors.Is(err, core.ErrSessionNotFound) {
				return
			}
			h.log.Error().Err(err).Str("sessionKey", key).Msg("heartbeat write failed")
		}
	}
}
