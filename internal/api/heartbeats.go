package api

import (
	"context"
	"sync"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/engine"
)

// heartbeats owns the single server-side heartbeat runner. At most one
// session is live at a time, so starting a runner cancels any previous one.
type heartbeats struct {
	runner *engine.HeartbeatRunner

	mu     sync.Mutex
	key    string
	cancel context.CancelFunc
}

func newHeartbeats(runner *engine.HeartbeatRunner) *heartbeats {
	return &heartbeats{runner: runner}
}

func (h *heartbeats) start(key string, host core.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.key = key
	h.cancel = cancel

	go h.runner.Run(ctx, key, host)
}

// stop cancels the runner only when it heartbeats the given session key.
// Stopping a scheduled or already-ended session must not take down the
// runner of the session actually holding the live slot.
func (h *heartbeats) stop(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil && h.key == key {
		h.cancel()
		h.cancel = nil
		h.key = ""
	}
}

// stopAny cancels whatever runner is active, for shutdown.
func (h *heartbeats) stopAny() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
		h.key = ""
	}
}
