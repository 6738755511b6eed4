package reconciler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/store"
	"github.com/frameline/screenroom/internal/telemetry"
)

// Player is the local playback surface one viewer drives. The reconciler
// never renders anything itself; it only issues transport commands.
type Player interface {
	Play()
	Pause()
	Seek(position float64)
	Stop()
	Position() float64
	Playing() bool
}

// Reconciler consumes the authoritative session stream for one viewer and
// adjusts local playback to match. It is purely reactive: one decision per
// update, no polling, and it never raises engine errors back upstream; a
// malformed document degrades to "treat as ended".
type Reconciler struct {
	player Player
	log    zerolog.Logger

	onTalkback func()
	onEnded    func(*core.Session)
}

func New(player Player, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		player: player,
		log:    logger.With().Str("service", "reconciler").Logger(),
	}
}

// OnTalkback is called when the session enters the Q&A sub-mode and the
// viewer should render the placeholder instead of video.
func (r *Reconciler) OnTalkback(callback func()) {
	r.onTalkback = callback
}

// OnEnded is called when the session ends or disappears. The session, when
// present, carries block id and index so the caller can follow a block
// advance to the next entry.
func (r *Reconciler) OnEnded(callback func(*core.Session)) {
	r.onEnded = callback
}

// Apply reconciles local playback against one authoritative update.
func (r *Reconciler) Apply(session *core.Session) {
	if session == nil || session.Status == core.StatusEnded || session.Status == core.StatusDisabled {
		r.player.Stop()
		if r.onEnded != nil {
			r.onEnded(session)
		}
		return
	}

	if session.TalkbackActive {
		// no playback-position updates are expected in talkback mode
		r.player.Stop()
		if r.onTalkback != nil {
			r.onTalkback()
		}
		return
	}

	if core.DriftExceeded(r.player.Position(), session.Position) {
		telemetry.DriftSeek()
		r.log.Debug().
			Float64("local", r.player.Position()).
			Float64("authoritative", session.Position).
			Msg("hard seek")
		r.player.Seek(session.Position)
	}

	if session.IsPlaying != r.player.Playing() {
		if session.IsPlaying {
			r.player.Play()
		} else {
			r.player.Pause()
		}
	}
}

// ApplyRaw decodes one notification payload and applies it. Broken payloads
// degrade to ended rather than erroring a read-only subscriber.
func (r *Reconciler) ApplyRaw(payload []byte) {
	session, err := core.SessionFromJSON(payload)
	if err != nil {
		r.log.Warn().Err(err).Msg("malformed session document, treating as ended")
		r.Apply(nil)
		return
	}
	r.Apply(session)
}

// Run consumes a change-notification feed until it closes or the context is
// canceled.
func (r *Reconciler) Run(ctx context.Context, feed store.Feed) {
	channel := feed.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-channel:
			if !ok {
				return
			}
			r.ApplyRaw([]byte(msg.Payload))
		}
	}
}
