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

// ErrPositionRequired is returned for a pause or seek event that carries no
// position. Pause and seek make the supplied position authoritative
// immediately, so it cannot be omitted.
var ErrPositionRequired = errors.New("position is required for pause and seek events")

// PlaybackEvent is a host-originated transport update. Nil fields are left
// unchanged on the session.
type PlaybackEvent struct {
	IsPlaying *bool    `json:"is_playing,omitempty"`
	Position  *float64 `json:"position,omitempty"`
}

// LifecycleNotifier receives session lifecycle events for the surrounding
// platform. Publishing is fire-and-forget from the engine's point of view.
type LifecycleNotifier interface {
	Publish(ctx context.Context, event LifecycleEvent)
}

type LifecycleEvent struct {
	Type       string  `json:"type"`
	SessionKey string  `json:"session_key"`
	ContentKey string  `json:"content_key"`
	BlockID    *string `json:"block_id,omitempty"`
	BlockIndex *int    `json:"block_index,omitempty"`
	At         string  `json:"at"`
}

const (
	EventScheduled = "scheduled"
	EventWentLive  = "went_live"
	EventEnded     = "ended"
)

type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, LifecycleEvent) {}

// Engine owns session lifecycle transitions. It validates commands against
// the liveness guard, commits the result to the session store exactly once
// and leaves fan-out to the store's change notifications. Conflicting
// structural writes surface as core.ErrStaleWrite or a *core.AlreadyLiveError
// and are never retried here.
type Engine struct {
	store    store.SessionStorer
	guard    *LivenessGuard
	notifier LifecycleNotifier
	log      zerolog.Logger
	now      func() time.Time
}

func New(sessions store.SessionStorer, logger zerolog.Logger) *Engine {
	return &Engine{
		store:    sessions,
		guard:    NewLivenessGuard(sessions),
		notifier: NopNotifier{},
		log:      logger.With().Str("service", "engine").Logger(),
		now:      time.Now,
	}
}

// WithNotifier attaches a lifecycle notifier. The default is a no-op.
func (e *Engine) WithNotifier(n LifecycleNotifier) *Engine {
	e.notifier = n
	return e
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Guard() *LivenessGuard {
	return e.guard
}

// Schedule marks a content key as eligible for going live. StartAt is
// advisory scheduling metadata; it is not enforced here.
func (e *Engine) Schedule(ctx context.Context, contentKey string, startAt time.Time, caller core.Identity) (*core.Session, error) {
	if !caller.IsHost() {
		return nil, core.ErrForbidden
	}

	var expectedVersion int64

	existing, err := e.store.Read(ctx, contentKey)
	switch {
	case err == nil:
		if existing.IsLive() {
			return nil, &core.AlreadyLiveError{LiveKey: existing.Key()}
		}
		expectedVersion = existing.Version
	case errors.Is(err, core.ErrSessionNotFound):
		expectedVersion = 0
	default:
		return nil, err
	}

	session := core.NewScheduledSession(contentKey, startAt)
	session.LastWriterID = caller.ID
	session.LastWriteTime = e.now()

	if err := e.store.ConditionalWrite(ctx, expectedVersion, session); err != nil {
		return nil, err
	}

	e.log.Info().Str("contentKey", contentKey).Time("startAt", startAt).Msg("session scheduled")
	e.notifier.Publish(ctx, e.lifecycleEvent(EventScheduled, session))

	return session, nil
}

// Start transitions a scheduled session to live. The liveness guard ensures
// at most one session across the whole catalog holds the live slot; losing
// the race yields a *core.AlreadyLiveError naming the current holder.
func (e *Engine) Start(ctx context.Context, contentKey string, caller core.Identity) (*core.Session, error) {
	if !caller.IsHost() {
		return nil, core.ErrForbidden
	}

	session, err := e.store.Read(ctx, contentKey)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case core.StatusLive:
		// starting the session that already holds the slot is a no-op,
		// so a host console reconnect does not error out
		return session, nil
	case core.StatusScheduled:
	default:
		return nil, core.ErrSessionNotFound
	}

	session.GoLive(caller.ID, e.now())

	if err := e.guard.Acquire(ctx, session); err != nil {
		return nil, err
	}

	telemetry.SessionStarted()
	e.log.Info().Str("sessionKey", session.Key()).Str("hostId", caller.ID).Msg("session live")
	e.notifier.Publish(ctx, e.lifecycleEvent(EventWentLive, session))

	return session, nil
}

// Stop transitions a session to ended and invalidates its backstage key.
// Stopping an already-ended session is a no-op success.
func (e *Engine) Stop(ctx context.Context, key string, caller core.Identity) (*core.Session, error) {
	if !caller.IsHost() {
		return nil, core.ErrForbidden
	}

	session, err := e.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}

	if session.Status == core.StatusEnded {
		return session, nil
	}

	wasLive := session.IsLive()
	session.End(caller.ID, e.now())

	if wasLive {
		err = e.guard.Release(ctx, session)
		if errors.Is(err, core.ErrStaleWrite) {
			// the pointer moved underneath us; if the session itself is
			// already ended (reaper, concurrent stop) this is still a
			// successful stop
			current, readErr := e.store.Read(ctx, key)
			if readErr == nil && current.Status == core.StatusEnded {
				return current, nil
			}
		}
	} else {
		// a scheduled session never held the live slot; ending it only
		// touches its own document
		err = e.store.ConditionalWrite(ctx, session.Version, session)
	}
	if err != nil {
		return nil, err
	}

	if wasLive {
		telemetry.SessionStopped()
	}
	e.log.Info().Str("sessionKey", session.Key()).Str("writerId", caller.ID).Msg("session ended")
	e.notifier.Publish(ctx, e.lifecycleEvent(EventEnded, session))

	return session, nil
}

// PushPlaybackEvent applies a host play/pause/seek to the live session.
// Transport events are last-write-wins: they are not compare-and-swapped,
// matching the single-host assumption for simple playback control.
func (e *Engine) PushPlaybackEvent(ctx context.Context, key string, caller core.Identity, event PlaybackEvent) (*core.Session, error) {
	if !caller.IsHost() {
		return nil, core.ErrForbidden
	}

	session, err := e.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if !session.IsLive() {
		return nil, core.ErrNotLive
	}

	if event.IsPlaying != nil && !*event.IsPlaying && event.Position == nil {
		return nil, ErrPositionRequired
	}

	if event.Position != nil {
		session.Position = *event.Position
	}
	if event.IsPlaying != nil {
		session.IsPlaying = *event.IsPlaying
	}
	session.LastWriterID = caller.ID
	session.LastWriteTime = e.now()

	if err := e.store.Write(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Heartbeat refreshes the authoritative position without touching the
// transport state, so staleness metadata stays current while the host takes
// no explicit action.
func (e *Engine) Heartbeat(ctx context.Context, key string, caller core.Identity, position float64) error {
	_, err := e.PushPlaybackEvent(ctx, key, caller, PlaybackEvent{Position: &position})
	return err
}

// ToggleTalkback flips the live Q&A sub-mode. The flip is guarded by the
// document version so two console tabs cannot silently cancel each other.
func (e *Engine) ToggleTalkback(ctx context.Context, key string, caller core.Identity) (*core.Session, error) {
	if !caller.IsHost() {
		return nil, core.ErrForbidden
	}

	session, err := e.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if !session.IsLive() {
		return nil, core.ErrNotLive
	}

	expected := session.Version
	session.TalkbackActive = !session.TalkbackActive
	session.LastWriterID = caller.ID
	session.LastWriteTime = e.now()

	if err := e.store.ConditionalWrite(ctx, expected, session); err != nil {
		return nil, err
	}

	e.log.Info().Str("sessionKey", session.Key()).Bool("talkback", session.TalkbackActive).Msg("talkback toggled")

	return session, nil
}

// VerifyBackstage checks a co-host token against the issuing session. The
// token is only honored while that session is live; the same string is
// rejected the instant the session ends.
func (e *Engine) VerifyBackstage(ctx context.Context, key, backstageKey string) error {
	session, err := e.store.Read(ctx, key)
	if err != nil {
		return err
	}
	if !session.IsLive() || backstageKey == "" || session.BackstageKey != backstageKey {
		return core.ErrForbidden
	}
	return nil
}

func (e *Engine) GetSession(ctx context.Context, key string) (*core.Session, error) {
	return e.store.Read(ctx, key)
}

// GetLiveSession resolves the live pointer to its session document.
func (e *Engine) GetLiveSession(ctx context.Context) (*core.Session, error) {
	key, err := e.guard.Current(ctx)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, core.ErrSessionNotFound
	}
	return e.store.Read(ctx, key)
}

func (e *Engine) lifecycleEvent(eventType string, session *core.Session) LifecycleEvent {
	return LifecycleEvent{
		Type:       eventType,
		SessionKey: session.Key(),
		ContentKey: session.ContentKey,
		BlockID:    session.BlockID,
		BlockIndex: session.BlockIndex,
		At:         e.now().UTC().Format(time.RFC3339),
	}
}
