package store

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/frameline/screenroom/internal/core"
)

// Feed is a change-notification stream for one session document. Messages
// carry the full viewer-safe session JSON, in write order.
type Feed interface {
	Channel() <-chan *redis.Message
	Close() error
}

// SessionStorer is the session store consumed by the engine: one document
// per session key, conditional writes, push-based change notification, and
// the single live-pointer record backing the liveness invariant.
type SessionStorer interface {
	Read(ctx context.Context, key string) (*core.Session, error)
	ReadAll(ctx context.Context) ([]*core.Session, error)

	// Write is a last-write-wins update used for playback events and
	// heartbeats. It bumps the document version and notifies subscribers.
	Write(ctx context.Context, session *core.Session) error

	// ConditionalWrite succeeds only when the stored document still has
	// expectedVersion. Pass zero to require the document to be absent.
	// Loses a race with core.ErrStaleWrite.
	ConditionalWrite(ctx context.Context, expectedVersion int64, session *core.Session) error

	// LiveKey returns the session key currently holding the live slot,
	// or empty when no session is live.
	LiveKey(ctx context.Context) (string, error)

	// SwapLive compare-and-swaps the live pointer from expectedKey to
	// newKey and applies the given document writes in the same atomic
	// step. Empty keys mean "no live session". Fails with
	// core.ErrStaleWrite when the pointer moved underneath the caller.
	SwapLive(ctx context.Context, expectedKey, newKey string, writes ...*core.Session) error

	Subscribe(ctx context.Context, key string) (Feed, error)
}

// Subscription wraps a redis pubsub bound to one session document.
type Subscription struct {
	pubsub *redis.PubSub
}

func (s *Subscription) Channel() <-chan *redis.Message {
	return s.pubsub.Channel()
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
