package core

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden is returned when a non-host identity attempts a
	// host-only mutation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotLive is returned for playback events or talkback toggles sent
	// to a session that is not live.
	ErrNotLive = errors.New("session is not live")
	// ErrEmptyBlock is returned when a block has no entries.
	ErrEmptyBlock = errors.New("block has no entries")
	// ErrStaleWrite means a conditional write lost a race. Callers must
	// re-read and retry; the engine never loops on conflicts itself.
	ErrStaleWrite = errors.New("stale write, re-read and retry")
	// ErrSessionNotFound is returned for operations on an absent session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyLiveElsewhere marks attempts to break the global single
	// live session invariant. Use errors.As with *AlreadyLiveError to
	// learn which key holds the slot.
	ErrAlreadyLiveElsewhere = errors.New("another session is already live")
)

// AlreadyLiveError names the session key currently holding the live slot,
// so the host console can offer a stop-then-start.
type AlreadyLiveError struct {
	LiveKey string
}

func (e *AlreadyLiveError) Error() string {
	return fmt.Sprintf("another session is already live: %s", e.LiveKey)
}

func (e *AlreadyLiveError) Is(target error) bool {
	return target == ErrAlreadyLiveElsewhere
}
