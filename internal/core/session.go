package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	StatusDisabled  SessionStatus = "disabled"
	StatusScheduled SessionStatus = "scheduled"
	StatusLive      SessionStatus = "live"
	StatusEnded     SessionStatus = "ended"
)

// Session is the authoritative live-playback record for one content key.
// It is stored as a single JSON document; Version is bumped on every write
// and checked by conditional writes.
type Session struct {
	ContentKey     string        `json:"content_key"`
	Status         SessionStatus `json:"status"`
	IsPlaying      bool          `json:"is_playing"`
	Position       float64       `json:"position"`
	TalkbackActive bool          `json:"talkback_active"`
	BackstageKey   string        `json:"backstage_key,omitempty"`
	HostID         string        `json:"host_id,omitempty"`
	BlockID        *string       `json:"block_id,omitempty"`
	BlockIndex     *int          `json:"block_index,omitempty"`
	StartAt        *time.Time    `json:"start_at,omitempty"`
	LastWriterID   string        `json:"last_writer_id,omitempty"`
	LastWriteTime  time.Time     `json:"last_write_time"`
	Version        int64         `json:"version"`
}

// Key returns the storage key of the session. Standalone sessions are keyed
// by bare content key. During block playback the same content key may occur
// more than once in a block, so the key carries block id and index too.
func (s *Session) Key() string {
	if s.BlockID == nil || s.BlockIndex == nil {
		return s.ContentKey
	}
	return SessionKey(s.ContentKey, *s.BlockID, *s.BlockIndex)
}

// SessionKey builds the storage key for a session playing inside a block.
func SessionKey(contentKey, blockID string, blockIndex int) string {
	return fmt.Sprintf("%s@%s/%d", contentKey, blockID, blockIndex)
}

// ContentKeyOf extracts the bare content key from a session key.
func ContentKeyOf(sessionKey string) string {
	if i := strings.IndexByte(sessionKey, '@'); i >= 0 {
		return sessionKey[:i]
	}
	return sessionKey
}

func (s *Session) IsLive() bool {
	return s.Status == StatusLive
}

func (s *Session) InBlock() bool {
	return s.BlockID != nil && s.BlockIndex != nil
}

// NewScheduledSession creates the record that marks a content key as
// eligible for going live. StartAt is advisory scheduling metadata.
func NewScheduledSession(contentKey string, startAt time.Time) *Session {
	return &Session{
		ContentKey: contentKey,
		Status:     StatusScheduled,
		StartAt:    &startAt,
	}
}

// GoLive transitions the session to Live and issues a fresh backstage key.
// Transport state is reset so viewers always join at a paused head position.
func (s *Session) GoLive(hostID string, now time.Time) {
	s.Status = StatusLive
	s.IsPlaying = false
	s.Position = 0
	s.TalkbackActive = false
	s.BackstageKey = NewBackstageKey()
	s.HostID = hostID
	s.LastWriterID = hostID
	s.LastWriteTime = now
}

// End retires the session. The backstage key is invalidated with it: a key
// is only ever honored while its issuing session is live.
func (s *Session) End(writerID string, now time.Time) {
	s.Status = StatusEnded
	s.IsPlaying = false
	s.TalkbackActive = false
	s.BackstageKey = ""
	s.LastWriterID = writerID
	s.LastWriteTime = now
}

// ViewerView returns a copy safe to fan out to viewer clients. The backstage
// key is host-and-guest material and never leaves through the viewer channel.
func (s *Session) ViewerView() *Session {
	v := *s
	v.BackstageKey = ""
	return &v
}

// NewBackstageKey generates a short opaque co-host token.
func NewBackstageKey() string {
	return strings.SplitN(uuid.New().String(), "-", 2)[0]
}

func SessionFromJSON(data []byte) (*Session, error) {
	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

func SessionFromReader(reader io.Reader) (*Session, error) {
	s := &Session{}
	if err := json.NewDecoder(reader).Decode(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}
