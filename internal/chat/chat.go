package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/store"
)

const (
	logKeyPrefix    = "screenroom:chat:log:"
	eventsKeyPrefix = "screenroom:chat:events:"

	historyDefaultLimit = 100
)

// Message is one chat entry. The log is append-only and ordered by SentAt;
// the engine never mutates or deletes entries.
type Message struct {
	ID              string    `json:"id"`
	AuthorName      string    `json:"author_name"`
	AuthorAvatarRef string    `json:"author_avatar_ref,omitempty"`
	Text            string    `json:"text"`
	SentAt          time.Time `json:"sent_at"`
}

// Channel is the append-only ordered log keyed by content key. Persistence
// belongs to the surrounding platform; this is the side-channel primitive
// the engine publishes into.
type Channel interface {
	Append(ctx context.Context, contentKey string, message *Message) error
	History(ctx context.Context, contentKey string, limit int64) ([]*Message, error)
	Subscribe(ctx context.Context, contentKey string) (store.Feed, error)
}

type RedisChannel struct {
	rdb *redis.Client
}

func NewRedisChannel(rdb *redis.Client) *RedisChannel {
	return &RedisChannel{rdb: rdb}
}

func (c *RedisChannel) Append(ctx context.Context, contentKey string, message *Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, logKeyPrefix+contentKey, payload)
		pipe.Publish(ctx, eventsKeyPrefix+contentKey, payload)
		return nil
	})
	return err
}

func (c *RedisChannel) History(ctx context.Context, contentKey string, limit int64) ([]*Message, error) {
	if limit <= 0 {
		limit = historyDefaultLimit
	}

	payloads, err := c.rdb.LRange(ctx, logKeyPrefix+contentKey, -limit, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]*Message, 0, len(payloads))
	for _, payload := range payloads {
		message := &Message{}
		if err := json.Unmarshal([]byte(payload), message); err != nil {
			continue
		}
		messages = append(messages, message)
	}

	return messages, nil
}

func (c *RedisChannel) Subscribe(ctx context.Context, contentKey string) (store.Feed, error) {
	pubsub := c.rdb.Subscribe(ctx, eventsKeyPrefix+contentKey)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}
	return &subscription{pubsub: pubsub}, nil
}

type subscription struct {
	pubsub *redis.PubSub
}

func (s *subscription) Channel() <-chan *redis.Message {
	return s.pubsub.Channel()
}

func (s *subscription) Close() error {
	return s.pubsub.Close()
}

// Service gates writes into the chat channel. The engine owns no chat
// state; it only decides who may append: any verified identity may post to
// the chat of a live or ended session, nobody may post before one exists.
type Service struct {
	sessions store.SessionStorer
	channel  Channel
	now      func() time.Time
}

func NewService(sessions store.SessionStorer, channel Channel) *Service {
	return &Service{
		sessions: sessions,
		channel:  channel,
		now:      time.Now,
	}
}

// Post authorizes and appends one message to the content key's chat.
func (s *Service) Post(ctx context.Context, contentKey string, caller core.Identity, text string) (*Message, error) {
	if err := s.authorize(ctx, contentKey); err != nil {
		return nil, err
	}

	message := &Message{
		ID:              uuid.New().String(),
		AuthorName:      caller.Name,
		AuthorAvatarRef: caller.Avatar,
		Text:            text,
		SentAt:          s.now(),
	}

	if err := s.channel.Append(ctx, contentKey, message); err != nil {
		return nil, err
	}

	return message, nil
}

func (s *Service) History(ctx context.Context, contentKey string, limit int64) ([]*Message, error) {
	return s.channel.History(ctx, contentKey, limit)
}

func (s *Service) authorize(ctx context.Context, contentKey string) error {
	// a block session for this content key holds the live pointer under a
	// composite key, so check the live slot before the bare document
	liveKey, err := s.sessions.LiveKey(ctx)
	if err != nil {
		return err
	}
	if liveKey != "" && core.ContentKeyOf(liveKey) == contentKey {
		return nil
	}

	session, err := s.sessions.Read(ctx, contentKey)
	if errors.Is(err, core.ErrSessionNotFound) {
		return s.authorizeBlockHistory(ctx, contentKey)
	}
	if err != nil {
		return err
	}

	switch session.Status {
	case core.StatusLive, core.StatusEnded:
		return nil
	default:
		return core.ErrForbidden
	}
}

// authorizeBlockHistory covers content keys that only ever played inside a
// block: their sessions live under composite keys, so an ended block entry
// keeps the content key's chat open exactly like an ended standalone
// session.
func (s *Service) authorizeBlockHistory(ctx context.Context, contentKey string) error {
	sessions, err := s.sessions.ReadAll(ctx)
	if err != nil {
		return err
	}

	for _, session := range sessions {
		if session.ContentKey != contentKey || !session.InBlock() {
			continue
		}
		switch session.Status {
		case core.StatusLive, core.StatusEnded:
			return nil
		}
	}

	return core.ErrForbidden
}
