package store

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/frameline/screenroom/internal/core"
)

const (
	sessionKeyPrefix = "screenroom:sessions:"
	eventsKeyPrefix  = "screenroom:events:"
	livePointerKey   = "screenroom:live"

	scanBatchSize = 100
)

// RedisStore keeps one JSON document per session key. Structural writes go
// through WATCH/MULTI so that concurrent hosts lose with a conflict instead
// of clobbering each other, and every committed write is published to the
// session's events channel for subscribers.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func docKey(key string) string {
	return sessionKeyPrefix + key
}

// EventsChannel is the pubsub channel carrying change notifications for
// one session key.
func EventsChannel(key string) string {
	return eventsKeyPrefix + key
}

func (s *RedisStore) Read(ctx context.Context, key string) (*core.Session, error) {
	payload, err := s.rdb.Get(ctx, docKey(key)).Result()
	if err == redis.Nil {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return core.SessionFromJSON([]byte(payload))
}

func (s *RedisStore) ReadAll(ctx context.Context) ([]*core.Session, error) {
	var (
		sessions []*core.Session
		cursor   uint64
	)

	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, sessionKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			payload, err := s.rdb.Get(ctx, key).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, err
			}
			session, err := core.SessionFromJSON([]byte(payload))
			if err != nil {
				// a malformed document must not take the reaper down
				continue
			}
			sessions = append(sessions, session)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}

func (s *RedisStore) Write(ctx context.Context, session *core.Session) error {
	session.Version++

	payload, err := session.ToJSON()
	if err != nil {
		return err
	}
	view, err := session.ViewerView().ToJSON()
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(session.Key()), payload, 0)
		pipe.Publish(ctx, EventsChannel(session.Key()), view)
		return nil
	})
	return err
}

func (s *RedisStore) ConditionalWrite(ctx context.Context, expectedVersion int64, session *core.Session) error {
	key := docKey(session.Key())

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		if expectedVersion == 0 {
			if err != redis.Nil {
				return core.ErrStaleWrite
			}
		} else {
			if err == redis.Nil {
				return core.ErrSessionNotFound
			}
			stored, err := core.SessionFromJSON([]byte(current))
			if err != nil {
				return err
			}
			if stored.Version != expectedVersion {
				return core.ErrStaleWrite
			}
		}

		session.Version = expectedVersion + 1

		payload, err := session.ToJSON()
		if err != nil {
			return err
		}
		view, err := session.ViewerView().ToJSON()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.Publish(ctx, EventsChannel(session.Key()), view)
			return nil
		})
		return err
	}, key)

	if err == redis.TxFailedErr {
		return core.ErrStaleWrite
	}
	return err
}

func (s *RedisStore) LiveKey(ctx context.Context) (string, error) {
	key, err := s.rdb.Get(ctx, livePointerKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *RedisStore) SwapLive(ctx context.Context, expectedKey, newKey string, writes ...*core.Session) error {
	watched := []string{livePointerKey}
	for _, session := range writes {
		watched = append(watched, docKey(session.Key()))
	}

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, livePointerKey).Result()
		if err == redis.Nil {
			current = ""
		} else if err != nil {
			return err
		}

		if current != expectedKey {
			return core.ErrStaleWrite
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, session := range writes {
				session.Version++
				payload, err := session.ToJSON()
				if err != nil {
					return err
				}
				view, err := session.ViewerView().ToJSON()
				if err != nil {
					return err
				}
				pipe.Set(ctx, docKey(session.Key()), payload, 0)
				pipe.Publish(ctx, EventsChannel(session.Key()), view)
			}

			if newKey == "" {
				pipe.Del(ctx, livePointerKey)
			} else {
				pipe.Set(ctx, livePointerKey, newKey, 0)
			}
			return nil
		})
		return err
	}, watched...)

	if err == redis.TxFailedErr {
		return core.ErrStaleWrite
	}
	return err
}

func (s *RedisStore) Subscribe(ctx context.Context, key string) (Feed, error) {
	pubsub := s.rdb.Subscribe(ctx, EventsChannel(key))
	// Wait until the subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	return &Subscription{pubsub: pubsub}, nil
}

// Ping verifies connectivity on startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}
