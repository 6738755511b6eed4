package eventbus

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/frameline/screenroom/internal/core"
)

const commandsChannel = "screenroom:commands"

// Command wraps an RPC with the verified identity that issued it and the
// session key it targets. Websocket frontends publish commands here and a
// single router per process consumes them, so the command path stays the
// same whether a host console talks to this instance or another one.
type Command struct {
	Caller     core.Identity   `json:"caller"`
	SessionKey string          `json:"session_key"`
	Rpc        json.RawMessage `json:"rpc"`
}

// Bus is a consumable message stream.
type Bus interface {
	Channel() <-chan *redis.Message
	Close() error
}

type Publisher interface {
	PublishCommand(caller core.Identity, sessionKey string, rpc Rpc) error
}

type Subscriber interface {
	SubscribeCommands() (Bus, error)
}

type Eventbus struct {
	rdb *redis.Client
}

// RedisPubSub is factory for building Eventbus based on redis pubsub
func RedisPubSub(rdb *redis.Client) *Eventbus {
	return &Eventbus{rdb: rdb}
}

func (e *Eventbus) PublishCommand(caller core.Identity, sessionKey string, rpc Rpc) error {
	raw, err := rpc.ToJSON()
	if err != nil {
		return err
	}

	msg, err := json.Marshal(Command{
		Caller:     caller,
		SessionKey: sessionKey,
		Rpc:        raw,
	})
	if err != nil {
		return err
	}

	return e.rdb.Publish(context.Background(), commandsChannel, msg).Err()
}

func (e *Eventbus) SubscribeCommands() (Bus, error) {
	ctx := context.Background()
	pubsub := e.rdb.Subscribe(ctx, commandsChannel)
	// Wait until subscription is created
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
