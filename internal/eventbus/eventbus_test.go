package eventbus

import (
	"github.com/go-redis/redis/v8"
)

type MockSubscriber struct {
	CommandsSubscribed bool
	Bus                *MockBus
}

func NewMockSubscriber(bus *MockBus) *MockSubscriber {
	return &MockSubscriber{
		Bus: bus,
	}
}

func (s *MockSubscriber) SubscribeCommands() (Bus, error) {
	s.CommandsSubscribed = true

	return s.Bus, nil
}

type MockBus struct {
	Messages chan *redis.Message
}

func NewMockBus() *MockBus {
	return &MockBus{Messages: make(chan *redis.Message)}
}

func (b *MockBus) Channel() <-chan *redis.Message {
	return b.Messages
}

func (b *MockBus) Close() error {
	close(b.Messages)
	return nil
}
