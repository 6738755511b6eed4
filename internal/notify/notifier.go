package notify

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/frameline/screenroom/internal/engine"
)

const (
	// LifecycleSubject carries session lifecycle events for the rest of
	// the platform (catalog, analytics, notifications).
	LifecycleSubject = "screenroom.sessions.lifecycle"

	lifecycleQueue = "screenroom-notify"
)

// NatsPublisher publishes lifecycle events to NATS. Publishing is best
// effort: a broker hiccup is logged, never surfaced to the host command
// that triggered the event.
type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(natsAddr string) (*NatsPublisher, error) {
	nc, err := nats.Connect(natsAddr, nats.NoEcho())
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{nc: nc}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, event engine.LifecycleEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("service", "notify").Msg("marshal lifecycle event")
		return
	}

	if err := p.nc.Publish(LifecycleSubject, payload); err != nil {
		log.Error().Err(err).Str("service", "notify").Str("type", event.Type).Msg("publish lifecycle event")
	}
}

func (p *NatsPublisher) Close() {
	p.nc.Close()
}
