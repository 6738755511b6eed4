package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/frameline/screenroom/internal/engine"
)

// Daemon consumes lifecycle events from the NATS queue and forwards them to
// a configured webhook. Queue subscription means one delivery per event no
// matter how many daemon instances run.
type Daemon struct {
	nc  *nats.Conn
	sub *nats.Subscription

	webhookURL string
	client     *http.Client

	errors chan error
	stop   chan struct{}
}

func New(natsAddr, webhookURL string) (*Daemon, error) {
	nc, err := nats.Connect(natsAddr, nats.NoEcho())
	if err != nil {
		return nil, err
	}

	daemon := &Daemon{
		nc:         nc,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		errors:     make(chan error),
		stop:       make(chan struct{}),
	}

	return daemon, nil
}

func (d *Daemon) Run() error {
	log.Info().Msg("start notify daemon")

	var err error
	d.sub, err = d.nc.QueueSubscribe(LifecycleSubject, lifecycleQueue, func(msg *nats.Msg) {
		if err := d.forward(msg); err != nil {
			d.errors <- err
		}
	})
	if err != nil {
		return err
	}

	for {
		select {
		case err := <-d.errors:
			log.Error().Err(err).Msg("")
		case <-d.stop:
			return d.Stop()
		}
	}
}

func (d *Daemon) Stop() error {
	log.Info().Msg("stop notify daemon")

	if err := d.sub.Unsubscribe(); err != nil {
		log.Error().Err(err).Msg("unsubscribe")
	}

	return d.nc.Drain()
}

func (d *Daemon) Shutdown() {
	close(d.stop)
}

func (d *Daemon) forward(msg *nats.Msg) error {
	event := &engine.LifecycleEvent{}

	r := bytes.NewReader(msg.Data)
	if err := json.NewDecoder(r).Decode(event); err != nil {
		return fmt.Errorf("notify error: %v, payload: %s", err, string(msg.Data[:]))
	}

	log.Info().
		Str("type", event.Type).
		Str("sessionKey", event.SessionKey).
		Msg("lifecycle event")

	if d.webhookURL == "" {
		return nil
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(msg.Data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned %d for %s", resp.StatusCode, event.Type)
	}

	return nil
}
