package bot

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/reconciler"
)

// Bot is a headless viewer: it joins a session's websocket channel, runs
// the reconciler against a simulated player and logs every correction. Used
// to watch a deployment from the outside exactly like a real viewer client.
type Bot struct {
	serverHost    string
	token         string
	sessionKey    string
	websocketConn *websocket.Conn

	player *SimPlayer
}

func New(host, token, sessionKey string) *Bot {
	return &Bot{
		serverHost: host,
		token:      token,
		sessionKey: sessionKey,
		player:     NewSimPlayer(),
	}
}

func (bot *Bot) Close() {
	if bot.websocketConn != nil {
		bot.websocketConn.Close()
	}
}

func (bot *Bot) Start() error {
	defer bot.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	dialer := &websocket.Dialer{
		HandshakeTimeout: 45 * time.Second,
	}
	header := http.Header{}
	header.Set("X-Auth", bot.token)

	c, resp, err := dialer.Dial(
		fmt.Sprintf("wss://%s/api/v1/sessions/%s/ws", bot.serverHost, bot.sessionKey),
		header,
	)
	if err != nil {
		return err
	}
	resp.Body.Close()

	bot.websocketConn = c

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := reconciler.New(bot.player, log.Logger)
	rec.OnTalkback(func() {
		log.Info().Str("service", "bot").Msg("talkback placeholder")
	})
	rec.OnEnded(func(session *core.Session) {
		if session != nil && session.InBlock() {
			log.Info().
				Str("service", "bot").
				Str("blockId", *session.BlockID).
				Int("blockIndex", *session.BlockIndex).
				Msg("session ended inside block, a later entry may be live")
		} else {
			log.Info().Str("service", "bot").Msg("session ended")
		}
		cancel()
	})

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, payload, err := c.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("service", "bot").Msg("read error")
				return
			}
			rec.ApplyRaw(payload)
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case <-interrupt:
			log.Info().Str("service", "bot").Msg("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return err
			}

			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		}
	}
}

// SimPlayer simulates local playback: position advances with wall clock
// while playing. Every transport command is logged.
type SimPlayer struct {
	mu       sync.Mutex
	playing  bool
	position float64
	lastTick time.Time
}

func NewSimPlayer() *SimPlayer {
	return &SimPlayer{lastTick: time.Now()}
}

func (p *SimPlayer) advance() {
	now := time.Now()
	if p.playing {
		p.position += now.Sub(p.lastTick).Seconds()
	}
	p.lastTick = now
}

func (p *SimPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.playing = true
	log.Info().Str("service", "bot").Msg("play")
}

func (p *SimPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.playing = false
	log.Info().Str("service", "bot").Msg("pause")
}

func (p *SimPlayer) Seek(position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	log.Info().
		Str("service", "bot").
		Float64("from", p.position).
		Float64("to", position).
		Msg("hard seek")
	p.position = position
}

func (p *SimPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.playing = false
	p.position = 0
}

func (p *SimPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.position
}

func (p *SimPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
