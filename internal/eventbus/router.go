package eventbus

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/frameline/screenroom/internal/core"
)

var (
	errConvertPlayback  = errors.New("can't convert to playback event")
	errConvertHeartbeat = errors.New("can't convert to heartbeat")
	errConvertAdvance   = errors.New("can't convert to advance_block rpc")
	errConvertChat      = errors.New("can't convert to chat_message rpc")
	errUndefinedMethod  = errors.New("undefined method")
	errNoCallback       = errors.New("no callback registered for method")
)

// Router consumes the host command channel and dispatches each RPC to the
// engine callback registered for its method.
type Router struct {
	CommandsSubscriber Subscriber
	subscription       Bus

	quit    chan struct{}
	stopped chan struct{}

	onPlaybackEvent  func(core.Identity, string, *PlaybackParams) error
	onHeartbeat      func(core.Identity, string, float64) error
	onToggleTalkback func(core.Identity, string) error
	onStopSession    func(core.Identity, string) error
	onAdvanceBlock   func(core.Identity, string) error
	onChatMessage    func(core.Identity, string, string) error
}

func NewRouter(sub Subscriber) (*Router, error) {
	router := &Router{
		CommandsSubscriber: sub,
	}
	subscription, err := router.CommandsSubscriber.SubscribeCommands()
	if err != nil {
		return nil, err
	}
	router.subscription = subscription

	return router, nil
}

func (router *Router) Start() <-chan struct{} {
	log.Debug().Str("service", "router").Msg("start")

	started := make(chan struct{})
	router.quit = make(chan struct{})
	router.stopped = make(chan struct{})

	go func() {
		defer close(router.stopped)
		close(started)

		channel := router.subscription.Channel()

		for {
			var msg *redis.Message
			var ok bool

			select {
			case <-router.quit:
				return
			case msg, ok = <-channel:
				if !ok {
					return
				}
			}

			router.dispatch(msg.Payload)
		}
	}()

	return started
}

func (router *Router) Stop() <-chan struct{} {
	close(router.quit)
	return router.stopped
}

func (router *Router) dispatch(payload string) {
	command, r, err := parseCommand(payload)
	if err != nil {
		log.Error().Err(err).Str("service", "router").Msg("")
		return
	}

	switch r.GetMethod() {
	case PlaybackEventMethod:
		if router.onPlaybackEvent == nil {
			log.Error().Err(errNoCallback).Str("rpcMethod", string(r.GetMethod())).Str("service", "router").Msg("")
			return
		}
		msg, ok := r.(*PlaybackEventRpc)
		if !ok {
			log.Error().Err(errConvertPlayback).Str("service", "router").Msg("")
			return
		}

		if err := router.onPlaybackEvent(command.Caller, command.SessionKey, msg.Params); err != nil {
			log.Error().Err(err).Str("service", "router").Msg("router: error on playback event")
		}
	case HeartbeatMethod:
		if router.onHeartbeat == nil {
			log.Error().Err(errNoCallback).Str("rpcMethod", string(r.GetMethod())).Str("service", "router").Msg("")
			return
		}
		msg, ok := r.(*HeartbeatRpc)
		if !ok {
			log.Error().Err(errConvertHeartbeat).Str("service", "router").Msg("")
			return
		}

		if err := router.onHeartbeat(command.Caller, command.SessionKey, msg.Params.Position); err != nil {
			log.Error().Err(err).Str("service", "router").Msg("router: error on heartbeat")
		}
	case ToggleTalkbackMethod:
		if router.onToggleTalkback == nil {
			log.Error().Err(errNoCallback).Str("rpcMethod", string(r.GetMethod())).Str("service", "router").Msg("")
			return
		}
		if err := router.onToggleTalkback(command.Caller, command.SessionKey); err != nil {
			log.Error().Err(err).Str("service", "router").Msg("toggle talkback error")
		}
	case StopSessionMethod:
		if router.onStopSession == nil {
			log.Error().Err(errNoCallback).Str("rpcMethod", string(r.GetMethod())).Str("service", "router").Msg("")
			return
		}
		if err := router.onStopSession(command.Caller, command.SessionKey); err != nil {
			log.Error().Err(err).Str("service", "router").Msg("stop session error")
		}
	case AdvanceBlockMethod:
		if router.onAdvanceBlock == nil {
			log.Error().Err(errNoCallback).Str("rpcMethod", string(r.GetMethod())).Str("service", "router").Msg("")
			return
		}
		msg, ok := r.(*AdvanceBlockRpc)
		if !ok {
			log.Error().Err(errConvertAdvance).Str("service", "router").Msg("")
			return
		}

		if err := router.onAdvanceBlock(command.Caller, msg.Params.BlockID); err != nil {
			log.Error().Err(err).Str("service", "router").Msg("advance block error")
		}
	case ChatMessageMethod:
		if router.onChatMessage == nil {
			log.Error().Err(errNoCallback).Str("rpcMethod", string(r.GetMethod())).Str("service", "router").Msg("")
			return
		}
		msg, ok := r.(*ChatMessageRpc)
		if !ok {
			log.Error().Err(errConvertChat).Str("service", "router").Msg("")
			return
		}

		if err := router.onChatMessage(command.Caller, command.SessionKey, msg.Params.Text); err != nil {
			log.Error().Err(err).Str("service", "router").Msg("chat message error")
		}
	default:
		log.Error().Err(errUndefinedMethod).Str("rpcMethod", string(r.GetMethod())).Str("service", "router").Msg("")
	}
}

func parseCommand(payload string) (*Command, Rpc, error) {
	command := &Command{}
	if err := json.Unmarshal([]byte(payload), command); err != nil {
		log.Error().Err(err).Str("service", "router").Msg("")
		return nil, nil, err
	}

	reader := bytes.NewReader(command.Rpc)
	rpc, err := RpcFromReader(reader)
	if err != nil {
		log.Error().Err(err).Str("service", "router").Msg("")
		return nil, nil, err
	}

	return command, rpc, nil
}

func (router *Router) OnPlaybackEvent(callback func(core.Identity, string, *PlaybackParams) error) {
	router.onPlaybackEvent = callback
}

func (router *Router) OnHeartbeat(callback func(core.Identity, string, float64) error) {
	router.onHeartbeat = callback
}

func (router *Router) OnToggleTalkback(callback func(core.Identity, string) error) {
	router.onToggleTalkback = callback
}

func (router *Router) OnStopSession(callback func(core.Identity, string) error) {
	router.onStopSession = callback
}

func (router *Router) OnAdvanceBlock(callback func(core.Identity, string) error) {
	router.onAdvanceBlock = callback
}

func (router *Router) OnChatMessage(callback func(core.Identity, string, string) error) {
	router.onChatMessage = callback
}
