package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/eventbus"
	"github.com/frameline/screenroom/internal/store"
)

const (
	wsFeedKey       = "feed"
	wsIdentityKey   = "identity"
	wsSessionKeyKey = "sessionKey"
)

// WebsocketsHandler upgrades a viewer connection and binds it to the
// session's change-notification feed. A reconnecting viewer always receives
// the full current state first, so no event can be permanently missed.
func WebsocketsHandler(sessions store.SessionStorer, websocket *melody.Melody) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := identityFromRequest(r)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("can't get identity from request context")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		sessionKey := chi.URLParam(r, "key")

		feed, err := sessions.Subscribe(r.Context(), sessionKey)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("can't subscribe to session feed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		sessKeys := make(map[string]interface{})
		sessKeys[wsIdentityKey] = identity
		sessKeys[wsSessionKeyKey] = sessionKey
		sessKeys[wsFeedKey] = feed

		websocket.HandleRequestWithKeys(w, r, sessKeys)
	}
}

// ConnectHandler sends the full current state and starts pumping change
// notifications into the websocket. An absent session is reported as ended;
// a reader is not supposed to distinguish the two.
func ConnectHandler(sessions store.SessionStorer) func(*melody.Session) {
	return func(wsSession *melody.Session) {
		feed, err := getFeed(wsSession)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("extract feed")
			log.Error().Err(wsSession.Close()).Str("service", "websockets").Msg("close session")
			return
		}

		sessionKey, err := getSessionKey(wsSession)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("extract session key")
			feed.Close()
			return
		}

		current, err := sessions.Read(wsSession.Request.Context(), sessionKey)
		if err != nil {
			current = &core.Session{ContentKey: core.ContentKeyOf(sessionKey), Status: core.StatusEnded}
		}
		payload, err := json.Marshal(current.ViewerView())
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("encode current state")
			feed.Close()
			return
		}
		if err := wsSession.Write(payload); err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("write current state")
			feed.Close()
			return
		}

		go func() {
			ch := feed.Channel()

			for msg := range ch {
				if err := wsSession.Write([]byte(msg.Payload)); err != nil {
					// there's only session closed error can be
					log.Error().Err(err).Str("service", "websockets").Msg("")
					return
				}
			}
		}()
	}
}

func DisconnectHandler(wsSession *melody.Session) {
	feed, err := getFeed(wsSession)
	if err != nil {
		log.Error().Err(err).Str("service", "websockets").Msg("extract feed")
		log.Error().Err(wsSession.Close()).Str("service", "websockets").Msg("close session")
		return
	}
	if err := feed.Close(); err != nil {
		log.Error().Err(err).Str("service", "websockets").Msg("close feed")
	}
}

// HandleMessage forwards inbound RPCs to the command bus. Viewers may only
// post chat; host methods from a viewer connection are dropped here before
// the engine would reject them anyway.
func HandleMessage(commands eventbus.Publisher) func(s *melody.Session, msg []byte) {
	return func(s *melody.Session, msg []byte) {
		identity, err := getIdentity(s)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("extract identity")
			return
		}
		sessionKey, err := getSessionKey(s)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("extract session key")
			return
		}

		reader := bytes.NewReader(msg)
		rpc, err := eventbus.RpcFromReader(reader)
		if err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("rpc parse error")
			return
		}

		if rpc.GetMethod() != eventbus.ChatMessageMethod && !identity.IsHost() {
			log.Warn().
				Str("service", "websockets").
				Str("rpcMethod", string(rpc.GetMethod())).
				Str("callerId", identity.ID).
				Msg("host method from viewer connection dropped")
			return
		}

		if err := commands.PublishCommand(identity, sessionKey, rpc); err != nil {
			log.Error().Err(err).Str("service", "websockets").Msg("publish command error")
		}
	}
}

func getFeed(s *melody.Session) (store.Feed, error) {
	value, ok := s.Keys[wsFeedKey]
	if !ok {
		return nil, fmt.Errorf("no feed for given session: %+v", s)
	}
	feed, ok := value.(store.Feed)
	if !ok {
		return nil, fmt.Errorf("can't convert feed: %+v", value)
	}
	return feed, nil
}

func getIdentity(s *melody.Session) (core.Identity, error) {
	value, ok := s.Keys[wsIdentityKey]
	if !ok {
		return core.Identity{}, fmt.Errorf("no identity for given session: %+v", s)
	}
	identity, ok := value.(core.Identity)
	if !ok {
		return core.Identity{}, fmt.Errorf("can't convert identity: %+v", value)
	}
	return identity, nil
}

func getSessionKey(s *melody.Session) (string, error) {
	value, ok := s.Keys[wsSessionKeyKey]
	if !ok {
		return "", fmt.Errorf("no session key for given session: %+v", s)
	}
	key, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("can't convert session key: %+v", value)
	}
	return key, nil
}
