package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/engine"
)

type ScheduleRequest struct {
	StartAt time.Time `json:"start_at"`
}

type PlaybackRequest struct {
	IsPlaying *bool    `json:"is_playing,omitempty"`
	Position  *float64 `json:"position,omitempty"`
}

type BackstageRequest struct {
	BackstageKey string `json:"backstage_key"`
}

type conflictResponse struct {
	Error   string `json:"error"`
	LiveKey string `json:"live_key,omitempty"`
}

// writeEngineError maps the engine taxonomy onto HTTP statuses. The
// AlreadyLiveElsewhere body names the live key so a console can offer a
// one-click stop-then-start.
func writeEngineError(w http.ResponseWriter, err error) {
	var alreadyLive *core.AlreadyLiveError

	switch {
	case errors.As(err, &alreadyLive):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(conflictResponse{
			Error:   "already_live_elsewhere",
			LiveKey: alreadyLive.LiveKey,
		})
	case errors.Is(err, core.ErrForbidden):
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, core.ErrSessionNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, core.ErrNotLive), errors.Is(err, core.ErrStaleWrite):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, core.ErrEmptyBlock), errors.Is(err, engine.ErrPositionRequired):
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		log.Error().Err(err).Str("service", "api").Msg("")
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeSession(w http.ResponseWriter, session *core.Session, caller core.Identity) {
	if !caller.IsHost() {
		session = session.ViewerView()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(session); err != nil {
		log.Error().Err(err).Str("service", "api").Msg("can't encode session")
	}
}

func ScheduleHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		req := &ScheduleRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		session, err := eng.Schedule(r.Context(), chi.URLParam(r, "key"), req.StartAt, caller)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		writeSession(w, session, caller)
	}
}

func StartHandler(eng *engine.Engine, hb *heartbeats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		session, err := eng.Start(r.Context(), chi.URLParam(r, "key"), caller)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		hb.start(session.Key(), caller)
		writeSession(w, session, caller)
	}
}

func StopHandler(eng *engine.Engine, hb *heartbeats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		session, err := eng.Stop(r.Context(), chi.URLParam(r, "key"), caller)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		hb.stop(session.Key())
		writeSession(w, session, caller)
	}
}

func PlaybackHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		req := &PlaybackRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		session, err := eng.PushPlaybackEvent(r.Context(), chi.URLParam(r, "key"), caller, engine.PlaybackEvent{
			IsPlaying: req.IsPlaying,
			Position:  req.Position,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}

		writeSession(w, session, caller)
	}
}

func TalkbackHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		session, err := eng.ToggleTalkback(r.Context(), chi.URLParam(r, "key"), caller)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		writeSession(w, session, caller)
	}
}

// BackstageHandler gates the backstage co-host channel: 204 while the
// supplied key is honored, 403 the instant the issuing session ends.
func BackstageHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &BackstageRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err := eng.VerifyBackstage(r.Context(), chi.URLParam(r, "key"), req.BackstageKey)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func SessionGetHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		session, err := eng.GetSession(r.Context(), chi.URLParam(r, "key"))
		if err != nil {
			writeEngineError(w, err)
			return
		}

		writeSession(w, session, caller)
	}
}

func LiveSessionHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		session, err := eng.GetLiveSession(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}

		writeSession(w, session, caller)
	}
}
