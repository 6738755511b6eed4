package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frameline/screenroom/internal/engine"
)

func StartBlockHandler(seq *engine.Sequencer, hb *heartbeats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		session, err := seq.StartBlock(r.Context(), chi.URLParam(r, "blockId"), caller)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeEngineError(w, err)
			return
		}

		hb.start(session.Key(), caller)
		writeSession(w, session, caller)
	}
}

func AdvanceBlockHandler(seq *engine.Sequencer, hb *heartbeats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		session, err := seq.Advance(r.Context(), chi.URLParam(r, "blockId"), caller)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeEngineError(w, err)
			return
		}

		if session.IsLive() {
			hb.start(session.Key(), caller)
		} else {
			// block exhausted
			hb.stop(session.Key())
		}
		writeSession(w, session, caller)
	}
}
