package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/frameline/screenroom/internal/chat"
)

type ChatPostRequest struct {
	Text string `json:"text"`
}

func ChatPostHandler(chatService *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := identityFromRequest(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		req := &ChatPostRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil || req.Text == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		message, err := chatService.Post(r.Context(), chi.URLParam(r, "contentKey"), caller, req.Text)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(message); err != nil {
			log.Error().Err(err).Str("service", "api").Msg("can't encode chat message")
		}
	}
}

func ChatHistoryHandler(chatService *chat.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var limit int64
		if param := r.URL.Query().Get("limit"); param != "" {
			parsed, err := strconv.ParseInt(param, 10, 64)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		messages, err := chatService.History(r.Context(), chi.URLParam(r, "contentKey"), limit)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(messages); err != nil {
			log.Error().Err(err).Str("service", "api").Msg("can't encode chat history")
		}
	}
}
