package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/engine"
)

type MockBlocks struct {
	blocks map[string]*core.Block
}

func (m *MockBlocks) GetBlock(ctx context.Context, blockID string) (*core.Block, error) {
	block, ok := m.blocks[blockID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return block, nil
}

func newBlockServer(t *testing.T, env *handlerEnv, blocks map[string]*core.Block, identity core.Identity) *httptest.Server {
	t.Helper()

	seq := engine.NewSequencer(env.engine, &MockBlocks{blocks: blocks}, zerolog.Nop())

	r := chi.NewRouter()
	r.Use(stubAuth(identity).Middleware())
	r.Route("/api/v1/blocks/{blockId}", func(r chi.Router) {
		r.Post("/start", StartBlockHandler(seq, env.hb))
		r.Post("/advance", AdvanceBlockHandler(seq, env.hb))
	})

	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		ts.Close()
		env.hb.stopAny()
	})

	return ts
}

func TestBlockHandlers(t *testing.T) {
	env := newHandlerEnv()
	ts := newBlockServer(t, env, map[string]*core.Block{
		"shorts-night": {ID: "shorts-night", ContentKeys: []string{"f1", "f2"}},
		"empty":        {ID: "empty"},
	}, testHost)

	t.Run("unknown block", func(t *testing.T) {
		resp := doJSON(t, "POST", ts.URL+"/api/v1/blocks/nope/start", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("empty block", func(t *testing.T) {
		resp := doJSON(t, "POST", ts.URL+"/api/v1/blocks/empty/start", "")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("start and advance through the block", func(t *testing.T) {
		resp := doJSON(t, "POST", ts.URL+"/api/v1/blocks/shorts-night/start", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		session := &core.Session{}
		assert.Nil(t, json.NewDecoder(resp.Body).Decode(session))
		assert.Equal(t, "f1@shorts-night/0", session.Key())
		assert.Equal(t, core.StatusLive, session.Status)

		resp = doJSON(t, "POST", ts.URL+"/api/v1/blocks/shorts-night/advance", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		assert.Nil(t, json.NewDecoder(resp.Body).Decode(session))
		assert.Equal(t, "f2@shorts-night/1", session.Key())
		assert.Equal(t, core.StatusLive, session.Status)

		resp = doJSON(t, "POST", ts.URL+"/api/v1/blocks/shorts-night/advance", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		assert.Nil(t, json.NewDecoder(resp.Body).Decode(session))
		assert.Equal(t, core.StatusEnded, session.Status)

		liveKey, err := env.sessions.LiveKey(context.Background())
		assert.Nil(t, err)
		assert.Empty(t, liveKey)
	})

	t.Run("advance with nothing live", func(t *testing.T) {
		resp := doJSON(t, "POST", ts.URL+"/api/v1/blocks/shorts-night/advance", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestBlockHandlersViewerForbidden(t *testing.T) {
	env := newHandlerEnv()
	ts := newBlockServer(t, env, map[string]*core.Block{
		"shorts-night": {ID: "shorts-night", ContentKeys: []string{"f1"}},
	}, testViewer)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/blocks/shorts-night/start", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
