package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/engine"
	"github.com/frameline/screenroom/internal/store"
)

// MockSessionStorage mirrors the redis store's conditional-write semantics
// in memory.
type MockSessionStorage struct {
	mu   sync.Mutex
	docs map[string]*core.Session
	live string
}

func NewMockSessionStorage() *MockSessionStorage {
	return &MockSessionStorage{docs: make(map[string]*core.Session)}
}

func (s *MockSessionStorage) Read(ctx context.Context, key string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.docs[key]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	copied := *stored
	return &copied, nil
}

func (s *MockSessionStorage) ReadAll(ctx context.Context) ([]*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]*core.Session, 0, len(s.docs))
	for _, stored := range s.docs {
		copied := *stored
		sessions = append(sessions, &copied)
	}
	return sessions, nil
}

func (s *MockSessionStorage) Write(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.Version++
	copied := *session
	s.docs[session.Key()] = &copied
	return nil
}

func (s *MockSessionStorage) ConditionalWrite(ctx context.Context, expectedVersion int64, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.docs[session.Key()]
	if expectedVersion == 0 {
		if ok {
			return core.ErrStaleWrite
		}
	} else {
		if !ok {
			return core.ErrSessionNotFound
		}
		if stored.Version != expectedVersion {
			return core.ErrStaleWrite
		}
	}

	session.Version = expectedVersion + 1
	copied := *session
	s.docs[session.Key()] = &copied
	return nil
}

func (s *MockSessionStorage) LiveKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live, nil
}

func (s *MockSessionStorage) SwapLive(ctx context.Context, expectedKey, newKey string, writes ...*core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live != expectedKey {
		return core.ErrStaleWrite
	}

	for _, session := range writes {
		session.Version++
		copied := *session
		s.docs[session.Key()] = &copied
	}
	s.live = newKey
	return nil
}

func (s *MockSessionStorage) Subscribe(ctx context.Context, key string) (store.Feed, error) {
	return &mockFeed{messages: make(chan *redis.Message)}, nil
}

type mockFeed struct {
	messages chan *redis.Message
}

func (f *mockFeed) Channel() <-chan *redis.Message {
	return f.messages
}

func (f *mockFeed) Close() error {
	close(f.messages)
	return nil
}

func stubAuth(identity core.Identity) *TokenAuth {
	auth := NewTokenAuth("test-secret", "test-cookie-secret")
	auth.StubHandler = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	return auth
}

var (
	testHost   = core.Identity{ID: "host-1", Name: "Host One", Role: core.RoleHost}
	testViewer = core.Identity{ID: "viewer-1", Name: "Viewer", Role: core.RoleViewer}
)

type handlerEnv struct {
	engine   *engine.Engine
	sessions *MockSessionStorage
	hb       *heartbeats
}

func newHandlerEnv() *handlerEnv {
	sessions := NewMockSessionStorage()
	eng := engine.New(sessions, zerolog.Nop())
	runner := engine.NewHeartbeatRunner(eng, time.Minute, zerolog.Nop())

	return &handlerEnv{
		engine:   eng,
		sessions: sessions,
		hb:       newHeartbeats(runner),
	}
}

func newSessionServer(t *testing.T, env *handlerEnv, identity core.Identity) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Use(stubAuth(identity).Middleware())

	r.Route("/api/v1/sessions/{key}", func(r chi.Router) {
		r.Get("/", SessionGetHandler(env.engine))
		r.Post("/schedule", ScheduleHandler(env.engine))
		r.Post("/start", StartHandler(env.engine, env.hb))
		r.Post("/stop", StopHandler(env.engine, env.hb))
		r.Post("/playback", PlaybackHandler(env.engine))
		r.Post("/talkback", TalkbackHandler(env.engine))
		r.Post("/backstage", BackstageHandler(env.engine))
	})

	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		ts.Close()
		env.hb.stopAny()
	})

	return ts
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	assert.Nil(t, err)

	resp, err := http.DefaultClient.Do(req)
	assert.Nil(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestScheduleStartStopFlow(t *testing.T) {
	env := newHandlerEnv()
	ts := newSessionServer(t, env, testHost)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/schedule", `{"start_at":"2026-09-01T20:00:00Z"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/start", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	session := &core.Session{}
	assert.Nil(t, json.NewDecoder(resp.Body).Decode(session))
	assert.Equal(t, core.StatusLive, session.Status)
	assert.NotEmpty(t, session.BackstageKey)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/playback", `{"is_playing":true,"position":0}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Nil(t, json.NewDecoder(resp.Body).Decode(session))
	assert.Equal(t, core.StatusEnded, session.Status)
}

func TestStartConflictNamesLiveKey(t *testing.T) {
	env := newHandlerEnv()
	ts := newSessionServer(t, env, testHost)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions/f1/schedule", `{"start_at":"2026-09-01T20:00:00Z"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/f2/schedule", `{"start_at":"2026-09-01T21:00:00Z"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/f1/start", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/f2/start", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	conflict := &conflictResponse{}
	assert.Nil(t, json.NewDecoder(resp.Body).Decode(conflict))
	assert.Equal(t, "already_live_elsewhere", conflict.Error)
	assert.Equal(t, "f1", conflict.LiveKey)
}

func TestViewerCannotDriveSession(t *testing.T) {
	env := newHandlerEnv()

	hostServer := newSessionServer(t, env, testHost)
	resp := doJSON(t, "POST", hostServer.URL+"/api/v1/sessions/filmX/schedule", `{"start_at":"2026-09-01T20:00:00Z"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, "POST", hostServer.URL+"/api/v1/sessions/filmX/start", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	viewerServer := newSessionServer(t, env, testViewer)

	resp = doJSON(t, "POST", viewerServer.URL+"/api/v1/sessions/filmX/playback", `{"is_playing":true,"position":0}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, "POST", viewerServer.URL+"/api/v1/sessions/filmX/stop", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, "POST", viewerServer.URL+"/api/v1/sessions/filmX/talkback", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestViewerSessionViewStripsBackstageKey(t *testing.T) {
	env := newHandlerEnv()

	hostServer := newSessionServer(t, env, testHost)
	resp := doJSON(t, "POST", hostServer.URL+"/api/v1/sessions/filmX/schedule", `{"start_at":"2026-09-01T20:00:00Z"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, "POST", hostServer.URL+"/api/v1/sessions/filmX/start", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	viewerServer := newSessionServer(t, env, testViewer)
	resp = doJSON(t, "GET", viewerServer.URL+"/api/v1/sessions/filmX", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	session := &core.Session{}
	assert.Nil(t, json.NewDecoder(resp.Body).Decode(session))
	assert.Equal(t, core.StatusLive, session.Status)
	assert.Empty(t, session.BackstageKey)
}

func TestBackstageHandler(t *testing.T) {
	env := newHandlerEnv()
	ts := newSessionServer(t, env, testHost)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/schedule", `{"start_at":"2026-09-01T20:00:00Z"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/start", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	session := &core.Session{}
	assert.Nil(t, json.NewDecoder(resp.Body).Decode(session))

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/backstage", `{"backstage_key":"`+session.BackstageKey+`"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/backstage", `{"backstage_key":"wrong"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/backstage", `{"backstage_key":"`+session.BackstageKey+`"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStopOtherSessionKeepsLiveHeartbeat(t *testing.T) {
	env := newHandlerEnv()
	ts := newSessionServer(t, env, testHost)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions/live-film/schedule", `{"start_at":"2026-09-01T20:00:00Z"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/live-film/start", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/other-film/schedule", `{"start_at":"2026-09-01T22:00:00Z"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/other-film/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// ending the scheduled session must not cancel the runner that is
	// heartbeating the session still holding the live slot
	env.hb.mu.Lock()
	assert.NotNil(t, env.hb.cancel)
	assert.Equal(t, "live-film", env.hb.key)
	env.hb.mu.Unlock()

	live, err := env.sessions.Read(context.Background(), "live-film")
	assert.Nil(t, err)
	assert.Equal(t, core.StatusLive, live.Status)

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/live-film/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.hb.mu.Lock()
	assert.Nil(t, env.hb.cancel)
	env.hb.mu.Unlock()
}

func TestPlaybackValidation(t *testing.T) {
	env := newHandlerEnv()
	ts := newSessionServer(t, env, testHost)

	resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/schedule", `{"start_at":"2026-09-01T20:00:00Z"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("playback before start conflicts", func(t *testing.T) {
		resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/playback", `{"is_playing":true}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	resp = doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/start", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("pause without position", func(t *testing.T) {
		resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/playback", `{"is_playing":false}`)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions/filmX/playback", `{broken`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown session", func(t *testing.T) {
		resp := doJSON(t, "POST", ts.URL+"/api/v1/sessions/nope/playback", `{"position":1}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
