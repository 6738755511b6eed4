package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/isqad/melody"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frameline/screenroom/internal/catalog"
	"github.com/frameline/screenroom/internal/chat"
	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/engine"
	"github.com/frameline/screenroom/internal/eventbus"
	"github.com/frameline/screenroom/internal/store"
	"github.com/frameline/screenroom/internal/telemetry"
)

// AppOptions is options of the application
type AppOptions struct {
	Env     core.Environment
	Address string

	DB    *sqlx.DB
	Redis *redis.Client

	TokenSecret  string
	CookieSecret string

	HeartbeatInterval time.Duration
	ReaperInterval    time.Duration
	ReaperThreshold   time.Duration

	Notifier engine.LifecycleNotifier

	router    *chi.Mux
	websocket *melody.Melody

	authMiddleware AuthHandler
}

// App is the watch party application: host console API, viewer websocket
// fan-out and the background reaper, all over one session store.
type App struct {
	AppOptions

	sessions  store.SessionStorer
	engine    *engine.Engine
	sequencer *engine.Sequencer
	chat      *chat.Service
	commands  *eventbus.Eventbus
	reaper    *engine.Reaper
	heartbeat *heartbeats
}

// NewApp creates a new application
func NewApp(options AppOptions) *App {
	options.router = chi.NewRouter()
	options.websocket = melody.New()
	options.websocket.Config.MaxMessageSize = 1024

	tokenAuth := NewTokenAuth(options.TokenSecret, options.CookieSecret)
	tokenAuth.AuthFailFunc = authFailedFunc
	options.authMiddleware = tokenAuth.Middleware()

	sessions := store.NewRedisStore(options.Redis)

	eng := engine.New(sessions, log.Logger)
	if options.Notifier != nil {
		eng.WithNotifier(options.Notifier)
	}

	blocks := catalog.NewBlocksRepository(options.DB)

	app := &App{
		AppOptions: options,
		sessions:   sessions,
		engine:     eng,
		sequencer:  engine.NewSequencer(eng, blocks, log.Logger),
		chat:       chat.NewService(sessions, chat.NewRedisChannel(options.Redis)),
		commands:   eventbus.RedisPubSub(options.Redis),
		reaper:     engine.NewReaper(sessions, eng.Guard(), options.ReaperInterval, options.ReaperThreshold, log.Logger),
		heartbeat:  newHeartbeats(engine.NewHeartbeatRunner(eng, options.HeartbeatInterval, log.Logger)),
	}

	return app
}

// Router is function for construct http router
func (app *App) Router() http.Handler {
	app.router.Use(middleware.RealIP)
	app.router.Use(middleware.Recoverer)
	if app.Env.IsDevelopment() {
		app.router.Use(middleware.Logger)
	}

	app.router.Handle("/metrics", promhttp.Handler())

	app.router.With(app.authMiddleware).Route("/api/v1", func(r chi.Router) {
		r.Get("/live", LiveSessionHandler(app.engine))

		r.Route("/sessions/{key}", func(r chi.Router) {
			r.Get("/", SessionGetHandler(app.engine))
			r.Get("/ws", WebsocketsHandler(app.sessions, app.websocket))
			r.Post("/schedule", ScheduleHandler(app.engine))
			r.Post("/start", StartHandler(app.engine, app.heartbeat))
			r.Post("/stop", StopHandler(app.engine, app.heartbeat))
			r.Post("/playback", PlaybackHandler(app.engine))
			r.Post("/talkback", TalkbackHandler(app.engine))
			r.Post("/backstage", BackstageHandler(app.engine))
		})

		r.Route("/blocks/{blockId}", func(r chi.Router) {
			r.Post("/start", StartBlockHandler(app.sequencer, app.heartbeat))
			r.Post("/advance", AdvanceBlockHandler(app.sequencer, app.heartbeat))
		})

		r.Route("/chat/{contentKey}", func(r chi.Router) {
			r.Get("/", ChatHistoryHandler(app.chat))
			r.Post("/", ChatPostHandler(app.chat))
		})
	})

	app.websocket.HandleConnect(ConnectHandler(app.sessions))
	app.websocket.HandleDisconnect(DisconnectHandler)
	app.websocket.HandleMessage(HandleMessage(app.commands))
	app.websocket.HandleError(func(s *melody.Session, err error) {
		log.Error().Err(err).Str("service", "websockets").Msg("error in websocket session")
	})

	return app.router
}

func (app *App) Start() error {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{}, 1)

	app.initLogger()
	router := app.Router()

	if err := app.startCommandRouter(); err != nil {
		return err
	}

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go app.reaper.Run(reaperCtx)

	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	server := &http.Server{
		Addr:              app.Address,
		Handler:           router,
		ReadHeaderTimeout: 1 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Warn().Msg("received signal to terminate the server")
		stopReaper()
		app.heartbeat.stopAny()
		log.Info().Msg("all services are stopped")
		close(done)
	})

	// Shutdown the HTTP server
	go func() {
		<-quit
		log.Warn().Msg("the server is going shutting down")

		// Wait 20 seconds for close http connections
		waitIdleConnCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(waitIdleConnCtx); err != nil {
			log.Fatal().Err(err).Msg("can't gracefully shutdown the server")
		}
	}()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server has been closed immediatelly")
	}

	<-done
	log.Info().Msg("server stopped")

	return nil
}

// startCommandRouter wires the host command channel to the engine. Commands
// may have been published by any instance; exactly the same handlers serve
// them as the HTTP endpoints.
func (app *App) startCommandRouter() error {
	router, err := eventbus.NewRouter(app.commands)
	if err != nil {
		return err
	}

	router.OnPlaybackEvent(func(caller core.Identity, key string, params *eventbus.PlaybackParams) error {
		_, err := app.engine.PushPlaybackEvent(context.Background(), key, caller, engine.PlaybackEvent{
			IsPlaying: params.IsPlaying,
			Position:  params.Position,
		})
		countCommand(eventbus.PlaybackEventMethod, err)
		return err
	})
	router.OnHeartbeat(func(caller core.Identity, key string, position float64) error {
		return app.engine.Heartbeat(context.Background(), key, caller, position)
	})
	router.OnToggleTalkback(func(caller core.Identity, key string) error {
		_, err := app.engine.ToggleTalkback(context.Background(), key, caller)
		countCommand(eventbus.ToggleTalkbackMethod, err)
		return err
	})
	router.OnStopSession(func(caller core.Identity, key string) error {
		session, err := app.engine.Stop(context.Background(), key, caller)
		countCommand(eventbus.StopSessionMethod, err)
		if err == nil {
			app.heartbeat.stop(session.Key())
		}
		return err
	})
	router.OnAdvanceBlock(func(caller core.Identity, blockID string) error {
		session, err := app.sequencer.Advance(context.Background(), blockID, caller)
		countCommand(eventbus.AdvanceBlockMethod, err)
		if err != nil {
			return err
		}
		if session.IsLive() {
			app.heartbeat.start(session.Key(), caller)
		} else {
			app.heartbeat.stop(session.Key())
		}
		return nil
	})
	router.OnChatMessage(func(caller core.Identity, key string, text string) error {
		_, err := app.chat.Post(context.Background(), core.ContentKeyOf(key), caller, text)
		return err
	})

	router.Start()

	return nil
}

func countCommand(method eventbus.Method, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	telemetry.CommandCounter.WithLabelValues(string(method), status).Add(1)
}

func (app *App) initLogger() {
	cw := zerolog.NewConsoleWriter()
	log.Logger = log.Output(cw)

	level := zerolog.InfoLevel

	if app.Env.IsDevelopment() {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
}

func authFailedFunc(w http.ResponseWriter, r *http.Request, err error) {
	w.WriteHeader(http.StatusUnauthorized)
}
