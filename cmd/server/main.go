package main

import (
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/frameline/screenroom/internal/api"
	"github.com/frameline/screenroom/internal/config"
	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/notify"
)

func main() {
	app := &cli.App{
		Name:        "screenroom-server",
		Usage:       "Watch party server",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Usage:    "environment: either 'development' or 'production'",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen IP and port, example: ':80' (default value) for listen on 0.0.0.0:80",
				Value: ":80",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config file",
			},
		},
		Action: startServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startServer(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err = db.Ping(); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	options := api.AppOptions{
		Env:               core.Environment(c.String("env")),
		Address:           c.String("address"),
		DB:                db,
		Redis:             rdb,
		TokenSecret:       cfg.TokenSecret,
		CookieSecret:      cfg.CookieSecret,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReaperInterval:    cfg.ReaperInterval,
		ReaperThreshold:   cfg.ReaperThreshold,
	}

	if cfg.NatsAddr != "" {
		notifier, err := notify.NewNatsPublisher(cfg.NatsAddr)
		if err != nil {
			log.Warn().Err(err).Msg("lifecycle notifications disabled, can't connect to NATS")
		} else {
			defer notifier.Close()
			options.Notifier = notifier
		}
	}

	return api.NewApp(options).Start()
}
