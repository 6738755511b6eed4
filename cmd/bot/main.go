package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/frameline/screenroom/internal/bot"
)

func main() {
	app := &cli.App{
		Name:        "screenroom-bot",
		Usage:       "Headless viewer for watching a session from the outside",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "host",
				Usage:    "server host, example: 'screenroom.example.com'",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "token",
				Usage:    "viewer auth token",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "session",
				Usage:    "session key to follow",
				Required: true,
			},
		},
		Action: startBot,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startBot(c *cli.Context) error {
	return bot.New(c.String("host"), c.String("token"), c.String("session")).Start()
}
