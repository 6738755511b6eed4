package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/frameline/screenroom/internal/config"
	"github.com/frameline/screenroom/internal/notify"
)

func main() {
	app := &cli.App{
		Name:        "screenroom-notify",
		Usage:       "Session lifecycle notification service",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config file",
			},
			&cli.StringFlag{
				Name:  "natsAddr",
				Usage: "Address to connect to NATS server, overrides the config file",
			},
			&cli.StringFlag{
				Name:  "webhookUrl",
				Usage: "URL lifecycle events are forwarded to, overrides the config file",
			},
		},
		Action: start,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%v\n", err)
	}
}

func start(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	natsAddr := cfg.NatsAddr
	if c.IsSet("natsAddr") {
		natsAddr = c.String("natsAddr")
	}
	webhookURL := cfg.NotifyWebhookURL
	if c.IsSet("webhookUrl") {
		webhookURL = c.String("webhookUrl")
	}

	daemon, err := notify.New(natsAddr, webhookURL)
	if err != nil {
		return err
	}

	if err := daemon.Run(); err != nil {
		return err
	}

	return nil
}
