package main

import (
	"flag"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"

	"PhotoTransfer/app"
	"PhotoTransfer/internal/config"
)

func main() {
	log.SetHandler(cli.New(os.Stderr))

	configPath := flag.String("config", "", "config file (default is <user config dir>/photo_transfer/config.toml)")
	flag.Parse()

	path := *configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			log.WithError(err).Fatal("[Main] cannot locate config directory")
		}
		path = p
	}

	if err := app.Run(path); err != nil {
		log.WithError(err).Fatal("[Main] app exited with error")
	}
}
