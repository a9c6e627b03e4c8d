package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	app := &cli.App{
		Name:  appID,
		Usage: "quote lifecycle and supplier matching for print shops",
		Commands: []*cli.Command{
			serviceCommand(),
			migrateCommand(),
			rankCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("quoteengine failed")
	}
}
