package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophscan/internal/buildinfo"
	"github.com/dmitrijs2005/gophscan/internal/client/cli"
	"github.com/dmitrijs2005/gophscan/internal/client/config"
	"github.com/dmitrijs2005/gophscan/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	if cfg.DeviceToken == "" && cfg.Mode == "online" {
		token, err := cli.GetToken(os.Stdout)
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg.DeviceToken = token
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error(context.Background(), "close", "error", err)
		}
	}()

	app.Run(ctx)

}
