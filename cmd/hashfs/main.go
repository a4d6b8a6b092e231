package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/hashfs/internal/buildinfo"
	"github.com/dmitrijs2005/hashfs/internal/cli"
	"github.com/dmitrijs2005/hashfs/internal/config"
	"github.com/dmitrijs2005/hashfs/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	app := cli.NewApp(cfg, log)
	app.Run(ctx)

}
