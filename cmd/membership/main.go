package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/membership/internal/cli"
	"github.com/dmitrijs2005/membership/internal/server"
	"github.com/dmitrijs2005/membership/internal/server/config"
)

func main() {

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	app, err := server.NewApp(cfg, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	root := cli.NewRootCommand(cli.Deps{
		Migrate: app.Migrate,
		Users:   app.Users,
		Roles:   app.Roles,
		Metrics: app.Gatherer(),
	})
	root.SetArgs(config.StripArgs(os.Args[1:]))

	err = root.ExecuteContext(ctx)
	stop()
	_ = app.Close()
	if err != nil {
		os.Exit(1)
	}
}
