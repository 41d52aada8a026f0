package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teamkard/teamkard/pkg/app"
	"github.com/teamkard/teamkard/pkg/config"
	"github.com/teamkard/teamkard/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file (json or yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	container, err := app.NewContainer(cfg)
	if err != nil {
		logger.ErrorCF("main", "Startup failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.Start(ctx); err != nil {
		logger.ErrorCF("main", "Startup failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.InfoCF("main", "Shutting down", map[string]interface{}{
		"signal": sig.String(),
	})

	cancel()
	if err := container.Stop(); err != nil {
		logger.ErrorCF("main", "Shutdown error", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
