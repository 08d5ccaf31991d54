// Command worker processes jobs enqueued through asynq. It needs the same
// postgres store and shared blob backend as the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/DocChat/internal/app"
	"github.com/dharsanguruparan/DocChat/internal/config"
	"github.com/dharsanguruparan/DocChat/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("worker.init_failed", "error", err)
	}
	defer a.Close()

	if err := a.Work(ctx); err != nil {
		log.Error("worker.stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
}
