package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"key2key/internal/app/bootstrap"
)

// Worker process. Runs the reservation expirer, assignment SLA sweeper,
// reconciliation sweeper, settlement completer and outbox relay on a shared
// tick, plus the notification consumer, until SIGINT or SIGTERM.
func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildWorker(ctx)
	if err != nil {
		slog.Error("worker bootstrap failed",
			"event", "worker_bootstrap_failed",
			"module", "cmd/worker",
			"layer", "platform",
			"error", err.Error(),
		)
		return 1
	}

	code := 0
	if err := app.Run(ctx); err != nil {
		slog.Error("worker stopped with error",
			"event", "worker_run_failed",
			"module", "cmd/worker",
			"layer", "platform",
			"error", err.Error(),
		)
		code = 1
	}
	if err := app.Close(); err != nil {
		slog.Warn("worker resources close failed",
			"event", "worker_close_failed",
			"module", "cmd/worker",
			"layer", "platform",
			"error", err.Error(),
		)
	}
	return code
}
