package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"key2key/internal/app/bootstrap"
)

// @title Key2Key Listing Settlement API
// @version 1.0
// @description Listing lifecycle, broker assignment and payment settlement.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	os.Exit(run())
}

// run serves HTTP until SIGINT or SIGTERM, then drains in-flight requests.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildAPI(ctx)
	if err != nil {
		slog.Error("api bootstrap failed",
			"event", "api_bootstrap_failed",
			"module", "cmd/api",
			"layer", "platform",
			"error", err.Error(),
		)
		return 1
	}

	code := 0
	if err := app.Run(ctx); err != nil {
		slog.Error("api stopped with error",
			"event", "api_run_failed",
			"module", "cmd/api",
			"layer", "platform",
			"error", err.Error(),
		)
		code = 1
	}
	if err := app.Close(); err != nil {
		slog.Warn("api resources close failed",
			"event", "api_close_failed",
			"module", "cmd/api",
			"layer", "platform",
			"error", err.Error(),
		)
	}
	return code
}
