package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/cli"
)

func main() {
	// Setup context with manual signal handling
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("interrupt received, finishing in-flight exports...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := cli.Execute(ctx); err != nil {
		// os.Exit skips deferred calls.
		signal.Stop(sigChan)
		cancel()
		os.Exit(1)
	}
}
