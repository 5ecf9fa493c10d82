package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Initialize context that cancelled on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("videotube stopped with error", "error", err.Error())
		os.Exit(1) // nolint:gocritic
	}
}

func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	config, err := LoadConfig(getenv, getwd, args)
	if err != nil {
		return err
	}

	srv, err := NewServerApp(ctx, config)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
