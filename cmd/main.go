package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/lynxfm/lynx/internal/session"
	"github.com/lynxfm/lynx/internal/shared"
	"github.com/lynxfm/lynx/internal/ui"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	store, err := session.DefaultStore()
	if err != nil {
		logger.Fatalf("failed to resolve session path: %v", err)
	}

	runner := NewRunner(RunnerOpts{
		Store:  store,
		Logger: logger,
	})

	app := &cli.Command{
		Name:     "lynx",
		Usage:    "Stream music from your lynx.fm server",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	// Interrupts cancel in-flight streaming/downloads; deferred closes
	// release the audio device and file handles on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, ui.ErrPromptAborted):
			os.Exit(130)
		case errors.Is(err, shared.ErrLoginRequired):
			logger.Error("you need to log in first: run `lynx login`")
			os.Exit(1)
		case errors.Is(err, shared.ErrConfigIncomplete):
			logger.Error(err.Error())
			os.Exit(1)
		case errors.Is(err, shared.ErrTransport):
			logger.Errorf("network failure, check connectivity: %v", err)
			os.Exit(1)
		default:
			logger.Fatalf("%v", err)
		}
	}
}
