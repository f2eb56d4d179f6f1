// Package main is the entry point for the stratum command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/stratum/internal/loader"
	"github.com/dshills/stratum/internal/settings"
	"github.com/dshills/stratum/internal/telemetry"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := settings.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	shutdown, err := telemetry.Setup(ctx, s.OTelEndpoint, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to set up tracing: %v\n", err)
		return 2
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: flushing traces: %v\n", err)
		}
	}()

	a := newApp(s, os.Stdout, os.Stderr, loader.DefaultFS())
	return a.execute(ctx, os.Args[1:])
}
