// Command sennet-state serves the shared task-state store as an MCP server
// over stdio. Agent instances and the sennet daemon spawn it as a
// subprocess; pointing every client at the same PostgreSQL DSN gives them a
// shared view. Without a DSN the store is in-memory and private to the
// spawning client, which is enough for tests and single-agent setups.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/attercap/sennet/internal/taskstate"
	"github.com/attercap/sennet/internal/taskstate/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	dsn := flag.String("dsn", os.Getenv("SENNET_STATE_DSN"), "PostgreSQL DSN; empty uses an in-memory store")
	logLevel := flag.String("log-level", "warn", "log verbosity (debug, info, warn, error)")
	flag.Parse()

	// Stdout carries the MCP stream, so logs must go to stderr only.
	slog.SetDefault(newLogger(*logLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store taskstate.Store
	if *dsn != "" {
		pg, err := postgres.NewStore(ctx, *dsn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sennet-state: %v\n", err)
			return 1
		}
		defer pg.Close()
		store = pg
		slog.Info("task-state store ready", "backend", "postgres")
	} else {
		store = taskstate.NewMemStore()
		slog.Info("task-state store ready", "backend", "memory")
	}

	srv := taskstate.NewServer(store)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "sennet-state: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
