// Command aria runs the library ingestion and delivery server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmherbst/aria/internal/config"
	"github.com/jmherbst/aria/internal/database"
	"github.com/jmherbst/aria/internal/events"
	"github.com/jmherbst/aria/internal/logger"
	"github.com/jmherbst/aria/internal/modules/modulemanager"
	"github.com/jmherbst/aria/internal/server"

	// Modules register themselves on import.
	_ "github.com/jmherbst/aria/internal/modules/mediamodule"
	_ "github.com/jmherbst/aria/internal/modules/playbackmodule"
	_ "github.com/jmherbst/aria/internal/modules/scannermodule"
	_ "github.com/jmherbst/aria/internal/modules/sourcesmodule"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := config.Load(*configPath); err != nil {
		logger.Error("failed to load configuration: %v", err)
		os.Exit(1)
	}

	if err := database.Initialize(); err != nil {
		logger.Error("failed to initialize database: %v", err)
		os.Exit(1)
	}

	bus := events.NewEventBus(256)
	events.SetGlobalEventBus(bus)

	if err := modulemanager.Initialize(database.GetDB()); err != nil {
		logger.Error("failed to initialize modules: %v", err)
		os.Exit(1)
	}

	srv := server.New(config.Get().Server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete: %v", err)
	}

	// Stop background work after the listener is drained.
	for _, m := range modulemanager.All() {
		if s, ok := m.(interface{ Shutdown() }); ok {
			s.Shutdown()
		}
	}
	bus.Shutdown()

	logger.Info("shutdown complete")
}
