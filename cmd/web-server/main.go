// Flight Playback Web Server
// Serves the landing page and provides REST API + WebSocket playback endpoints
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/flight-playback/internal/logging"
	"github.com/unklstewy/flight-playback/internal/server"
	"github.com/unklstewy/flight-playback/pkg/config"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	port       = flag.Int("port", 0, "HTTP server port (overrides config)")
)

const shutdownTimeout = 30 * time.Second

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = strconv.Itoa(*port)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	lg := logging.New("web-server", cfg.Logging.Level, cfg.Logging.Dir)
	if err := run(cfg, lg); err != nil {
		lg.Error("Server terminated", slog.Any("error", err))
		lg.Close()
		os.Exit(1)
	}
	lg.Info("Server stopped")
	lg.Close()
}

func run(cfg *config.Config, lg *logging.Logger) error {
	// The server does not start without a dataset
	store := trajectory.NewStore(trajectory.FileLoader{Path: cfg.Dataset.Path})
	snap, err := store.Load(context.Background())
	if err != nil {
		return fmt.Errorf("initial dataset load: %w", err)
	}
	lg.Info("Dataset loaded",
		slog.String("source", snap.Source),
		slog.Int("flights", snap.Len()),
		slog.Int("scheduled", snap.Scheduled()))
	if snap.Scheduled() == 0 {
		lg.Warn("Dataset has no scheduled flights; time range queries will return 404")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	srv := server.New(store, cfg, lg)
	httpServer := srv.HTTPServer()
	// Request contexts end with the server, which also stops open streams
	httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	g.Go(func() error {
		lg.Info("Server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		lg.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		watchReload(ctx, store, lg)
		return nil
	})

	return g.Wait()
}

// watchReload reloads the dataset on SIGHUP until ctx is done. A failed
// reload keeps serving the previous collection.
func watchReload(ctx context.Context, store *trajectory.Store, lg *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			snap, err := store.Reload(ctx)
			if err != nil {
				lg.Error("Dataset reload failed", slog.Any("error", err))
				continue
			}
			lg.Info("Dataset reloaded",
				slog.String("source", snap.Source),
				slog.Int("flights", snap.Len()),
				slog.Uint64("generation", snap.Generation))
		}
	}
}
