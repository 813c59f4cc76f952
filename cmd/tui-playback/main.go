// Flight Playback terminal viewer
// Steps through a day of flights ten minutes at a time
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/flight-playback/internal/logging"
	"github.com/unklstewy/flight-playback/pkg/config"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

var (
	configPath  = flag.String("config", "configs/config.json", "Path to configuration file")
	datasetPath = flag.String("dataset", "", "Dataset file (overrides config)")
	interval    = flag.Duration("interval", 500*time.Millisecond, "Delay between steps while playing")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *datasetPath != "" {
		cfg.Dataset.Path = *datasetPath
	}

	// The terminal belongs to the viewer; log only to a file
	lg := logging.Discard()
	if cfg.Logging.Dir != "" {
		lg = logging.New("tui-playback", cfg.Logging.Level, cfg.Logging.Dir)
	}

	if err := run(cfg, lg, *interval); err != nil {
		lg.Error("Viewer terminated", slog.Any("error", err))
		lg.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	lg.Close()
}

func run(cfg *config.Config, lg *logging.Logger, interval time.Duration) error {
	store := trajectory.NewStore(trajectory.FileLoader{Path: cfg.Dataset.Path})
	snap, err := store.Load(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	lg.Info("Dataset loaded",
		slog.String("source", snap.Source),
		slog.Int("flights", snap.Len()),
		slog.Int("scheduled", snap.Scheduled()))

	m, err := newModel(store, interval)
	if err != nil {
		return fmt.Errorf("nothing to play: %s", emptyDatasetHint(err))
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
