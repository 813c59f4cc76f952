// Flight dataset generator
// Writes a synthetic day of European flights as a GeoJSON FeatureCollection
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/unklstewy/flight-playback/internal/logging"
	"github.com/unklstewy/flight-playback/pkg/dataset"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

func main() {
	defaults := dataset.DefaultOptions()

	date := flag.String("date", defaults.Date.Format(time.DateOnly), "Departure day (YYYY-MM-DD, UTC)")
	out := flag.String("out", "dataset/airplane_flights_1day.geojson", "Output file; a .zst suffix compresses it")
	flights := flag.Int("n", defaults.Flights, "Number of flights to draw")
	points := flag.Int("points", defaults.Points, "Waypoints per flight")
	seed := flag.Uint64("seed", 0, "Random seed (0 picks one from the clock)")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	lg := logging.New("generate-flights", *level, "")

	day, err := time.Parse(time.DateOnly, *date)
	if err != nil {
		lg.Error("Invalid date", slog.String("date", *date), slog.Any("error", err))
		os.Exit(2)
	}

	opts := dataset.Options{
		Date:    day,
		Flights: *flights,
		Points:  *points,
		Seed:    *seed,
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}

	generated, err := dataset.Generate(opts)
	if err != nil {
		lg.Error("Generation failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := trajectory.WriteFile(*out, generated); err != nil {
		lg.Error("Failed to write dataset", slog.String("path", *out), slog.Any("error", err))
		os.Exit(1)
	}

	lg.Info("Generated flights",
		slog.Int("flights", len(generated)),
		slog.Int("dropped", opts.Flights-len(generated)),
		slog.Uint64("seed", opts.Seed),
		slog.String("path", *out))

	if len(generated) > 0 {
		f := generated[0]
		lg.Info("Sample flight",
			slog.String("flight", f.FlightNumber),
			slog.String("from", f.OriginName),
			slog.String("to", f.DestinationName),
			slog.Time("start", f.Start),
			slog.Time("end", f.End))
	}
}
