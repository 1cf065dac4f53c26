// Command rowfill runs batch completions over a tabular dataset and
// writes the structured results back into it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"rowfill"
)

func main() {
	var (
		configPath = flag.String("config", "config.json", "path to the JSON config file")
		reset      = flag.Bool("reset", false, "clear the result column and exit")
		status     = flag.Bool("status", false, "print completion status and exit")
		workers    = flag.Int("workers", 0, "override the worker count from the config")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	// Optional; a missing .env is not an error.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	if err := run(*configPath, *reset, *status, *workers, log); err != nil {
		log.Error("rowfill failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, reset, status bool, workers int, log *slog.Logger) error {
	cfg, created, err := rowfill.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("created %s, fill in your api_key and run again\n", configPath)
		return nil
	}
	if workers > 0 {
		cfg.Workers = workers
	}

	p, err := rowfill.NewProcessor(cfg, log)
	if err != nil {
		return err
	}

	switch {
	case reset:
		return p.Reset()
	case status:
		return p.Status(os.Stdout)
	}

	if cfg.APIKey == "" || cfg.APIKey == rowfill.PlaceholderAPIKey {
		return fmt.Errorf("api_key is not set in %s", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return p.Run(ctx)
}
