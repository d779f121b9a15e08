// speedhistd is the network speed history daemon. It samples per-interface
// throughput, persists it to a local SQLite history database, and keeps that
// database bounded through rollup and retention maintenance.
//
// With -export it runs one-shot instead: it reads back a slice of history
// and writes it to a CSV or Parquet file.
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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/speedhist/internal/collector"
	"github.com/xtxerr/speedhist/internal/config"
	"github.com/xtxerr/speedhist/internal/export"
	"github.com/xtxerr/speedhist/internal/history"
	"github.com/xtxerr/speedhist/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dbPath := flag.String("db", "", "history database path (overrides config)")
	exportPath := flag.String("export", "", "one-shot: export history to this .csv or .parquet file and exit")
	exportSince := flag.Duration("export-since", 24*time.Hour, "history span to export")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.JSON = true
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	log := logging.Component("main")
	log.Info("speedhistd starting", "version", Version, "db", cfg.Database.Path)

	svc, err := history.New(cfg)
	if err != nil {
		log.Error("create engine", "error", err)
		os.Exit(1)
	}
	if err := svc.Start(); err != nil {
		log.Error("start engine", "error", err)
		os.Exit(1)
	}

	if *exportPath != "" {
		os.Exit(runExport(svc, *exportPath, *exportSince, log))
	}

	os.Exit(run(svc, cfg, log))
}

// run drives the daemon loops until a signal arrives.
func run(svc *history.Service, cfg *config.Config, log *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	col := collector.New(cfg.Collector.ExcludedInterfaces)
	if names, err := col.Interfaces(); err == nil {
		log.Info("collecting", "interfaces", names, "poll_interval", cfg.Collector.PollInterval)
	}

	g, ctx := errgroup.WithContext(ctx)

	// Sampling loop: counters → rates → buffer.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Collector.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				speeds, err := col.Sample(now)
				if err != nil {
					log.Warn("sample failed", "error", err)
					continue
				}
				if len(speeds) > 0 {
					svc.AddSampleAt(now, speeds)
				}
			}
		}
	})

	// Flush loop: pending batch → worker queue.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Ingest.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				svc.Flush()
			}
		}
	})

	// Maintenance loop: aggregation + retention, once at startup and then
	// on the configured interval.
	g.Go(func() error {
		svc.RunMaintenance(time.Now())
		ticker := time.NewTicker(cfg.Maintenance.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				svc.RunMaintenance(now)
			}
		}
	})

	err := g.Wait()
	if err != nil && err != context.Canceled {
		log.Error("daemon loop", "error", err)
	}
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(sctx); err != nil {
		log.Error("shutdown", "error", err)
		return 1
	}
	return 0
}

// runExport reads back one span of history and writes it to a file.
func runExport(svc *history.Service, path string, span time.Duration, log *slog.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	until := time.Now()
	records, err := svc.QueryRange(ctx, until.Add(-span), until, nil)
	if err != nil {
		log.Error("query history", "error", err)
		svc.Shutdown(ctx)
		return 1
	}

	if err := export.ToFile(path, records); err != nil {
		log.Error("export", "error", err)
		svc.Shutdown(ctx)
		return 1
	}

	log.Info("exported", "records", len(records), "path", path)

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := svc.Shutdown(sctx); err != nil {
		log.Error("shutdown", "error", err)
		return 1
	}
	return 0
}
