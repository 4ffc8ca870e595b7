// backend/cmd/scraping/main.go
//
// scraping processes the next batch of postcodes from the key list, or the
// postcodes given as arguments, and stores every changed entity as a new
// version. Meant to be run from cron.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ps-vitor/lettings-watch/backend/internal/config"
	"github.com/ps-vitor/lettings-watch/backend/internal/cursor"
	"github.com/ps-vitor/lettings-watch/backend/internal/repositories"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/sources"
	services "github.com/ps-vitor/lettings-watch/backend/internal/services/scraping"
	"github.com/ps-vitor/lettings-watch/backend/pkg/logger"
)

func main() {
	configDir := flag.String("config", "configs", "directory holding app.yaml and scraping.yaml")
	source := flag.String("source", "all", "source to scrape: all, rightmove or register")
	count := flag.Int("count", 0, "keys to process (default: schedule.batch_size)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	noLedger := flag.Bool("no-ledger", false, "do not record the run in the SQLite ledger")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: scraping [flags] [postcode ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.App.LogLevel = *logLevel
	}
	log := logger.New(os.Stderr, cfg.App.LogLevel, cfg.App.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *source, *count, !*noLedger, flag.Args()); err != nil {
		log.Error("scraping: run aborted", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, source string, count int, ledger bool, postcodes []string) error {
	names, err := sources.Names(cfg, strings.Split(source, ","))
	if err != nil {
		return err
	}
	set, err := sources.Build(cfg, names, log)
	if err != nil {
		return err
	}
	defer set.Close()

	svcCfg := services.Config{
		Delay:    cfg.Schedule.Delay,
		LockPath: filepath.Join(cfg.StatePath(), "run.lock"),
		Logger:   log,
	}
	if ledger {
		db, err := repositories.Open(cfg.RunsDBPath())
		if err != nil {
			return err
		}
		defer db.Close()
		svcCfg.Recorder = repositories.NewSQLiteRunRepository(db)
	}

	cur := cursor.New(cursor.NewFileStore(cfg.CursorPath()))
	svc := services.NewScraperService(set.Pipelines, cur, svcCfg)

	var summary *services.Summary
	if len(postcodes) > 0 {
		summary, err = svc.ScrapeAndStore(ctx, postcodes)
	} else {
		if count <= 0 {
			count = cfg.Schedule.BatchSize
		}
		keys, lerr := cursor.LoadKeys(cfg.Schedule.KeyList)
		if lerr != nil {
			return lerr
		}
		summary, err = svc.ScrapeNext(ctx, keys, count)
	}
	if errors.Is(err, context.Canceled) && summary != nil {
		log.Warn("scraping: interrupted", "processed", len(summary.Keys))
		return nil
	}
	return err
}
