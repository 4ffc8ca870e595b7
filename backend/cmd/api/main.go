// backend/cmd/api/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/ps-vitor/lettings-watch/backend/internal/api/handlers"
	apiservices "github.com/ps-vitor/lettings-watch/backend/internal/api/services"
	"github.com/ps-vitor/lettings-watch/backend/internal/config"
	"github.com/ps-vitor/lettings-watch/backend/internal/cursor"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/repositories"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/sources"
	property "github.com/ps-vitor/lettings-watch/backend/internal/services/property"
	services "github.com/ps-vitor/lettings-watch/backend/internal/services/scraping"
	"github.com/ps-vitor/lettings-watch/backend/pkg/logger"
)

func main() {
	configDir := flag.String("config", "configs", "directory holding app.yaml and scraping.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, cfg.App.LogLevel, cfg.App.LogFormat)
	slog.SetDefault(log)

	if err := serve(cfg, log); err != nil {
		log.Error("api: server stopped", "error", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config, log *slog.Logger) error {
	// Setup dependencies
	stores, err := sources.Stores(cfg, log)
	if err != nil {
		return err
	}
	readers := make(map[domain.Source]property.VersionStore, len(stores))
	for src, st := range stores {
		readers[src] = st
	}
	propertySvc := property.NewPropertyService(readers)

	db, err := repositories.Open(cfg.RunsDBPath())
	if err != nil {
		return err
	}
	defer db.Close()
	runs := repositories.NewSQLiteRunRepository(db)

	names, err := sources.Names(cfg, nil)
	if err != nil {
		return err
	}
	set, err := sources.Build(cfg, names, log)
	if err != nil {
		return err
	}
	defer set.Close()

	cur := cursor.New(cursor.NewFileStore(cfg.CursorPath()))
	scraperSvc := services.NewScraperService(set.Pipelines, cur, services.Config{
		Delay:    cfg.Schedule.Delay,
		LockPath: filepath.Join(cfg.StatePath(), "run.lock"),
		Recorder: runs,
		Logger:   log,
	})
	trigger := apiservices.NewScrapeTrigger(scraperSvc, cfg.Schedule.KeyList, cfg.Schedule.BatchSize)

	r := mux.NewRouter()
	handlers.NewAPIHandler(propertySvc, handlers.Options{
		App:     cfg.App.Name,
		Cursor:  cur,
		KeyList: cfg.Schedule.KeyList,
		Batch:   cfg.Schedule.BatchSize,
		Runs:    runs,
		Logger:  log,
	}).RegisterRoutes(r)
	handlers.NewScrapingHandler(trigger, log).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("api: listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
