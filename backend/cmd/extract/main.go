// ./backend/cmd/extract/main.go
//
// extract fetches one postcode from one source and prints the records as
// JSON without storing them. Useful when a site changes its markup.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/ps-vitor/lettings-watch/backend/internal/config"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/sources"
	"github.com/ps-vitor/lettings-watch/backend/pkg/logger"
)

func main() {
	configDir := flag.String("config", "configs", "directory holding app.yaml and scraping.yaml")
	source := flag.String("source", "rightmove", "rightmove or register")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: extract [-config dir] [-source name] <postcode>")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, cfg.App.LogLevel, cfg.App.LogFormat)

	src, err := domain.ParseSource(*source)
	if err != nil {
		log.Error("extract: bad source", "error", err)
		os.Exit(2)
	}
	ex, closer, err := sources.Extractor(cfg, src, log)
	if err != nil {
		log.Error("extract: build extractor", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	entities, err := ex.Fetch(ctx, flag.Arg(0))
	if err != nil {
		log.Error("extract: fetch failed", "error", err)
		os.Exit(1)
	}

	out := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		out = append(out, map[string]any{"id": e.EntityID(), "record": e.Record()})
	}
	jsonData, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		log.Error("extract: marshal", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(jsonData))
}
