// postcodes writes the sorted unique postcodes of every stored rental
// listing to a key list file, ready to drive register scrapes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ps-vitor/lettings-watch/backend/internal/config"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/sources"
	"github.com/ps-vitor/lettings-watch/backend/internal/services"
	"github.com/ps-vitor/lettings-watch/backend/pkg/logger"
)

func main() {
	configDir := flag.String("config", "configs", "directory holding app.yaml and scraping.yaml")
	out := flag.String("out", "config/property_listing_postcodes.txt", "key list to write")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, cfg.App.LogLevel, cfg.App.LogFormat)

	store, err := sources.Store(cfg, domain.SourceRightmove, log)
	if err != nil {
		log.Error("postcodes: open listings", "error", err)
		os.Exit(1)
	}
	postcodes, err := services.ExtractPostcodes(store, log)
	if err != nil {
		log.Error("postcodes: extract", "error", err)
		os.Exit(1)
	}
	if len(postcodes) == 0 {
		log.Warn("postcodes: no postcodes found", "dir", store.Dir())
		return
	}
	if err := services.WritePostcodes(*out, postcodes); err != nil {
		log.Error("postcodes: write", "error", err)
		os.Exit(1)
	}
	log.Info("postcodes: written", "count", len(postcodes), "path", *out)
}
