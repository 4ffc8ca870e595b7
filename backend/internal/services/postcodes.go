package services

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/ps-vitor/lettings-watch/backend/internal/cursor"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/scraping/text"
	"github.com/ps-vitor/lettings-watch/backend/internal/snapshot"
)

// HistoryReader is the read side of a snapshot store.
type HistoryReader interface {
	Entities() ([]string, error)
	History(entityID string) ([]snapshot.Version, error)
}

// ExtractPostcodes collects the unique postcodes seen in any stored listing
// version, sorted. Listings without a postcode field fall back to the last
// postcode found in their address.
func ExtractPostcodes(store HistoryReader, log *slog.Logger) ([]string, error) {
	if log == nil {
		log = slog.Default()
	}
	ids, err := store.Entities()
	if err != nil {
		return nil, fmt.Errorf("postcodes: list entities: %w", err)
	}

	seen := map[string]struct{}{}
	for _, id := range ids {
		versions, err := store.History(id)
		if err != nil {
			log.Warn("postcodes: skip entity", "entity", id, "error", err)
			continue
		}
		for _, v := range versions {
			pc := v.Record.String("postcode")
			if pc == "" {
				pc = text.Postcode(v.Record.String("address"))
			}
			if pc != "" {
				seen[pc] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for pc := range seen {
		out = append(out, pc)
	}
	sort.Strings(out)
	return out, nil
}

// WritePostcodes writes postcodes as a key list file, replacing path
// atomically.
func WritePostcodes(path string, postcodes []string) error {
	if len(postcodes) == 0 {
		return &domain.InputError{Msg: "no postcodes to write"}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("postcodes: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("postcodes: create: %w", err)
	}
	if err := cursor.WriteKeys(f, postcodes); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("postcodes: write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("postcodes: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("postcodes: rename: %w", err)
	}
	return nil
}
