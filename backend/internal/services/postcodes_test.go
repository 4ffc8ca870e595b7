package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ps-vitor/lettings-watch/backend/internal/cursor"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/internal/snapshot"
	"github.com/ps-vitor/lettings-watch/backend/pkg/logger"
)

func TestExtractPostcodes(t *testing.T) {
	store, err := snapshot.New(snapshot.Config{Dir: t.TempDir(), Prefix: "rightmove_", Logger: logger.Discard()})
	require.NoError(t, err)

	save := func(id string, rec domain.Record) {
		_, err := store.Save(id, rec)
		require.NoError(t, err)
	}
	save("1", domain.Record{"postcode": "N7 8AB", "price": "£2,000 pcm"})
	save("1", domain.Record{"postcode": "N7 8AC", "price": "£2,000 pcm"})
	save("2", domain.Record{"address": "Holloway Road, London N19 4JN"})
	save("3", domain.Record{"postcode": "N7 8AB"})
	save("4", domain.Record{"address": "Junction Road"})
	// Not a listing version.
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.json"), []byte(`{"postcode":"E1 1AA"}`), 0o644))

	got, err := ExtractPostcodes(store, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, []string{"N19 4JN", "N7 8AB", "N7 8AC"}, got)
}

func TestWritePostcodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "property_listing_postcodes.txt")

	require.NoError(t, WritePostcodes(path, []string{"N1 1AA", "N7 8AB"}))
	keys, err := cursor.LoadKeys(path)
	require.NoError(t, err)
	require.Equal(t, []string{"N1 1AA", "N7 8AB"}, keys)
	require.NoFileExists(t, path+".tmp")

	var inputErr *domain.InputError
	require.ErrorAs(t, WritePostcodes(path, nil), &inputErr)
}
