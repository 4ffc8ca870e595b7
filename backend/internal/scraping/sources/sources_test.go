package sources

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ps-vitor/lettings-watch/backend/internal/config"
	"github.com/ps-vitor/lettings-watch/backend/internal/domain"
	"github.com/ps-vitor/lettings-watch/backend/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func TestNames(t *testing.T) {
	cfg := testConfig(t)

	got, err := Names(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, []domain.Source{domain.SourceRightmove, domain.SourceRegister}, got)

	got, err = Names(cfg, []string{"register", "register"})
	require.NoError(t, err)
	require.Equal(t, []domain.Source{domain.SourceRegister}, got)

	_, err = Names(cfg, []string{"zoopla"})
	var inputErr *domain.InputError
	require.ErrorAs(t, err, &inputErr)
}

func TestBuildPipelines(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scraping.Register.Fetcher = "browser"

	set, err := Build(cfg, []domain.Source{domain.SourceRightmove, domain.SourceRegister}, logger.Discard())
	require.NoError(t, err)
	defer set.Close()

	require.Len(t, set.Pipelines, 2)
	require.Equal(t, domain.SourceRightmove, set.Pipelines[0].Extractor.Source())
	require.Equal(t, domain.SourceRegister, set.Pipelines[1].Extractor.Source())
	require.Equal(t, filepath.Join(cfg.Storage.DataDir, "rightmove-output", "properties"), set.Stores[domain.SourceRightmove].Dir())
	require.DirExists(t, set.Stores[domain.SourceRegister].Dir())
}

func TestListingStoreUsesPrefix(t *testing.T) {
	cfg := testConfig(t)
	st, err := Store(cfg, domain.SourceRightmove, logger.Discard())
	require.NoError(t, err)

	_, err = st.Save("123", domain.Record{"property_id": "123"})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(st.Dir(), "rightmove_123-0.json"))
}

func TestBuildRejectsUnknownFetcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scraping.Register.Fetcher = "carrier-pigeon"

	_, err := Build(cfg, []domain.Source{domain.SourceRegister}, logger.Discard())
	require.Error(t, err)
}

func TestLicenceStoreUsesUnderscore(t *testing.T) {
	cfg := testConfig(t)
	st, err := Store(cfg, domain.SourceRegister, logger.Discard())
	require.NoError(t, err)

	_, err = st.Save("ISL-403549725326", domain.Record{"address": "1 Upper Street"})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(st.Dir(), "ISL-403549725326_0.json"))
}
