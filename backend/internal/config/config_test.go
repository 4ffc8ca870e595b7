package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.App.Port)
	require.Equal(t, 1, cfg.Schedule.BatchSize)
	require.Equal(t, []string{"rightmove", "register"}, cfg.Schedule.Sources)
	require.Equal(t, 3, cfg.Scraping.Rightmove.MaxPages)
	require.Equal(t, "1676", cfg.Scraping.Rightmove.DefaultLocationCode)
	require.Equal(t, filepath.Join("data", "rightmove-output", "properties"), cfg.ListingsPath())
	require.Equal(t, filepath.Join("data", "state", "cursor.json"), cfg.CursorPath())
}

func TestLoadConfigFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte(`
app:
  name: test
  port: 9000
storage:
  data_dir: /srv/lettings
schedule:
  key_list: keys.txt
  batch_size: 4
  delay: 3s
  sources: [register]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scraping.yaml"), []byte(`
rightmove:
  location_codes:
    N19: "1676"
    N7: "1673"
register:
  fetcher: browser
  detail_delay: 500ms
`), 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.App.Port)
	require.Equal(t, 4, cfg.Schedule.BatchSize)
	require.Equal(t, 3*time.Second, cfg.Schedule.Delay)
	require.Equal(t, []string{"register"}, cfg.Schedule.Sources)
	require.Equal(t, "1673", cfg.Scraping.Rightmove.LocationCodes["N7"])
	require.Equal(t, "browser", cfg.Scraping.Register.Fetcher)
	require.Equal(t, 500*time.Millisecond, cfg.Scraping.Register.DetailDelay)
	require.Equal(t, "/srv/lettings/register-output", cfg.LicencesPath())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("LETTINGS_DATA_DIR", "/tmp/data")
	t.Setenv("LETTINGS_BATCH_SIZE", "7")
	t.Setenv("LETTINGS_DELAY", "250ms")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "/tmp/data", cfg.Storage.DataDir)
	require.Equal(t, 7, cfg.Schedule.BatchSize)
	require.Equal(t, 250*time.Millisecond, cfg.Schedule.Delay)
}

func TestLoadConfigBadEnv(t *testing.T) {
	t.Setenv("LETTINGS_PORT", "eighty")
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
}

func TestLoadConfigBadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte("app: [\n"), 0o644))
	_, err := LoadConfig(dir)
	require.Error(t, err)
}
