package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Scraping ScrapingConfig `yaml:"scraping"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Env       string `yaml:"env"`
	Debug     bool   `yaml:"debug"`
	Port      int    `yaml:"port"`
	Timezone  string `yaml:"timezone"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StorageConfig lays out the data directory. Relative sub-directories are
// resolved against DataDir.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	ListingsDir string `yaml:"listings_dir"`
	LicencesDir string `yaml:"licences_dir"`
	StateDir    string `yaml:"state_dir"`
	CursorFile  string `yaml:"cursor_file"`
	RunsDB      string `yaml:"runs_db"`
}

type ScheduleConfig struct {
	KeyList   string        `yaml:"key_list"`
	BatchSize int           `yaml:"batch_size"`
	Delay     time.Duration `yaml:"delay"`
	Sources   []string      `yaml:"sources"`
}

type ScrapingConfig struct {
	Rightmove RightmoveConfig `yaml:"rightmove"`
	Register  RegisterConfig  `yaml:"register"`
}

type RightmoveConfig struct {
	BaseURL             string            `yaml:"base_url"`
	SearchPath          string            `yaml:"search_path"`
	LocationCodes       map[string]string `yaml:"location_codes"`
	DefaultLocationCode string            `yaml:"default_location_code"`
	MaxPages            int               `yaml:"max_pages"`
	RateLimit           RateLimitConfig   `yaml:"rate_limit"`
	UserAgent           string            `yaml:"user_agent"`
	Timeout             time.Duration     `yaml:"timeout"`
}

type RegisterConfig struct {
	BaseURL     string            `yaml:"base_url"`
	SearchPath  string            `yaml:"search_path"`
	Fetcher     string            `yaml:"fetcher"` // http | browser
	DetailDelay time.Duration     `yaml:"detail_delay"`
	RetryPolicy RetryPolicyConfig `yaml:"retry_policy"`
	Browser     BrowserConfig     `yaml:"browser"`
	UserAgent   string            `yaml:"user_agent"`
	Timeout     time.Duration     `yaml:"timeout"`
}

type RateLimitConfig struct {
	Delay       time.Duration `yaml:"delay"`
	RandomDelay time.Duration `yaml:"random_delay"`
}

type RetryPolicyConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

type BrowserConfig struct {
	RemoteURL string `yaml:"remote_url"`
	Headful   bool   `yaml:"headful"`
}

// LoadConfig reads app.yaml and scraping.yaml from dir, then applies
// LETTINGS_* environment overrides (a .env file in the working directory is
// loaded first). Missing files leave the defaults in place.
func LoadConfig(dir string) (*Config, error) {
	cfg := &Config{}

	// Base app, storage and schedule settings.
	if err := readYAML(filepath.Join(dir, "app.yaml"), cfg); err != nil {
		return nil, err
	}

	// Per-source scraping settings.
	if err := readYAML(filepath.Join(dir, "scraping.yaml"), &cfg.Scraping); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("LETTINGS_DATA_DIR", &c.Storage.DataDir)
	str("LETTINGS_KEY_LIST", &c.Schedule.KeyList)
	str("LETTINGS_LOG_LEVEL", &c.App.LogLevel)
	str("LETTINGS_LOG_FORMAT", &c.App.LogFormat)
	str("LETTINGS_REGISTER_FETCHER", &c.Scraping.Register.Fetcher)
	str("LETTINGS_BROWSER_URL", &c.Scraping.Register.Browser.RemoteURL)

	if v := os.Getenv("LETTINGS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: LETTINGS_PORT: %w", err)
		}
		c.App.Port = port
	}
	if v := os.Getenv("LETTINGS_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: LETTINGS_BATCH_SIZE: %w", err)
		}
		c.Schedule.BatchSize = n
	}
	if v := os.Getenv("LETTINGS_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: LETTINGS_DELAY: %w", err)
		}
		c.Schedule.Delay = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "lettings-watch"
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
		if c.App.Debug {
			c.App.LogLevel = "debug"
		}
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "text"
	}

	s := &c.Storage
	if s.DataDir == "" {
		s.DataDir = "data"
	}
	if s.ListingsDir == "" {
		s.ListingsDir = "rightmove-output/properties"
	}
	if s.LicencesDir == "" {
		s.LicencesDir = "register-output"
	}
	if s.StateDir == "" {
		s.StateDir = "state"
	}
	if s.CursorFile == "" {
		s.CursorFile = "cursor.json"
	}
	if s.RunsDB == "" {
		s.RunsDB = "runs.db"
	}

	if c.Schedule.KeyList == "" {
		c.Schedule.KeyList = "config/postcodes.txt"
	}
	if c.Schedule.BatchSize <= 0 {
		c.Schedule.BatchSize = 1
	}
	if c.Schedule.Delay < 0 {
		c.Schedule.Delay = 0
	}
	if len(c.Schedule.Sources) == 0 {
		c.Schedule.Sources = []string{"rightmove", "register"}
	}

	rm := &c.Scraping.Rightmove
	if rm.BaseURL == "" {
		rm.BaseURL = "https://www.rightmove.co.uk"
	}
	if rm.SearchPath == "" {
		rm.SearchPath = "/property-to-rent/find.html"
	}
	if rm.DefaultLocationCode == "" {
		rm.DefaultLocationCode = "1676"
	}
	if rm.MaxPages <= 0 {
		rm.MaxPages = 3
	}
	if rm.UserAgent == "" {
		rm.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:90.0) Gecko/20100101 Firefox/90.0"
	}
	if rm.Timeout <= 0 {
		rm.Timeout = 30 * time.Second
	}

	rg := &c.Scraping.Register
	if rg.BaseURL == "" {
		rg.BaseURL = "https://propertylicensing.islington.gov.uk"
	}
	if rg.SearchPath == "" {
		rg.SearchPath = "/public-register"
	}
	if rg.Fetcher == "" {
		rg.Fetcher = "http"
	}
	if rg.RetryPolicy.MaxAttempts <= 0 {
		rg.RetryPolicy.MaxAttempts = 3
	}
	if rg.RetryPolicy.Backoff <= 0 {
		rg.RetryPolicy.Backoff = 2 * time.Second
	}
	if rg.UserAgent == "" {
		rg.UserAgent = rm.UserAgent
	}
	if rg.Timeout <= 0 {
		rg.Timeout = 15 * time.Second
	}
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.DataDir, p)
}

// ListingsPath is the rental listing version directory.
func (c *Config) ListingsPath() string { return c.resolve(c.Storage.ListingsDir) }

// LicencesPath is the licence version directory.
func (c *Config) LicencesPath() string { return c.resolve(c.Storage.LicencesDir) }

// StatePath is the directory holding the cursor, run ledger and lock file.
func (c *Config) StatePath() string { return c.resolve(c.Storage.StateDir) }

// CursorPath is the cursor state file.
func (c *Config) CursorPath() string {
	return filepath.Join(c.StatePath(), c.Storage.CursorFile)
}

// RunsDBPath is the SQLite run ledger.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.StatePath(), c.Storage.RunsDB)
}
