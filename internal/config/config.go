package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// config.go loads, validates, and exposes application configuration.

var (
	mu       sync.RWMutex
	instance *Config
)

// DownloadBackend selects which concrete DownloadWorker implementation runs
// queued downloads.
type DownloadBackend string

const (
	BackendHTTP    DownloadBackend = "http"
	BackendAria2c  DownloadBackend = "aria2c"
	BackendSymlink DownloadBackend = "symlink"
)

// Config holds the application configuration.
type Config struct {
	// Provider
	Token string `json:"token"`

	// Download client
	DownloadBackend DownloadBackend `json:"download_backend"`
	RcloneMountPath string          `json:"rclone_mount_path"`
	DownloadPath    string          `json:"download_path"`
	Aria2RPCURL     string          `json:"aria2_rpc_url"`
	Aria2RPCSecret  string          `json:"aria2_rpc_secret"`

	// General
	DownloadLimit int    `json:"download_limit"`
	UnpackLimit   int    `json:"unpack_limit"`
	CacheDir      string `json:"cache_dir"`
	DatabasePath  string `json:"database_path"`
	LogLevel      string `json:"log_level"`

	// Rate limits (requests/minute)
	GeneralRateLimit  int `json:"general_rate_limit"`
	TorrentsRateLimit int `json:"torrents_rate_limit"`

	// Tick cadence for watch mode
	TickIntervalSeconds int `json:"tick_interval_seconds"`

	// Retry budgets applied to newly-created torrents/downloads
	DefaultTorrentRetryAttempts  int `json:"default_torrent_retry_attempts"`
	DefaultDownloadRetryAttempts int `json:"default_download_retry_attempts"`

	// Remote progress push, empty disables it
	ProgressPushURL string `json:"progress_push_url"`

	// Internal
	Path string `json:"-"` // Directory the config file was loaded from
}

// defaults returns a Config with default values.
func defaults() *Config {
	return &Config{
		DownloadBackend:   BackendHTTP,
		DownloadPath:      "./downloads",
		CacheDir:          "./cache",
		DatabasePath:      "./cache/torrentrunner.db",
		DownloadLimit:     5,
		UnpackLimit:       2,
		LogLevel:          "info",
		GeneralRateLimit:  60,
		TorrentsRateLimit: 25,

		TickIntervalSeconds: 60,

		DefaultTorrentRetryAttempts:  3,
		DefaultDownloadRetryAttempts: 3,
	}
}

// Load reads configuration from a JSON file.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	paths := []string{
		configPath,
		"config.json",
		"/data/config.json",
		filepath.Join(os.Getenv("HOME"), ".config/torrentrunner/config.json"),
	}

	var configFile string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			configFile = p
			break
		}
	}

	if configFile == "" {
		return nil, fmt.Errorf("config file not found in any of: %v", paths)
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Path = filepath.Dir(configFile)
	cfg.normalize()

	return cfg, nil
}

// normalize fills defaults and clamps configuration values after Load. A
// Config built by hand (tests, embedders) never passes through here; Tick()
// clamps the concurrency caps again on entry so such callers get the same
// floor the CLI path gets.
func (c *Config) normalize() {
	if c.DownloadLimit < 1 {
		c.DownloadLimit = 1
	}
	if c.UnpackLimit < 1 {
		c.UnpackLimit = 1
	}
	if c.GeneralRateLimit < 1 {
		c.GeneralRateLimit = 60
	}
	if c.TorrentsRateLimit < 1 {
		c.TorrentsRateLimit = 25
	}
	if c.TickIntervalSeconds < 5 {
		c.TickIntervalSeconds = 60
	}
	if c.DownloadBackend == "" {
		c.DownloadBackend = BackendHTTP
	}
	c.DownloadBackend = DownloadBackend(strings.ToLower(string(c.DownloadBackend)))
}

// Validate reports configuration errors that should stop the process from
// starting at all. Errors that should merely make a single Tick a no-op
// are checked by the runner itself, not here.
func (c *Config) Validate() error {
	if c.Token == "" || c.Token == "YOUR_RD_API_TOKEN" {
		return fmt.Errorf("real-debrid API token is required")
	}
	return nil
}

// IsSymlinkBackend reports whether the configured download backend
// materializes files via symlink rather than a byte transfer.
func (c *Config) IsSymlinkBackend() bool {
	return c.DownloadBackend == BackendSymlink
}

// Get returns the singleton config instance, or defaults if none was set.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return defaults()
	}
	return instance
}

// SetInstance sets the global config instance.
func SetInstance(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}
