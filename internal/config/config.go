// ABOUTME: Configuration management with storage backend selection
// ABOUTME: Handles the YAML settings file, XDG paths, and the storage backend factory

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harper/skim/internal/storage"
	"gopkg.in/yaml.v3"
)

// ErrNoHome is returned when neither XDG variables nor a home directory
// can locate the configuration.
var ErrNoHome = errors.New("cannot determine home directory")

// Config stores skim configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default) or "badger".
	Backend string `yaml:"backend,omitempty"`

	// DataDir is the root directory for the cache. Supports ~ expansion.
	// Defaults to ~/.local/share/skim.
	DataDir string `yaml:"data_dir,omitempty"`

	// URLFile is the subscription list, one URL per line. Defaults to
	// ~/.config/skim/urls.
	URLFile string `yaml:"url_file,omitempty"`

	// CacheFile overrides the backend's cache location inside DataDir.
	CacheFile string `yaml:"cache_file,omitempty"`

	UserAgent   string        `yaml:"user_agent,omitempty"`
	HTTPTimeout time.Duration `yaml:"http_timeout,omitempty"`
	Debug       bool          `yaml:"debug,omitempty"`
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return storage.BackendSQLite
	}
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() (string, error) {
	if c.DataDir == "" {
		return DefaultDataDir()
	}
	return ExpandPath(c.DataDir), nil
}

// GetURLFile returns the subscription list path.
func (c *Config) GetURLFile() (string, error) {
	if c.URLFile != "" {
		return ExpandPath(c.URLFile), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultURLFileName), nil
}

// GetCachePath returns the cache location for the configured backend.
func (c *Config) GetCachePath() (string, error) {
	if c.CacheFile != "" {
		return ExpandPath(c.CacheFile), nil
	}
	dataDir, err := c.GetDataDir()
	if err != nil {
		return "", err
	}
	return storage.DefaultPath(c.GetBackend(), dataDir), nil
}

// GetUserAgent returns the HTTP User-Agent, defaulting to DefaultUserAgent.
func (c *Config) GetUserAgent() string {
	if c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

// GetHTTPTimeout returns the HTTP timeout, defaulting to DefaultHTTPTimeout.
func (c *Config) GetHTTPTimeout() time.Duration {
	if c.HTTPTimeout <= 0 {
		return DefaultHTTPTimeout
	}
	return c.HTTPTimeout
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage creates a Store implementation based on the configured backend.
func (c *Config) OpenStorage() (storage.Store, error) {
	path, err := c.GetCachePath()
	if err != nil {
		return nil, err
	}
	return storage.Open(c.GetBackend(), path)
}

// ConfigDir returns skim's configuration directory.
func ConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil || homeDir == "" {
			return "", ErrNoHome
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "skim"), nil
}

// GetConfigPath returns the config file path.
func GetConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LogPath returns the diagnostic log file path.
func LogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultLogFileName), nil
}

// Load reads config from disk. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return atomicWrite(path, data, 0600)
}

// Exists reports whether a config file has been written.
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// DefaultDataDir returns the standard XDG data directory for skim.
func DefaultDataDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return "", ErrNoHome
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "skim"), nil
}

// atomicWrite replaces path with data via a temp file in the same directory.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirPerms); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
