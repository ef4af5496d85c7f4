// Package env resolves gotap's directories and configuration.
//
// Settings come from three layers, later ones winning: the YAML config
// file, GOTAP_* environment variables and command line flags.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTap is the tap used when none is configured.
const DefaultTap = "https://github.com/goplus/gotap"

// Config holds gotap's settings.
type Config struct {
	Prefix      string        `yaml:"prefix"`
	CacheDir    string        `yaml:"cache_dir"`
	Tap         string        `yaml:"tap"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	Jobs        int           `yaml:"jobs"`
	LogLevel    slog.Level    `yaml:"log_level"`
}

// WorkDir returns the default cache directory.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".gotap"), nil
}

// PrefixDir returns the default install prefix.
func PrefixDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".gotap"), nil
}

// ConfigFile returns the path of the config file: $GOTAP_CONFIG or
// <UserConfigDir>/gotap/config.yaml.
func ConfigFile() (string, error) {
	if p := os.Getenv("GOTAP_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gotap", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	prefix, err := PrefixDir()
	if err != nil {
		return nil, err
	}
	cache, err := WorkDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		Prefix:      prefix,
		CacheDir:    cache,
		Tap:         DefaultTap,
		HTTPTimeout: 10 * time.Minute,
		Jobs:        4,
		LogLevel:    slog.LevelInfo,
	}, nil
}

// Load returns the default configuration overlaid with the config file
// at path, if it exists, and then with the environment. An empty path
// means ConfigFile().
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	explicit := path != ""
	if !explicit {
		if path, err = ConfigFile(); err != nil {
			return nil, err
		}
		explicit = os.Getenv("GOTAP_CONFIG") != ""
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GOTAP_PREFIX"); v != "" {
		c.Prefix = v
	}
	if v := os.Getenv("GOTAP_CACHE"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("GOTAP_TAP"); v != "" {
		c.Tap = v
	}
}

func (c *Config) validate() error {
	switch {
	case c.Prefix == "":
		return errors.New("prefix is empty")
	case c.CacheDir == "":
		return errors.New("cache_dir is empty")
	case c.Jobs < 1:
		return fmt.Errorf("jobs must be positive, got %d", c.Jobs)
	case c.HTTPTimeout < 0:
		return fmt.Errorf("http_timeout must not be negative, got %v", c.HTTPTimeout)
	}
	return nil
}

// IsRemoteTap reports whether tap names a git remote rather than a local
// directory.
func IsRemoteTap(tap string) bool {
	return strings.Contains(tap, "://") || strings.HasPrefix(tap, "git@")
}

// TapDir returns the local directory of the configured tap. Remote taps
// are checked out below <cache>/taps.
func (c *Config) TapDir() string {
	if !IsRemoteTap(c.Tap) {
		return c.Tap
	}
	name := c.Tap
	if u, err := url.Parse(c.Tap); err == nil && u.Host != "" {
		name = u.Host + u.Path
	} else {
		name = strings.TrimPrefix(name, "git@")
		name = strings.Replace(name, ":", "/", 1)
	}
	name = strings.TrimSuffix(strings.Trim(name, "/"), ".git")
	return filepath.Join(c.CacheDir, "taps", filepath.FromSlash(name))
}
