package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	defaultAppFolder = "mcp-telegram"
	sessionFileName  = "session.json"
	downloadsFolder  = "downloads"
	qrFileName       = "login-qr.png"
)

var ErrNotConfigured = errors.New("telegram api credentials are not configured, set API_ID and API_HASH")

type Config struct {
	APIID   int    `env:"API_ID,required"`
	APIHash string `env:"API_HASH,required"`

	StateDir     string `env:"MCP_TELEGRAM_STATE_DIR"`
	XDGStateHome string `env:"XDG_STATE_HOME"`
}

// Load reads the process environment. Missing credentials are reported
// as ErrNotConfigured before any network activity.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	return finish(cfg, err)
}

// LoadFrom is Load over an explicit environment.
func LoadFrom(environ map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	return finish(cfg, err)
}

func finish(cfg Config, err error) (Config, error) {
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	cfg.APIHash = strings.TrimSpace(cfg.APIHash)
	if cfg.APIID <= 0 || cfg.APIHash == "" {
		return Config{}, ErrNotConfigured
	}
	if strings.TrimSpace(cfg.StateDir) == "" {
		cfg.StateDir = DefaultStateDir(cfg.XDGStateHome)
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)
	return cfg, nil
}

func DefaultStateDir(xdgStateHome string) string {
	if strings.TrimSpace(xdgStateHome) != "" {
		return filepath.Join(xdgStateHome, defaultAppFolder)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), defaultAppFolder)
	}
	return filepath.Join(home, ".local", "state", defaultAppFolder)
}

func (c Config) SessionPath() string {
	return filepath.Join(c.StateDir, sessionFileName)
}

func (c Config) DownloadsDir() string {
	return filepath.Join(c.StateDir, downloadsFolder)
}

func (c Config) QRPath() string {
	return filepath.Join(c.StateDir, qrFileName)
}

// EnsureDirs creates the state and downloads directories.
func (c Config) EnsureDirs() error {
	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return err
	}
	return os.MkdirAll(c.DownloadsDir(), 0o755)
}
