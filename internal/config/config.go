// Package config provides configuration management for the time picker agent.
// Configuration is loaded from environment variables with sensible defaults;
// command-line flags may override individual values afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultSocketPath     = "/tmp/mpvsocket"
	DefaultPort           = 0
	DefaultLogLevel       = "info"
	DefaultDataDir        = ".mpv-time-picker"
	DefaultKeyPick        = "alt+t"
	DefaultKeyRemove      = "alt+T"
	DefaultKeyClear       = "ctrl+alt+t"
	DefaultRenderInterval = 100 // milliseconds

	// Environment variable names
	EnvSocket         = "MTP_SOCKET"
	EnvPort           = "MTP_PORT"
	EnvLogLevel       = "MTP_LOG_LEVEL"
	EnvDataDir        = "MTP_DATA_DIR"
	EnvAPIToken       = "MTP_API_TOKEN"
	EnvKeyPick        = "MTP_KEY_PICK"
	EnvKeyRemove      = "MTP_KEY_REMOVE"
	EnvKeyClear       = "MTP_KEY_CLEAR"
	EnvRenderInterval = "MTP_RENDER_INTERVAL_MS"

	// Database filename
	DBFilename = "history.db"
)

// Config defines the application configuration interface
type Config interface {
	SocketPath() string
	Port() int
	APIEnabled() bool
	APIToken() string
	LogLevel() string
	DataDir() string
	DBPath() string
	KeyPick() string
	KeyRemove() string
	KeyClear() string
	RenderInterval() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	socketPath     string
	port           int
	apiToken       string
	logLevel       string
	dataDir        string
	keyPick        string
	keyRemove      string
	keyClear       string
	renderInterval time.Duration
}

// Overrides carries command-line values. Zero values leave the env/default
// value in place.
type Overrides struct {
	SocketPath string
	Port       *int
	LogLevel   string
	DataDir    string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		socketPath:     DefaultSocketPath,
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		keyPick:        DefaultKeyPick,
		keyRemove:      DefaultKeyRemove,
		keyClear:       DefaultKeyClear,
		renderInterval: DefaultRenderInterval * time.Millisecond,
	}

	if s := os.Getenv(EnvSocket); s != "" {
		cfg.socketPath = s
	}

	// Override port from environment; 0 keeps the control API off
	if p := os.Getenv(EnvPort); p != "" {
		port, err := parsePort(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.apiToken = os.Getenv(EnvAPIToken)

	// Key bindings may be set to an empty string to leave a gesture unbound,
	// so presence rather than value decides.
	if k, ok := os.LookupEnv(EnvKeyPick); ok {
		cfg.keyPick = k
	}
	if k, ok := os.LookupEnv(EnvKeyRemove); ok {
		cfg.keyRemove = k
	}
	if k, ok := os.LookupEnv(EnvKeyClear); ok {
		cfg.keyClear = k
	}

	if ri := os.Getenv(EnvRenderInterval); ri != "" {
		ms, err := strconv.Atoi(ri)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRenderInterval, err)
		}
		if ms < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", EnvRenderInterval)
		}
		cfg.renderInterval = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

// Apply layers command-line overrides on top of the environment.
func (c *EnvConfig) Apply(o Overrides) error {
	if o.SocketPath != "" {
		c.socketPath = o.SocketPath
	}
	if o.Port != nil {
		if *o.Port < 0 || *o.Port > 65535 {
			return fmt.Errorf("invalid port %d: must be between 0 and 65535", *o.Port)
		}
		c.port = *o.Port
	}
	if o.LogLevel != "" {
		c.logLevel = o.LogLevel
	}
	if o.DataDir != "" {
		c.dataDir = o.DataDir
	}
	return nil
}

// SocketPath returns the mpv JSON IPC socket path
func (c *EnvConfig) SocketPath() string {
	return c.socketPath
}

// Port returns the control API port
func (c *EnvConfig) Port() int {
	return c.port
}

func (c *EnvConfig) APIEnabled() bool {
	return c.port > 0
}

// APIToken returns the bearer token required by the control API, if any
func (c *EnvConfig) APIToken() string {
	return c.apiToken
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite history database
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) KeyPick() string {
	return c.keyPick
}

func (c *EnvConfig) KeyRemove() string {
	return c.keyRemove
}

func (c *EnvConfig) KeyClear() string {
	return c.keyClear
}

// RenderInterval is the minimum gap between renders driven by time updates
func (c *EnvConfig) RenderInterval() time.Duration {
	return c.renderInterval
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port must be between 0 and 65535")
	}
	return port, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
