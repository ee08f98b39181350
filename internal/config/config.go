package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains filesystem locations used by the daemon.
type Paths struct {
	SocketPath string `toml:"socket_path"`
	LogDir     string `toml:"log_dir"`
}

// API contains configuration for the HTTP status and metrics endpoint.
type API struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
	Token   string `toml:"token"`
}

// Server contains per-connection and admission settings for the acceptor.
type Server struct {
	// ChunkSize bounds a single socket read in the streaming loop.
	ChunkSize               int    `toml:"chunk_size"`
	SocketMode              string `toml:"socket_mode"`
	MaxConnections          int    `toml:"max_connections"`
	HandshakeTimeoutSeconds int    `toml:"handshake_timeout_seconds"`
	IdleTimeoutSeconds      int    `toml:"idle_timeout_seconds"`
	// PeerRateLimit is accepted connections per second per peer uid; 0 disables.
	PeerRateLimit float64 `toml:"peer_rate_limit"`
	PeerRateBurst int     `toml:"peer_rate_burst"`
}

// Client contains defaults for the stream adapter used by CLI commands.
type Client struct {
	DialTimeoutSeconds      int `toml:"dial_timeout_seconds"`
	RoundTripTimeoutSeconds int `toml:"round_trip_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for cfb8d.
type Config struct {
	Paths   Paths   `toml:"paths"`
	API     API     `toml:"api"`
	Server  Server  `toml:"server"`
	Client  Client  `toml:"client"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cfb8d/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cfb8d.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log directory and the socket's parent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, filepath.Dir(c.Paths.SocketPath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the single-instance lock held by a running daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "cfb8d.lock")
}

// PIDPath is the pid file written by a running daemon.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "cfb8d.pid")
}

// SocketFileMode parses Server.SocketMode as an octal permission mask.
func (c *Config) SocketFileMode() (os.FileMode, error) {
	value := strings.TrimSpace(c.Server.SocketMode)
	if value == "" {
		value = defaultSocketMode
	}
	mode, err := strconv.ParseUint(value, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("server.socket_mode %q: %w", value, err)
	}
	if mode > 0o777 {
		return 0, fmt.Errorf("server.socket_mode %q: must be a permission mask", value)
	}
	return os.FileMode(mode), nil
}

// HandshakeTimeout bounds the wait for the 33 byte handshake; zero means no limit.
func (c *Config) HandshakeTimeout() time.Duration {
	return seconds(c.Server.HandshakeTimeoutSeconds)
}

// IdleTimeout bounds the wait for the next request chunk; zero means no limit.
func (c *Config) IdleTimeout() time.Duration {
	return seconds(c.Server.IdleTimeoutSeconds)
}

func (c *Config) DialTimeout() time.Duration {
	return seconds(c.Client.DialTimeoutSeconds)
}

func (c *Config) RoundTripTimeout() time.Duration {
	return seconds(c.Client.RoundTripTimeoutSeconds)
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultSocketPath() string {
	if base, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, defaultSocketName)
	}
	return filepath.Join(defaultDataDir, defaultSocketName)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
