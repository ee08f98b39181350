package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeServer()
	c.normalizeClient()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("CFB8D_SOCKET"); ok && strings.TrimSpace(value) != "" {
		c.Paths.SocketPath = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath()
	}
	var err error
	if c.Paths.SocketPath, err = expandPath(strings.TrimSpace(c.Paths.SocketPath)); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if value, ok := os.LookupEnv("CFB8D_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.API.Token = value
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeServer() {
	if c.Server.ChunkSize == 0 {
		c.Server.ChunkSize = defaultChunkSize
	}
	c.Server.SocketMode = strings.TrimSpace(c.Server.SocketMode)
	if c.Server.SocketMode == "" {
		c.Server.SocketMode = defaultSocketMode
	}
	if c.Server.PeerRateLimit > 0 && c.Server.PeerRateBurst <= 0 {
		c.Server.PeerRateBurst = defaultPeerRateBurst
	}
}

func (c *Config) normalizeClient() {
	if c.Client.DialTimeoutSeconds == 0 {
		c.Client.DialTimeoutSeconds = defaultDialTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
