package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateClient(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		return errors.New("paths.socket_path must be set")
	}
	if len(c.Paths.SocketPath) > maxSocketPathLength {
		return fmt.Errorf("paths.socket_path %q exceeds %d bytes; unix sockets need a shorter path", c.Paths.SocketPath, maxSocketPathLength)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !c.API.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind %q: %w", c.API.Bind, err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.ChunkSize <= 0 || c.Server.ChunkSize > maxChunkSize {
		return fmt.Errorf("server.chunk_size must be between 1 and %d", maxChunkSize)
	}
	if _, err := c.SocketFileMode(); err != nil {
		return err
	}
	if c.Server.MaxConnections < 0 {
		return errors.New("server.max_connections must be >= 0")
	}
	if c.Server.HandshakeTimeoutSeconds < 0 {
		return errors.New("server.handshake_timeout_seconds must be >= 0")
	}
	if c.Server.IdleTimeoutSeconds < 0 {
		return errors.New("server.idle_timeout_seconds must be >= 0")
	}
	if c.Server.PeerRateLimit < 0 {
		return errors.New("server.peer_rate_limit must be >= 0")
	}
	if c.Server.PeerRateLimit > 0 && c.Server.PeerRateBurst <= 0 {
		return errors.New("server.peer_rate_burst must be positive when server.peer_rate_limit is set")
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.DialTimeoutSeconds < 0 {
		return errors.New("client.dial_timeout_seconds must be >= 0")
	}
	if c.Client.RoundTripTimeoutSeconds < 0 {
		return errors.New("client.round_trip_timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}
