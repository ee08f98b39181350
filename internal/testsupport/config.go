package testsupport

import (
	"path/filepath"
	"testing"

	"cfb8d/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The socket lives in a short temp dir and the API binds an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = SocketPath(t)
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithChunkSize overrides the daemon read chunk size.
func WithChunkSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.ChunkSize = size
	}
}

// WithAPIToken enables bearer authentication on the status API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithoutAPI disables the HTTP status API.
func WithoutAPI() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Enabled = false
	}
}

// WithMaxConnections caps concurrent daemon connections.
func WithMaxConnections(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.MaxConnections = limit
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
