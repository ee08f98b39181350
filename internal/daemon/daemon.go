package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"cfb8d/internal/config"
	"cfb8d/internal/ipc"
	"cfb8d/internal/logging"
	"cfb8d/internal/metrics"
	"cfb8d/internal/session"
)

// Daemon serves the session protocol and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	handler *session.Handler

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	server    *ipc.Server
	api       *apiServer
	cancel    context.CancelFunc
	startedAt time.Time

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running             bool             `json:"running"`
	PID                 int              `json:"pid"`
	SocketPath          string           `json:"socket_path"`
	LockFilePath        string           `json:"lock_file_path"`
	StartedAt           time.Time        `json:"started_at,omitzero"`
	UptimeSeconds       int64            `json:"uptime_seconds"`
	ActiveConnections   int              `json:"active_connections"`
	AcceptedConnections uint64           `json:"accepted_connections"`
	Metrics             metrics.Snapshot `json:"metrics"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	collector := metrics.New()
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		handler: &session.Handler{
			ChunkSize:        cfg.Server.ChunkSize,
			HandshakeTimeout: cfg.HandshakeTimeout(),
			IdleTimeout:      cfg.IdleTimeout(),
			Logger:           logger,
			Observer:         collector,
		},
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, binds the socket, and begins accepting
// connections. A bind failure is returned and leaves the daemon stopped.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(d.cfg.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("ensure log directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cfb8d daemon instance is already running")
	}

	mode, err := d.cfg.SocketFileMode()
	if err != nil {
		_ = d.lock.Unlock()
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	server, err := ipc.NewServer(runCtx, d.cfg.Paths.SocketPath, d.handler, d.logger, ipc.Options{
		SocketMode:     mode,
		MaxConnections: d.cfg.Server.MaxConnections,
		PeerRateLimit:  d.cfg.Server.PeerRateLimit,
		PeerRateBurst:  d.cfg.Server.PeerRateBurst,
		Rejections:     d.metrics,
	})
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	server.Serve()

	d.server = server
	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)

	if d.cfg.API.Enabled {
		api := newAPIServer(d.cfg.API.Bind, d.cfg.API.Token, d, d.logger)
		if err := api.start(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "status api unavailable", "api_start_failed",
				logging.String("bind", d.cfg.API.Bind),
				logging.Error(err),
				logging.String(logging.FieldImpact, "cfb8d status and /metrics will not respond"),
				logging.String(logging.FieldErrorHint, "choose a free api.bind address or set api.enabled = false"),
			)
		} else {
			d.api = api
		}
	}

	d.logger.Info("cfb8d daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("socket", server.Path()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop closes the socket and live connections and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	api, server, cancel := d.api, d.server, d.cancel
	d.api, d.server, d.cancel = nil, nil, nil
	d.running.Store(false)
	d.mu.Unlock()

	api.stop()
	if cancel != nil {
		cancel()
	}
	if server != nil {
		server.Close()
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.String("lock", d.lockPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next daemon start may report a running instance"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no cfb8d process is running"),
		)
	}
	d.logger.Info("cfb8d daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Running reports whether the daemon is accepting connections.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Metrics exposes the collector backing /metrics.
func (d *Daemon) Metrics() *metrics.Collector {
	return d.metrics
}

// APIAddress returns the bound status API address, or "" when it is not serving.
func (d *Daemon) APIAddress() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	server, startedAt := d.server, d.startedAt
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		SocketPath:   d.cfg.Paths.SocketPath,
		LockFilePath: d.lockPath,
		Metrics:      d.metrics.Snapshot(),
	}
	if server != nil {
		status.SocketPath = server.Path()
		status.ActiveConnections = server.ActiveConnections()
		status.AcceptedConnections = server.AcceptedConnections()
	}
	if status.Running {
		status.StartedAt = startedAt.UTC()
		status.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return status
}
