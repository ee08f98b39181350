package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"cfb8d/internal/config"
	"cfb8d/internal/daemon"
	"cfb8d/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the cfb8d daemon and blocks until SIGINT, SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	stamp := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("cfb8d-%s.log", stamp))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}

	var runID string
	var debugLogPath string
	if opts.Diagnostic {
		runID = uuid.NewString()
		debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
		if err := os.MkdirAll(debugDir, 0o755); err != nil {
			return fmt.Errorf("create debug log directory: %w", err)
		}
		debugLogPath = filepath.Join(debugDir, fmt.Sprintf("cfb8d-%s.log", stamp))
	}

	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		RunID:            runID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.Diagnostic {
		debugLogger, debugErr := logging.New(logging.Options{
			Level:            "debug",
			Format:           "json",
			OutputPaths:      []string{debugLogPath},
			ErrorOutputPaths: []string{debugLogPath},
			Development:      true,
			RunID:            runID,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugLogger.Handler())
			if err := ensureCurrentLogPointer(filepath.Join(cfg.Paths.LogDir, "debug"), debugLogPath); err != nil {
				fmt.Fprintf(os.Stderr, "warn: unable to update debug/cfb8d.log link: %v\n", err)
			}
		}
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String(logging.FieldRunID, runID),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update cfb8d.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "cfb8d-*.log", Keep: []string{logPath}})
	if debugLogPath != "" {
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
			logging.RetentionTarget{Dir: filepath.Dir(debugLogPath), Pattern: "cfb8d-*.log", Keep: []string{debugLogPath}})
	}
	logRuntimeSnapshot(logger, cfg)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check socket_path and that no other daemon is running"),
		)
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("cfb8d daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "cfb8d.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logRuntimeSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("runtime snapshot",
		logging.String(logging.FieldEventType, "runtime_snapshot"),
		logging.String("socket_path", cfg.Paths.SocketPath),
		logging.String("socket_mode", cfg.Server.SocketMode),
		logging.Int("chunk_size", cfg.Server.ChunkSize),
		logging.Int("max_connections", cfg.Server.MaxConnections),
		logging.Bool("api_enabled", cfg.API.Enabled),
		logging.Bool("api_token_present", cfg.API.Token != ""),
		logging.String("go_version", runtime.Version()),
	)
}
