package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cfb8d/internal/config"
	"cfb8d/internal/daemon"
	"cfb8d/internal/ipc"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	Diagnostic bool
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
}

// ErrDaemonNotRunning indicates the daemon socket is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// ErrAPIDisabled is returned by FetchStatus when the status API is turned off.
var ErrAPIDisabled = errors.New("status api disabled")

// Launch starts a detached cfb8d daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if opts.Diagnostic {
		args = append(args, "--diagnostic")
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// Reachable reports whether something accepts connections on the socket.
func Reachable(socketPath string) bool {
	conn, err := ipc.Dial(socketPath, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// WaitForSocket waits until the daemon socket accepts connections.
func WaitForSocket(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		conn, err := ipc.Dial(socketPath, time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("daemon failed to start: %w", ipc.WrapDialError(lastErr, socketPath))
}

// EnsureStarted launches the daemon unless its socket is already reachable.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if Reachable(socketPath) {
		return StartResult{State: StartStateAlreadyRunning}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if err := WaitForSocket(socketPath, waitTimeout); err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, Launched: true}, nil
}

// WaitForShutdown waits for the daemon socket to stop accepting connections.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if !Reachable(socketPath) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("daemon did not stop: socket %s still accepting connections", socketPath)
		}
		time.Sleep(pollInterval)
	}
}

// ReadPID parses the daemon pid file. A missing file yields 0 and no error.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("parse daemon pid file %q: invalid pid %q", pidPath, value)
	}
	return pid, nil
}

// ProcessInfo returns whether the daemon socket is reachable and the pid from the pid file.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	if cfg == nil {
		return false, 0, errors.New("configuration not available")
	}
	pid, err := ReadPID(cfg.PIDPath())
	return Reachable(cfg.Paths.SocketPath), pid, err
}

// ForceKillProcess sends SIGKILL to the daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	Signalled  bool
	ForcedKill bool
	PID        int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate sends SIGTERM to the daemon and force-kills it if the
// socket is still reachable after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	alive, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !alive && pid == 0 {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == 0 {
		return StopResult{}, fmt.Errorf("daemon socket %s is reachable but %s is missing", cfg.Paths.SocketPath, cfg.PIDPath())
	}

	result := StopResult{PID: pid}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return result, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			_ = os.Remove(cfg.PIDPath())
			if !alive {
				return StopResult{}, ErrDaemonNotRunning
			}
		} else {
			return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
		}
	} else {
		result.Signalled = true
	}

	if err := WaitForShutdown(cfg.Paths.SocketPath, gracePeriod); err == nil {
		return result, nil
	}

	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	_ = os.Remove(cfg.Paths.SocketPath)
	_ = os.Remove(cfg.Paths.SocketPath + ".lock")
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(cfg.Paths.SocketPath, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// FetchStatus queries the daemon's HTTP status endpoint.
func FetchStatus(ctx context.Context, cfg *config.Config) (*daemon.Status, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	if !cfg.API.Enabled {
		return nil, ErrAPIDisabled
	}

	url := "http://" + cfg.API.Bind + "/api/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	if token := strings.TrimSpace(cfg.API.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query daemon status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return nil, fmt.Errorf("query daemon status: %s (%d)", body.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("query daemon status: unexpected status %d", resp.StatusCode)
	}

	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode daemon status: %w", err)
	}
	return &status, nil
}

// BuildStatusSnapshot collects daemon status, falling back to socket and pid
// file probes when the status API is unreachable.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*daemon.Status, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if status, err := FetchStatus(queryCtx, cfg); err == nil {
		return status, nil
	}

	alive, pid, err := ProcessInfo(cfg)
	if err != nil {
		return nil, err
	}
	status := &daemon.Status{
		Running:      alive,
		SocketPath:   cfg.Paths.SocketPath,
		LockFilePath: cfg.LockPath(),
	}
	if alive {
		status.PID = pid
	}
	return status, nil
}
