package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// DefaultDialTimeout applies when callers pass a non-positive timeout.
const DefaultDialTimeout = 2 * time.Second

// Dial connects to the daemon socket at path.
func Dial(path string, timeout time.Duration) (net.Conn, error) {
	return DialContext(context.Background(), path, timeout)
}

// DialContext connects to the daemon socket at path, honouring ctx.
func DialContext(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "unix", path)
}

// WrapDialError turns the common socket failures into operator-facing messages.
func WrapDialError(err error, socket string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `cfb8d start`: %w", socket, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running: %w", socket, err)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}
