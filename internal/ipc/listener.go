package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"cfb8d/internal/protocol"
)

// DefaultSocketMode restricts the socket to the daemon's user.
const DefaultSocketMode os.FileMode = 0o600

// Listener is a unix socket listener that holds an exclusive lock on
// "<path>.lock" for its lifetime.
type Listener struct {
	path     string
	lockPath string
	lock     *flock.Flock
	unix     *net.UnixListener

	closeOnce sync.Once
	closeErr  error
}

// Listen binds path after taking its lock file. An orphaned socket left by a
// previous run is removed; any other file at path is refused. The socket is
// chmod'ed to mode (DefaultSocketMode when zero). Every failure wraps
// protocol.ErrBindFailure.
func Listen(path string, mode os.FileMode) (*Listener, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty socket path", protocol.ErrBindFailure)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve socket path %q: %w", protocol.ErrBindFailure, path, err)
	}
	if mode == 0 {
		mode = DefaultSocketMode
	}

	info, err := os.Lstat(abs)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: stat socket %q: %w", protocol.ErrBindFailure, abs, err)
	}
	if info != nil && info.Mode()&os.ModeSocket == 0 {
		return nil, fmt.Errorf("%w: %q exists and is not a unix socket", protocol.ErrBindFailure, abs)
	}

	l := &Listener{path: abs, lockPath: abs + ".lock"}
	l.lock = flock.New(l.lockPath)
	locked, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: lock %q: %w", protocol.ErrBindFailure, l.lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: socket %q is in use by another daemon", protocol.ErrBindFailure, abs)
	}

	if info != nil {
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.releaseLock()
			return nil, fmt.Errorf("%w: remove orphaned socket %q: %w", protocol.ErrBindFailure, abs, err)
		}
	}

	unixListener, err := net.ListenUnix("unix", &net.UnixAddr{Name: abs, Net: "unix"})
	if err != nil {
		l.releaseLock()
		return nil, fmt.Errorf("%w: listen on %q: %w", protocol.ErrBindFailure, abs, err)
	}
	unixListener.SetUnlinkOnClose(false)
	l.unix = unixListener

	if err := os.Chmod(abs, mode); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("%w: chmod socket %q: %w", protocol.ErrBindFailure, abs, err)
	}
	return l, nil
}

// Accept implements net.Listener.
func (l *Listener) Accept() (net.Conn, error) {
	return l.unix.Accept()
}

// Addr implements net.Listener.
func (l *Listener) Addr() net.Addr {
	return l.unix.Addr()
}

// Path returns the absolute socket path.
func (l *Listener) Path() string {
	return l.path
}

// Close stops listening, removes the socket, and releases the lock file.
// It is safe to call more than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.closeErr = fmt.Errorf("remove socket %q: %w", l.path, err)
		}
		if l.unix != nil {
			if err := l.unix.Close(); err != nil && l.closeErr == nil {
				l.closeErr = err
			}
		}
		if err := l.releaseLock(); err != nil && l.closeErr == nil {
			l.closeErr = err
		}
	})
	return l.closeErr
}

// releaseLock deletes the lock file before unlocking so the next daemon can
// claim a fresh one immediately.
func (l *Listener) releaseLock() error {
	if l.lock == nil {
		return nil
	}
	_ = os.Remove(l.lockPath)
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock %q: %w", l.lockPath, err)
	}
	return nil
}
