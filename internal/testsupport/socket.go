package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketDir returns a short-lived directory whose path is short enough for
// unix socket names on every platform; t.TempDir can exceed sun_path limits.
func SocketDir(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "cfb8d")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// SocketPath returns a fresh socket path inside SocketDir.
func SocketPath(t testing.TB) string {
	t.Helper()
	return filepath.Join(SocketDir(t), "d.sock")
}
