package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// Payload returns size bytes of a non-repeating-per-block pattern so cipher
// output differences show up across chunk boundaries. A size <= 0 yields a
// single byte.
func Payload(size int) []byte {
	if size <= 0 {
		size = 1
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i*31 + i/251)
	}
	return buf
}

// WriteFile fills the target path with Payload(size).
func WriteFile(t testing.TB, path string, size int) []byte {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := Payload(size)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return data
}
