package engine_test

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"

	"cfb8d/internal/engine"
	"cfb8d/internal/protocol"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decode hex %q: %v", s, err)
	}
	return b
}

func sessionFor(t *testing.T, dir protocol.Direction, key, iv []byte) protocol.Session {
	t.Helper()
	s, err := protocol.NewSession(dir, key, iv)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func transform(t *testing.T, s protocol.Session, input []byte) []byte {
	t.Helper()
	eng, err := engine.ForSession(s)
	if err != nil {
		t.Fatalf("ForSession: %v", err)
	}
	out := make([]byte, len(input))
	n, err := eng.Update(out, input)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != len(input) {
		t.Fatalf("expected %d bytes, got %d", len(input), n)
	}
	return out
}

// NIST SP 800-38A F.3.7 / F.3.8 (CFB8-AES128).
func TestKnownAnswer(t *testing.T) {
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	iv := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	plain := mustHex(t, "6bc1bee22e409f96e93d7e117393172aae2d")
	cipherText := mustHex(t, "3b79424c9c0dd436bace9e0ed4586a4f32b9")

	if got := transform(t, sessionFor(t, protocol.Encrypt, key, iv), plain); !bytes.Equal(got, cipherText) {
		t.Fatalf("encrypt mismatch:\n got %x\nwant %x", got, cipherText)
	}
	if got := transform(t, sessionFor(t, protocol.Decrypt, key, iv), cipherText); !bytes.Equal(got, plain) {
		t.Fatalf("decrypt mismatch:\n got %x\nwant %x", got, plain)
	}
}

func TestHelloScenario(t *testing.T) {
	zero := make([]byte, 16)
	enc := transform(t, sessionFor(t, protocol.Encrypt, zero, zero), []byte("HELLO"))
	if len(enc) != 5 {
		t.Fatalf("expected 5 bytes, got %d", len(enc))
	}
	if bytes.Equal(enc, []byte("HELLO")) {
		t.Fatal("ciphertext equals plaintext")
	}
	dec := transform(t, sessionFor(t, protocol.Decrypt, zero, zero), enc)
	if string(dec) != "HELLO" {
		t.Fatalf("expected HELLO, got %q", dec)
	}
}

func TestChunkingIndependence(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	_, _ = rand.Read(key)
	_, _ = rand.Read(iv)
	plain := make([]byte, 1000)
	_, _ = rand.Read(plain)
	s := sessionFor(t, protocol.Encrypt, key, iv)
	whole := transform(t, s, plain)

	for _, sizes := range [][]int{{1}, {3, 7}, {16}, {999, 1}, {17, 250, 500}} {
		eng, err := engine.ForSession(s)
		if err != nil {
			t.Fatalf("ForSession: %v", err)
		}
		var out []byte
		for off, i := 0, 0; off < len(plain); i++ {
			size := sizes[i%len(sizes)]
			end := min(off+size, len(plain))
			chunk := make([]byte, end-off)
			if _, err := eng.Update(chunk, plain[off:end]); err != nil {
				t.Fatalf("Update: %v", err)
			}
			out = append(out, chunk...)
			off = end
		}
		if !bytes.Equal(out, whole) {
			t.Fatalf("chunk sizes %v produced different ciphertext", sizes)
		}
	}
}

func TestInPlaceDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 16)
	iv := bytes.Repeat([]byte{0x24}, 16)
	plain := []byte("the quick brown fox jumps over the lazy dog")
	buf := transform(t, sessionFor(t, protocol.Encrypt, key, iv), plain)

	eng, err := engine.ForSession(sessionFor(t, protocol.Decrypt, key, iv))
	if err != nil {
		t.Fatalf("ForSession: %v", err)
	}
	if _, err := eng.Update(buf, buf); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !bytes.Equal(buf, plain) {
		t.Fatalf("in-place decrypt mismatch: %q", buf)
	}
}

func TestUpdateShortOutput(t *testing.T) {
	eng, err := engine.New(protocol.Encrypt, [16]byte{}, [16]byte{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := eng.Update(make([]byte, 2), make([]byte, 3)); !errors.Is(err, protocol.ErrCipherFailure) {
		t.Fatalf("expected ErrCipherFailure, got %v", err)
	}
}

func TestNewRejectsInvalidDirection(t *testing.T) {
	if _, err := engine.New(protocol.Direction(5), [16]byte{}, [16]byte{}); !errors.Is(err, protocol.ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
}
