package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cfb8d/internal/engine"
	"cfb8d/internal/protocol"
	"cfb8d/internal/testsupport"
)

const (
	testKeyHex = "2b7e151628aed2a6abf7158809cf4f3c"
	testIVHex  = "000102030405060708090a0b0c0d0e0f"
)

func expectedCipher(t *testing.T, dir protocol.Direction, input []byte) []byte {
	t.Helper()
	key, _ := hex.DecodeString(testKeyHex)
	iv, _ := hex.DecodeString(testIVHex)
	sess, err := protocol.NewSession(dir, key, iv)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	eng, err := engine.ForSession(sess)
	if err != nil {
		t.Fatalf("ForSession: %v", err)
	}
	out := make([]byte, len(input))
	if _, err := eng.Update(out, input); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return out
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutAPI())
	plaintext := testsupport.Payload(50_000)

	cipherOut, _, err := runCLI(t, []string{"encrypt", "--key", testKeyHex, "--iv", testIVHex},
		bytes.NewReader(plaintext), env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !bytes.Equal([]byte(cipherOut), expectedCipher(t, protocol.Encrypt, plaintext)) {
		t.Fatal("ciphertext mismatch")
	}

	plainOut, _, err := runCLI(t, []string{"decrypt", "--key", testKeyHex, "--iv", testIVHex},
		strings.NewReader(cipherOut), env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal([]byte(plainOut), plaintext) {
		t.Fatal("round trip mismatch")
	}
}

func TestEncryptFileToFile(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutAPI())
	input := filepath.Join(env.baseDir, "plain.bin")
	output := filepath.Join(env.baseDir, "cipher.bin")
	plaintext := testsupport.WriteFile(t, input, 9000)

	_, _, err := runCLI(t, []string{"encrypt", "--key", testKeyHex, "--iv", testIVHex, "-i", input, "-o", output},
		nil, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, expectedCipher(t, protocol.Encrypt, plaintext)) {
		t.Fatal("ciphertext mismatch")
	}
}

func TestEncryptEmptyInput(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutAPI())
	out, _, err := runCLI(t, []string{"encrypt", "--key", testKeyHex, "--iv", testIVHex},
		bytes.NewReader(nil), env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty output, got %d bytes", len(out))
	}
}

func TestCryptRejectsBadKey(t *testing.T) {
	isolateCLIEnv(t)
	socket := testsupport.SocketPath(t)
	_, _, err := runCLI(t, []string{"encrypt", "--key", "abcd", "--iv", testIVHex}, strings.NewReader("x"), socket, "")
	if err == nil || !strings.Contains(err.Error(), "--key") {
		t.Fatalf("expected key length error, got %v", err)
	}
	_, _, err = runCLI(t, []string{"decrypt", "--key", testKeyHex, "--iv", "zz"}, strings.NewReader("x"), socket, "")
	if err == nil || !strings.Contains(err.Error(), "--iv") {
		t.Fatalf("expected iv hex error, got %v", err)
	}
}

func TestCryptReportsMissingDaemon(t *testing.T) {
	isolateCLIEnv(t)
	socket := testsupport.SocketPath(t)
	_, _, err := runCLI(t, []string{"encrypt", "--key", testKeyHex, "--iv", testIVHex}, strings.NewReader("x"), socket, "")
	if err == nil {
		t.Fatal("expected error without daemon")
	}
	if !strings.Contains(err.Error(), "cfb8d start") {
		t.Fatalf("expected start hint, got %v", err)
	}
}
