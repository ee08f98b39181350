package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"cfb8d/internal/daemon"
	"cfb8d/internal/testsupport"
)

func TestStatusCommandReportsRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAPIToken("s3cret"))

	key := []byte(testKeyHex)
	if _, _, err := runCLI(t, []string{"encrypt", "--key", testKeyHex, "--iv", testIVHex},
		bytes.NewReader(key), env.socketPath, env.configPath); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, nil, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "[OK] Running")
	requireContains(t, out, env.socketPath)
	requireContains(t, out, "Sessions (encrypt)")

	out, _, err = runCLI(t, []string{"status", "--json"}, nil, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status daemon.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.Metrics.BytesTotal["encrypt"] != uint64(len(key)) {
		t.Fatalf("expected %d encrypted bytes, got %d", len(key), status.Metrics.BytesTotal["encrypt"])
	}
}

func TestStatusCommandWhenStopped(t *testing.T) {
	isolateCLIEnv(t)
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"status"}, nil, cfg.Paths.SocketPath, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[ERROR] Not running")
	requireContains(t, out, "[INFO] disabled")
}

func TestStopWhenNotRunning(t *testing.T) {
	isolateCLIEnv(t)
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"stop"}, nil, cfg.Paths.SocketPath, configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
