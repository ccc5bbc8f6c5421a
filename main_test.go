// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestPerformConfigValidation_Valid(t *testing.T) {
	path := writeTempConfig(t, `
device:
  tcp_port: 8888
  udp_port: 8889
logging:
  level: info
`)

	if code := performConfigValidation(path); code != 0 {
		t.Errorf("performConfigValidation() = %d, want 0", code)
	}
}

func TestPerformConfigValidation_UnknownKey(t *testing.T) {
	path := writeTempConfig(t, `
device:
  tcp_port: 8888
  banner_lines: 2
`)

	if code := performConfigValidation(path); code != 1 {
		t.Errorf("performConfigValidation() = %d, want 1 for unknown key", code)
	}
}

func TestPerformConfigValidation_MissingFile(t *testing.T) {
	if code := performConfigValidation(filepath.Join(t.TempDir(), "nope.yaml")); code != 1 {
		t.Error("performConfigValidation() should fail for a missing file")
	}
}

func TestPerformConfigValidation_SamePorts(t *testing.T) {
	path := writeTempConfig(t, `
device:
  tcp_port: 8888
  udp_port: 8888
`)

	if code := performConfigValidation(path); code != 1 {
		t.Error("performConfigValidation() should reject identical TCP and UDP ports")
	}
}

func TestPerformHealthCheck_NoServer(t *testing.T) {
	// Port 1 is never listening.
	if code := performHealthCheck("1"); code != 1 {
		t.Errorf("performHealthCheck() = %d, want 1 with no server running", code)
	}
}
