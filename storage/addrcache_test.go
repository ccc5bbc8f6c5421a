// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileAddressCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "last_address")
	cache := NewFileAddressCache(path)

	cache.Save("192.168.1.42")

	addr, ok := cache.Load()
	if !ok {
		t.Fatal("Load() should find the saved address")
	}
	if addr != "192.168.1.42" {
		t.Errorf("addr = %q, want 192.168.1.42", addr)
	}
}

func TestFileAddressCache_MissingFile(t *testing.T) {
	cache := NewFileAddressCache(filepath.Join(t.TempDir(), "nope"))

	if _, ok := cache.Load(); ok {
		t.Error("Load() should miss when the file does not exist")
	}
}

func TestFileAddressCache_BlankFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_address")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cache := NewFileAddressCache(path)
	if _, ok := cache.Load(); ok {
		t.Error("Load() should miss on a blank file")
	}
}

func TestFileAddressCache_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_address")
	cache := NewFileAddressCache(path)

	cache.Save("192.168.1.10")
	cache.Save("192.168.1.20")

	addr, ok := cache.Load()
	if !ok || addr != "192.168.1.20" {
		t.Errorf("Load() = %q, %v; want the most recent save", addr, ok)
	}
}

func TestFileAddressCache_SaveEmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_address")
	cache := NewFileAddressCache(path)

	cache.Save("")

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Save(\"\") should not create the cache file")
	}
}

func TestFileAddressCache_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_address")
	if err := os.WriteFile(path, []byte("192.168.1.5\n"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	cache := NewFileAddressCache(path)
	addr, ok := cache.Load()
	if !ok || addr != "192.168.1.5" {
		t.Errorf("Load() = %q, %v; want trimmed address", addr, ok)
	}
}
