// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package storage persists what the client learns: the last-known device
// address on disk, and device status readings in InfluxDB with a local
// spool covering outages.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/pkg/util"
)

const (
	cacheFileName = "last_address"

	cacheDirMode  = 0o700
	cacheFileMode = 0o600
)

// FileAddressCache stores the last successfully used device address in a
// small file so the next discovery run can try it before any network
// scan. Both operations are best-effort: a missing or unreadable file is
// a cache miss, and a failed save is logged and forgotten. Discovery
// never depends on the cache working.
type FileAddressCache struct {
	path string
}

// NewFileAddressCache creates a cache at the given path, or at
// ~/.esp32ctl/last_address when path is empty.
func NewFileAddressCache(path string) *FileAddressCache {
	if path == "" {
		dir, err := util.DataDir()
		if err != nil {
			logger.Warn().Err(err).Msg("No home directory, address cache disabled")
			return &FileAddressCache{}
		}
		path = filepath.Join(dir, cacheFileName)
	}
	return &FileAddressCache{path: path}
}

// Path returns the cache file location, empty if the cache is disabled.
func (c *FileAddressCache) Path() string {
	return c.path
}

// Load returns the cached address and true when one is present. The
// address is a candidate only; callers must probe it before trusting it.
func (c *FileAddressCache) Load() (string, bool) {
	if c.path == "" {
		return "", false
	}

	data, err := util.ReadFileSafely(c.path)
	if err != nil {
		return "", false
	}

	addr := strings.TrimSpace(string(data))
	if addr == "" {
		return "", false
	}
	return addr, true
}

// Save persists addr for the next run. Failures are logged, never
// propagated.
func (c *FileAddressCache) Save(addr string) {
	if c.path == "" || addr == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.path), cacheDirMode); err != nil {
		logger.Warn().Err(err).Str("path", c.path).Msg("Failed to create address cache directory")
		return
	}
	if err := os.WriteFile(c.path, []byte(addr+"\n"), cacheFileMode); err != nil {
		logger.Warn().Err(err).Str("path", c.path).Msg("Failed to save device address")
		return
	}
	logger.Debug().Str("addr", addr).Str("path", c.path).Msg("Saved device address")
}
