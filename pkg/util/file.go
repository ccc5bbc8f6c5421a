// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package util holds the small filesystem helpers shared by the config
// and storage layers: resolving the per-user data directory and reading
// operator-supplied files (config, cached address) through a cleaned
// absolute path.
package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// dataDirName is the dot-directory under the user's home that holds the
// address cache and the reading spool.
const dataDirName = ".esp32ctl"

// DataDir returns the per-user data directory (~/.esp32ctl). The
// directory is not created here; callers create the parts they own.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not locate home directory: %w", err)
	}
	return filepath.Join(home, dataDirName), nil
}

// ReadFileSafely reads a file after resolving it to a cleaned absolute
// path. Used for paths that come from config or the environment rather
// than from code.
func ReadFileSafely(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for %s: %w", path, err)
	}
	return os.ReadFile(absPath) // #nosec G304
}
