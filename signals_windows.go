// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build windows

package main

import (
	"github.com/soothill/esp32ctl/app"
)

// setupDebugSignalHandlers is a no-op on Windows, which has no SIGUSR1
// or SIGUSR2.
func setupDebugSignalHandlers(_ *app.App) {
}
