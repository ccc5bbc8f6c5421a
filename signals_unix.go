// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/soothill/esp32ctl/app"
)

// setupDebugSignalHandlers installs SIGUSR1 (state dump) and SIGUSR2
// (goroutine stack dump) handlers.
func setupDebugSignalHandlers(application *app.App) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			application.DumpApplicationState()
		}
	}()

	usr2 := make(chan os.Signal, 1)
	signal.Notify(usr2, syscall.SIGUSR2)
	go func() {
		for range usr2 {
			app.DumpGoroutineStackTraces()
		}
	}()
}
