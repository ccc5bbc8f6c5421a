// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/pkg/metrics"
)

// Watcher reloads the configuration file on SIGHUP and hands validated
// configs to the application over a channel. A reload that fails either
// schema or semantic validation is rejected; the running config stays
// in effect.
type Watcher struct {
	path       string
	configChan chan<- *Config
	reloadChan chan os.Signal
	cancelFunc context.CancelFunc
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string, configChan chan<- *Config) *Watcher {
	return &Watcher{
		path:       path,
		configChan: configChan,
		reloadChan: make(chan os.Signal, 1),
	}
}

// Start registers the SIGHUP handler and begins watching.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancelFunc = context.WithCancel(ctx)
	signal.Notify(w.reloadChan, syscall.SIGHUP)

	go w.watch(ctx)
}

// Stop unregisters the signal handler and ends the watch loop.
func (w *Watcher) Stop() {
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	signal.Stop(w.reloadChan)
}

// watch delivers each successfully reloaded config to the channel.
func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.reloadChan:
			logger.Info().Str("path", w.path).Msg("SIGHUP received, reloading configuration")

			cfg, err := w.reload()
			if err != nil {
				metrics.ConfigReloadErrors.Inc()
				logger.Error().Err(err).Str("path", w.path).
					Msg("Reload rejected, keeping the running configuration")
				continue
			}

			metrics.ConfigReloads.Inc()
			w.configChan <- cfg
			logger.Info().Str("path", w.path).Msg("Configuration reloaded")
		}
	}
}

// reload runs the same validation gauntlet as startup: schema first,
// then Load with its semantic checks.
func (w *Watcher) reload() (*Config, error) {
	if err := ValidateWithSchema(w.path); err != nil {
		return nil, err
	}
	return Load(w.path)
}
