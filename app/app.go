// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package app wires discovery, transport, monitoring, and storage into
// the long-running controller daemon.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soothill/esp32ctl/config"
	"github.com/soothill/esp32ctl/controller"
	"github.com/soothill/esp32ctl/discovery"
	"github.com/soothill/esp32ctl/monitoring"
	"github.com/soothill/esp32ctl/pkg/interfaces"
	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/pkg/notifications"
	"github.com/soothill/esp32ctl/storage"
	"github.com/soothill/esp32ctl/transport"
	"golang.org/x/time/rate"
)

const (
	signalChannelSize     = 1
	alertContextTimeout   = 5 * time.Second
	readinessCheckTimeout = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
	flushTimeout          = 10 * time.Second

	// How long to wait before retrying a failed discovery
	rediscoverBackoff = 5 * time.Second

	// Liveness probes run at this interval while a device is attached
	superviseInterval = 30 * time.Second
)

// App represents the main application
type App struct {
	cfg         *config.Config
	metricsPort string

	server       *http.Server
	orchestrator *discovery.Orchestrator
	prober       interfaces.Prober
	monitor      *monitoring.StatusMonitor
	db           interfaces.TimeSeriesStorage // nil when monitoring is disabled
	influxDB     *storage.InfluxDBStorage
	notifier     *notifications.SlackNotifier

	configWatcher *config.Watcher
	configChan    chan *config.Config

	session interfaces.Session
	client  *controller.Client

	deviceMu   sync.RWMutex
	deviceAddr string

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new application instance
func New(cfg *config.Config, metricsPort string, configPath string) (*App, error) {
	a := &App{
		cfg:         cfg,
		metricsPort: metricsPort,
	}

	a.notifier = notifications.NewSlackNotifier(cfg.Notifications.SlackWebhookURL)
	if a.notifier.IsEnabled() {
		logger.Info().Msg("Slack notifications enabled")
	} else {
		logger.Info().Msg("Slack notifications disabled (no webhook URL configured)")
	}

	if cfg.Monitoring.Enabled {
		influxDB, err := storage.NewInfluxDBStorage(
			cfg.InfluxDB.URL,
			cfg.InfluxDB.Token,
			cfg.InfluxDB.Organization,
			cfg.InfluxDB.Bucket,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize InfluxDB: %w", err)
		}

		spool, err := storage.NewSpool(cfg.InfluxDB.SpoolDir, cfg.InfluxDB.SpoolMaxSize, 0)
		if err != nil {
			influxDB.Close()
			return nil, fmt.Errorf("failed to initialize reading spool: %w", err)
		}

		a.influxDB = influxDB
		a.db = storage.NewSpoolingStorage(influxDB, spool, a.notifier)
		logger.Info().Str("url", cfg.InfluxDB.URL).Msg("Status monitoring storage initialized")
	}

	addrCache := storage.NewFileAddressCache(cfg.Device.CacheFile)
	a.orchestrator = discovery.NewDefault(discovery.Config{
		Hostname:     cfg.Device.Hostname,
		ServiceType:  cfg.Device.ServiceType,
		UDPPort:      cfg.Device.UDPPort,
		ScanWindow:   cfg.Device.ScanWindow,
		CacheEnabled: cfg.Device.CacheOn(),
	}, addrCache)
	a.prober = discovery.NewUDPProber(cfg.Device.UDPPort, 0)

	a.monitor = monitoring.NewStatusMonitor(cfg.Monitoring.PollInterval)

	a.server = a.buildHTTPServer()

	a.configChan = make(chan *config.Config, 1)
	a.configWatcher = config.NewWatcher(configPath, a.configChan)

	return a, nil
}

// DeviceAddr returns the address of the currently attached device,
// empty when none is attached.
func (a *App) DeviceAddr() string {
	a.deviceMu.RLock()
	defer a.deviceMu.RUnlock()
	return a.deviceAddr
}

func (a *App) setDeviceAddr(addr string) {
	a.deviceMu.Lock()
	a.deviceAddr = addr
	a.deviceMu.Unlock()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	a.startMetricsServer()
	a.setupSignalHandler()

	a.configWatcher.Start(ctx)
	defer a.configWatcher.Stop()
	a.startConfigReloader()

	if a.cfg.Monitoring.Enabled {
		a.startDataWriter(ctx)
	}

	a.runDeviceLoop(ctx)
	a.performCleanup()
}

// buildHTTPServer sets up the metrics and health endpoints, localhost
// only, with rate-limited health handlers.
func (a *App) buildHTTPServer() *http.Server {
	healthLimiter := rate.NewLimiter(10, 20)
	readyLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/ready", rateLimitMiddleware(readyLimiter, func(w http.ResponseWriter, r *http.Request) {
		readinessCheckHandler(w, r, a)
	}))

	return &http.Server{
		Addr:    "localhost:" + a.metricsPort,
		Handler: mux,
	}
}

// startMetricsServer starts the HTTP server for metrics and health checks
func (a *App) startMetricsServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.server.Addr).Msg("Starting metrics and health check server (localhost only)")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// startDataWriter starts the goroutine that writes status readings to
// storage
func (a *App) startDataWriter(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				logger.Info().Msg("Data writer goroutine shutting down")
				return
			case reading, ok := <-a.monitor.Readings():
				if !ok {
					logger.Info().Msg("Readings channel closed, data writer exiting")
					return
				}
				if writeErr := a.db.WriteReading(reading); writeErr != nil {
					logger.Error().Err(writeErr).Str("device", reading.DeviceAddr).
						Msg("Failed to write status reading")
				}
			}
		}
	}()
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		a.performGracefulShutdown()
	}()
}

// runDeviceLoop finds the device, attaches to it, and watches its
// liveness, re-running discovery whenever the device is lost.
func (a *App) runDeviceLoop(ctx context.Context) {
	lost := false

	for ctx.Err() == nil {
		addr, err := a.locateDevice(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Device discovery failed, will retry")
			if !lost {
				// Alert once per outage, not once per retry.
				a.notifyDiscoveryFailure(err)
				lost = true
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(rediscoverBackoff):
			}
			continue
		}

		if lost {
			a.notifyDeviceRediscovered(addr)
			lost = false
		}

		a.attachDevice(ctx, addr)
		err = a.superviseDevice(ctx, addr)
		a.detachDevice(addr)

		if err != nil {
			lost = true
			a.notifyDeviceLost(addr, err)
		}
	}
}

// locateDevice resolves the device address, either pinned by config or
// through the discovery chain.
func (a *App) locateDevice(ctx context.Context) (string, error) {
	if host := a.cfg.Device.Host; host != "" {
		if a.prober.Probe(ctx, host) {
			return host, nil
		}
		return "", fmt.Errorf("configured device %s is not responding", host)
	}
	return a.orchestrator.FindDevice(ctx)
}

// attachDevice opens a session to the device and starts monitoring it.
func (a *App) attachDevice(ctx context.Context, addr string) {
	a.session = transport.NewSession(transport.Config{
		Addr:    addr,
		TCPPort: a.cfg.Device.TCPPort,
		UDPPort: a.cfg.Device.UDPPort,
	})
	a.client = controller.New(a.session)
	a.setDeviceAddr(addr)

	logger.Info().Str("addr", addr).Msg("Attached to device")

	if a.cfg.Monitoring.Enabled {
		a.monitor.StartMonitoringDevice(ctx, addr, a.client)
	}
}

// superviseDevice probes the attached device periodically. Returns nil
// on shutdown and an error when the device stops answering.
func (a *App) superviseDevice(ctx context.Context, addr string) error {
	ticker := time.NewTicker(superviseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if !a.prober.Probe(ctx, addr) {
				return fmt.Errorf("device %s stopped answering probes", addr)
			}
		}
	}
}

// detachDevice stops monitoring and closes the session.
func (a *App) detachDevice(addr string) {
	a.monitor.StopMonitoringDevice(addr)
	if a.session != nil {
		_ = a.session.Close()
		a.session = nil
		a.client = nil
	}
	a.setDeviceAddr("")
}

func (a *App) notifyDiscoveryFailure(err error) {
	if !a.notifier.IsEnabled() {
		return
	}
	alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
	defer alertCancel()
	if notifyErr := a.notifier.SendDiscoveryFailure(alertCtx, err); notifyErr != nil {
		logger.Error().Err(notifyErr).Msg("Failed to send discovery failure alert")
	}
}

func (a *App) notifyDeviceLost(addr string, err error) {
	if !a.notifier.IsEnabled() {
		return
	}
	alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
	defer alertCancel()
	if notifyErr := a.notifier.SendDeviceLost(alertCtx, addr, err); notifyErr != nil {
		logger.Error().Err(notifyErr).Msg("Failed to send device lost alert")
	}
}

func (a *App) notifyDeviceRediscovered(addr string) {
	if !a.notifier.IsEnabled() {
		return
	}
	alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
	defer alertCancel()
	if notifyErr := a.notifier.SendDeviceRediscovered(alertCtx, addr); notifyErr != nil {
		logger.Error().Err(notifyErr).Msg("Failed to send device rediscovered alert")
	}
}

// performGracefulShutdown handles graceful shutdown of all components
func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server stopped")
	}

	a.monitor.Stop()
	a.cancel()
}

// performCleanup flushes storage and waits for goroutines to finish
func (a *App) performCleanup() {
	if a.db != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), flushTimeout)
		defer flushCancel()

		flushDone := make(chan struct{})
		go func() {
			a.db.Flush()
			close(flushDone)
		}()

		select {
		case <-flushDone:
			logger.Info().Msg("Storage flush completed")
		case <-flushCtx.Done():
			logger.Warn().Msg("Storage flush timeout - some data may be lost")
		}
	}

	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()

	if a.db != nil {
		a.db.Close()
	}
	logger.Info().Msg("All goroutines finished, exiting")
}

// UpdateConfig applies a reloaded configuration. Log level and poll
// interval take effect live; connection settings apply on the next
// device attach.
func (a *App) UpdateConfig(newCfg *config.Config) {
	if newCfg.Logging.Level != a.cfg.Logging.Level {
		logger.Initialize(newCfg.Logging.Level)
		logger.Info().Str("level", newCfg.Logging.Level).Msg("Log level updated")
	}
	a.monitor.SetPollInterval(newCfg.Monitoring.PollInterval)

	a.cfg = newCfg
	logger.Info().Msg("Application configuration updated")
}

// startConfigReloader starts a goroutine applying config reloads
func (a *App) startConfigReloader() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config reloader goroutine shutting down")
				return
			case newCfg := <-a.configChan:
				a.UpdateConfig(newCfg)
			}
		}
	}()
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	addr := a.DeviceAddr()
	logger.Info().
		Str("device", addr).
		Bool("attached", addr != "").
		Msg("Device state")

	logger.Info().
		Int("monitored_devices", a.monitor.MonitoredDeviceCount()).
		Msg("Monitoring state")

	if a.influxDB != nil {
		logger.Info().
			Str("breaker", a.influxDB.BreakerState()).
			Msg("Storage state")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024) // 1MB buffer
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}

// readinessCheckHandler reports ready once a device is attached and,
// when monitoring is enabled, storage is healthy.
func readinessCheckHandler(w http.ResponseWriter, _ *http.Request, a *App) {
	if a.DeviceAddr() == "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, writeErr := w.Write([]byte("NOT READY: no device attached")); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
		}
		return
	}

	if a.db != nil {
		ctx, cancel := context.WithTimeout(context.Background(), readinessCheckTimeout)
		defer cancel()

		if err := a.db.Health(ctx); err != nil {
			logger.Warn().Err(err).Msg("Readiness check failed: storage unhealthy")
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, writeErr := w.Write([]byte("NOT READY: storage unhealthy")); writeErr != nil {
				logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
			}
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
	}
}
