// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package monitoring polls ESP32 devices for STATUS snapshots and feeds
// them to storage as readings.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soothill/esp32ctl/pkg/interfaces"
	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/pkg/metrics"
	"github.com/soothill/esp32ctl/protocol"
)

const readingsChannelSize = 100

// StatusSource produces one STATUS snapshot per call. controller.Client
// satisfies this.
type StatusSource interface {
	Status(ctx context.Context) (*protocol.Response, error)
}

// StatusMonitor polls devices on a fixed interval, one goroutine per
// device, and publishes readings on a buffered channel. Readings are
// dropped, not blocked on, when the consumer falls behind.
type StatusMonitor struct {
	pollInterval     time.Duration
	readings         chan *interfaces.StatusReading
	monitoredDevices map[string]context.CancelFunc
	deviceMutex      sync.RWMutex
	wg               sync.WaitGroup
	stopped          bool
}

// NewStatusMonitor creates a monitor polling at the given interval.
func NewStatusMonitor(pollInterval time.Duration) *StatusMonitor {
	return &StatusMonitor{
		pollInterval:     pollInterval,
		readings:         make(chan *interfaces.StatusReading, readingsChannelSize),
		monitoredDevices: make(map[string]context.CancelFunc),
	}
}

// StartMonitoringDevice starts polling one device unless it is already
// being monitored. Returns true when a new worker was started.
func (sm *StatusMonitor) StartMonitoringDevice(ctx context.Context, addr string, source StatusSource) bool {
	sm.deviceMutex.Lock()
	defer sm.deviceMutex.Unlock()

	if sm.stopped {
		return false
	}
	if _, exists := sm.monitoredDevices[addr]; exists {
		logger.Debug().Str("device", addr).Msg("Device already being monitored, skipping")
		return false
	}

	deviceCtx, cancel := context.WithCancel(ctx)
	sm.monitoredDevices[addr] = cancel

	logger.Info().Str("device", addr).Msg("Starting status monitoring")

	sm.wg.Add(1)
	go sm.monitorDevice(deviceCtx, addr, source)
	return true
}

// SetPollInterval changes the polling interval. Running workers pick up
// the new value on their next tick.
func (sm *StatusMonitor) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	sm.deviceMutex.Lock()
	if d != sm.pollInterval {
		sm.pollInterval = d
		logger.Info().Dur("poll_interval", d).Msg("Poll interval updated")
	}
	sm.deviceMutex.Unlock()
}

// PollInterval returns the current polling interval.
func (sm *StatusMonitor) PollInterval() time.Duration {
	sm.deviceMutex.RLock()
	defer sm.deviceMutex.RUnlock()
	return sm.pollInterval
}

// StopMonitoringDevice stops polling a specific device.
func (sm *StatusMonitor) StopMonitoringDevice(addr string) {
	sm.deviceMutex.Lock()
	defer sm.deviceMutex.Unlock()

	if cancel, exists := sm.monitoredDevices[addr]; exists {
		cancel()
		delete(sm.monitoredDevices, addr)
		logger.Info().Str("device", addr).Msg("Stopped monitoring device")
	}
}

// IsMonitoring reports whether a device currently has a poll worker.
func (sm *StatusMonitor) IsMonitoring(addr string) bool {
	sm.deviceMutex.RLock()
	defer sm.deviceMutex.RUnlock()
	_, exists := sm.monitoredDevices[addr]
	return exists
}

// MonitoredDeviceCount returns the number of devices being polled.
func (sm *StatusMonitor) MonitoredDeviceCount() int {
	sm.deviceMutex.RLock()
	defer sm.deviceMutex.RUnlock()
	return len(sm.monitoredDevices)
}

// monitorDevice polls one device until its context is cancelled.
func (sm *StatusMonitor) monitorDevice(ctx context.Context, addr string, source StatusSource) {
	defer sm.wg.Done()

	interval := sm.PollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	defer func() {
		sm.deviceMutex.Lock()
		delete(sm.monitoredDevices, addr)
		sm.deviceMutex.Unlock()
		logger.Info().Str("device", addr).Msg("Status poll worker exited")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if cur := sm.PollInterval(); cur != interval {
				interval = cur
				ticker.Reset(cur)
			}

			reading, err := sm.poll(ctx, addr, source)
			if err != nil {
				logger.Error().Err(err).Str("device", addr).Msg("Status poll failed")
				metrics.StatusReadingErrors.Inc()
				continue
			}

			metrics.StatusReadingsTotal.Inc()
			metrics.DeviceUptime.WithLabelValues(addr).Set(float64(reading.Uptime))
			metrics.DeviceFreeHeap.WithLabelValues(addr).Set(float64(reading.FreeHeap))
			metrics.DeviceRSSI.WithLabelValues(addr).Set(float64(reading.RSSI))

			select {
			case sm.readings <- reading:
			default:
				logger.Warn().Str("device", addr).Msg("Readings channel full, dropping reading")
			}
		}
	}
}

// poll fetches one STATUS snapshot and converts it to a reading.
func (sm *StatusMonitor) poll(ctx context.Context, addr string, source StatusSource) (*interfaces.StatusReading, error) {
	resp, err := source.Status(ctx)
	if err != nil {
		return nil, err
	}
	if resp.System == nil {
		return nil, fmt.Errorf("STATUS response missing system info")
	}

	reading := &interfaces.StatusReading{
		DeviceAddr: addr,
		Timestamp:  time.Now(),
		Uptime:     resp.System.Uptime,
		FreeHeap:   resp.System.FreeHeap,
		ChipModel:  resp.System.ChipModel,
	}
	if resp.Wifi != nil {
		reading.SSID = resp.Wifi.SSID
		reading.RSSI = resp.Wifi.RSSI
		reading.IP = resp.Wifi.IP
	}

	logger.Debug().
		Str("device", addr).
		Int64("uptime_s", reading.Uptime).
		Int64("free_heap", reading.FreeHeap).
		Int("rssi_dbm", reading.RSSI).
		Msg("Status reading")

	return reading, nil
}

// Readings returns the channel readings are published on. Closed by
// Stop.
func (sm *StatusMonitor) Readings() <-chan *interfaces.StatusReading {
	return sm.readings
}

// Stop cancels every poll worker, waits for them, and closes the
// readings channel. Idempotent.
func (sm *StatusMonitor) Stop() {
	sm.deviceMutex.Lock()
	if sm.stopped {
		sm.deviceMutex.Unlock()
		return
	}
	sm.stopped = true

	for addr, cancel := range sm.monitoredDevices {
		logger.Info().Str("device", addr).Msg("Stopping device monitoring")
		cancel()
	}
	sm.deviceMutex.Unlock()

	sm.wg.Wait()
	close(sm.readings)
	logger.Info().Msg("Status monitor stopped, readings channel closed")
}
