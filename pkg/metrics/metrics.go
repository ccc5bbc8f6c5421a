// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the ESP32 controller
// client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DiscoveryAttempts counts discovery runs by outcome stage
	// ("cache", "mdns", "broadcast", "not_found")
	DiscoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esp32_discovery_attempts_total",
		Help: "Total discovery runs by resolving stage",
	}, []string{"stage"})

	// DiscoveryDuration tracks how long a full discovery run takes
	DiscoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "esp32_discovery_duration_seconds",
		Help:    "Duration of a full discovery run in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BroadcastResponders tracks distinct devices seen in the last scan
	BroadcastResponders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "esp32_broadcast_responders",
		Help: "Distinct devices that answered the last broadcast scan",
	})

	// CommandsTotal counts commands sent, by command and transport
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esp32_commands_total",
		Help: "Total commands sent to the device",
	}, []string{"cmd", "transport"})

	// CommandErrors counts failed command exchanges, by command and transport
	CommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esp32_command_errors_total",
		Help: "Total failed command exchanges",
	}, []string{"cmd", "transport"})

	// SessionReconnects counts TCP session (re)connects
	SessionReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esp32_session_reconnects_total",
		Help: "Total TCP session connect attempts",
	})

	// StatusReadingsTotal counts status readings collected by the monitor
	StatusReadingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esp32_status_readings_total",
		Help: "Total status readings collected",
	})

	// StatusReadingErrors counts failed status polls
	StatusReadingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esp32_status_reading_errors_total",
		Help: "Total failed status polls",
	})

	// DeviceUptime tracks the device-reported uptime
	DeviceUptime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "esp32_device_uptime_seconds",
		Help: "Device-reported uptime in seconds",
	}, []string{"device"})

	// DeviceFreeHeap tracks the device-reported free heap
	DeviceFreeHeap = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "esp32_device_free_heap_bytes",
		Help: "Device-reported free heap in bytes",
	}, []string{"device"})

	// DeviceRSSI tracks the device-reported WiFi signal strength
	DeviceRSSI = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "esp32_device_wifi_rssi_dbm",
		Help: "Device-reported WiFi signal strength in dBm",
	}, []string{"device"})

	// InfluxDBWritesTotal tracks the total number of writes to InfluxDB
	InfluxDBWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esp32_influxdb_writes_total",
		Help: "Total number of writes to InfluxDB",
	})

	// InfluxDBWriteErrors tracks the number of failed writes to InfluxDB
	InfluxDBWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esp32_influxdb_write_errors_total",
		Help: "Total number of failed writes to InfluxDB",
	})

	// SpooledReadings tracks readings currently buffered on disk
	SpooledReadings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "esp32_spooled_readings",
		Help: "Status readings buffered locally while storage is unavailable",
	})

	// ConfigReloads counts successful SIGHUP config reloads
	ConfigReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esp32_config_reloads_total",
		Help: "Total successful configuration reloads",
	})

	// ConfigReloadErrors counts SIGHUP reloads rejected by validation
	ConfigReloadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esp32_config_reload_errors_total",
		Help: "Total configuration reloads that failed validation",
	})
)
