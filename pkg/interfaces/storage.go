// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
	"time"
)

// StatusReading represents one snapshot of device health taken from a
// STATUS response.
type StatusReading struct {
	DeviceAddr string
	Timestamp  time.Time
	Uptime     int64  // Seconds since device boot
	FreeHeap   int64  // Free heap in bytes
	ChipModel  string // e.g., "ESP32-D0WDQ6"
	SSID       string
	RSSI       int // WiFi signal strength in dBm
	IP         string
}

// TimeSeriesStorage defines the interface for time-series persistence
// of status readings.
type TimeSeriesStorage interface {
	// WriteReading writes a single status reading to storage
	WriteReading(reading *StatusReading) error

	// Flush ensures all pending writes are completed
	Flush()

	// Close gracefully shuts down the storage connection
	Close()

	// Health checks if the storage backend is healthy
	Health(ctx context.Context) error
}
