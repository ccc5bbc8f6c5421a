// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sony/gobreaker"
	"github.com/soothill/esp32ctl/pkg/errors"
	"github.com/soothill/esp32ctl/pkg/interfaces"
	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/pkg/metrics"
)

const (
	statusMeasurement = "esp32_status"

	connectTimeout = 5 * time.Second
	writeTimeout   = 10 * time.Second

	// Breaker trips after this many consecutive write failures and
	// retries half-open after breakerCooldown.
	breakerFailureThreshold = 5
	breakerCooldown         = 30 * time.Second
)

// InfluxDBStorage writes device status readings to InfluxDB. Writes are
// synchronous and guarded by a circuit breaker so a dead backend fails
// fast instead of stalling the status poll loop; the spool layer catches
// what the breaker rejects.
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	breaker  *gobreaker.CircuitBreaker
	bucket   string
	org      string
}

// NewInfluxDBStorage connects to InfluxDB and verifies it is healthy.
func NewInfluxDBStorage(url, token, org, bucket string) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(url, token)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, errors.NewStorageError("connect", err)
	}
	if health.Status != "pass" {
		client.Close()
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return nil, errors.NewStorageError("connect", fmt.Errorf("health check failed: %s", message))
	}

	logger.Info().Str("url", url).Str("status", string(health.Status)).Msg("Connected to InfluxDB")
	return newInfluxDBStorage(client, org, bucket), nil
}

func newInfluxDBStorage(client influxdb2.Client, org, bucket string) *InfluxDBStorage {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "influxdb",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})

	return &InfluxDBStorage{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		breaker:  breaker,
		bucket:   bucket,
		org:      org,
	}
}

// WriteReading writes one status reading. Returns a StorageError when
// the write fails or the breaker is open.
func (s *InfluxDBStorage) WriteReading(reading *interfaces.StatusReading) error {
	if reading == nil {
		return errors.NewStorageError("write", fmt.Errorf("reading cannot be nil"))
	}
	if reading.DeviceAddr == "" {
		return errors.NewStorageError("write", fmt.Errorf("device address cannot be empty"))
	}
	if reading.Timestamp.IsZero() {
		return errors.NewStorageError("write", fmt.Errorf("timestamp cannot be zero"))
	}

	p := influxdb2.NewPoint(
		statusMeasurement,
		map[string]string{
			"device":     reading.DeviceAddr,
			"chip_model": reading.ChipModel,
		},
		map[string]interface{}{
			"uptime":    reading.Uptime,
			"free_heap": reading.FreeHeap,
			"rssi":      reading.RSSI,
			"ssid":      reading.SSID,
			"ip":        reading.IP,
		},
		reading.Timestamp,
	)

	metrics.InfluxDBWritesTotal.Inc()
	_, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return nil, s.writeAPI.WritePoint(ctx, p)
	})
	if err != nil {
		metrics.InfluxDBWriteErrors.Inc()
		return errors.NewStorageError("write", err)
	}
	return nil
}

// WriteBatch writes multiple readings, stopping at the first failure.
func (s *InfluxDBStorage) WriteBatch(readings []*interfaces.StatusReading) error {
	for i, reading := range readings {
		if err := s.WriteReading(reading); err != nil {
			return fmt.Errorf("failed to write reading at index %d: %w", i, err)
		}
	}
	return nil
}

// Flush completes any buffered writes.
func (s *InfluxDBStorage) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.writeAPI.Flush(ctx); err != nil {
		logger.Warn().Err(err).Msg("InfluxDB flush failed")
	}
}

// Close flushes pending writes and closes the client.
func (s *InfluxDBStorage) Close() {
	logger.Info().Msg("Closing InfluxDB connection")
	s.Flush()
	s.client.Close()
}

// Health checks whether the InfluxDB backend is reachable and passing.
func (s *InfluxDBStorage) Health(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return errors.NewStorageError("health", err)
	}
	if health.Status != "pass" {
		return errors.NewStorageError("health", fmt.Errorf("status %s", health.Status))
	}
	return nil
}

// BreakerState reports the write circuit breaker state for health
// endpoints.
func (s *InfluxDBStorage) BreakerState() string {
	return s.breaker.State().String()
}

// QueryLatestReading retrieves the most recent status reading for a
// device address.
func (s *InfluxDBStorage) QueryLatestReading(ctx context.Context, deviceAddr string) (*interfaces.StatusReading, error) {
	if deviceAddr == "" {
		return nil, errors.NewStorageError("query", fmt.Errorf("device address cannot be empty"))
	}

	queryAPI := s.client.QueryAPI(s.org)

	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -1h)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.device == "%s")
			|> last()
	`, s.bucket, statusMeasurement, deviceAddr)

	result, err := queryAPI.Query(ctx, query)
	if err != nil {
		return nil, errors.NewStorageError("query", err)
	}
	defer func() {
		_ = result.Close()
	}()

	reading := &interfaces.StatusReading{DeviceAddr: deviceAddr}

	for result.Next() {
		record := result.Record()

		if model, ok := record.ValueByKey("chip_model").(string); ok {
			reading.ChipModel = model
		}
		reading.Timestamp = record.Time()

		switch record.Field() {
		case "uptime":
			if val, ok := record.Value().(int64); ok {
				reading.Uptime = val
			}
		case "free_heap":
			if val, ok := record.Value().(int64); ok {
				reading.FreeHeap = val
			}
		case "rssi":
			if val, ok := record.Value().(int64); ok {
				reading.RSSI = int(val)
			}
		case "ssid":
			if val, ok := record.Value().(string); ok {
				reading.SSID = val
			}
		case "ip":
			if val, ok := record.Value().(string); ok {
				reading.IP = val
			}
		}
	}

	if result.Err() != nil {
		return nil, errors.NewStorageError("query", result.Err())
	}
	return reading, nil
}
