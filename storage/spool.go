// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/soothill/esp32ctl/pkg/interfaces"
	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/pkg/metrics"
	"github.com/soothill/esp32ctl/pkg/util"
)

const (
	spoolFilePrefix = "reading_"
	spoolFileExt    = ".json"

	defaultSpoolMaxSize = 100 * 1024 * 1024 // 100 MB
	defaultSpoolMaxAge  = 24 * time.Hour

	replayBatchSize     = 100
	healthCheckInterval = 30 * time.Second

	// Alert when the spool passes this fill ratio
	spoolWarnRatio = 0.8
)

// Spool buffers status readings on disk while InfluxDB is unreachable,
// one file per reading so partial replay needs no rewriting.
type Spool struct {
	dir         string
	maxSize     int64
	maxAge      time.Duration
	mu          sync.Mutex
	currentSize int64
}

// SpooledReading is the on-disk envelope for a buffered reading.
type SpooledReading struct {
	Reading   *interfaces.StatusReading `json:"reading"`
	SpooledAt time.Time                 `json:"spooled_at"`
	ID        string                    `json:"id"`
}

// NewSpool creates a spool in dir, defaulting to ~/.esp32ctl/spool.
func NewSpool(dir string, maxSize int64, maxAge time.Duration) (*Spool, error) {
	if dir == "" {
		dataDir, err := util.DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate spool directory: %w", err)
		}
		dir = filepath.Join(dataDir, "spool")
	}
	if maxSize <= 0 {
		maxSize = defaultSpoolMaxSize
	}
	if maxAge <= 0 {
		maxAge = defaultSpoolMaxAge
	}

	if err := os.MkdirAll(dir, cacheDirMode); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	s := &Spool{
		dir:     dir,
		maxSize: maxSize,
		maxAge:  maxAge,
	}

	if err := s.updateCurrentSize(); err != nil {
		logger.Warn().Err(err).Msg("Failed to calculate initial spool size")
	}
	if err := s.CleanupOld(); err != nil {
		logger.Warn().Err(err).Msg("Failed to cleanup old spool files")
	}

	return s, nil
}

// Write buffers one reading. Fails when the spool is at capacity.
func (s *Spool) Write(reading *interfaces.StatusReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentSize >= s.maxSize {
		return fmt.Errorf("spool is full (%d >= %d bytes)", s.currentSize, s.maxSize)
	}

	entry := &SpooledReading{
		Reading:   reading,
		SpooledAt: time.Now(),
		ID:        fmt.Sprintf("%d_%s", time.Now().UnixNano(), reading.DeviceAddr),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	if err := os.WriteFile(s.filename(entry.ID), data, cacheFileMode); err != nil {
		return fmt.Errorf("failed to write spool file: %w", err)
	}

	s.currentSize += int64(len(data))
	metrics.SpooledReadings.Inc()
	logger.Debug().
		Str("device", reading.DeviceAddr).
		Str("id", entry.ID).
		Int64("spool_size", s.currentSize).
		Msg("Spooled reading")

	return nil
}

// List returns all spooled readings oldest first. Unreadable files are
// skipped, not fatal.
func (s *Spool) List() ([]*SpooledReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}

	var entries []*SpooledReading
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			logger.Warn().Err(err).Str("file", file).Msg("Failed to read spool file")
			continue
		}

		var entry SpooledReading
		if err := json.Unmarshal(data, &entry); err != nil {
			logger.Warn().Err(err).Str("file", file).Msg("Failed to unmarshal spool file")
			continue
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SpooledAt.Before(entries[j].SpooledAt)
	})
	return entries, nil
}

// Delete removes one spooled reading after successful replay.
func (s *Spool) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := s.filename(id)
	info, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("failed to stat spool file: %w", err)
	}
	if err := os.Remove(filename); err != nil {
		return fmt.Errorf("failed to delete spool file: %w", err)
	}

	s.currentSize -= info.Size()
	metrics.SpooledReadings.Dec()
	return nil
}

// CleanupOld removes spool files older than maxAge.
func (s *Spool) CleanupOld() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listFiles()
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.maxAge)
	deleted := 0

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}

		var entry SpooledReading
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}

		if entry.SpooledAt.Before(cutoff) {
			if err := os.Remove(file); err != nil {
				logger.Warn().Err(err).Str("file", file).Msg("Failed to delete old spool file")
				continue
			}
			deleted++
			s.currentSize -= int64(len(data))
		}
	}

	if deleted > 0 {
		logger.Info().Int("count", deleted).Msg("Cleaned up old spool files")
	}
	return nil
}

// Size returns the current spool size in bytes.
func (s *Spool) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSize
}

// MaxSize returns the spool capacity in bytes.
func (s *Spool) MaxSize() int64 {
	return s.maxSize
}

func (s *Spool) listFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, spoolFilePrefix+"*"+spoolFileExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list spool files: %w", err)
	}
	return files, nil
}

func (s *Spool) updateCurrentSize() error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}

	var total int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		total += info.Size()
	}
	s.currentSize = total
	return nil
}

func (s *Spool) filename(id string) string {
	return filepath.Join(s.dir, spoolFilePrefix+id+spoolFileExt)
}

// SpoolingStorage wraps InfluxDBStorage with disk spooling. Failed writes
// land in the spool; a background loop replays them once the backend
// reports healthy again. Implements interfaces.TimeSeriesStorage.
type SpoolingStorage struct {
	storage  *InfluxDBStorage
	spool    *Spool
	notifier interfaces.Notifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	spoolActive bool
}

// NewSpoolingStorage creates the wrapper and starts the replay loop.
// notifier may be nil.
func NewSpoolingStorage(storage *InfluxDBStorage, spool *Spool, notifier interfaces.Notifier) *SpoolingStorage {
	ctx, cancel := context.WithCancel(context.Background())

	ss := &SpoolingStorage{
		storage:  storage,
		spool:    spool,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}

	ss.wg.Add(1)
	go ss.monitorAndReplay()
	return ss
}

// WriteReading writes to InfluxDB, spooling the reading on failure.
func (ss *SpoolingStorage) WriteReading(reading *interfaces.StatusReading) error {
	err := ss.storage.WriteReading(reading)
	if err == nil {
		return nil
	}

	logger.Warn().Err(err).Str("device", reading.DeviceAddr).Msg("InfluxDB write failed, spooling locally")

	ss.mu.Lock()
	firstFailure := !ss.spoolActive
	ss.spoolActive = true
	ss.mu.Unlock()

	if firstFailure {
		ss.alert("danger", "InfluxDB unavailable",
			fmt.Sprintf("Writes failing, spooling readings locally: %v", err))
	}

	if spoolErr := ss.spool.Write(reading); spoolErr != nil {
		return fmt.Errorf("influxdb write failed and spool write failed: influxdb=%w, spool=%w", err, spoolErr)
	}

	if float64(ss.spool.Size())/float64(ss.spool.MaxSize()) > spoolWarnRatio {
		ss.alert("warning", "Reading spool nearly full",
			fmt.Sprintf("Spool at %d of %d bytes", ss.spool.Size(), ss.spool.MaxSize()))
	}
	return nil
}

// Flush flushes pending InfluxDB writes.
func (ss *SpoolingStorage) Flush() {
	ss.storage.Flush()
}

// Close stops the replay loop and closes the backend.
func (ss *SpoolingStorage) Close() {
	logger.Info().Msg("Closing spooling storage")
	ss.cancel()
	ss.wg.Wait()
	ss.storage.Close()
}

// Health reports the backend health.
func (ss *SpoolingStorage) Health(ctx context.Context) error {
	return ss.storage.Health(ctx)
}

func (ss *SpoolingStorage) alert(severity, title, message string) {
	if ss.notifier == nil || !ss.notifier.IsEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(ss.ctx, 5*time.Second)
	defer cancel()
	if err := ss.notifier.SendAlert(ctx, severity, title, message); err != nil {
		logger.Error().Err(err).Str("title", title).Msg("Failed to send alert")
	}
}

// monitorAndReplay watches backend health while the spool is active and
// replays buffered readings once it recovers.
func (ss *SpoolingStorage) monitorAndReplay() {
	defer ss.wg.Done()

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ss.ctx.Done():
			return
		case <-ticker.C:
			ss.mu.RLock()
			active := ss.spoolActive
			ss.mu.RUnlock()
			if !active {
				continue
			}

			healthCtx, healthCancel := context.WithTimeout(ss.ctx, 5*time.Second)
			err := ss.storage.Health(healthCtx)
			healthCancel()
			if err != nil {
				logger.Debug().Err(err).Msg("InfluxDB still unhealthy, spool stays active")
				continue
			}

			logger.Info().Msg("InfluxDB healthy again, replaying spooled readings")
			if replayErr := ss.replaySpooled(); replayErr != nil {
				logger.Error().Err(replayErr).Msg("Failed to replay spooled readings")
				continue
			}

			ss.mu.Lock()
			ss.spoolActive = false
			ss.mu.Unlock()

			ss.alert("good", "InfluxDB recovered", "Spooled readings replayed, writes back to normal")
		}
	}
}

// replaySpooled pushes every spooled reading to InfluxDB, deleting each
// file on success. Readings that still fail stay spooled for next time.
func (ss *SpoolingStorage) replaySpooled() error {
	entries, err := ss.spool.List()
	if err != nil {
		return fmt.Errorf("failed to list spooled readings: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	logger.Info().Int("count", len(entries)).Msg("Replaying spooled readings")

	succeeded := 0
	failed := 0
	for _, entry := range entries {
		if err := ss.storage.WriteReading(entry.Reading); err != nil {
			logger.Warn().
				Err(err).
				Str("device", entry.Reading.DeviceAddr).
				Str("id", entry.ID).
				Msg("Failed to replay spooled reading")
			failed++
			continue
		}

		if err := ss.spool.Delete(entry.ID); err != nil {
			logger.Warn().Err(err).Str("id", entry.ID).Msg("Failed to delete replayed reading")
		}
		succeeded++

		if succeeded%replayBatchSize == 0 {
			ss.storage.Flush()
		}
	}
	ss.storage.Flush()

	logger.Info().
		Int("success", succeeded).
		Int("failed", failed).
		Int("total", len(entries)).
		Msg("Finished replaying spooled readings")

	if failed > 0 {
		return fmt.Errorf("%d of %d spooled readings failed to replay", failed, len(entries))
	}
	return nil
}
