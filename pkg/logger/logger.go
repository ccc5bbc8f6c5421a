// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package logger is the zerolog front end shared by every package in
// the controller client. Output defaults to the human-readable console
// format for an operator watching the daemon; setting ESP32_LOG_FORMAT
// to "json" switches to raw JSON lines for log collectors.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

// levelNames maps config spellings to zerolog levels. Every spelling
// the YAML schema's logging.level enum allows appears here; trace is
// additionally accepted for ad hoc debugging.
var levelNames = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// Initialize builds the global logger at the given level. An
// unrecognised level falls back to info rather than failing startup.
func Initialize(level string) {
	logLevel, err := parseLogLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log = zerolog.New(newWriter()).
		Level(logLevel).
		With().
		Timestamp().
		Caller().
		Logger()

	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
	}
}

// newWriter picks the output format: console for terminals, raw JSON
// when ESP32_LOG_FORMAT=json.
func newWriter() io.Writer {
	if strings.EqualFold(os.Getenv("ESP32_LOG_FORMAT"), "json") {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

// parseLogLevel converts a config level string to a zerolog.Level. The
// returned level is always usable; the error flags an unknown spelling.
func parseLogLevel(level string) (zerolog.Level, error) {
	if lvl, ok := levelNames[strings.ToLower(level)]; ok {
		return lvl, nil
	}
	return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &log
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info logs an info message
func Info() *zerolog.Event {
	return log.Info()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error logs an error message
func Error() *zerolog.Event {
	return log.Error()
}

// Fatal logs a fatal message and exits
func Fatal() *zerolog.Event {
	return log.Fatal()
}

// With creates a child logger with additional fields
func With() zerolog.Context {
	return log.With()
}

// SetOutput sets the output writer for the logger
func SetOutput(w io.Writer) {
	log = log.Output(w)
}
