// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the ESP32 pin
// controller client.
//
// The discovery primitives (probe, resolve, broadcast scan) swallow their
// own transport failures and report boolean or empty results, because
// discovery is best-effort across unreliable broadcast media. The
// transport session, by contrast, surfaces every failure through one of
// the types below so callers can tell "no device" from "framing desync"
// without string matching.
//
// # Example Usage
//
//	resp, err := session.SendTCP(cmd)
//	if errors.IsMalformedResponse(err) {
//	    // session is closed, next send reconnects
//	}
package errors

import (
	"errors"
	"fmt"
)

// TransportError represents a connect, send, or receive failure,
// including timeouts. Always recoverable by retry or by falling back to
// the other transport.
type TransportError struct {
	Op   string // Operation being performed (e.g., "dial", "send udp")
	Addr string // Network address involved (if applicable)
	Err  error  // Underlying error
}

func (e *TransportError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("transport %s (%s): %v", e.Op, e.Addr, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s failed", e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error.
func NewTransportError(op string, addr string, err error) *TransportError {
	return &TransportError{Op: op, Addr: addr, Err: err}
}

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// MalformedResponseError indicates a payload that did not parse as valid
// framed JSON. The session that produced it is no longer trustworthy and
// has been closed; the error is never retried silently.
type MalformedResponseError struct {
	Payload string // The offending raw payload
	Err     error  // Underlying parse error
}

const malformedPayloadLimit = 256

func (e *MalformedResponseError) Error() string {
	payload := e.Payload
	if len(payload) > malformedPayloadLimit {
		payload = payload[:malformedPayloadLimit] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed response %q: %v", payload, e.Err)
	}
	return fmt.Sprintf("malformed response %q", payload)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// NewMalformedResponseError creates a new malformed response error.
func NewMalformedResponseError(payload string, err error) *MalformedResponseError {
	return &MalformedResponseError{Payload: payload, Err: err}
}

// IsMalformedResponse checks if an error is a MalformedResponseError.
func IsMalformedResponse(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// DiscoveryError represents an error during device discovery operations.
type DiscoveryError struct {
	Op  string // Discovery stage (e.g., "cache probe", "broadcast scan")
	Err error  // Underlying error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("discovery %s failed", e.Op)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// NewDiscoveryError creates a new discovery error.
func NewDiscoveryError(op string, err error) *DiscoveryError {
	return &DiscoveryError{Op: op, Err: err}
}

// IsDiscoveryError checks if an error is a DiscoveryError.
func IsDiscoveryError(err error) bool {
	var de *DiscoveryError
	return errors.As(err, &de)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ValidationError represents a command validation error caught on the
// client before anything is put on the wire.
type ValidationError struct {
	Field  string // Field that failed validation (e.g., "pin", "value")
	Value  any    // Invalid value
	Reason string // Why validation failed
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

// NewValidationError creates a new validation error.
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Op  string // Operation being performed (e.g., "write", "replay")
	Err error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Sentinel errors for common conditions
var (
	// ErrDeviceNotFound indicates discovery exhausted every strategy
	// (cache, mDNS, broadcast) without finding a responsive device.
	// This is a normal outcome, not a crash condition.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrConnectionClosed indicates the peer closed the TCP stream
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSessionClosed indicates an operation on a session that has
	// been explicitly closed
	ErrSessionClosed = errors.New("session closed")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timeout")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
