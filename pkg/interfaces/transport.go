// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system
// components. This package promotes loose coupling and testability by
// allowing dependency injection and easy mocking in tests.
package interfaces

import (
	"context"

	"github.com/soothill/esp32ctl/protocol"
)

// CommandSender exchanges one command for one response with the device.
// Implementations include the TCP session (framed, persistent) and the
// UDP single-shot path.
type CommandSender interface {
	Send(ctx context.Context, cmd protocol.Command) (*protocol.Response, error)
}

// Session is a CommandSender backed by an optional long-lived TCP
// connection. Close is idempotent and safe on an already-closed session.
type Session interface {
	CommandSender
	Close() error
}
