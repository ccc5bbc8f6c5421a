// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
)

// Notifier defines the interface for sending alert notifications.
type Notifier interface {
	// SendAlert sends an alert with the given severity ("danger",
	// "warning", or "good")
	SendAlert(ctx context.Context, severity, title, message string) error

	// IsEnabled reports whether the notifier is configured to send
	IsEnabled() bool
}
