// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package notifications provides alerting for operational events: the
// device disappearing from the network, InfluxDB outages, and the local
// spool filling up.
//
// # Slack Integration
//
// Notifications go out through a Slack Incoming Webhook configured via
// SLACK_WEBHOOK_URL or YAML config. Messages are color-coded by
// severity:
//   - danger/error: Red - failures needing attention
//   - warning/warn: Yellow - degraded but functional
//   - good/success: Green - recovery notifications
//
// # Error Handling
//
// Notification failures never block the main application: failed sends
// are logged, the HTTP timeout is 10 seconds, context cancellation is
// respected, and a notifier with an empty webhook URL skips sending
// silently.
//
// # Thread Safety
//
// SlackNotifier is safe for concurrent use; each notification is its own
// HTTP request.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/soothill/esp32ctl/pkg/logger"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	enabled    bool
}

// SlackMessage represents a Slack webhook message payload
type SlackMessage struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack attachment
type Attachment struct {
	Color  string `json:"color,omitempty"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text,omitempty"`
	Footer string `json:"footer,omitempty"`
	Ts     int64  `json:"ts,omitempty"`
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		enabled: webhookURL != "",
	}
}

// IsEnabled returns whether Slack notifications are enabled
func (s *SlackNotifier) IsEnabled() bool {
	return s.enabled
}

// SendMessage sends a simple text message to Slack
func (s *SlackNotifier) SendMessage(ctx context.Context, message string) error {
	if !s.enabled {
		logger.Debug().Msg("Slack notifications disabled, skipping message")
		return nil
	}

	return s.sendPayload(ctx, SlackMessage{Text: message})
}

// SendAlert sends a formatted alert to Slack
func (s *SlackNotifier) SendAlert(ctx context.Context, severity, title, message string) error {
	if !s.enabled {
		logger.Debug().Msg("Slack notifications disabled, skipping alert")
		return nil
	}

	payload := SlackMessage{
		Attachments: []Attachment{
			{
				Color:  s.severityToColor(severity),
				Title:  title,
				Text:   message,
				Footer: "ESP32 Controller",
				Ts:     time.Now().Unix(),
			},
		},
	}

	return s.sendPayload(ctx, payload)
}

// SendDiscoveryFailure sends an alert when device discovery fails
func (s *SlackNotifier) SendDiscoveryFailure(ctx context.Context, err error) error {
	return s.SendAlert(ctx, "warning", "⚠️ Device Discovery Failure",
		fmt.Sprintf("Failed to discover the ESP32 controller: %v", err))
}

// SendDeviceLost sends an alert when a monitored device stops responding
func (s *SlackNotifier) SendDeviceLost(ctx context.Context, addr string, err error) error {
	return s.SendAlert(ctx, "danger", "⚠️ Device Unreachable",
		fmt.Sprintf("Device %s stopped responding: %v\nDiscovery will keep retrying.", addr, err))
}

// SendDeviceRediscovered sends an alert when a lost device comes back
func (s *SlackNotifier) SendDeviceRediscovered(ctx context.Context, addr string) error {
	return s.SendAlert(ctx, "good", "✅ Device Back Online",
		fmt.Sprintf("Device rediscovered at %s, monitoring resumed.", addr))
}

// sendPayload sends a payload to the Slack webhook
func (s *SlackNotifier) sendPayload(ctx context.Context, payload SlackMessage) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	if len(payload.Attachments) > 0 {
		logger.Debug().Str("title", payload.Attachments[0].Title).Msg("Slack notification sent successfully")
	} else {
		logger.Debug().Str("text", payload.Text).Msg("Slack notification sent successfully")
	}
	return nil
}

// severityToColor maps severity levels to Slack colors
func (s *SlackNotifier) severityToColor(severity string) string {
	switch severity {
	case "danger", "error":
		return "danger" // Red
	case "warning", "warn":
		return "warning" // Yellow
	case "good", "success":
		return "good" // Green
	default:
		return "#808080" // Gray
	}
}
