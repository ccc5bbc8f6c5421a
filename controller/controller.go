// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package controller provides the typed command facade over a transport
// session. Each method builds one validated protocol command, sends it,
// and interprets the device's reply.
package controller

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/soothill/esp32ctl/pkg/errors"
	"github.com/soothill/esp32ctl/pkg/interfaces"
	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/protocol"
)

// Client issues pin commands to one device through any CommandSender.
// It is as concurrency-safe as the sender it wraps.
type Client struct {
	sender interfaces.CommandSender
}

// New creates a client over the given sender.
func New(sender interfaces.CommandSender) *Client {
	return &Client{sender: sender}
}

// exec sends cmd and normalizes the outcome. A device-reported failure
// (success=false) becomes an error carrying the device's message. For
// reboot commands a dropped connection counts as success, because the
// device closes the stream as part of executing them.
func (c *Client) exec(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	resp, err := c.sender.Send(ctx, cmd)
	if err != nil {
		if cmd.ExpectsReboot() && stderrors.Is(err, errors.ErrConnectionClosed) {
			logger.Debug().Str("cmd", string(cmd.Cmd)).Msg("Connection dropped by rebooting device")
			return &protocol.Response{Success: true, Command: string(cmd.Cmd)}, nil
		}
		return nil, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("device rejected %s: %s", cmd.Cmd, resp.Message)
	}
	return resp, nil
}

// Status fetches the device's system and WiFi state.
func (c *Client) Status(ctx context.Context) (*protocol.Response, error) {
	return c.exec(ctx, protocol.NewStatusCommand())
}

// SetPin drives a digital pin high (1) or low (0).
func (c *Client) SetPin(ctx context.Context, pin, value int) error {
	cmd, err := protocol.NewSetCommand(pin, value)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, cmd)
	return err
}

// GetPin reads the current value of a digital pin.
func (c *Client) GetPin(ctx context.Context, pin int) (int, error) {
	cmd, err := protocol.NewGetCommand(pin)
	if err != nil {
		return 0, err
	}
	resp, err := c.exec(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if resp.Value == nil {
		return 0, errors.NewMalformedResponseError("", fmt.Errorf("GET response missing value"))
	}
	return *resp.Value, nil
}

// TogglePin inverts a digital pin and returns its new value.
func (c *Client) TogglePin(ctx context.Context, pin int) (int, error) {
	cmd, err := protocol.NewToggleCommand(pin)
	if err != nil {
		return 0, err
	}
	resp, err := c.exec(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if resp.Value == nil {
		return 0, errors.NewMalformedResponseError("", fmt.Errorf("TOGGLE response missing value"))
	}
	return *resp.Value, nil
}

// SetPWM sets a pin's PWM duty cycle (0-255).
func (c *Client) SetPWM(ctx context.Context, pin, duty int) error {
	cmd, err := protocol.NewPWMCommand(pin, duty)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, cmd)
	return err
}

// Reset reboots the device. The connection dropping mid-exchange is the
// expected outcome, not a failure.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.exec(ctx, protocol.NewResetCommand())
	return err
}

// ResetPins returns every pin to its power-on default.
func (c *Client) ResetPins(ctx context.Context) error {
	_, err := c.exec(ctx, protocol.NewResetPinsCommand())
	return err
}
