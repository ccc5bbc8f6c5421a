// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package controller

import (
	"context"
	"testing"

	"github.com/soothill/esp32ctl/pkg/errors"
	"github.com/soothill/esp32ctl/protocol"
)

// fakeSender records sent commands and plays back scripted outcomes.
type fakeSender struct {
	sent []protocol.Command
	resp *protocol.Response
	err  error
}

func (f *fakeSender) Send(_ context.Context, cmd protocol.Command) (*protocol.Response, error) {
	f.sent = append(f.sent, cmd)
	return f.resp, f.err
}

func intPtr(v int) *int { return &v }

func TestSetPin(t *testing.T) {
	sender := &fakeSender{resp: &protocol.Response{Success: true, Command: "SET"}}
	c := New(sender)

	if err := c.SetPin(context.Background(), 13, 1); err != nil {
		t.Fatalf("SetPin() error = %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d commands, want 1", len(sender.sent))
	}
	cmd := sender.sent[0]
	if cmd.Cmd != protocol.CmdSet || *cmd.Pin != 13 || *cmd.Value != 1 {
		t.Errorf("sent %+v, want SET pin 13 value 1", cmd)
	}
}

func TestSetPin_InvalidValueNeverSent(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender)

	err := c.SetPin(context.Background(), 13, 2)
	if !errors.IsValidationError(err) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(sender.sent) != 0 {
		t.Error("invalid command must not reach the wire")
	}
}

func TestGetPin(t *testing.T) {
	sender := &fakeSender{resp: &protocol.Response{Success: true, Command: "GET", Pin: intPtr(5), Value: intPtr(1)}}
	c := New(sender)

	value, err := c.GetPin(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetPin() error = %v", err)
	}
	if value != 1 {
		t.Errorf("value = %d, want 1", value)
	}
}

func TestGetPin_MissingValue(t *testing.T) {
	sender := &fakeSender{resp: &protocol.Response{Success: true, Command: "GET"}}
	c := New(sender)

	_, err := c.GetPin(context.Background(), 5)
	if !errors.IsMalformedResponse(err) {
		t.Errorf("error = %v, want MalformedResponseError for a GET reply without value", err)
	}
}

func TestTogglePin(t *testing.T) {
	sender := &fakeSender{resp: &protocol.Response{Success: true, Command: "TOGGLE", Value: intPtr(0)}}
	c := New(sender)

	value, err := c.TogglePin(context.Background(), 2)
	if err != nil {
		t.Fatalf("TogglePin() error = %v", err)
	}
	if value != 0 {
		t.Errorf("value = %d, want 0", value)
	}
}

func TestSetPWM_RangeChecked(t *testing.T) {
	sender := &fakeSender{resp: &protocol.Response{Success: true}}
	c := New(sender)

	if err := c.SetPWM(context.Background(), 4, 128); err != nil {
		t.Fatalf("SetPWM() error = %v", err)
	}
	if err := c.SetPWM(context.Background(), 4, 256); !errors.IsValidationError(err) {
		t.Errorf("SetPWM(256) error = %v, want ValidationError", err)
	}
}

func TestStatus(t *testing.T) {
	sender := &fakeSender{resp: &protocol.Response{
		Success: true,
		Command: "STATUS",
		System:  &protocol.SystemInfo{Uptime: 3600, FreeHeap: 152000, ChipModel: "ESP32-D0WDQ6"},
	}}
	c := New(sender)

	resp, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if resp.System == nil || resp.System.Uptime != 3600 {
		t.Errorf("Status() system = %+v, want uptime 3600", resp.System)
	}
}

func TestDeviceRejection(t *testing.T) {
	sender := &fakeSender{resp: &protocol.Response{Success: false, Message: "invalid pin"}}
	c := New(sender)

	err := c.SetPin(context.Background(), 99, 1)
	if err == nil {
		t.Fatal("device-reported failure should surface as an error")
	}
}

func TestReset_ToleratesDroppedConnection(t *testing.T) {
	sender := &fakeSender{err: errors.NewTransportError("read", "192.168.1.50:8888", errors.ErrConnectionClosed)}
	c := New(sender)

	if err := c.Reset(context.Background()); err != nil {
		t.Errorf("Reset() error = %v, want success when the rebooting device drops the stream", err)
	}
	if err := c.ResetPins(context.Background()); err != nil {
		t.Errorf("ResetPins() error = %v, want success when the rebooting device drops the stream", err)
	}
}

func TestSetPin_DoesNotTolerateDroppedConnection(t *testing.T) {
	sender := &fakeSender{err: errors.NewTransportError("read", "192.168.1.50:8888", errors.ErrConnectionClosed)}
	c := New(sender)

	if err := c.SetPin(context.Background(), 13, 1); err == nil {
		t.Error("a dropped connection is only acceptable for reboot commands")
	}
}
