// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package protocol implements the JSON wire contract of the ESP32 pin
// controller: the command/response records exchanged over TCP and UDP,
// the parse boundary for device responses, and the line assembler that
// reconstructs a framed JSON message from a TCP stream.
//
// # Wire Format
//
// A request is a single JSON object with a required "cmd" field plus
// operation-specific "pin" and "value" fields:
//
//	{"cmd":"SET","pin":13,"value":1}
//
// Over TCP the request is newline-terminated and the response arrives as
// one or more physical lines; over UDP both directions are a single
// datagram with no terminator.
package protocol

import (
	"encoding/json"

	"github.com/soothill/esp32ctl/pkg/errors"
)

// CommandType enumerates the operations the firmware understands.
type CommandType string

const (
	CmdStatus    CommandType = "STATUS"
	CmdSet       CommandType = "SET"
	CmdGet       CommandType = "GET"
	CmdToggle    CommandType = "TOGGLE"
	CmdPWM       CommandType = "PWM"
	CmdReset     CommandType = "RESET"
	CmdResetPins CommandType = "RESET_PINS"
)

// Firmware-imposed value ranges, checked client-side so a bad request
// never reaches the wire.
const (
	maxPWMValue = 255
)

// Command is one request to the device. Immutable once constructed;
// build one instance per request through the constructors below.
type Command struct {
	Cmd   CommandType `json:"cmd"`
	Pin   *int        `json:"pin,omitempty"`
	Value *int        `json:"value,omitempty"`
}

// Marshal serializes the command to its wire form (no trailing newline;
// the TCP session appends one).
func (c Command) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// ExpectsReboot reports whether the device may restart after executing
// this command, severing an open TCP connection before the response is
// flushed.
func (c Command) ExpectsReboot() bool {
	return c.Cmd == CmdReset || c.Cmd == CmdResetPins
}

// NewStatusCommand builds a STATUS request.
func NewStatusCommand() Command {
	return Command{Cmd: CmdStatus}
}

// NewSetCommand builds a SET request driving a pin HIGH (1) or LOW (0).
func NewSetCommand(pin, value int) (Command, error) {
	if pin < 0 {
		return Command{}, errors.NewValidationError("pin", pin, "pin number must not be negative")
	}
	if value != 0 && value != 1 {
		return Command{}, errors.NewValidationError("value", value, "SET value must be 0 or 1")
	}
	return Command{Cmd: CmdSet, Pin: &pin, Value: &value}, nil
}

// NewGetCommand builds a GET request reading a pin's current state.
func NewGetCommand(pin int) (Command, error) {
	if pin < 0 {
		return Command{}, errors.NewValidationError("pin", pin, "pin number must not be negative")
	}
	return Command{Cmd: CmdGet, Pin: &pin}, nil
}

// NewToggleCommand builds a TOGGLE request inverting a pin's state.
func NewToggleCommand(pin int) (Command, error) {
	if pin < 0 {
		return Command{}, errors.NewValidationError("pin", pin, "pin number must not be negative")
	}
	return Command{Cmd: CmdToggle, Pin: &pin}, nil
}

// NewPWMCommand builds a PWM request with an 8-bit duty cycle.
func NewPWMCommand(pin, value int) (Command, error) {
	if pin < 0 {
		return Command{}, errors.NewValidationError("pin", pin, "pin number must not be negative")
	}
	if value < 0 || value > maxPWMValue {
		return Command{}, errors.NewValidationError("value", value, "PWM value must be 0-255")
	}
	return Command{Cmd: CmdPWM, Pin: &pin, Value: &value}, nil
}

// NewResetCommand builds a RESET request restarting the device.
func NewResetCommand() Command {
	return Command{Cmd: CmdReset}
}

// NewResetPinsCommand builds a RESET_PINS request returning every pin to
// its default state.
func NewResetPinsCommand() Command {
	return Command{Cmd: CmdResetPins}
}
