// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/soothill/esp32ctl/pkg/errors"
)

// Response is one reply from the device. At minimum it carries a
// "success" boolean; command echoes, a result value, an error message,
// and (for STATUS) system/wifi sub-objects are optional.
type Response struct {
	Success bool        `json:"success"`
	Command string      `json:"command,omitempty"`
	Pin     *int        `json:"pin,omitempty"`
	Value   *int        `json:"value,omitempty"`
	Message string      `json:"message,omitempty"`
	System  *SystemInfo `json:"system,omitempty"`
	Wifi    *WifiInfo   `json:"wifi,omitempty"`
}

// SystemInfo is the "system" sub-object of a STATUS response.
//
// Firmware revisions disagree on field spelling: current builds emit
// snake_case (free_heap, chip_model) while the documented contract uses
// camelCase. Both are accepted; camelCase wins when a payload carries
// both.
type SystemInfo struct {
	Uptime    int64  `json:"uptime"`
	FreeHeap  int64  `json:"freeHeap"`
	ChipModel string `json:"chipModel"`
	CPUFreq   int    `json:"cpuFreq,omitempty"`
}

// UnmarshalJSON accepts both the camelCase and snake_case spellings of
// the system fields.
func (s *SystemInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		Uptime         int64   `json:"uptime"`
		FreeHeap       *int64  `json:"freeHeap"`
		FreeHeapSnake  *int64  `json:"free_heap"`
		ChipModel      *string `json:"chipModel"`
		ChipModelSnake *string `json:"chip_model"`
		CPUFreq        *int    `json:"cpuFreq"`
		CPUFreqSnake   *int    `json:"cpu_freq"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Uptime = raw.Uptime
	s.FreeHeap = firstOf(raw.FreeHeap, raw.FreeHeapSnake)
	s.ChipModel = firstOf(raw.ChipModel, raw.ChipModelSnake)
	s.CPUFreq = firstOf(raw.CPUFreq, raw.CPUFreqSnake)
	return nil
}

func firstOf[T any](camel, snake *T) T {
	var zero T
	if camel != nil {
		return *camel
	}
	if snake != nil {
		return *snake
	}
	return zero
}

// WifiInfo is the "wifi" sub-object of a STATUS response.
type WifiInfo struct {
	Connected *bool  `json:"connected,omitempty"`
	SSID      string `json:"ssid"`
	RSSI      int    `json:"rssi"`
	MAC       string `json:"mac,omitempty"`
	IP        string `json:"ip"`
}

// ParseResponse validates and decodes one complete device reply. The
// payload must be a single JSON object; anything else (banner text,
// truncated JSON, bare scalars) is a MalformedResponseError.
func ParseResponse(data []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.NewMalformedResponseError("", fmt.Errorf("empty payload"))
	}
	// json.Unmarshal would accept "null" into a struct; the device only
	// ever sends objects.
	if trimmed[0] != '{' {
		return nil, errors.NewMalformedResponseError(string(data), fmt.Errorf("payload is not a JSON object"))
	}

	var resp Response
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, errors.NewMalformedResponseError(string(data), err)
	}
	return &resp, nil
}
