// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"
)

// startUDPResponder listens on loopback and answers each datagram with
// the given payload. It returns the bound port.
func startUDPResponder(t *testing.T, reply string) int {
	t.Helper()

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, from, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}

			var cmd map[string]any
			if err := json.Unmarshal(buf[:n], &cmd); err != nil {
				continue
			}
			if cmd["cmd"] != "STATUS" {
				continue
			}
			_, _ = pc.WriteTo([]byte(reply), from)
		}
	}()

	return pc.LocalAddr().(*net.UDPAddr).Port
}

func TestProbe_LiveDevice(t *testing.T) {
	port := startUDPResponder(t, `{"success":true,"command":"STATUS"}`)

	p := NewUDPProber(port, time.Second)
	if !p.Probe(context.Background(), "127.0.0.1") {
		t.Error("Probe() = false, want true for a responsive device")
	}
}

func TestProbe_UnsuccessfulReply(t *testing.T) {
	port := startUDPResponder(t, `{"success":false,"message":"busy"}`)

	p := NewUDPProber(port, time.Second)
	if p.Probe(context.Background(), "127.0.0.1") {
		t.Error("Probe() = true, want false when the device reports failure")
	}
}

func TestProbe_GarbageReply(t *testing.T) {
	port := startUDPResponder(t, "ESP32 Pin Controller Ready")

	p := NewUDPProber(port, time.Second)
	if p.Probe(context.Background(), "127.0.0.1") {
		t.Error("Probe() = true, want false for an unparseable reply")
	}
}

func TestProbe_NoReply(t *testing.T) {
	// Grab a port that nothing listens on.
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := pc.LocalAddr().(*net.UDPAddr).Port
	pc.Close()

	p := NewUDPProber(port, 200*time.Millisecond)

	start := time.Now()
	if p.Probe(context.Background(), "127.0.0.1") {
		t.Error("Probe() = true, want false when nothing answers")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Probe took %v, should be bounded by its timeout", elapsed)
	}
}
