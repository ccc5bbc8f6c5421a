// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package transport

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/soothill/esp32ctl/pkg/errors"
	"github.com/soothill/esp32ctl/pkg/interfaces"
	"github.com/soothill/esp32ctl/protocol"
)

// Session is what the application layer holds; both sender views
// implement the shared interfaces.
var (
	_ interfaces.Session       = (*Session)(nil)
	_ interfaces.CommandSender = (*UDPSender)(nil)
)

const testBanner = "ESP32 Pin Controller Ready\nType HELP for command list\n"

// stubDevice runs a loopback TCP listener whose handler is invoked once
// per accepted connection.
func stubDevice(t *testing.T, handler func(conn net.Conn)) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				handler(c)
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// readCommand reads one newline-terminated request from the client.
func readCommand(conn net.Conn) (string, error) {
	return bufio.NewReader(conn).ReadString('\n')
}

func newTestSession(host string, tcpPort, udpPort int) *Session {
	return NewSession(Config{
		Addr:            host,
		TCPPort:         tcpPort,
		UDPPort:         udpPort,
		ConnectTimeout:  2 * time.Second,
		ResponseTimeout: 2 * time.Second,
		UDPTimeout:      time.Second,
	})
}

func TestSession_SendTCP_SingleLineResponse(t *testing.T) {
	host, port := stubDevice(t, func(conn net.Conn) {
		conn.Write([]byte(testBanner))
		if _, err := readCommand(conn); err != nil {
			return
		}
		conn.Write([]byte(`{"success":true,"value":1}` + "\n"))
	})

	s := newTestSession(host, port, 0)
	defer s.Close()

	if s.Connected() {
		t.Fatal("new session should start Closed")
	}

	cmd, _ := protocol.NewGetCommand(13)
	resp, err := s.SendTCP(context.Background(), cmd)
	if err != nil {
		t.Fatalf("SendTCP() error = %v", err)
	}

	if !s.Connected() {
		t.Error("session should be Open after a successful exchange")
	}
	if !resp.Success {
		t.Error("Success should be true")
	}
	if resp.Value == nil || *resp.Value != 1 {
		t.Errorf("Value = %v, want 1", resp.Value)
	}
}

func TestSession_SendTCP_ReassemblesSplitResponse(t *testing.T) {
	host, port := stubDevice(t, func(conn net.Conn) {
		conn.Write([]byte(testBanner))
		if _, err := readCommand(conn); err != nil {
			return
		}
		conn.Write([]byte(`{"success":tr` + "\n"))
		conn.Write([]byte(`ue,"value":1}` + "\n"))
	})

	s := newTestSession(host, port, 0)
	defer s.Close()

	resp, err := s.SendTCP(context.Background(), protocol.NewStatusCommand())
	if err != nil {
		t.Fatalf("SendTCP() error = %v", err)
	}
	if !resp.Success {
		t.Error("Success should be true after reassembly")
	}
	if resp.Value == nil || *resp.Value != 1 {
		t.Errorf("Value = %v, want 1", resp.Value)
	}
}

func TestSession_SendTCP_SkipsInterleavedNoise(t *testing.T) {
	host, port := stubDevice(t, func(conn net.Conn) {
		conn.Write([]byte(testBanner))
		if _, err := readCommand(conn); err != nil {
			return
		}
		conn.Write([]byte("\n"))
		conn.Write([]byte("note: pin state changed\n"))
		conn.Write([]byte(`{"success":true}` + "\n"))
	})

	s := newTestSession(host, port, 0)
	defer s.Close()

	resp, err := s.SendTCP(context.Background(), protocol.NewStatusCommand())
	if err != nil {
		t.Fatalf("SendTCP() error = %v", err)
	}
	if !resp.Success {
		t.Error("Success should be true")
	}
}

func TestSession_SendTCP_MalformedResponseClosesSession(t *testing.T) {
	responses := make(chan string, 2)
	responses <- `{"success":}` + "\n" // balanced braces, invalid JSON
	responses <- `{"success":true}` + "\n"

	host, port := stubDevice(t, func(conn net.Conn) {
		conn.Write([]byte(testBanner))
		if _, err := readCommand(conn); err != nil {
			return
		}
		conn.Write([]byte(<-responses))
	})

	s := newTestSession(host, port, 0)
	defer s.Close()

	_, err := s.SendTCP(context.Background(), protocol.NewStatusCommand())
	if !errors.IsMalformedResponse(err) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
	if s.Connected() {
		t.Fatal("session should be Closed after framing desync")
	}

	// Lazy reconnect: the next send dials a fresh connection.
	resp, err := s.SendTCP(context.Background(), protocol.NewStatusCommand())
	if err != nil {
		t.Fatalf("SendTCP() after desync error = %v", err)
	}
	if !resp.Success {
		t.Error("Success should be true on the fresh session")
	}
}

func TestSession_SendTCP_PeerCloseYieldsConnectionClosed(t *testing.T) {
	host, port := stubDevice(t, func(conn net.Conn) {
		conn.Write([]byte(testBanner))
		readCommand(conn)
		// Close without responding.
	})

	s := newTestSession(host, port, 0)
	defer s.Close()

	_, err := s.SendTCP(context.Background(), protocol.NewStatusCommand())
	if err == nil {
		t.Fatal("expected an error when peer closes mid-response")
	}
	if !errors.IsTransportError(err) {
		t.Errorf("expected TransportError, got %T", err)
	}
	if !strings.Contains(err.Error(), "connection closed") {
		t.Errorf("error should indicate connection closed, got %v", err)
	}
	if s.Connected() {
		t.Error("session should be Closed after peer close")
	}
}

func TestSession_Connect_FailsAgainstDeadAddress(t *testing.T) {
	// A closed listener port refuses immediately.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := newTestSession("127.0.0.1", port, 0)
	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("Connect() should fail against a dead address")
	}
	if s.Connected() {
		t.Error("session should remain Closed after a failed connect")
	}
}

func TestSession_Close_Idempotent(t *testing.T) {
	host, port := stubDevice(t, func(conn net.Conn) {
		conn.Write([]byte(testBanner))
		readCommand(conn)
	})

	s := newTestSession(host, port, 0)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if s.Connected() {
		t.Error("session should be Closed")
	}
}

func TestSession_SendUDP_RoundTrip(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen udp: %v", err)
	}
	defer pc.Close()

	go func() {
		buf := make([]byte, 4096)
		n, addr, readErr := pc.ReadFrom(buf)
		if readErr != nil {
			return
		}
		if !strings.Contains(string(buf[:n]), `"cmd":"STATUS"`) {
			pc.WriteTo([]byte(`{"success":false,"message":"unexpected command"}`), addr)
			return
		}
		pc.WriteTo([]byte(`{"success":true}`), addr)
	}()

	port := pc.LocalAddr().(*net.UDPAddr).Port
	s := newTestSession("127.0.0.1", 0, port)

	resp, err := s.SendUDP(context.Background(), protocol.NewStatusCommand())
	if err != nil {
		t.Fatalf("SendUDP() error = %v", err)
	}
	if !resp.Success {
		t.Error("Success should be true")
	}
	if s.Connected() {
		t.Error("UDP exchange must not open a TCP connection")
	}
}

func TestSession_SendUDP_Timeout(t *testing.T) {
	// A listener that never replies.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen udp: %v", err)
	}
	defer pc.Close()

	port := pc.LocalAddr().(*net.UDPAddr).Port
	s := NewSession(Config{
		Addr:       "127.0.0.1",
		UDPPort:    port,
		UDPTimeout: 200 * time.Millisecond,
	})

	start := time.Now()
	_, err = s.SendUDP(context.Background(), protocol.NewStatusCommand())
	if err == nil {
		t.Fatal("SendUDP() should time out with no responder")
	}
	if !errors.IsTransportError(err) {
		t.Errorf("expected TransportError, got %T", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, want ~200ms", elapsed)
	}
}

func TestSession_UDPSenderImplementsSend(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen udp: %v", err)
	}
	defer pc.Close()

	go func() {
		buf := make([]byte, 4096)
		n, addr, readErr := pc.ReadFrom(buf)
		if readErr != nil || n == 0 {
			return
		}
		pc.WriteTo([]byte(`{"success":true,"value":0}`), addr)
	}()

	port := pc.LocalAddr().(*net.UDPAddr).Port
	s := newTestSession("127.0.0.1", 0, port)

	cmd, _ := protocol.NewGetCommand(2)
	resp, err := s.UDP().Send(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Value == nil || *resp.Value != 0 {
		t.Errorf("Value = %v, want 0", resp.Value)
	}
}
