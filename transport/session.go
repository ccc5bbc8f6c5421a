// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package transport implements request/response exchange with the ESP32
// pin controller over its two transports: a persistent line-delimited
// TCP connection and connectionless single-datagram UDP.
//
// # TCP Framing
//
// On accept the device emits exactly two informational banner lines
// before any protocol traffic. Each command then yields one JSON
// response that may span multiple physical lines; responses are
// reassembled with brace-depth counting (see protocol.Assembler).
// A framing violation (payload that does not parse once brace depth
// returns to zero) closes the session rather than retrying: once framing
// is desynchronized the stream can no longer be trusted. The next send
// reconnects lazily.
//
// # Concurrency
//
// A Session owns at most one TCP connection and is not safe for
// concurrent use; callers needing parallelism run one Session each.
package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/soothill/esp32ctl/pkg/errors"
	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/pkg/metrics"
	"github.com/soothill/esp32ctl/protocol"
)

const (
	// DefaultTCPPort is the firmware's TCP control port
	DefaultTCPPort = 8888
	// DefaultUDPPort is the firmware's UDP discovery/command port
	DefaultUDPPort = 8889

	// DefaultConnectTimeout bounds the TCP dial plus banner consumption
	DefaultConnectTimeout = 5 * time.Second
	// DefaultResponseTimeout bounds reading one framed TCP response
	DefaultResponseTimeout = 5 * time.Second
	// DefaultUDPTimeout bounds one UDP round trip
	DefaultUDPTimeout = 2 * time.Second

	// bannerLines is the number of non-JSON greeting lines the device
	// sends immediately after accept
	bannerLines = 2

	udpReadBufferSize = 4096
)

// Config carries the connection parameters for a Session.
type Config struct {
	Addr            string        // Device host (IP or hostname)
	TCPPort         int           // 0 means DefaultTCPPort
	UDPPort         int           // 0 means DefaultUDPPort
	ConnectTimeout  time.Duration // 0 means DefaultConnectTimeout
	ResponseTimeout time.Duration // 0 means DefaultResponseTimeout
	UDPTimeout      time.Duration // 0 means DefaultUDPTimeout
}

func (c *Config) setDefaults() {
	if c.TCPPort == 0 {
		c.TCPPort = DefaultTCPPort
	}
	if c.UDPPort == 0 {
		c.UDPPort = DefaultUDPPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.UDPTimeout == 0 {
		c.UDPTimeout = DefaultUDPTimeout
	}
}

// Session maintains an optional long-lived TCP connection to the device
// and provides single-shot UDP exchange against the same address.
// The zero connection state is Closed; Connect (or the first SendTCP)
// opens it.
type Session struct {
	cfg    Config
	conn   net.Conn
	reader *bufio.Reader
}

// NewSession creates a session for the given device. No connection is
// opened until Connect or the first SendTCP.
func NewSession(cfg Config) *Session {
	cfg.setDefaults()
	return &Session{cfg: cfg}
}

// Addr returns the device host this session targets.
func (s *Session) Addr() string {
	return s.cfg.Addr
}

// Connected reports whether a TCP connection is currently open.
func (s *Session) Connected() bool {
	return s.conn != nil
}

func (s *Session) tcpAddr() string {
	return net.JoinHostPort(s.cfg.Addr, strconv.Itoa(s.cfg.TCPPort))
}

func (s *Session) udpAddr() string {
	return net.JoinHostPort(s.cfg.Addr, strconv.Itoa(s.cfg.UDPPort))
}

// Connect opens the TCP connection and consumes the device's two banner
// lines. On any failure the session is left Closed; no half-open state
// is retained.
func (s *Session) Connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	metrics.SessionReconnects.Inc()

	dialer := net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.tcpAddr())
	if err != nil {
		return errors.NewTransportError("dial", s.tcpAddr(), err)
	}

	reader := bufio.NewReader(conn)

	// The banner lines are informational only and never JSON; consume
	// them unconditionally so framing starts at the first response.
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ConnectTimeout))
	for i := 0; i < bannerLines; i++ {
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			conn.Close()
			return errors.NewTransportError("read banner", s.tcpAddr(), readErr)
		}
		logger.Debug().Str("banner", strings.TrimSpace(line)).Msg("Device banner")
	}

	s.conn = conn
	s.reader = reader
	logger.Info().Str("addr", s.tcpAddr()).Msg("TCP session open")
	return nil
}

// SendTCP sends one command over the TCP session and returns its framed
// response. A Closed session is reconnected first; connect failures
// propagate. Peer close mid-response yields ErrConnectionClosed, an
// unparseable frame yields MalformedResponseError, and both transition
// the session to Closed.
func (s *Session) SendTCP(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	metrics.CommandsTotal.WithLabelValues(string(cmd.Cmd), "tcp").Inc()
	resp, err := s.sendTCP(ctx, cmd)
	if err != nil {
		metrics.CommandErrors.WithLabelValues(string(cmd.Cmd), "tcp").Inc()
	}
	return resp, err
}

func (s *Session) sendTCP(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	if s.conn == nil {
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
	}

	data, err := cmd.Marshal()
	if err != nil {
		return nil, err
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.ResponseTimeout))
	if _, err := s.conn.Write(append(data, '\n')); err != nil {
		s.teardown()
		return nil, errors.NewTransportError("write", s.tcpAddr(), err)
	}

	return s.readResponse()
}

// readResponse accumulates lines into one framed JSON message.
func (s *Session) readResponse() (*protocol.Response, error) {
	var asm protocol.Assembler

	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ResponseTimeout))
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.teardown()
			if err == io.EOF {
				return nil, errors.NewTransportError("read", s.tcpAddr(), errors.ErrConnectionClosed)
			}
			return nil, errors.NewTransportError("read", s.tcpAddr(), err)
		}

		if !asm.Feed(strings.TrimRight(line, "\r\n")) {
			continue
		}

		resp, parseErr := protocol.ParseResponse(asm.Bytes())
		if parseErr != nil {
			// Framing is no longer trustworthy once violated.
			s.teardown()
			logger.Warn().Err(parseErr).Str("addr", s.tcpAddr()).Msg("Framing desync, closing session")
			return nil, parseErr
		}
		return resp, nil
	}
}

// SendUDP sends one command as a single datagram and waits for one
// reply datagram. Stateless across calls; the socket is transient and
// closed before return.
func (s *Session) SendUDP(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	metrics.CommandsTotal.WithLabelValues(string(cmd.Cmd), "udp").Inc()
	resp, err := s.sendUDP(ctx, cmd)
	if err != nil {
		metrics.CommandErrors.WithLabelValues(string(cmd.Cmd), "udp").Inc()
	}
	return resp, err
}

func (s *Session) sendUDP(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	data, err := cmd.Marshal()
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", s.udpAddr())
	if err != nil {
		return nil, errors.NewTransportError("dial udp", s.udpAddr(), err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(s.cfg.UDPTimeout))
	if _, err := conn.Write(data); err != nil {
		return nil, errors.NewTransportError("send udp", s.udpAddr(), err)
	}

	buf := make([]byte, udpReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, errors.NewTransportError("receive udp", s.udpAddr(), err)
	}

	resp, parseErr := protocol.ParseResponse(buf[:n])
	if parseErr != nil {
		return nil, errors.NewTransportError("parse udp response", s.udpAddr(), parseErr)
	}
	return resp, nil
}

// Send implements interfaces.CommandSender over the framed TCP path.
func (s *Session) Send(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	return s.SendTCP(ctx, cmd)
}

// Close releases the TCP connection and read cursor. Idempotent; safe
// on an already-Closed session.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.reader = nil
	logger.Debug().Str("addr", s.tcpAddr()).Msg("TCP session closed")
	return err
}

// teardown drops the connection after a transport or framing failure.
func (s *Session) teardown() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.reader = nil
	}
}
