// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/protocol"
)

// DefaultProbeTimeout bounds one probe round trip. Probes sit on the
// discovery fast path (cached address check), so they stay short.
const DefaultProbeTimeout = time.Second

const probeReadBufferSize = 4096

// UDPProber tests whether a candidate address hosts a responsive device
// with a single UDP STATUS round trip. Every failure mode (transport
// error, timeout, unparseable reply) reports false; probing is
// best-effort and never raises to the caller.
type UDPProber struct {
	Port    int
	Timeout time.Duration
}

// NewUDPProber creates a prober for the given UDP command port.
func NewUDPProber(port int, timeout time.Duration) *UDPProber {
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}
	return &UDPProber{Port: port, Timeout: timeout}
}

// Probe sends one STATUS datagram to addr and waits for one reply.
// The socket is transient and closed before return.
func (p *UDPProber) Probe(ctx context.Context, addr string) bool {
	data, err := protocol.NewStatusCommand().Marshal()
	if err != nil {
		return false
	}

	target := net.JoinHostPort(addr, strconv.Itoa(p.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", target)
	if err != nil {
		logger.Debug().Err(err).Str("addr", target).Msg("Probe dial failed")
		return false
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(p.Timeout))
	if _, err := conn.Write(data); err != nil {
		return false
	}

	buf := make([]byte, probeReadBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		logger.Debug().Err(err).Str("addr", target).Msg("Probe got no reply")
		return false
	}

	resp, err := protocol.ParseResponse(buf[:n])
	if err != nil {
		return false
	}
	return resp.Success
}
