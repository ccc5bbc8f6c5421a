// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"context"
	"net"
	"time"

	"github.com/soothill/esp32ctl/pkg/interfaces"
	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/pkg/metrics"
	"github.com/soothill/esp32ctl/protocol"
)

const (
	// DefaultScanWindow is how long the scanner aggregates replies
	DefaultScanWindow = 3 * time.Second

	// DefaultBroadcastAddr is the IPv4 limited broadcast address
	DefaultBroadcastAddr = "255.255.255.255"

	// receiveTimeout keeps the receive loop polling responsively
	// instead of blocking past the scan deadline
	receiveTimeout = 500 * time.Millisecond

	// probeCount and probeSpacing give the STATUS broadcast redundancy
	// against packet loss; duplicate replies are folded by address
	// deduplication, so resending is safe
	probeCount   = 3
	probeSpacing = 100 * time.Millisecond

	scanReadBufferSize = 4096
)

// Scanner discovers devices by broadcasting STATUS probes and
// aggregating distinct responders within a bounded window.
type Scanner struct {
	Port          int
	Window        time.Duration
	BroadcastAddr string // Overridable so tests can target loopback
}

// NewScanner creates a broadcast scanner for the given UDP command port.
func NewScanner(port int, window time.Duration) *Scanner {
	if window == 0 {
		window = DefaultScanWindow
	}
	return &Scanner{
		Port:          port,
		Window:        window,
		BroadcastAddr: DefaultBroadcastAddr,
	}
}

// Scan broadcasts STATUS probes and collects one entry per distinct
// responding address, in order of first observation. Per-packet errors
// (malformed JSON, transport hiccups) are swallowed; only total socket
// setup failure aborts early, returning whatever was collected. Zero
// responses is a valid, non-error outcome.
func (s *Scanner) Scan(ctx context.Context) []interfaces.ScanResult {
	results := make([]interfaces.ScanResult, 0)

	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		logger.Warn().Err(err).Msg("Broadcast scan socket setup failed")
		return results
	}
	defer pc.Close()

	data, err := protocol.NewStatusCommand().Marshal()
	if err != nil {
		return results
	}

	dst := &net.UDPAddr{IP: net.ParseIP(s.BroadcastAddr), Port: s.Port}
	for i := 0; i < probeCount; i++ {
		if _, err := pc.WriteTo(data, dst); err != nil {
			logger.Debug().Err(err).Int("probe", i).Msg("Broadcast probe send failed")
		}
		time.Sleep(probeSpacing)
	}

	seen := make(map[string]struct{})
	buf := make([]byte, scanReadBufferSize)
	deadline := time.Now().Add(s.Window)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}

		_ = pc.SetReadDeadline(time.Now().Add(receiveTimeout))
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			continue
		}

		host, _, err := net.SplitHostPort(from.String())
		if err != nil {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}

		resp, err := protocol.ParseResponse(buf[:n])
		if err != nil || !resp.Success {
			continue
		}

		seen[host] = struct{}{}
		results = append(results, interfaces.ScanResult{Addr: host, Response: resp})
		logger.Info().Str("addr", host).Msg("Broadcast scan found device")
	}

	metrics.BroadcastResponders.Set(float64(len(results)))
	return results
}
