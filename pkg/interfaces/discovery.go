// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"

	"github.com/soothill/esp32ctl/protocol"
)

// ScanResult is one distinct responding device observed during a
// broadcast scan, in order of first observation.
type ScanResult struct {
	Addr     string             // Sender host, exact-match deduplicated
	Response *protocol.Response // The successful STATUS reply
}

// Prober tests whether a single candidate address hosts a responsive
// device with one UDP round trip. Any transport error, timeout, or
// parse failure yields false; probes never fail loudly.
type Prober interface {
	Probe(ctx context.Context, addr string) bool
}

// Resolver resolves the device's well-known local name to an address.
// The boolean reports whether resolution succeeded; resolution failures
// of any kind (unknown name, timeout) are not errors.
type Resolver interface {
	Resolve(ctx context.Context) (string, bool)
}

// BroadcastScanner emits repeated UDP broadcast probes and aggregates
// distinct responding addresses within a bounded window. Zero results
// is a valid, non-error outcome.
type BroadcastScanner interface {
	Scan(ctx context.Context) []ScanResult
}

// AddressCache persists the last-known device address. Load returns
// false when no address has been cached; Save is best-effort and a
// failure to persist never surfaces to the caller.
type AddressCache interface {
	Load() (string, bool)
	Save(addr string)
}
