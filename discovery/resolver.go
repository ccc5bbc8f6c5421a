// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"context"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/soothill/esp32ctl/pkg/logger"
)

const (
	// DefaultHostname is the mDNS hostname the firmware registers
	DefaultHostname = "esp32-controller.local"

	// DefaultServiceType is the DNS-SD service newer firmware builds
	// advertise alongside the plain hostname
	DefaultServiceType = "_esp32ctl._udp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultResolveTimeout bounds one resolution attempt
	DefaultResolveTimeout = 2 * time.Second
)

// MDNSResolver resolves the device's well-known local name to an
// address. It tries the platform resolver on the `.local` hostname
// first (every firmware build registers one), then falls back to a
// DNS-SD service browse for builds that advertise a service record.
//
// The timeout is scoped to the call through its context; nothing global
// is overridden, so it cannot leak into unrelated lookups.
type MDNSResolver struct {
	Hostname    string
	ServiceType string // Empty disables the service-browse fallback
	Domain      string
	Timeout     time.Duration

	// lookupHost is swappable in tests
	lookupHost func(ctx context.Context, host string) ([]string, error)
}

// NewMDNSResolver creates a resolver with the default hostname and
// service type.
func NewMDNSResolver(timeout time.Duration) *MDNSResolver {
	if timeout == 0 {
		timeout = DefaultResolveTimeout
	}
	return &MDNSResolver{
		Hostname:    DefaultHostname,
		ServiceType: DefaultServiceType,
		Domain:      ServiceDomain,
		Timeout:     timeout,
	}
}

// Resolve returns the device address and true on success. All
// resolution failures (name unknown, timeout, no responder) report
// false rather than an error; name resolution is one best-effort stage
// of the discovery chain.
func (r *MDNSResolver) Resolve(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if addr, ok := r.resolveHostname(ctx); ok {
		return addr, true
	}
	if r.ServiceType == "" {
		return "", false
	}
	return r.browseService(ctx)
}

func (r *MDNSResolver) resolveHostname(ctx context.Context) (string, bool) {
	lookup := r.lookupHost
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}

	addrs, err := lookup(ctx, r.Hostname)
	if err != nil || len(addrs) == 0 {
		logger.Debug().Err(err).Str("hostname", r.Hostname).Msg("Hostname resolution failed")
		return "", false
	}

	logger.Info().Str("hostname", r.Hostname).Str("addr", addrs[0]).Msg("Resolved device via mDNS hostname")
	return addrs[0], true
}

// browseService browses for the device's DNS-SD service and returns the
// first entry carrying an address.
func (r *MDNSResolver) browseService(ctx context.Context) (string, bool) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to create mDNS resolver")
		return "", false
	}

	entries := make(chan *zeroconf.ServiceEntry, 10)
	found := make(chan string, 1)

	go func() {
		for entry := range entries {
			addr := entryAddress(entry)
			if addr == "" {
				continue
			}
			select {
			case found <- addr:
			default:
			}
		}
	}()

	if err := resolver.Browse(ctx, r.ServiceType, r.Domain, entries); err != nil {
		logger.Debug().Err(err).Str("service", r.ServiceType).Msg("mDNS browse failed")
		return "", false
	}

	select {
	case addr := <-found:
		logger.Info().Str("service", r.ServiceType).Str("addr", addr).Msg("Resolved device via mDNS service browse")
		return addr, true
	case <-ctx.Done():
		return "", false
	}
}

// entryAddress extracts an address from a service entry, preferring IPv4.
func entryAddress(entry *zeroconf.ServiceEntry) string {
	if entry == nil {
		return ""
	}
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	return ""
}
