// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package discovery locates an ESP32 pin controller on the local
// network. Three strategies run in order of increasing cost, stopping
// at the first success:
//
//  1. Cached address: probe the last-known address with one UDP round
//     trip (near-zero cost).
//  2. mDNS: resolve the device's `.local` hostname, falling back to a
//     DNS-SD service browse (fast, no broadcast traffic).
//  3. Broadcast scan: flood the UDP command port with STATUS probes and
//     collect responders (slow, most reliable fallback).
//
// A newly found address is persisted back to the address cache so the
// next run hits the fast path. Every strategy is best-effort: stage
// failures never raise, and only a fully exhausted chain reports
// ErrDeviceNotFound.
package discovery

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/soothill/esp32ctl/pkg/errors"
	"github.com/soothill/esp32ctl/pkg/interfaces"
	"github.com/soothill/esp32ctl/pkg/logger"
	"github.com/soothill/esp32ctl/pkg/metrics"
)

// Config bundles the discovery parameters.
type Config struct {
	Hostname       string        // mDNS hostname ("" means DefaultHostname)
	ServiceType    string        // DNS-SD service for the browse fallback
	UDPPort        int           // Device UDP command port
	ScanWindow     time.Duration // Broadcast aggregation window
	ProbeTimeout   time.Duration // Cached-address probe timeout
	ResolveTimeout time.Duration // mDNS resolution timeout
	CacheEnabled   bool          // Whether to try the cached address first
}

// Orchestrator sequences the discovery strategies. Collaborators are
// injected so tests can substitute stubs and assert call counts.
type Orchestrator struct {
	cfg      Config
	cache    interfaces.AddressCache
	prober   interfaces.Prober
	resolver interfaces.Resolver
	scanner  interfaces.BroadcastScanner
}

// New creates an orchestrator with explicit collaborators.
func New(cfg Config, cache interfaces.AddressCache, prober interfaces.Prober,
	resolver interfaces.Resolver, scanner interfaces.BroadcastScanner) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		cache:    cache,
		prober:   prober,
		resolver: resolver,
		scanner:  scanner,
	}
}

// NewDefault creates an orchestrator wired with the standard UDP
// prober, mDNS resolver, and broadcast scanner.
func NewDefault(cfg Config, cache interfaces.AddressCache) *Orchestrator {
	resolver := NewMDNSResolver(cfg.ResolveTimeout)
	if cfg.Hostname != "" {
		resolver.Hostname = cfg.Hostname
	}
	if cfg.ServiceType != "" {
		resolver.ServiceType = cfg.ServiceType
	}

	return New(cfg,
		cache,
		NewUDPProber(cfg.UDPPort, cfg.ProbeTimeout),
		resolver,
		NewScanner(cfg.UDPPort, cfg.ScanWindow),
	)
}

// FindDevice runs the discovery chain and returns the device address.
// Returns ErrDeviceNotFound when every strategy is exhausted; that is a
// normal outcome, not a crash condition.
func (o *Orchestrator) FindDevice(ctx context.Context) (string, error) {
	timer := prometheus.NewTimer(metrics.DiscoveryDuration)
	defer timer.ObserveDuration()

	if o.cfg.CacheEnabled {
		if addr, ok := o.cache.Load(); ok {
			if o.prober.Probe(ctx, addr) {
				// Already the cached value, no re-save needed.
				logger.Info().Str("addr", addr).Msg("Cached address still valid")
				metrics.DiscoveryAttempts.WithLabelValues("cache").Inc()
				return addr, nil
			}
			logger.Debug().Str("addr", addr).Msg("Cached address no longer responds")
		}
	}

	if addr, ok := o.resolver.Resolve(ctx); ok {
		o.cache.Save(addr)
		metrics.DiscoveryAttempts.WithLabelValues("mdns").Inc()
		return addr, nil
	}

	results := o.scanner.Scan(ctx)
	if len(results) > 0 {
		// Ties among multiple responders break by arrival order.
		addr := results[0].Addr
		o.cache.Save(addr)
		logger.Info().Str("addr", addr).Int("responders", len(results)).Msg("Device found via broadcast scan")
		metrics.DiscoveryAttempts.WithLabelValues("broadcast").Inc()
		return addr, nil
	}

	metrics.DiscoveryAttempts.WithLabelValues("not_found").Inc()
	return "", errors.ErrDeviceNotFound
}
