// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCommandCounters(t *testing.T) {
	before := testutil.ToFloat64(CommandsTotal.WithLabelValues("STATUS", "tcp"))
	CommandsTotal.WithLabelValues("STATUS", "tcp").Inc()
	after := testutil.ToFloat64(CommandsTotal.WithLabelValues("STATUS", "tcp"))

	if after != before+1 {
		t.Errorf("CommandsTotal = %v, want %v", after, before+1)
	}
}

func TestDeviceGauges(t *testing.T) {
	DeviceUptime.WithLabelValues("192.168.1.50").Set(3600)
	if got := testutil.ToFloat64(DeviceUptime.WithLabelValues("192.168.1.50")); got != 3600 {
		t.Errorf("DeviceUptime = %v, want 3600", got)
	}

	DeviceRSSI.WithLabelValues("192.168.1.50").Set(-55)
	if got := testutil.ToFloat64(DeviceRSSI.WithLabelValues("192.168.1.50")); got != -55 {
		t.Errorf("DeviceRSSI = %v, want -55", got)
	}
}

func TestSpoolGauge(t *testing.T) {
	SpooledReadings.Set(4)
	if got := testutil.ToFloat64(SpooledReadings); got != 4 {
		t.Errorf("SpooledReadings = %v, want 4", got)
	}
	SpooledReadings.Set(0)
}
