package ttl

import (
	metricsUtil "github.com/Conflux-Chain/go-conflux-util/metrics"
	"github.com/rcrowley/go-metrics"
)

type Metrics struct{}

// Sweep returns a timer measuring the duration of one expiry sweep.
func (m *Metrics) Sweep() metrics.Timer {
	return metricsUtil.GetOrRegisterTimer("ttl/sweep")
}

// Evicted returns a meter for traces removed by expiry sweeps.
func (m *Metrics) Evicted() metrics.Meter {
	return metricsUtil.GetOrRegisterMeter("ttl/evicted")
}

// Skipped returns a meter for sweep ticks skipped while a sweep was in flight.
func (m *Metrics) Skipped() metrics.Meter {
	return metricsUtil.GetOrRegisterMeter("ttl/skipped")
}
