package leveldb

import (
	metricsUtil "github.com/Conflux-Chain/go-conflux-util/metrics"
	"github.com/rcrowley/go-metrics"
)

type Metrics struct{}

// Write returns a timer for measuring trace write operations.
func (m *Metrics) Write() metrics.Timer {
	return metricsUtil.GetOrRegisterTimer("store/leveldb/write")
}

// Scan returns a timer for measuring expiry index scans.
func (m *Metrics) Scan() metrics.Timer {
	return metricsUtil.GetOrRegisterTimer("store/leveldb/scan")
}
