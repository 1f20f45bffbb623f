package emulate

import (
	metricsUtil "github.com/Conflux-Chain/go-conflux-util/metrics"
	"github.com/rcrowley/go-metrics"
)

type Metrics struct{}

// Availability returns a percentage for measuring emulation success rate.
func (m *Metrics) Availability() metricsUtil.Percentage {
	return metricsUtil.GetOrRegisterTimeWindowPercentageDefault("emulate/availability")
}

// Latency returns a histogram for measuring emulation latency.
func (m *Metrics) Latency(success bool) metrics.Histogram {
	if success {
		return metricsUtil.GetOrRegisterHistogram("emulate/latency/success")
	}
	return metricsUtil.GetOrRegisterHistogram("emulate/latency/failure")
}

// QueueDropped returns a meter for messages dropped on a full worker queue.
func (m *Metrics) QueueDropped() metrics.Meter {
	return metricsUtil.GetOrRegisterMeter("emulate/queue/dropped")
}

// Confirmed returns a meter for synthetic traces reclassified as completed.
func (m *Metrics) Confirmed() metrics.Meter {
	return metricsUtil.GetOrRegisterMeter("emulate/confirmed")
}

// Inserted returns a meter for confirmed traces cached without prior emulation.
func (m *Metrics) Inserted() metrics.Meter {
	return metricsUtil.GetOrRegisterMeter("emulate/confirmed/inserted")
}
