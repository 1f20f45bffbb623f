package classify

import (
	metricsUtil "github.com/Conflux-Chain/go-conflux-util/metrics"
	"github.com/rcrowley/go-metrics"
)

type Metrics struct{}

// Flush returns a timer for measuring batch flushes.
func (m *Metrics) Flush() metrics.Timer {
	return metricsUtil.GetOrRegisterTimer("classify/flush")
}

// FlushSize returns a histogram for measuring flushed batch sizes.
func (m *Metrics) FlushSize() metrics.Histogram {
	return metricsUtil.GetOrRegisterHistogram("classify/flush/size")
}

// Classified returns a meter for stored actions per classifier deployment.
func (m *Metrics) Classified(name string) metrics.Meter {
	return metricsUtil.GetOrRegisterMeter("classify/%v/actions", name)
}

// Errors returns a meter for per-trace classification errors.
func (m *Metrics) Errors() metrics.Meter {
	return metricsUtil.GetOrRegisterMeter("classify/errors")
}
