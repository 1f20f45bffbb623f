package channel

import (
	metricsUtil "github.com/Conflux-Chain/go-conflux-util/metrics"
	"github.com/rcrowley/go-metrics"
)

type Metrics struct{}

// Published returns a meter for messages delivered to a group buffer.
func (m *Metrics) Published(topic string) metrics.Meter {
	return metricsUtil.GetOrRegisterMeter("channel/%v/published", topic)
}

// Dropped returns a meter for messages dropped on full group buffers.
func (m *Metrics) Dropped(topic string) metrics.Meter {
	return metricsUtil.GetOrRegisterMeter("channel/%v/dropped", topic)
}
