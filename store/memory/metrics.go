package memory

import (
	"github.com/Conflux-Chain/confura-pending-cache/types"
	metricsUtil "github.com/Conflux-Chain/go-conflux-util/metrics"
	sizeUtil "github.com/DmitriyVTitov/size"
	"github.com/rcrowley/go-metrics"
)

type Metrics struct{}

// Entries returns a gauge for the number of cached traces.
func (m *Metrics) Entries() metrics.Gauge {
	return metricsUtil.GetOrRegisterGauge("store/memory/entries")
}

// PayloadSize returns a histogram for the memory size of written payloads.
func (m *Metrics) PayloadSize() metrics.Histogram {
	return metricsUtil.GetOrRegisterHistogram("store/memory/payload/size")
}

func payloadSize(trace *types.Trace) int64 {
	return int64(sizeUtil.Of(trace.Payload))
}
