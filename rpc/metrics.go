package rpc

import metricsUtil "github.com/Conflux-Chain/go-conflux-util/metrics"

var metrics Metrics

type Metrics struct{}

func (m *Metrics) GetTraceHitCache() metricsUtil.Percentage {
	return metricsUtil.GetOrRegisterTimeWindowPercentageDefault("rpc/api/getTrace/hit/cache")
}
