package ttl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/channel"
	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/Conflux-Chain/go-conflux-util/health"
	"github.com/sirupsen/logrus"
)

// Config holds the settings of the TTL tracker.
type Config struct {
	// Enabled turns periodic expiry sweeps on or off.
	Enabled bool `default:"true"`

	// SweepInterval is the period between expiry sweeps.
	SweepInterval time.Duration `default:"5s"`

	// Policy assigns an eviction TTL to each trace class.
	Policy types.TTLPolicy

	Health health.TimedCounterConfig
}

// Tracker periodically evicts traces whose TTL has elapsed. At most one
// sweep runs at a time; a tick that fires while the previous sweep is
// still in flight is skipped rather than queued.
type Tracker struct {
	Config

	cache    store.Store
	bus      channel.Bus
	sweeping atomic.Bool
	health   *health.TimedCounter
	metrics  Metrics
}

func NewTracker(conf Config, cache store.Store, bus channel.Bus) *Tracker {
	return &Tracker{
		Config: conf,
		cache:  cache,
		bus:    bus,
		health: health.NewTimedCounter(conf.Health),
	}
}

func (t *Tracker) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	if !t.Enabled {
		logrus.Info("TTL tracker disabled")
		return
	}

	ticker := time.NewTicker(t.SweepInterval)
	defer ticker.Stop()

	// sweeps run off the tick loop so an overlong sweep never delays tick
	// delivery; the in-flight sweep still completes on shutdown
	var sweeps sync.WaitGroup
	defer sweeps.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.sweeping.CompareAndSwap(false, true) {
				t.metrics.Skipped().Mark(1)
				logrus.Debug("TTL sweep still in flight, tick skipped")
				continue
			}

			sweeps.Add(1)
			go func() {
				defer sweeps.Done()
				defer t.sweeping.Store(false)

				t.sweepOnce(ctx)
			}()
		}
	}
}

// sweepOnce evicts every trace whose deadline has passed. A trace that
// cannot be removed stays in the store for the next sweep.
func (t *Tracker) sweepOnce(ctx context.Context) {
	start := time.Now()

	expired, err := t.cache.ScanExpired(start, t.Policy)

	t.health.LogOnError(err, "TTL expiry scan")
	if err != nil {
		return
	}

	var evicted int64
	for _, id := range expired {
		if err := t.cache.Remove(id); err != nil {
			logrus.WithField("id", id).WithError(err).Error("TTL tracker failed to evict trace")
			continue
		}

		evicted++
		if err := t.bus.Publish(ctx, channel.TopicEvicted, channel.Message{ID: id}); err != nil {
			logrus.WithField("id", id).WithError(err).Warn("TTL tracker failed to publish eviction")
		}
	}

	t.metrics.Evicted().Mark(evicted)
	t.metrics.Sweep().UpdateSince(start)

	if evicted == 0 {
		logrus.Debug("TTL sweep found no expired traces")
		return
	}

	logrus.WithFields(logrus.Fields{
		"evicted": evicted,
		"elapsed": time.Since(start),
	}).Debug("TTL sweep evicted expired traces")
}
