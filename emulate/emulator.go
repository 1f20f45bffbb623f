package emulate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/channel"
	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/Conflux-Chain/go-conflux-util/health"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Emulator turns observed pending messages into synthetic traces.
//
// A single poll loop feeds a fixed-size worker pool. Workers share only
// the trace store and the event bus, so emulation of different ids never
// blocks on each other; concurrent emulation of the same id resolves via
// the store's upsert semantics.
type Emulator struct {
	Config

	source  Source
	backend Backend
	cache   store.Store
	bus     channel.Bus

	// recently emulated ids mapped to their emulation time
	seen *lru.Cache[common.Hash, time.Time]

	failures atomic.Uint64
	health   *health.TimedCounter
	metrics  Metrics
}

func NewEmulator(conf Config, cache store.Store, bus channel.Bus) (*Emulator, error) {
	if len(conf.RpcEndpoint) == 0 {
		return nil, errors.New("no rpc endpoint provided")
	}

	client, err := NewClient(conf.RpcEndpoint)
	if err != nil {
		return nil, err
	}

	return newEmulator(conf, client, client, cache, bus)
}

func newEmulator(conf Config, source Source, backend Backend, cache store.Store, bus channel.Bus) (*Emulator, error) {
	seen, err := lru.New[common.Hash, time.Time](conf.DedupCacheSize)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create dedup cache")
	}

	return &Emulator{
		Config:  conf,
		source:  source,
		backend: backend,
		cache:   cache,
		bus:     bus,
		seen:    seen,
		health:  health.NewTimedCounter(conf.Health),
	}, nil
}

// Failures returns the number of dropped emulation failures.
func (e *Emulator) Failures() uint64 {
	return e.failures.Load()
}

// Run polls the pending source and emulates until the context is done.
// In-flight emulations complete before Run returns.
func (e *Emulator) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer e.source.Close()

	queue := make(chan types.PendingMessage, e.QueueSize)

	var workers sync.WaitGroup
	for i := 0; i < e.Workers; i++ {
		workers.Add(1)
		go e.worker(ctx, &workers, queue)
	}

	ticker := time.NewTicker(e.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(queue)
			workers.Wait()
			return
		case <-ticker.C:
			e.pollOnce(ctx, queue)
		}
	}
}

func (e *Emulator) pollOnce(ctx context.Context, queue chan<- types.PendingMessage) {
	messages, err := e.source.Poll(ctx)

	e.health.LogOnError(err, "Poll pending source")
	if err != nil {
		return
	}

	for _, msg := range messages {
		if e.recentlyEmulated(msg.TraceID()) {
			continue
		}

		select {
		case queue <- msg:
		default:
			// queue full, the message will be re-observed on a later poll
			e.metrics.QueueDropped().Mark(1)
		}
	}
}

func (e *Emulator) recentlyEmulated(id common.Hash) bool {
	at, ok := e.seen.Get(id)
	return ok && time.Since(at) < e.Freshness
}

func (e *Emulator) worker(ctx context.Context, wg *sync.WaitGroup, queue <-chan types.PendingMessage) {
	defer wg.Done()

	for msg := range queue {
		e.emulateOne(ctx, msg)
	}
}

func (e *Emulator) emulateOne(ctx context.Context, msg types.PendingMessage) {
	id := msg.TraceID()
	start := time.Now()

	emulationCtx, cancel := context.WithTimeout(ctx, e.EmulationTimeout)
	frame, err := e.backend.Emulate(emulationCtx, msg)
	cancel()

	e.metrics.Latency(err == nil).Update(time.Since(start).Nanoseconds())
	e.metrics.Availability().Mark(err == nil)

	if err != nil {
		// dropped, not retried: the message is expected to be re-observed
		// or confirmed shortly
		e.failures.Add(1)
		logrus.WithField("id", id).WithError(err).Debug("Emulator dropped failing message")
		return
	}

	trace := types.NewSyntheticTrace(id, frame, time.Now())
	if err := e.cache.Put(trace); err != nil {
		logrus.WithField("id", id).WithError(err).Error("Emulator failed to write trace store")
		return
	}

	e.seen.Add(id, time.Now())

	if err := e.bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: id}); err != nil {
		logrus.WithField("id", id).WithError(err).Warn("Emulator failed to publish trace-ready")
	}
}
