package classify

import (
	"context"
	"sync"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/channel"
	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/Conflux-Chain/go-conflux-util/ctxutil"
	"github.com/Conflux-Chain/go-conflux-util/health"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds the configurations shared by both classifier deployments.
type Config struct {
	// BatchSize is the max number of trace ids per classification batch.
	BatchSize int `default:"100"`

	// BatchWindow is the max time to wait since the first unflushed id
	// before the batch is flushed regardless of size.
	BatchWindow time.Duration `default:"200ms"`

	// RetryInterval is the backoff before retrying a failed batch flush.
	RetryInterval time.Duration `default:"3s"`

	Health health.TimedCounterConfig
}

// Classifier consumes trace-ready events, derives semantic actions in
// time-windowed batches and publishes actions-ready events.
//
// Classification has fixed per-flush overhead (bulk store read), which
// batching amortizes under high throughput; the window bounds worst-case
// latency during quiet periods.
type Classifier struct {
	Config

	name     string
	group    string
	topics   []string
	eligible func(*types.Trace) bool

	cache   store.Store
	bus     channel.Bus
	health  *health.TimedCounter
	metrics Metrics
}

// NewPendingsClassifier classifies synthetic traces only.
func NewPendingsClassifier(conf Config, cache store.Store, bus channel.Bus) *Classifier {
	return newClassifier(conf, cache, bus, "pendings", []string{channel.TopicTraceReady},
		func(trace *types.Trace) bool {
			return trace.State == types.StateSynthetic
		},
	)
}

// NewGeneralClassifier classifies both synthetic and completed traces.
func NewGeneralClassifier(conf Config, cache store.Store, bus channel.Bus) *Classifier {
	return newClassifier(conf, cache, bus, "general",
		[]string{channel.TopicTraceReady, channel.TopicTraceConfirmed},
		func(trace *types.Trace) bool {
			return trace.State == types.StateSynthetic || trace.State == types.StateCompleted
		},
	)
}

func newClassifier(conf Config, cache store.Store, bus channel.Bus, name string, topics []string, eligible func(*types.Trace) bool) *Classifier {
	return &Classifier{
		Config:   conf,
		name:     name,
		group:    "classifier-" + name,
		topics:   topics,
		eligible: eligible,
		cache:    cache,
		bus:      bus,
		health:   health.NewTimedCounter(conf.Health),
	}
}

// Run consumes and classifies until the context is done. The in-flight
// batch is flushed before returning, so a batch is never lost to an
// orderly shutdown.
func (c *Classifier) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	incoming := make(chan channel.Message)
	for _, topic := range c.topics {
		messages, err := c.bus.Subscribe(ctx, topic, c.group)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"classifier": c.name,
				"topic":      topic,
			}).WithError(err).Error("Classifier failed to subscribe")
			return
		}
		go forward(ctx, messages, incoming)
	}

	// the flush timer is armed when the first id of a batch arrives
	window := time.NewTimer(c.BatchWindow)
	if !window.Stop() {
		<-window.C
	}

	var batch []common.Hash
	batched := make(map[common.Hash]bool)

	flush := func(flushCtx context.Context) {
		if len(batch) == 0 {
			return
		}
		c.flush(flushCtx, batch)
		batch = batch[:0]
		batched = make(map[common.Hash]bool)
	}

	for {
		select {
		case <-ctx.Done():
			flush(context.Background())
			return
		case <-window.C:
			flush(ctx)
		case msg := <-incoming:
			if batched[msg.ID] {
				continue
			}

			batch = append(batch, msg.ID)
			batched[msg.ID] = true

			if len(batch) == 1 {
				window.Reset(c.BatchWindow)
			}
			if len(batch) >= c.BatchSize {
				if !window.Stop() {
					<-window.C
				}
				flush(ctx)
			}
		}
	}
}

// flush classifies one batch. A batch either completes its
// store-write-and-publish sequence or is retried as a whole; per-trace
// failures never abort the rest of the batch.
func (c *Classifier) flush(ctx context.Context, batch []common.Hash) {
	start := time.Now()

	traces, err := c.fetchBatch(ctx, batch)
	if err != nil {
		// context canceled mid-retry, the batch is reconstructed from the
		// next arriving events
		return
	}

	for i := range traces {
		c.classifyOne(ctx, &traces[i])
	}

	c.metrics.FlushSize().Update(int64(len(batch)))
	c.metrics.Flush().UpdateSince(start)
}

func (c *Classifier) fetchBatch(ctx context.Context, batch []common.Hash) ([]types.Trace, error) {
	for {
		traces, err := c.cache.GetBatch(batch)

		c.health.LogOnError(err, "Classifier bulk read")

		if err == nil {
			return traces, nil
		}

		if err := ctxutil.Sleep(ctx, c.RetryInterval); err != nil {
			return nil, err
		}
	}
}

func (c *Classifier) classifyOne(ctx context.Context, trace *types.Trace) {
	if !c.eligible(trace) {
		return
	}

	actions, err := Classify(*trace)
	if err != nil {
		// isolated to this trace, the rest of the batch continues
		c.metrics.Errors().Mark(1)
		logrus.WithFields(logrus.Fields{
			"classifier": c.name,
			"id":         trace.ID,
		}).WithError(err).Warn("Classifier skipped failing trace")
		return
	}

	if err := c.cache.PutActions(trace.ID, actions); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// evicted since the bulk read, the eviction is authoritative
			return
		}
		logrus.WithFields(logrus.Fields{
			"classifier": c.name,
			"id":         trace.ID,
		}).WithError(err).Error("Classifier failed to store actions")
		return
	}

	c.metrics.Classified(c.name).Mark(int64(len(actions)))

	if err := c.bus.Publish(ctx, channel.TopicActionsReady, channel.Message{ID: trace.ID}); err != nil {
		logrus.WithFields(logrus.Fields{
			"classifier": c.name,
			"id":         trace.ID,
		}).WithError(err).Warn("Classifier failed to publish actions-ready")
	}
}

func forward(ctx context.Context, from <-chan channel.Message, to chan<- channel.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-from:
			if !ok {
				return
			}
			select {
			case to <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}
