package emulate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/channel"
	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/Conflux-Chain/confura-pending-cache/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// confirmation intake consumer group
const confirmGroup = "confirm-intake"

// Confirmer consumes confirmed-trace notifications from the external
// ingestion pipeline and reclassifies the matching synthetic traces as
// completed, restarting their eviction countdown.
type Confirmer struct {
	cache   store.Store
	bus     channel.Bus
	metrics Metrics
}

func NewConfirmer(cache store.Store, bus channel.Bus) *Confirmer {
	return &Confirmer{
		cache: cache,
		bus:   bus,
	}
}

// Run consumes confirmed-trace notifications until the context is done.
func (c *Confirmer) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	messages, err := c.bus.Subscribe(ctx, channel.TopicTraceConfirmed, confirmGroup)
	if err != nil {
		logrus.WithError(err).Error("Confirmer failed to subscribe confirmed-trace topic")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			c.confirmOne(ctx, msg)
		}
	}
}

func (c *Confirmer) confirmOne(ctx context.Context, msg channel.Message) {
	err := c.cache.Transition(msg.ID, types.StateCompleted, types.ClassCompleted)

	switch {
	case err == nil:
		c.metrics.Confirmed().Mark(1)
	case errors.Is(err, store.ErrNotFound):
		// never emulated (or already evicted): cache the confirmed trace so
		// the general classifier still sees it
		if err := c.insertCompleted(msg); err != nil {
			logrus.WithField("id", msg.ID).WithError(err).Warn("Confirmer failed to cache confirmed trace")
			return
		}
		c.metrics.Inserted().Mark(1)
	case errors.Is(err, store.ErrInvalidTransition):
		// confirmed twice, the first transition is authoritative
		logrus.WithField("id", msg.ID).WithError(err).Warn("Confirmer skipped invalid transition")
		return
	default:
		logrus.WithField("id", msg.ID).WithError(err).Error("Confirmer failed to transition trace")
		return
	}

	if err := c.bus.Publish(ctx, channel.TopicTraceReady, channel.Message{ID: msg.ID}); err != nil {
		logrus.WithField("id", msg.ID).WithError(err).Warn("Confirmer failed to publish trace-ready")
	}
}

func (c *Confirmer) insertCompleted(msg channel.Message) error {
	var frame types.CallFrame
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &frame); err != nil {
			return errors.WithMessage(err, "failed to json unmarshal confirmed payload")
		}
	}

	return c.cache.Put(types.NewCompletedTrace(msg.ID, frame, time.Now()))
}
