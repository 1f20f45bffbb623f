package channel

import (
	"context"
	"sync"

	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var _ Bus = (*MemoryBus)(nil)

// MemoryBusConfig holds the configurations for the in-process bus.
type MemoryBusConfig struct {
	// BufferSize is the per consumer group message buffer. Publishing to a
	// full group drops the message for that group only.
	BufferSize int `default:"1024"`
}

func DefaultMemoryBusConfig() (config MemoryBusConfig) {
	defaults.SetDefaults(&config)
	return
}

// MemoryBus is an in-process Bus for single-binary deployments.
//
// One buffered channel is kept per (topic, group) pair. Subscribers of the
// same group share that channel, which yields at-most-one delivery within
// the group; distinct groups get independent channels, which yields fan-out.
type MemoryBus struct {
	config MemoryBusConfig

	mu     sync.RWMutex
	groups map[string]map[string]chan Message // topic -> group -> channel
	closed bool

	metrics Metrics
}

func NewMemoryBus(config MemoryBusConfig) *MemoryBus {
	return &MemoryBus{
		config: config,
		groups: make(map[string]map[string]chan Message),
	}
}

// Publish implements the Bus interface. It never blocks: a group whose
// buffer is full misses the message, which consumers recover from by
// polling the trace store.
func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New("bus closed")
	}

	for group, ch := range b.groups[topic] {
		select {
		case ch <- msg:
			b.metrics.Published(topic).Mark(1)
		default:
			b.metrics.Dropped(topic).Mark(1)
			logrus.WithFields(logrus.Fields{
				"topic": topic,
				"group": group,
				"id":    msg.ID,
			}).Debug("Memory bus dropped message on full group buffer")
		}
	}

	return nil
}

// Subscribe implements the Bus interface.
func (b *MemoryBus) Subscribe(ctx context.Context, topic, group string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("bus closed")
	}

	byGroup, ok := b.groups[topic]
	if !ok {
		byGroup = make(map[string]chan Message)
		b.groups[topic] = byGroup
	}

	ch, ok := byGroup[group]
	if !ok {
		ch = make(chan Message, b.config.BufferSize)
		byGroup[group] = ch
	}

	return ch, nil
}

// Close implements the io.Closer interface. All subscriber channels are
// closed, signalling consumer loops to drain and stop.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, byGroup := range b.groups {
		for _, ch := range byGroup {
			close(ch)
		}
	}

	return nil
}
