package channel

import (
	"context"
	"strings"
	"time"

	"github.com/Conflux-Chain/go-conflux-util/ctxutil"
	"github.com/Conflux-Chain/go-conflux-util/health"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var _ Bus = (*RedisBus)(nil)

// RedisBusConfig holds the configurations for the Redis Streams bus.
type RedisBusConfig struct {
	// Redis connection URL, e.g. redis://127.0.0.1:6379/0.
	URL string `default:"redis://127.0.0.1:6379/0"`

	// MaxLen caps each stream length (approximately) to bound memory.
	MaxLen int64 `default:"8192"`

	// BlockTimeout is the max duration of one blocking group read.
	BlockTimeout time.Duration `default:"1s"`

	// ReadBatchSize is the max number of messages per group read.
	ReadBatchSize int64 `default:"64"`

	// BufferSize is the subscriber channel buffer.
	BufferSize int `default:"1024"`

	// RetryInterval is the backoff after a failed group read.
	RetryInterval time.Duration `default:"3s"`

	Health health.TimedCounterConfig
}

func DefaultRedisBusConfig() (config RedisBusConfig) {
	defaults.SetDefaults(&config)
	return
}

// RedisBus is a Bus backed by Redis Streams for deployments where the
// emulator, classifiers and TTL tracker run as separate processes.
//
// Streams consumer groups carry the required semantics as is: XREADGROUP
// delivers each entry to one consumer per group, distinct groups consume
// the stream independently, and groups created at "$" never replay
// entries published before subscription.
type RedisBus struct {
	config RedisBusConfig
	client *redis.Client
}

// NewRedisBus connects to the Redis backend. An unreachable backend is an
// error here, which is fatal at startup per the process contract.
func NewRedisBus(config RedisBusConfig) (*RedisBus, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid redis url %v", config.URL)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.WithMessage(err, "failed to ping redis")
	}

	return &RedisBus{
		config: config,
		client: client,
	}, nil
}

// Publish implements the Bus interface.
func (b *RedisBus) Publish(ctx context.Context, topic string, msg Message) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		MaxLen: b.config.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":      msg.ID.Hex(),
			"payload": string(msg.Payload),
		},
	}).Err()

	return errors.WithMessagef(err, "failed to publish to stream %v", topic)
}

// Subscribe implements the Bus interface. The returned channel is fed by a
// dedicated reader goroutine which stops when the context is done.
func (b *RedisBus) Subscribe(ctx context.Context, topic, group string) (<-chan Message, error) {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, errors.WithMessagef(err, "failed to create consumer group %v on stream %v", group, topic)
	}

	out := make(chan Message, b.config.BufferSize)
	go b.read(ctx, topic, group, out)

	return out, nil
}

func (b *RedisBus) read(ctx context.Context, topic, group string, out chan<- Message) {
	defer close(out)

	consumer := uuid.NewString()
	unhealthy := health.NewTimedCounter(b.config.Health)

	for {
		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{topic, ">"},
			Count:    b.config.ReadBatchSize,
			Block:    b.config.BlockTimeout,
		}).Result()

		if ctx.Err() != nil {
			return
		}

		if err == redis.Nil {
			continue
		}

		unhealthy.LogOnError(err, "Redis bus group read")
		if err != nil {
			// backend unavailable, pause and retry rather than exit
			if ctxutil.Sleep(ctx, b.config.RetryInterval) != nil {
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				msg, ok := decodeEntry(entry)
				if !ok {
					logrus.WithFields(logrus.Fields{
						"stream": topic,
						"entry":  entry.ID,
					}).Warn("Redis bus skipped malformed stream entry")
					continue
				}

				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}

				// ack after handing over, at-least-once on crash
				b.client.XAck(ctx, topic, group, entry.ID)
			}
		}
	}
}

func decodeEntry(entry redis.XMessage) (Message, bool) {
	rawID, ok := entry.Values["id"].(string)
	if !ok {
		return Message{}, false
	}

	msg := Message{ID: common.HexToHash(rawID)}
	if payload, ok := entry.Values["payload"].(string); ok && len(payload) > 0 {
		msg.Payload = []byte(payload)
	}

	return msg, true
}

// Close implements the io.Closer interface.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
