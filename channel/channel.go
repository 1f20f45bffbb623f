package channel

import (
	"context"
	"io"

	"github.com/ethereum/go-ethereum/common"
)

// Well known topics of the pending cache pipeline.
const (
	// TopicTraceReady notifies that a trace was written to the store.
	TopicTraceReady = "trace-ready"

	// TopicTraceConfirmed carries confirmed-trace notifications produced by
	// the external ingestion pipeline.
	TopicTraceConfirmed = "trace-confirmed"

	// TopicActionsReady notifies that classified actions were stored for a trace.
	TopicActionsReady = "actions-ready"

	// TopicEvicted notifies that a trace and its actions were evicted.
	TopicEvicted = "evicted"
)

// Message is one event delivered through the bus.
type Message struct {
	ID      common.Hash `json:"id"`
	Payload []byte      `json:"payload,omitempty"`
}

// Bus is a publish/subscribe channel over named topics.
//
// Delivery is best effort and at least once: a message published while no
// consumer group is subscribed is dropped, and there is no replay of
// messages published before subscription. The trace store remains the
// durable source of truth.
//
// Within one consumer group each message is delivered to at most one
// subscriber (work sharing); across distinct groups every group receives
// every message independently (fan out).
type Bus interface {
	io.Closer

	// Publish delivers the message to all currently subscribed consumer
	// groups of the topic without blocking the publisher.
	Publish(ctx context.Context, topic string, msg Message) error

	// Subscribe joins the given consumer group on the topic and returns the
	// group's message sequence, starting from now.
	Subscribe(ctx context.Context, topic, group string) (<-chan Message, error)
}
