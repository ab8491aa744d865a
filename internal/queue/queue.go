// Package queue defines the Queue Client abstraction (spec §4.2):
// enqueue, long-polling receive, and explicit acknowledgement over a
// named multi-queue message bus. Two realisations satisfy it — a
// native Redis-backed bus (internal/queue/redisqueue) and an
// HTTP-mediated queue exposed by the control API
// (internal/queue/httpqueue) — and handlers never see which one is
// in use.
package queue

import (
	"context"
	"time"
)

// Message is one raw message received from a Poll call.
type Message struct {
	// Body is the raw JSON message payload.
	Body []byte
	// Ack acknowledges the message, removing it from the queue. It is
	// required before the message is permanently invisible (spec §4.2).
	Ack func(ctx context.Context) error
}

// Client is the queue abstraction handlers and the poll loop depend
// on. Implementations hide whether the transport is a native bus or
// an HTTP-mediated queue.
type Client interface {
	// Enqueue fire-and-forget sends body (marshalled to JSON) onto
	// the named queue.
	Enqueue(ctx context.Context, queueName string, body interface{}) error

	// Poll long-polls the named queue for up to max messages, waiting
	// up to wait for at least one to arrive. May return 0..max
	// messages.
	Poll(ctx context.Context, queueName string, max int, wait time.Duration) ([]Message, error)
}
