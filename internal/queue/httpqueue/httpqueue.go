// Package httpqueue implements the HTTP-mediated realisation of the
// Queue Client (spec §4.2/§6): GET queues/{name} to poll, POST
// queues/{name} to enqueue, against the control API exposed by
// internal/apiclient.
package httpqueue

import (
	"context"
	"time"

	"github.com/smtlab/scheduler/internal/queue"
)

// apiClient is the subset of apiclient.Client this package needs;
// defined locally so httpqueue doesn't import apiclient's full
// surface and tests can supply a fake.
type apiClient interface {
	GetQueue(ctx context.Context, name string) ([]string, error)
	PostQueue(ctx context.Context, name string, body interface{}) error
}

// Client is an HTTP-mediated realisation of queue.Client. The
// control API's GET already consumes the message, so Ack is a no-op
// (spec §6: "GET to poll, POST to enqueue").
type Client struct {
	api apiClient
}

// New builds a Client over an existing apiclient.Client.
func New(api apiClient) *Client {
	return &Client{api: api}
}

// Enqueue POSTs body onto queues/{queueName}.
func (c *Client) Enqueue(ctx context.Context, queueName string, body interface{}) error {
	return c.api.PostQueue(ctx, queueName, body)
}

// Poll GETs queues/{queueName} and returns up to max raw messages.
// wait is accepted for interface parity but the HTTP queue resource
// has no long-poll parameter of its own; the caller's own backoff
// loop (internal/pool) provides the waiting behaviour between empty
// polls.
func (c *Client) Poll(ctx context.Context, queueName string, max int, wait time.Duration) ([]queue.Message, error) {
	raw, err := c.api.GetQueue(ctx, queueName)
	if err != nil {
		return nil, err
	}

	if max > 0 && len(raw) > max {
		raw = raw[:max]
	}

	messages := make([]queue.Message, 0, len(raw))
	for _, body := range raw {
		messages = append(messages, queue.Message{
			Body: []byte(body),
			Ack:  func(context.Context) error { return nil },
		})
	}
	return messages, nil
}
