// Package redisqueue implements the native message bus realisation of
// the Queue Client (spec §4.2) on top of Redis lists. Adapted from
// the teacher's pkg/storage/redis/queue_store.go, but uses plain
// LPUSH/BRPOP rather than Redis Streams consumer groups: spec §4.2's
// contract is simple FIFO poll-with-ack, with no need for the
// multi-consumer redelivery semantics a stream's consumer groups
// exist to provide.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smtlab/scheduler/internal/queue"
)

// Client is a Redis-list-backed realisation of queue.Client. Each
// named queue is its own Redis list, keyed by a fixed prefix.
type Client struct {
	redis *redis.Client
}

const keyPrefix = "smtlab:queue:"

// New connects to addr and verifies the connection with a PING.
func New(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("smtlab: failed to connect to redis: %w", err)
	}
	return &Client{redis: rdb}, nil
}

// Close releases the underlying Redis connection pool.
func (c *Client) Close() error {
	return c.redis.Close()
}

func key(queueName string) string {
	return keyPrefix + queueName
}

// Enqueue pushes body (JSON-encoded) onto the head of queueName's list;
// Poll pops from the tail, so messages come out in FIFO order.
func (c *Client) Enqueue(ctx context.Context, queueName string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("smtlab: marshalling queue message: %w", err)
	}
	if err := c.redis.LPush(ctx, key(queueName), payload).Err(); err != nil {
		return fmt.Errorf("smtlab: failed to enqueue to %s: %w", queueName, err)
	}
	return nil
}

// Poll issues repeated BRPOP calls against one shared deadline of
// wait, returning once max messages are collected or the deadline
// passes (so it may return 0..max messages). Ack is a
// no-op: BRPOP's pop is already destructive, so once a message is
// returned here it cannot be redelivered.
func (c *Client) Poll(ctx context.Context, queueName string, max int, wait time.Duration) ([]queue.Message, error) {
	if max <= 0 {
		max = 1
	}

	deadline := time.Now().Add(wait)
	var messages []queue.Message

	for len(messages) < max {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		result, err := c.redis.BRPop(ctx, remaining, key(queueName)).Result()
		if err != nil {
			if err == redis.Nil {
				break
			}
			if len(messages) > 0 {
				// Partial batch already collected; surface it and let
				// the next Poll retry the failed read.
				break
			}
			return nil, fmt.Errorf("smtlab: failed to poll %s: %w", queueName, err)
		}

		// result is [key, value]
		if len(result) < 2 {
			continue
		}
		body := []byte(result[1])
		messages = append(messages, queue.Message{
			Body: body,
			Ack:  func(context.Context) error { return nil },
		})
	}

	return messages, nil
}
