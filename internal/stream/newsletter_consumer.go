package stream

import (
	"context"
	"errors"

	"newsletter_server/adapter/in/worker"
	"newsletter_server/pkg/logger"

	"github.com/goccy/go-json"
)

var errPoolUnavailable = errors.New("worker pool unavailable")

// Consumer reads job envelopes off the stream and submits them to the
// worker pool.
type Consumer struct {
	stream *RedisStream
	pool   *worker.Pool
	name   string
}

func NewConsumer(stream *RedisStream, pool *worker.Pool, name string) *Consumer {
	return &Consumer{stream: stream, pool: pool, name: name}
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.stream.CreateGroup(ctx, StreamMailboxSync); err != nil {
		return err
	}
	go c.consume(ctx, StreamMailboxSync)
	return nil
}

func (c *Consumer) consume(ctx context.Context, stream string) {
	c.stream.Consume(ctx, stream, c.name, func(id string, data []byte) error {
		var msg worker.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WithError(err).Error("dropping malformed stream entry %s", id)
			// ack malformed entries so they don't loop forever
			return nil
		}

		if !c.pool.Submit(&msg) {
			logger.Warn("worker pool rejected job %s, leaving entry pending", msg.ID)
			return errPoolUnavailable
		}
		return nil
	})
}
