package stream

import (
	"context"
	"fmt"

	"newsletter_server/adapter/in/worker"
	"newsletter_server/core/port/out"
)

// Producer implements out.MessageProducer on Redis Streams.
type Producer struct {
	stream *RedisStream
}

func NewProducer(stream *RedisStream) *Producer {
	return &Producer{stream: stream}
}

func (p *Producer) PublishMailboxSync(ctx context.Context, job *out.MailboxSyncJob) error {
	msg := worker.NewMessage(worker.JobMailboxSync, map[string]any{
		"user_id":      job.UserID,
		"options":      job.Options,
		"requested_at": job.Requested,
	})

	if _, err := p.stream.Publish(ctx, StreamMailboxSync, msg); err != nil {
		return fmt.Errorf("publish mailbox sync: %w", err)
	}
	return nil
}

var _ out.MessageProducer = (*Producer)(nil)
