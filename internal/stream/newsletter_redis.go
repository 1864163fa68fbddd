// Package stream carries background jobs over Redis Streams with consumer
// groups.
package stream

import (
	"context"
	"time"

	"newsletter_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	// StreamMailboxSync carries mailbox ingestion jobs.
	StreamMailboxSync = "mailbox:sync"
)

type RedisStream struct {
	client    *redis.Client
	group     string
	batchSize int64
	block     time.Duration
}

func NewRedisStream(client *redis.Client, group string, batchSize int, block time.Duration) *RedisStream {
	if batchSize <= 0 {
		batchSize = 10
	}
	if block <= 0 {
		block = 5 * time.Second
	}
	return &RedisStream{client: client, group: group, batchSize: int64(batchSize), block: block}
}

func (s *RedisStream) CreateGroup(ctx context.Context, stream string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

func (s *RedisStream) Publish(ctx context.Context, stream string, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"data": jsonData},
	}).Result()
}

// Consume blocks on the stream and feeds entries to the handler. Entries
// are acknowledged only after the handler accepts them.
func (s *RedisStream) Consume(ctx context.Context, stream, consumer string, handler func(id string, data []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    s.batchSize,
			Block:    s.block,
		}).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				logger.WithError(err).Error("stream read failed on %s", stream)
			}
			continue
		}

		for _, str := range streams {
			for _, msg := range str.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					s.client.XAck(ctx, str.Stream, s.group, msg.ID)
					continue
				}
				if err := handler(msg.ID, []byte(data)); err != nil {
					logger.WithError(err).Error("handler rejected stream entry %s", msg.ID)
					continue
				}
				s.client.XAck(ctx, str.Stream, s.group, msg.ID)
			}
		}
	}
}

func (s *RedisStream) Pending(ctx context.Context, stream string) (int64, error) {
	info, err := s.client.XPending(ctx, stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}
