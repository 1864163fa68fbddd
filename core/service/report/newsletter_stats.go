// Package report computes the per-user reporting summary with a short
// Redis cache in front of the aggregation queries.
package report

import (
	"context"
	"time"

	"newsletter_server/core/domain"
	"newsletter_server/core/port/in"
	"newsletter_server/core/port/out"
	"newsletter_server/pkg/apperr"
	"newsletter_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const statsKeyPrefix = "newsletter:stats:"

// StatsService caches aggregation results per user. An aggregation failure
// is always surfaced as an error, never served as zeroes.
type StatsService struct {
	statsRepo out.StatsRepository
	redis     *redis.Client // nil disables caching
	ttl       time.Duration
}

func NewStatsService(statsRepo out.StatsRepository, redisClient *redis.Client, ttl time.Duration) *StatsService {
	return &StatsService{statsRepo: statsRepo, redis: redisClient, ttl: ttl}
}

func (s *StatsService) Stats(ctx context.Context, userID uuid.UUID) (*domain.Stats, error) {
	key := statsKeyPrefix + userID.String()

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
			var stats domain.Stats
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				return &stats, nil
			}
			// poisoned cache entry, fall through to the database
			s.redis.Del(ctx, key)
		}
	}

	stats, err := s.statsRepo.GetStats(ctx, userID)
	if err != nil {
		return nil, apperr.DatabaseError("aggregate stats", err)
	}

	if s.redis != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
				logger.WithError(err).Warn("failed to cache stats for user %s", userID)
			}
		}
	}
	return stats, nil
}

var _ in.StatsUseCase = (*StatsService)(nil)
