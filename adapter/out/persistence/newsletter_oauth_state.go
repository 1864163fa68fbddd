package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	oauthStatePrefix = "oauth:state:"
	oauthStateTTL    = 10 * time.Minute
)

// OAuthStateStore keeps short-lived OAuth state tokens in Redis. States
// are single-use: validation consumes the key atomically.
type OAuthStateStore struct {
	client *redis.Client
}

func NewOAuthStateStore(client *redis.Client) *OAuthStateStore {
	return &OAuthStateStore{client: client}
}

// StoreState associates a state token with the initiating user.
func (s *OAuthStateStore) StoreState(ctx context.Context, state string, userID uuid.UUID) error {
	if err := s.client.Set(ctx, oauthStatePrefix+state, userID.String(), oauthStateTTL).Err(); err != nil {
		return fmt.Errorf("store oauth state: %w", err)
	}
	return nil
}

// ValidateState consumes the state token and returns the user it belongs
// to. A missing or expired state returns ErrNotFound.
func (s *OAuthStateStore) ValidateState(ctx context.Context, state string) (uuid.UUID, error) {
	val, err := s.client.GetDel(ctx, oauthStatePrefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("validate oauth state: %w", err)
	}

	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt oauth state value: %w", err)
	}
	return userID, nil
}
