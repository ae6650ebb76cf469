package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AccessTokenKeyPrefix is shared with the auth service that writes the allow-list.
const AccessTokenKeyPrefix = "access_token:"

// RedisTokenStore reads the access-token allow-list kept in Redis.
type RedisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func AccessTokenKey(userID uuid.UUID, tokenID string) string {
	return fmt.Sprintf("%s%s:%s", AccessTokenKeyPrefix, userID.String(), tokenID)
}

func (s *RedisTokenStore) Exists(ctx context.Context, userID uuid.UUID, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, AccessTokenKey(userID, tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check access token: %w", err)
	}
	return n > 0, nil
}
