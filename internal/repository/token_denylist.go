package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/endlessblink/Gear-Pool/internal/infrastructure/redis"
)

// TokenDenylist records revoked token ids in Redis until they would have expired anyway
type TokenDenylist struct {
	redis *redis.Client
}

// NewTokenDenylist creates a Redis backed denylist
func NewTokenDenylist(redisClient *redis.Client) *TokenDenylist {
	return &TokenDenylist{redis: redisClient}
}

func denylistKey(tokenID string) string {
	return "gearpool:revoked:" + tokenID
}

// Revoke marks tokenID revoked for ttl
func (d *TokenDenylist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := d.redis.Set(ctx, denylistKey(tokenID), "1", ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID was revoked
func (d *TokenDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	revoked, err := d.redis.Exists(ctx, denylistKey(tokenID))
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return revoked, nil
}
