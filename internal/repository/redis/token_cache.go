package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"safarapi-auth/internal/client"
	"safarapi-auth/internal/util"
)

const revokedTokenPrefix = "revoked_jti:"

// TokenCache is the revoked-token denylist. Logout writes the token's jti
// here with a TTL matching the token's remaining lifetime; verification
// rejects any jti present in the denylist.
type TokenCache struct {
	client *client.RedisClient
}

func NewTokenCache(client *client.RedisClient) *TokenCache {
	return &TokenCache{client: client}
}

// Revoke marks a token ID as invalid until it would have expired anyway.
func (c *TokenCache) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already past expiry, nothing to deny.
		return nil
	}

	if err := c.client.Set(ctx, revokedTokenPrefix+jti, "revoked", ttl); err != nil {
		util.Error("Failed to revoke token",
			zap.String("jti", jti),
			zap.Error(err))
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	util.Debug("Token revoked",
		zap.String("jti", jti),
		zap.Duration("ttl", ttl))

	return nil
}

// IsRevoked reports whether the token ID has been invalidated.
func (c *TokenCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := c.client.Exists(ctx, revokedTokenPrefix+jti)
	if err != nil {
		util.Error("Failed to check token revocation",
			zap.String("jti", jti),
			zap.Error(err))
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return exists, nil
}
