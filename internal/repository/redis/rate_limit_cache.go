package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"safarapi-auth/internal/client"
	"safarapi-auth/internal/model"
	"safarapi-auth/internal/util"
)

const (
	otpWindowPrefix      = "otp_window:"
	verifyAttemptsPrefix = "otp_attempts:"
)

// RateLimitCache tracks the OTP issuance window per phone and purpose, and
// counts failed verification attempts. The window marker's TTL is the number
// of seconds the caller still has to wait.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

func windowKey(purpose model.OtpPurpose, phone string) string {
	return fmt.Sprintf("%s%s:%s", otpWindowPrefix, purpose, phone)
}

// Remaining returns how many seconds are left before a new OTP may be issued
// for the phone and purpose. Zero means issuance is allowed.
func (c *RateLimitCache) Remaining(ctx context.Context, purpose model.OtpPurpose, phone string) (int, error) {
	ttl, err := c.client.TTL(ctx, windowKey(purpose, phone))
	if err != nil {
		util.Error("Failed to read OTP window TTL",
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return 0, fmt.Errorf("failed to read OTP window: %w", err)
	}

	// TTL is negative when the key does not exist or carries no expiry.
	if ttl <= 0 {
		return 0, nil
	}
	return int(math.Ceil(ttl.Seconds())), nil
}

// MarkIssued opens a new rate-limit window for the phone and purpose.
func (c *RateLimitCache) MarkIssued(ctx context.Context, purpose model.OtpPurpose, phone string, window time.Duration) error {
	if err := c.client.Set(ctx, windowKey(purpose, phone), time.Now().UTC().Unix(), window); err != nil {
		util.Error("Failed to mark OTP window",
			zap.String("purpose", string(purpose)),
			zap.Duration("window", window),
			zap.Error(err))
		return fmt.Errorf("failed to mark OTP window: %w", err)
	}

	util.Debug("OTP window opened",
		zap.String("purpose", string(purpose)),
		zap.Duration("window", window))

	return nil
}

// RecordVerifyAttempt bumps the verification-attempt counter for the phone
// and returns the new count. The counter expires with the verify window and
// is cleared on success.
func (c *RateLimitCache) RecordVerifyAttempt(ctx context.Context, phone string, ttl time.Duration) (int, error) {
	count, err := c.client.IncrWithExpire(ctx, verifyAttemptsPrefix+phone, ttl)
	if err != nil {
		util.Error("Failed to increment verify attempts", zap.Error(err))
		return 0, fmt.Errorf("failed to increment verify attempts: %w", err)
	}
	return int(count), nil
}

// ResetAttempts clears the failed-verification counter after a success.
func (c *RateLimitCache) ResetAttempts(ctx context.Context, phone string) error {
	if err := c.client.Del(ctx, verifyAttemptsPrefix+phone); err != nil {
		util.Error("Failed to reset verify attempts", zap.Error(err))
		return fmt.Errorf("failed to reset verify attempts: %w", err)
	}
	return nil
}
