package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"safarapi-auth/internal/util"
)

// StartExpirySweep deletes OTP rows past the coarse storage expiry on a
// fixed interval until the context is cancelled. The expiry window exceeds
// the verification window, so the sweep never removes a row a legitimate
// in-flight verification could still match.
func (s *AuthService) StartExpirySweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	util.Info("Expiry sweep started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			util.Info("Expiry sweep stopped")
			return ctx.Err()
		case <-ticker.C:
			s.SweepExpired()
		}
	}
}

// SweepExpired runs one sweep pass.
func (s *AuthService) SweepExpired() {
	deleted, err := s.otps.DeleteOlderThan(s.now().UTC())
	if err != nil {
		util.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		util.Debug("Expiry sweep completed", zap.Int("deleted", deleted))
	}
}
