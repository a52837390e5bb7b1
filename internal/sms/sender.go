package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"safarapi-auth/internal/config"
	"safarapi-auth/internal/util"
)

// Sender delivers a text message to a phone number. Delivery is best effort;
// callers never fail a request because a message did not go out.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// HTTPSender posts messages to the configured SMS provider endpoint.
type HTTPSender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPSender(cfg *config.Config) *HTTPSender {
	return &HTTPSender{
		endpoint: cfg.SMS.Endpoint,
		apiKey:   cfg.SMS.APIKey,
		client:   &http.Client{Timeout: cfg.SMS.Timeout},
	}
}

func (s *HTTPSender) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(map[string]string{
		"receptor": phone,
		"message":  message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver SMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("SMS provider returned status %d", resp.StatusCode)
	}

	return nil
}

// NoopSender logs messages instead of delivering them; used in development
// and as the test double for the delivery gateway.
type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) Send(ctx context.Context, phone, message string) error {
	util.Debug("SMS delivery skipped (noop sender)",
		zap.Int("message_len", len(message)))
	return nil
}

// FromConfig picks the sender implementation named in configuration.
func FromConfig(cfg *config.Config) Sender {
	switch cfg.SMS.Provider {
	case "http":
		return NewHTTPSender(cfg)
	default:
		return NewNoopSender()
	}
}
