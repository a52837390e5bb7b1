package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"safarapi-auth/internal/config"
	"safarapi-auth/internal/hashing"
	"safarapi-auth/internal/model"
	"safarapi-auth/internal/repository/scylla"
	"safarapi-auth/internal/sms"
	"safarapi-auth/internal/token"
	"safarapi-auth/internal/util"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrOtpInvalidOrExpired = errors.New("invalid or expired OTP")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrTokenIssuance       = errors.New("token issuance failed")
)

// RateLimitedError rejects an issuance request that falls inside the window.
// Remaining carries the seconds the caller still has to wait.
type RateLimitedError struct {
	Remaining int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %d seconds", e.Remaining)
}

const minPasswordLength = 8

// RateLimiter tracks the issuance window and verification attempt counters.
type RateLimiter interface {
	Remaining(ctx context.Context, purpose model.OtpPurpose, phone string) (int, error)
	MarkIssued(ctx context.Context, purpose model.OtpPurpose, phone string, window time.Duration) error
	RecordVerifyAttempt(ctx context.Context, phone string, ttl time.Duration) (int, error)
	ResetAttempts(ctx context.Context, phone string) error
}

// TokenIssuer mints and invalidates bearer tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, account *model.Account) (string, error)
	Invalidate(ctx context.Context, tokenString string) error
	VerifyCredentials(ctx context.Context, phone, password string) (string, error)
}

// EventPublisher fans account-lifecycle events out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event model.AuthEvent) error
}

// AuditRecorder writes one row per auth operation outcome.
type AuditRecorder interface {
	Record(ctx context.Context, entry model.AuditEntry) error
}

// RegistrationStatus is the outcome of a login-or-register request.
type RegistrationStatus struct {
	Phone       string `json:"phone"`
	HasAccount  bool   `json:"has_account"`
	HasPassword bool   `json:"has_password"`
	// OtpTTL is the issuance window in seconds; zero when no OTP was sent.
	OtpTTL int `json:"otp_ttl,omitempty"`
}

// VerifyResult is the outcome of a successful OTP verification.
type VerifyResult struct {
	Token   string         `json:"token"`
	Account *model.Account `json:"user"`
}

// AuthService is the authentication protocol state machine. It orchestrates
// the rate limiter, the OTP store, the account store, the delivery gateway
// and the token issuer.
type AuthService struct {
	accounts scylla.AccountRepository
	otps     scylla.OTPRepository
	images   scylla.ImageRepository
	limiter  RateLimiter
	tokens   TokenIssuer
	sender   sms.Sender
	hasher   *hashing.Hasher

	// Optional collaborators, nil when disabled.
	events  EventPublisher
	auditor AuditRecorder

	otpWindow    time.Duration
	verifyWindow time.Duration
	expiryWindow time.Duration
	maxAttempts  int

	now func() time.Time
}

func NewAuthService(
	cfg *config.Config,
	accounts scylla.AccountRepository,
	otps scylla.OTPRepository,
	images scylla.ImageRepository,
	limiter RateLimiter,
	tokens TokenIssuer,
	sender sms.Sender,
	hasher *hashing.Hasher,
	events EventPublisher,
	auditor AuditRecorder,
) *AuthService {
	return &AuthService{
		accounts:     accounts,
		otps:         otps,
		images:       images,
		limiter:      limiter,
		tokens:       tokens,
		sender:       sender,
		hasher:       hasher,
		events:       events,
		auditor:      auditor,
		otpWindow:    cfg.Auth.OtpWindow,
		verifyWindow: cfg.Auth.VerifyWindow,
		expiryWindow: cfg.Auth.ExpiryWindow,
		maxAttempts:  cfg.Auth.MaxVerifyAttempts,
		now:          time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RequestLoginOrRegister starts the OTP flow for a phone. Accounts that
// already carry a password get no OTP; the caller should prompt for the
// password instead.
func (s *AuthService) RequestLoginOrRegister(ctx context.Context, phone string) (*RegistrationStatus, error) {
	phone = util.NormalizePhone(phone)
	if !util.ValidPhone(phone) {
		return nil, fmt.Errorf("%w: malformed phone number", ErrInvalidInput)
	}

	remaining, err := s.limiter.Remaining(ctx, model.PurposeRegister, phone)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		s.audit(ctx, "register", phone, "rate_limited", fmt.Sprintf("remaining=%d", remaining))
		return nil, &RateLimitedError{Remaining: remaining}
	}

	account, err := s.accounts.GetByPhone(phone)
	if err != nil {
		return nil, err
	}

	state := account.State()
	if state == model.AccountWithPassword {
		// No OTP for password holders; password login is the cheaper path.
		s.audit(ctx, "register", phone, "password_login_available", "")
		return &RegistrationStatus{
			Phone:       phone,
			HasAccount:  true,
			HasPassword: true,
		}, nil
	}

	if err := s.issueOtp(ctx, phone, model.PurposeRegister); err != nil {
		return nil, err
	}

	s.audit(ctx, "register", phone, "otp_issued", "")
	return &RegistrationStatus{
		Phone:       phone,
		HasAccount:  state != model.NoAccount,
		HasPassword: false,
		OtpTTL:      int(s.otpWindow.Seconds()),
	}, nil
}

// VerifyOtp checks the code, consumes it, creates the account on first
// verification and issues a bearer token.
func (s *AuthService) VerifyOtp(ctx context.Context, phone, code string) (*VerifyResult, error) {
	phone = util.NormalizePhone(phone)
	if !util.ValidPhone(phone) || !util.ValidOtpCode(code) {
		return nil, fmt.Errorf("%w: malformed phone or code", ErrInvalidInput)
	}

	record, err := s.matchAndConsume(ctx, "verify_otp", phone, code)
	if err != nil {
		return nil, err
	}

	account, err := s.firstOrCreateAccount(ctx, phone)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.ResetAttempts(ctx, phone); err != nil {
		util.Warn("Failed to reset verify attempts", zap.Error(err))
	}

	tokenString, err := s.tokens.Issue(ctx, account)
	if err != nil {
		// The OTP is already consumed; a retry needs a fresh code.
		s.audit(ctx, "verify_otp", phone, "token_failure", "")
		return nil, fmt.Errorf("%w: %v", ErrTokenIssuance, err)
	}

	s.audit(ctx, "verify_otp", phone, "success", string(record.Purpose))
	return &VerifyResult{Token: tokenString, Account: account}, nil
}

// LoginWithPassword checks a phone/password pair and returns a bearer token.
func (s *AuthService) LoginWithPassword(ctx context.Context, phone, password string) (string, error) {
	phone = util.NormalizePhone(phone)
	if !util.ValidPhone(phone) || password == "" {
		return "", fmt.Errorf("%w: malformed phone or empty password", ErrInvalidInput)
	}

	tokenString, err := s.tokens.VerifyCredentials(ctx, phone, password)
	if err != nil {
		if errors.Is(err, token.ErrInvalidCredentials) {
			s.audit(ctx, "login_password", phone, "invalid_credentials", "")
			return "", ErrInvalidCredentials
		}
		s.audit(ctx, "login_password", phone, "token_failure", "")
		return "", fmt.Errorf("%w: %v", ErrTokenIssuance, err)
	}

	s.audit(ctx, "login_password", phone, "success", "")
	return tokenString, nil
}

// Logout invalidates the presented token. Idempotent; a token that is
// already invalid still logs out cleanly.
func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	if err := s.tokens.Invalidate(ctx, tokenString); err != nil {
		return err
	}
	s.audit(ctx, "logout", "", "success", "")
	return nil
}

// DeactivateAccount soft-deletes the caller's account and invalidates the
// presented token. The row stays in place; a later OTP verification for the
// same phone restores it.
func (s *AuthService) DeactivateAccount(ctx context.Context, phone, tokenString string) error {
	phone = util.NormalizePhone(phone)
	if !util.ValidPhone(phone) {
		return fmt.Errorf("%w: malformed phone number", ErrInvalidInput)
	}

	account, err := s.accounts.GetByPhone(phone)
	if err != nil {
		return err
	}
	if account.State() == model.NoAccount {
		s.audit(ctx, "deactivate", phone, "account_not_found", "")
		return ErrAccountNotFound
	}

	if err := s.accounts.SoftDelete(phone); err != nil {
		return err
	}
	if err := s.tokens.Invalidate(ctx, tokenString); err != nil {
		util.Warn("Failed to invalidate token on deactivation", zap.Error(err))
	}

	s.publish(model.AuthEvent{
		EventType: model.EventAccountDeactivated,
		AccountID: account.AccountID,
		Phone:     phone,
		At:        s.now().UTC(),
	})

	s.audit(ctx, "deactivate", phone, "success", "")
	return nil
}

// RequestPasswordReset issues a reset OTP for an existing account. Returns
// the issuance window in seconds.
func (s *AuthService) RequestPasswordReset(ctx context.Context, phone string) (int, error) {
	phone = util.NormalizePhone(phone)
	if !util.ValidPhone(phone) {
		return 0, fmt.Errorf("%w: malformed phone number", ErrInvalidInput)
	}

	account, err := s.accounts.GetByPhone(phone)
	if err != nil {
		return 0, err
	}
	if account.State() == model.NoAccount {
		s.audit(ctx, "forget_password", phone, "account_not_found", "")
		return 0, ErrAccountNotFound
	}

	remaining, err := s.limiter.Remaining(ctx, model.PurposeForget, phone)
	if err != nil {
		return 0, err
	}
	if remaining > 0 {
		s.audit(ctx, "forget_password", phone, "rate_limited", fmt.Sprintf("remaining=%d", remaining))
		return 0, &RateLimitedError{Remaining: remaining}
	}

	if err := s.issueOtp(ctx, phone, model.PurposeForget); err != nil {
		return 0, err
	}

	s.audit(ctx, "forget_password", phone, "otp_issued", "")
	return int(s.otpWindow.Seconds()), nil
}

// ResetPassword verifies a reset OTP and installs the new password. No token
// is issued; the caller logs in separately.
func (s *AuthService) ResetPassword(ctx context.Context, phone, code, newPassword, confirmation string) error {
	phone = util.NormalizePhone(phone)
	if !util.ValidPhone(phone) || !util.ValidOtpCode(code) {
		return fmt.Errorf("%w: malformed phone or code", ErrInvalidInput)
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if newPassword != confirmation {
		return fmt.Errorf("%w: password confirmation mismatch", ErrInvalidInput)
	}

	account, err := s.accounts.GetByPhone(phone)
	if err != nil {
		return err
	}
	if account.State() == model.NoAccount {
		return ErrAccountNotFound
	}

	if _, err := s.matchAndConsume(ctx, "reset_password", phone, code); err != nil {
		return err
	}

	passwordHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.accounts.SetPassword(phone, passwordHash); err != nil {
		return err
	}

	if err := s.limiter.ResetAttempts(ctx, phone); err != nil {
		util.Warn("Failed to reset verify attempts", zap.Error(err))
	}

	s.publish(model.AuthEvent{
		EventType: model.EventPasswordReset,
		AccountID: account.AccountID,
		Phone:     phone,
		At:        s.now().UTC(),
	})

	s.audit(ctx, "reset_password", phone, "success", "")
	return nil
}

// matchAndConsume finds the OTP record for phone+code inside the verify
// window and deletes it. Exactly one of any concurrent callers gets the
// record back; everyone else sees ErrOtpInvalidOrExpired. The attempt
// counter rejects brute-force guessing before the store is read.
func (s *AuthService) matchAndConsume(ctx context.Context, op, phone, code string) (*model.OtpRecord, error) {
	attempts, err := s.limiter.RecordVerifyAttempt(ctx, phone, s.verifyWindow)
	if err != nil {
		util.Warn("Failed to count verify attempt", zap.Error(err))
	} else if attempts > s.maxAttempts {
		s.audit(ctx, op, phone, "attempts_exceeded", "")
		return nil, ErrOtpInvalidOrExpired
	}

	record, err := s.otps.FindValid(phone, code, s.verifyWindow)
	if err != nil {
		return nil, err
	}
	if record == nil {
		s.audit(ctx, op, phone, "otp_mismatch", "")
		return nil, ErrOtpInvalidOrExpired
	}

	applied, err := s.otps.Consume(record)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent verification won the delete.
		s.audit(ctx, op, phone, "otp_already_consumed", "")
		return nil, ErrOtpInvalidOrExpired
	}

	return record, nil
}

// firstOrCreateAccount returns the account for the phone, creating it on
// first verification. Creation is an LWT insert; losing the race falls back
// to reading the winner's row. A soft-deleted row is reactivated in place: a
// successful OTP verification proves possession of the phone, so the prior
// account comes back rather than a duplicate being minted.
func (s *AuthService) firstOrCreateAccount(ctx context.Context, phone string) (*model.Account, error) {
	account, err := s.accounts.GetByPhone(phone)
	if err != nil {
		return nil, err
	}
	if account != nil {
		if account.DeletedAt != nil {
			if err := s.accounts.Restore(phone); err != nil {
				return nil, err
			}
			account.DeletedAt = nil
			s.publish(model.AuthEvent{
				EventType: model.EventAccountRestored,
				AccountID: account.AccountID,
				Phone:     phone,
				At:        s.now().UTC(),
			})
			s.audit(ctx, "verify_otp", phone, "account_restored", "")
		}
		if !account.HasAvatar {
			s.attachDefaultAvatar(account)
		}
		return account, nil
	}

	account = &model.Account{
		AccountID:   uuid.New().String(),
		Phone:       phone,
		HasAccount:  true,
		HasPassword: false,
		CreatedAt:   s.now().UTC(),
	}

	if avatar, err := s.images.FirstDefaultAvatar(); err != nil {
		util.Warn("Failed to load default avatar", zap.Error(err))
	} else if avatar != nil {
		account.AvatarID = avatar.ImageID
		account.AvatarURL = avatar.URL
		account.HasAvatar = true
	}

	applied, err := s.accounts.Create(account)
	if err != nil {
		return nil, err
	}
	if !applied {
		existing, err := s.accounts.GetByPhone(phone)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("account insert not applied but no row found for phone")
		}
		return existing, nil
	}

	s.publish(model.AuthEvent{
		EventType: model.EventAccountRegistered,
		AccountID: account.AccountID,
		Phone:     phone,
		At:        s.now().UTC(),
	})

	return account, nil
}

// attachDefaultAvatar backfills the default avatar on an existing account
// that has none. Failures are logged and swallowed; the avatar is cosmetic.
func (s *AuthService) attachDefaultAvatar(account *model.Account) {
	avatar, err := s.images.FirstDefaultAvatar()
	if err != nil {
		util.Warn("Failed to load default avatar", zap.Error(err))
		return
	}
	if avatar == nil {
		return
	}
	if err := s.accounts.SetAvatar(account.Phone, avatar); err != nil {
		util.Warn("Failed to attach default avatar", zap.Error(err))
		return
	}
	account.AvatarID = avatar.ImageID
	account.AvatarURL = avatar.URL
	account.HasAvatar = true
}

// issueOtp generates, stores and dispatches a fresh code, then opens the
// rate-limit window.
func (s *AuthService) issueOtp(ctx context.Context, phone string, purpose model.OtpPurpose) error {
	code, err := util.RandomOtpCode()
	if err != nil {
		return err
	}

	codeHash, err := s.hasher.HashOTP(code)
	if err != nil {
		return fmt.Errorf("failed to hash OTP code: %w", err)
	}

	now := s.now().UTC()
	record := &model.OtpRecord{
		Phone:     phone,
		CodeHash:  codeHash,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.expiryWindow),
	}
	if err := s.otps.Create(record); err != nil {
		return err
	}

	if err := s.limiter.MarkIssued(ctx, purpose, phone, s.otpWindow); err != nil {
		return err
	}

	// Delivery is best effort; issuance stands whether or not the SMS lands.
	go s.deliver(phone, code)

	return nil
}

func (s *AuthService) deliver(phone, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	message := fmt.Sprintf("Your verification code is %s", code)
	if err := s.sender.Send(ctx, phone, message); err != nil {
		util.Warn("OTP delivery failed", zap.Error(err))
	}
}

func (s *AuthService) publish(event model.AuthEvent) {
	if s.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.events.Publish(ctx, event); err != nil {
			util.Warn("Event publish failed",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}()
}

func (s *AuthService) audit(ctx context.Context, operation, phone, outcome, detail string) {
	if s.auditor == nil {
		return
	}
	entry := model.AuditEntry{
		Operation: operation,
		PhoneHash: util.PhoneHash(phone),
		Outcome:   outcome,
		Detail:    detail,
		At:        s.now().UTC(),
	}
	go func() {
		auditCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.auditor.Record(auditCtx, entry); err != nil {
			util.Warn("Audit record failed", zap.Error(err))
		}
	}()
}
