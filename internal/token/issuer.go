package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"safarapi-auth/internal/config"
	"safarapi-auth/internal/hashing"
	"safarapi-auth/internal/model"
	"safarapi-auth/internal/util"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Denylist records invalidated token IDs until their natural expiry.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AccountReader is the slice of account storage the credential check needs.
type AccountReader interface {
	GetByPhone(phone string) (*model.Account, error)
}

// Claims carried by issued access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Phone string `json:"phone"`
}

// Issuer mints, verifies and invalidates RS256 bearer tokens, and hosts the
// password-credential login facility.
type Issuer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	denylist   Denylist
	accounts   AccountReader
	hasher     *hashing.Hasher
	tokenTTL   time.Duration
	now        func() time.Time
}

// NewIssuer loads the RSA key pair from the configured paths.
func NewIssuer(cfg *config.Config, denylist Denylist, accounts AccountReader, hasher *hashing.Hasher) (*Issuer, error) {
	privPEM, err := os.ReadFile(cfg.Auth.JwtPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT private key: %w", err)
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT private key: %w", err)
	}

	pubPEM, err := os.ReadFile(cfg.Auth.JwtPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
	}

	return NewIssuerFromKeys(privateKey, publicKey, denylist, accounts, hasher, cfg.Auth.TokenTTL), nil
}

// NewIssuerFromKeys constructs an Issuer from in-memory keys.
func NewIssuerFromKeys(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, denylist Denylist, accounts AccountReader, hasher *hashing.Hasher, tokenTTL time.Duration) *Issuer {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Issuer{
		privateKey: privateKey,
		publicKey:  publicKey,
		denylist:   denylist,
		accounts:   accounts,
		hasher:     hasher,
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (i *Issuer) WithClock(clock func() time.Time) {
	if clock != nil {
		i.now = clock
	}
}

// Issue mints a bearer token for the account.
func (i *Issuer) Issue(ctx context.Context, account *model.Account) (string, error) {
	now := i.now().UTC()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   account.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.tokenTTL)),
		},
		Phone: account.Phone,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	util.Info("Token issued",
		zap.String("account_id", account.AccountID),
		zap.String("jti", claims.ID))

	return signed, nil
}

// Verify parses the token, checks the signature and expiry, and rejects
// revoked token IDs.
func (i *Issuer) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := i.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// Invalidate revokes the presented token. Invalid or already-expired tokens
// are treated as successfully invalidated; logout is idempotent.
func (i *Issuer) Invalidate(ctx context.Context, tokenString string) error {
	claims, err := i.parse(tokenString)
	if err != nil {
		util.Debug("Ignoring invalidation of unparseable token", zap.Error(err))
		return nil
	}

	ttl := time.Duration(0)
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(i.now().UTC())
	}

	if err := i.denylist.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	util.Info("Token invalidated", zap.String("jti", claims.ID))
	return nil
}

// VerifyCredentials checks a phone/password pair and issues a token on
// success.
func (i *Issuer) VerifyCredentials(ctx context.Context, phone, password string) (string, error) {
	account, err := i.accounts.GetByPhone(phone)
	if err != nil {
		return "", fmt.Errorf("failed to resolve account: %w", err)
	}
	if account == nil || account.State() != model.AccountWithPassword {
		return "", ErrInvalidCredentials
	}

	match, err := i.hasher.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return "", ErrInvalidCredentials
	}

	return i.Issue(ctx, account)
}

func (i *Issuer) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now().UTC() }))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
