package scylla

import (
	"time"

	"safarapi-auth/internal/model"
)

// AccountRepository is the persistence contract for accounts. Lookups return
// (nil, nil) when no row exists; absence is a valid outcome, not a failure.
type AccountRepository interface {
	GetByPhone(phone string) (*model.Account, error)
	// Create inserts the account if no row exists for the phone. The bool
	// reports whether the insert was applied; false means another writer
	// got there first.
	Create(account *model.Account) (bool, error)
	SetPassword(phone, passwordHash string) error
	SetAvatar(phone string, image *model.Image) error
	SoftDelete(phone string) error
	// Restore clears the soft-delete marker so the row is live again.
	Restore(phone string) error
	HealthCheck() error
}

// OTPRepository is the persistence contract for one-time codes.
type OTPRepository interface {
	Create(record *model.OtpRecord) error
	// FindValid returns the record whose stored hash matches the code and
	// whose creation time falls within the verification window, or
	// (nil, nil) when nothing matches.
	FindValid(phone, code string, window time.Duration) (*model.OtpRecord, error)
	// Consume deletes the record. The bool reports whether this caller won
	// the delete; false means the record was already consumed.
	Consume(record *model.OtpRecord) (bool, error)
	// DeleteOlderThan removes rows past the coarse storage-expiry cutoff
	// and returns how many were deleted.
	DeleteOlderThan(cutoff time.Time) (int, error)
}

// ImageRepository exposes the stored image references the auth flow needs.
type ImageRepository interface {
	FirstDefaultAvatar() (*model.Image, error)
}
