package model

import "time"

// OtpPurpose is the business reason an OTP was issued. The purpose scopes
// both validity checks and the issuance rate-limit window.
type OtpPurpose string

const (
	PurposeRegister OtpPurpose = "register" // registration / OTP login
	PurposeForget   OtpPurpose = "forget"   // password reset
	PurposeUpdate   OtpPurpose = "update"   // phone number change (new number)
	PurposeOld      OtpPurpose = "old"      // phone number change (old number)
)

// Valid reports whether the purpose is one of the known enum values.
func (p OtpPurpose) Valid() bool {
	switch p {
	case PurposeRegister, PurposeForget, PurposeUpdate, PurposeOld:
		return true
	}
	return false
}

// AccountState is the resolver outcome for a phone number.
type AccountState int

const (
	NoAccount AccountState = iota
	AccountNoPassword
	AccountWithPassword
)

// Account is a registered user keyed by phone number.
type Account struct {
	AccountID    string     `json:"account_id" db:"account_id"`
	PhoneBucket  int        `json:"-" db:"phone_bucket"`
	Phone        string     `json:"phone" db:"phone"`
	HasAccount   bool       `json:"has_account" db:"has_account"`
	HasPassword  bool       `json:"has_password" db:"has_password"`
	PasswordHash string     `json:"-" db:"password_hash"`
	AvatarID     string     `json:"avatar_id,omitempty" db:"avatar_id"`
	AvatarURL    string     `json:"avatar_url,omitempty" db:"avatar_url"`
	HasAvatar    bool       `json:"has_avatar" db:"has_avatar"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" db:"updated_at"`
	DeletedAt    *time.Time `json:"-" db:"deleted_at"`
}

// State derives the resolver outcome from the stored flags. Soft-deleted
// accounts resolve as NoAccount.
func (a *Account) State() AccountState {
	if a == nil || a.DeletedAt != nil {
		return NoAccount
	}
	if a.HasPassword {
		return AccountWithPassword
	}
	return AccountNoPassword
}

// OtpRecord is one issued one-time code. The code itself is stored hashed;
// CodeHash carries the encoded argon2id digest.
type OtpRecord struct {
	OtpID     string     `json:"otp_id" db:"otp_id"`
	Phone     string     `json:"phone" db:"phone"`
	CodeHash  string     `json:"-" db:"code_hash"`
	Purpose   OtpPurpose `json:"purpose" db:"purpose"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
}

// Image is a stored image reference; accounts carry at most one active avatar.
type Image struct {
	ImageID   string    `json:"image_id" db:"image_id"`
	URL       string    `json:"url" db:"url"`
	IsDefault bool      `json:"is_default" db:"is_default"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AuthEvent is published to the notification fan-out topic after significant
// account-lifecycle transitions.
type AuthEvent struct {
	EventType string    `json:"event_type"`
	AccountID string    `json:"account_id"`
	Phone     string    `json:"phone"`
	At        time.Time `json:"at"`
}

const (
	EventAccountRegistered  = "account.registered"
	EventAccountRestored    = "account.restored"
	EventAccountDeactivated = "account.deactivated"
	EventPasswordReset      = "password.reset"
)

// AuditEntry is one row in the security audit sink. The phone is stored as a
// hash so the audit store never holds raw numbers.
type AuditEntry struct {
	Operation string    `db:"operation"`
	PhoneHash string    `db:"phone_hash"`
	Outcome   string    `db:"outcome"`
	Detail    string    `db:"detail"`
	At        time.Time `db:"at"`
}
