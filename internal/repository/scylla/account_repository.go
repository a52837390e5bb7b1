package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"safarapi-auth/internal/bucketing"
	"safarapi-auth/internal/model"
	"safarapi-auth/internal/util"
)

type accountRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.BucketingManager
}

func NewAccountRepository(client *ScyllaClient, bucketingMgr *bucketing.BucketingManager) AccountRepository {
	return &accountRepository{
		client:    client,
		bucketing: bucketingMgr,
	}
}

func (r *accountRepository) GetByPhone(phone string) (*model.Account, error) {
	bucket := r.bucketing.PhoneBucket(phone)
	account := &model.Account{}

	var updatedAt, deletedAt time.Time

	err := r.client.Query(stmtGetAccountByPhone, bucket, phone).Scan(
		&account.PhoneBucket, &account.Phone, &account.AccountID,
		&account.HasAccount, &account.HasPassword, &account.PasswordHash,
		&account.AvatarID, &account.AvatarURL, &account.HasAvatar,
		&account.CreatedAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("Failed to get account by phone", zap.Error(err))
		return nil, fmt.Errorf("failed to get account by phone: %w", err)
	}

	if !updatedAt.IsZero() {
		account.UpdatedAt = &updatedAt
	}
	if !deletedAt.IsZero() {
		account.DeletedAt = &deletedAt
	}

	return account, nil
}

func (r *accountRepository) Create(account *model.Account) (bool, error) {
	account.PhoneBucket = r.bucketing.PhoneBucket(account.Phone)

	var updatedAt, deletedAt time.Time
	if account.UpdatedAt != nil {
		updatedAt = *account.UpdatedAt
	}
	if account.DeletedAt != nil {
		deletedAt = *account.DeletedAt
	}

	// LWT insert keeps first-or-create atomic under concurrent verification.
	query := r.client.Query(stmtCreateAccount,
		account.PhoneBucket, account.Phone, account.AccountID,
		account.HasAccount, account.HasPassword, account.PasswordHash,
		account.AvatarID, account.AvatarURL, account.HasAvatar,
		account.CreatedAt, updatedAt, deletedAt,
	)

	applied, err := query.MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to create account", zap.Error(err))
		return false, fmt.Errorf("failed to create account: %w", err)
	}

	if applied {
		util.Info("Account created",
			zap.String("account_id", account.AccountID),
			zap.Int("phone_bucket", account.PhoneBucket))
	}

	return applied, nil
}

func (r *accountRepository) SetPassword(phone, passwordHash string) error {
	bucket := r.bucketing.PhoneBucket(phone)

	query := r.client.Query(stmtSetAccountPassword,
		passwordHash, time.Now().UTC(), bucket, phone)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to set account password", zap.Error(err))
		return fmt.Errorf("failed to set account password: %w", err)
	}

	util.Info("Account password updated", zap.Int("phone_bucket", bucket))
	return nil
}

func (r *accountRepository) SetAvatar(phone string, image *model.Image) error {
	bucket := r.bucketing.PhoneBucket(phone)

	query := r.client.Query(stmtSetAccountAvatar,
		image.ImageID, image.URL, time.Now().UTC(), bucket, phone)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to set account avatar", zap.Error(err))
		return fmt.Errorf("failed to set account avatar: %w", err)
	}

	return nil
}

func (r *accountRepository) SoftDelete(phone string) error {
	bucket := r.bucketing.PhoneBucket(phone)
	now := time.Now().UTC()

	query := r.client.Query(stmtSoftDeleteAccount, now, now, bucket, phone)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to soft-delete account", zap.Error(err))
		return fmt.Errorf("failed to soft-delete account: %w", err)
	}

	util.Info("Account soft-deleted", zap.Int("phone_bucket", bucket))
	return nil
}

func (r *accountRepository) Restore(phone string) error {
	bucket := r.bucketing.PhoneBucket(phone)

	query := r.client.Query(stmtRestoreAccount, time.Now().UTC(), bucket, phone)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to restore account", zap.Error(err))
		return fmt.Errorf("failed to restore account: %w", err)
	}

	util.Info("Account restored", zap.Int("phone_bucket", bucket))
	return nil
}

func (r *accountRepository) HealthCheck() error {
	return r.client.HealthCheck()
}
