package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"safarapi-auth/internal/hashing"
	"safarapi-auth/internal/model"
	"safarapi-auth/internal/util"
)

type otpRepository struct {
	client *ScyllaClient
	hasher *hashing.Hasher
}

func NewOTPRepository(client *ScyllaClient, hasher *hashing.Hasher) OTPRepository {
	return &otpRepository{
		client: client,
		hasher: hasher,
	}
}

func (r *otpRepository) Create(record *model.OtpRecord) error {
	if record.OtpID == "" {
		record.OtpID = uuid.New().String()
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	// ExpiresAt is the coarse storage cutoff, not the verification window;
	// the window is evaluated at read time against created_at.
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = now.Add(10 * time.Minute)
	}

	query := r.client.Query(stmtCreateOtp,
		record.Phone, record.OtpID, record.CodeHash,
		string(record.Purpose), record.CreatedAt, record.ExpiresAt)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create OTP record",
			zap.String("otp_id", record.OtpID),
			zap.Error(err))
		return fmt.Errorf("failed to create OTP record: %w", err)
	}

	util.Info("OTP record created",
		zap.String("otp_id", record.OtpID),
		zap.String("purpose", string(record.Purpose)))

	return nil
}

func (r *otpRepository) FindValid(phone, code string, window time.Duration) (*model.OtpRecord, error) {
	cutoff := time.Now().UTC().Add(-window)

	iter := r.client.Query(stmtGetOtps, phone).Iter()

	var (
		otpID, recPhone, codeHash, purpose string
		createdAt, expiresAt               time.Time
	)

	// Selection is by exact code match within the recency window, never by
	// "latest row only"; stale rows for the same phone are skipped.
	for iter.Scan(&recPhone, &otpID, &codeHash, &purpose, &createdAt, &expiresAt) {
		if createdAt.Before(cutoff) {
			continue
		}

		match, err := r.hasher.VerifyOTP(code, codeHash)
		if err != nil {
			util.Warn("Skipping OTP row with unreadable hash",
				zap.String("otp_id", otpID),
				zap.Error(err))
			continue
		}
		if !match {
			continue
		}

		record := &model.OtpRecord{
			OtpID:     otpID,
			Phone:     recPhone,
			CodeHash:  codeHash,
			Purpose:   model.OtpPurpose(purpose),
			CreatedAt: createdAt,
			ExpiresAt: expiresAt,
		}

		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("failed to read OTP records: %w", err)
		}
		return record, nil
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to scan OTP records", zap.Error(err))
		return nil, fmt.Errorf("failed to read OTP records: %w", err)
	}

	return nil, nil
}

func (r *otpRepository) Consume(record *model.OtpRecord) (bool, error) {
	// LWT delete: exactly one of any concurrent consumers observes
	// applied=true, enforcing single use.
	query := r.client.Query(stmtConsumeOtp, record.Phone, record.OtpID)

	applied, err := query.MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to consume OTP record",
			zap.String("otp_id", record.OtpID),
			zap.Error(err))
		return false, fmt.Errorf("failed to consume OTP record: %w", err)
	}

	if applied {
		util.Info("OTP record consumed", zap.String("otp_id", record.OtpID))
	}

	return applied, nil
}

func (r *otpRepository) DeleteOlderThan(cutoff time.Time) (int, error) {
	iter := r.client.Query(`
        SELECT phone, otp_id FROM otp_records
        WHERE expires_at < ? ALLOW FILTERING`, cutoff).Iter()

	var phone, otpID string
	deletedCount := 0

	// Batch deletes to keep the sweep cheap under load
	batch := r.client.Session.NewBatch(gocql.UnloggedBatch)
	batchSize := 0

	for iter.Scan(&phone, &otpID) {
		batch.Query(`DELETE FROM otp_records WHERE phone = ? AND otp_id = ?`, phone, otpID)
		batchSize++

		if batchSize >= 100 {
			if err := r.client.ExecuteBatch(batch); err != nil {
				util.Error("Failed to execute batch delete for expired OTPs", zap.Error(err))
				iter.Close()
				return deletedCount, fmt.Errorf("failed to delete expired OTP records: %w", err)
			}
			deletedCount += batchSize
			batch = r.client.Session.NewBatch(gocql.UnloggedBatch)
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if err := r.client.ExecuteBatch(batch); err != nil {
			util.Error("Failed to execute final batch delete for expired OTPs", zap.Error(err))
			iter.Close()
			return deletedCount, fmt.Errorf("failed to delete expired OTP records: %w", err)
		}
		deletedCount += batchSize
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to close iterator for expired OTP sweep", zap.Error(err))
		return deletedCount, fmt.Errorf("failed to sweep expired OTP records: %w", err)
	}

	if deletedCount > 0 {
		util.Info("Expired OTP records deleted", zap.Int("deleted_count", deletedCount))
	}

	return deletedCount, nil
}
