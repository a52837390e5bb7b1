package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"safarapi-auth/internal/config"
	"safarapi-auth/internal/util"
)

// CQL used by the repositories. Queries are built fresh per call so no query
// state is ever shared between concurrent requests; gocql caches server-side
// prepared statements by statement text, so this costs nothing.
const (
	stmtCreateAccount = `
        INSERT INTO accounts (
            phone_bucket, phone, account_id, has_account, has_password,
            password_hash, avatar_id, avatar_url, has_avatar,
            created_at, updated_at, deleted_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`

	stmtGetAccountByPhone = `
        SELECT phone_bucket, phone, account_id, has_account, has_password,
               password_hash, avatar_id, avatar_url, has_avatar,
               created_at, updated_at, deleted_at
        FROM accounts WHERE phone_bucket = ? AND phone = ?`

	stmtSetAccountPassword = `
        UPDATE accounts SET password_hash = ?, has_password = true, updated_at = ?
        WHERE phone_bucket = ? AND phone = ?`

	stmtSetAccountAvatar = `
        UPDATE accounts SET avatar_id = ?, avatar_url = ?, has_avatar = true, updated_at = ?
        WHERE phone_bucket = ? AND phone = ?`

	stmtSoftDeleteAccount = `
        UPDATE accounts SET deleted_at = ?, updated_at = ?
        WHERE phone_bucket = ? AND phone = ?`

	stmtRestoreAccount = `
        UPDATE accounts SET deleted_at = null, updated_at = ?
        WHERE phone_bucket = ? AND phone = ?`

	stmtCreateOtp = `
        INSERT INTO otp_records (phone, otp_id, code_hash, purpose, created_at, expires_at)
        VALUES (?, ?, ?, ?, ?, ?)`

	stmtGetOtps = `
        SELECT phone, otp_id, code_hash, purpose, created_at, expires_at
        FROM otp_records WHERE phone = ?`

	stmtConsumeOtp = `
        DELETE FROM otp_records WHERE phone = ? AND otp_id = ? IF EXISTS`

	stmtGetDefaultAvatar = `
        SELECT image_id, url, is_default, created_at
        FROM images WHERE is_default = true LIMIT 1 ALLOW FILTERING`
)

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}, nil
}

// Query builds a fresh query for the statement; never reuse query instances
// across goroutines.
func (s *ScyllaClient) Query(stmt string, args ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, args...)
}

// ExecuteWithRetry executes a query, retrying transient failures.
func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, retries int) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = query.Exec(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	return err
}

// ExecuteBatch runs a batch of statements.
func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	return s.Session.Query(`SELECT now() FROM system.local`).Exec()
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
	}
}
