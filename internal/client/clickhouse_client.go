package client

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"safarapi-auth/internal/config"
	"safarapi-auth/internal/model"
	"safarapi-auth/internal/util"
)

// ClickhouseAuditor writes security audit rows to ClickHouse. Phone numbers
// arrive pre-hashed; raw numbers never reach the audit store.
type ClickhouseAuditor struct {
	conn  driver.Conn
	table string
}

func NewClickhouseAuditor(cfg *config.Config) (*ClickhouseAuditor, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Clickhouse.URL},
		Auth: clickhouse.Auth{
			Database: cfg.Clickhouse.Database,
			Username: cfg.Clickhouse.Username,
			Password: cfg.Clickhouse.Password,
		},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	util.Info("ClickHouse auditor initialized",
		zap.String("database", cfg.Clickhouse.Database),
		zap.String("table", cfg.Clickhouse.Table))

	return &ClickhouseAuditor{
		conn:  conn,
		table: cfg.Clickhouse.Table,
	}, nil
}

// Record inserts one audit row.
func (a *ClickhouseAuditor) Record(ctx context.Context, entry model.AuditEntry) error {
	query := fmt.Sprintf(`
        INSERT INTO %s (operation, phone_hash, outcome, detail, at)
        VALUES (?, ?, ?, ?, ?)`, a.table)

	err := a.conn.Exec(ctx, query,
		entry.Operation, entry.PhoneHash, entry.Outcome, entry.Detail, entry.At)
	if err != nil {
		util.Error("Failed to record audit entry",
			zap.String("operation", entry.Operation),
			zap.Error(err))
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	return nil
}

func (a *ClickhouseAuditor) Close() error {
	return a.conn.Close()
}
