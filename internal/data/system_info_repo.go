package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// SystemInfoRepo stores process-wide key/value facts such as the last harvest run time.
// Deployments without the system_info table are tolerated: writes and reads become no-ops.
type SystemInfoRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewSystemInfoRepo creates a new SystemInfoRepo.
func NewSystemInfoRepo(db *sql.DB, logger *slog.Logger) *SystemInfoRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemInfoRepo{DB: db, logger: logger.With("component", "system_info")}
}

// Set upserts a key. Last write wins.
func (r *SystemInfoRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO system_info (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		if isUndefinedTable(err) {
			r.logger.DebugContext(ctx, "no system_info table, skipped", "key", key)
			return nil
		}
		return fmt.Errorf("set system info %s: %w", key, err)
	}
	return nil
}

// Get returns the value of key and whether it exists.
func (r *SystemInfoRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM system_info WHERE key = $1`, key).Scan(&value)
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case isUndefinedTable(err):
		r.logger.DebugContext(ctx, "no system_info table, skipped", "key", key)
		return "", false, nil
	default:
		return "", false, fmt.Errorf("get system info %s: %w", key, err)
	}
}
