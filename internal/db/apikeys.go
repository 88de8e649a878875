package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/getmasq/masq/internal/models"
)

// CreateAPIKey inserts a new API key and returns its ID.
func CreateAPIKey(ctx context.Context, d *sql.DB, prefix string, hash []byte, label *string) (int64, error) {
	result, err := d.ExecContext(ctx,
		"INSERT INTO api_keys (key_prefix, key_hash, label, created_at) VALUES (?, ?, ?, ?)",
		prefix, hash, label, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, errors.Wrap(classify(err), "insert api key")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(classify(err), "api key insert id")
	}
	return id, nil
}

// GetAPIKeyByPrefix retrieves an API key by its prefix, or (nil, nil) when
// absent.
func GetAPIKeyByPrefix(ctx context.Context, d *sql.DB, prefix string) (*models.APIKey, error) {
	row := d.QueryRowContext(ctx,
		"SELECT id, key_prefix, key_hash, label, created_at, revoked_at FROM api_keys WHERE key_prefix = ?",
		prefix,
	)
	var key models.APIKey
	err := row.Scan(&key.ID, &key.KeyPrefix, &key.KeyHash, &key.Label, &key.CreatedAt, &key.RevokedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(classify(err), "scan api key")
	}
	return &key, nil
}

// ListAPIKeys returns every API key, revoked ones included, oldest first.
func ListAPIKeys(ctx context.Context, d *sql.DB) ([]*models.APIKey, error) {
	rows, err := d.QueryContext(ctx,
		"SELECT id, key_prefix, key_hash, label, created_at, revoked_at FROM api_keys ORDER BY created_at, id",
	)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list api keys")
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var key models.APIKey
		if err := rows.Scan(&key.ID, &key.KeyPrefix, &key.KeyHash, &key.Label, &key.CreatedAt, &key.RevokedAt); err != nil {
			return nil, errors.Wrap(classify(err), "scan api key")
		}
		keys = append(keys, &key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(classify(err), "iterate api keys")
	}
	return keys, nil
}

// RevokeAPIKey marks the key with the given prefix revoked. It reports
// whether a live key matched.
func RevokeAPIKey(ctx context.Context, d *sql.DB, prefix string) (bool, error) {
	result, err := d.ExecContext(ctx,
		"UPDATE api_keys SET revoked_at = ? WHERE key_prefix = ? AND revoked_at IS NULL",
		time.Now().UnixMilli(), prefix,
	)
	if err != nil {
		return false, errors.Wrap(classify(err), "revoke api key")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(classify(err), "revoked key count")
	}
	return n > 0, nil
}

// CountAPIKeys returns the number of non-revoked API keys. The management
// API stays open to localhost callers until the first key exists.
func CountAPIKeys(ctx context.Context, d *sql.DB) (int, error) {
	var count int
	err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys WHERE revoked_at IS NULL").Scan(&count)
	if err != nil {
		return 0, errors.Wrap(classify(err), "count api keys")
	}
	return count, nil
}
