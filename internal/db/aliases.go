package db

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/getmasq/masq/internal/models"
)

// liveAliasFilter keeps reads from ever returning a row whose stored expiry
// has passed. Expiry is checked against the caller-supplied clock on every
// read; it is never cached.
const liveAliasFilter = "(expires_at IS NULL OR expires_at > ?)"

// InsertAlias persists a fully populated alias record and assigns its ID.
// The caller is responsible for CreatedAt and ExpiresAt; uniqueness of both
// value and public_alias is enforced by the schema across all rows, expired
// ones included.
func InsertAlias(ctx context.Context, d *sql.DB, a *models.Alias) error {
	result, err := d.ExecContext(ctx,
		`INSERT INTO aliases (value, public_alias, generation_scheme, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.Value, a.PublicAlias, a.GenerationScheme, a.CreatedAt, a.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(classify(err), "insert alias")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(classify(err), "alias insert id")
	}
	a.ID = id
	return nil
}

// GetAliasByValue returns the live record whose value matches, or (nil, nil)
// when absent or expired at now (unix milliseconds).
func GetAliasByValue(ctx context.Context, d *sql.DB, value string, now int64) (*models.Alias, error) {
	row := d.QueryRowContext(ctx,
		`SELECT id, value, public_alias, generation_scheme, created_at, expires_at
		 FROM aliases WHERE value = ? AND `+liveAliasFilter,
		value, now,
	)
	return scanAlias(row)
}

// GetAliasByAlias returns the live record whose public alias matches, or
// (nil, nil) when absent or expired at now (unix milliseconds).
func GetAliasByAlias(ctx context.Context, d *sql.DB, publicAlias string, now int64) (*models.Alias, error) {
	row := d.QueryRowContext(ctx,
		`SELECT id, value, public_alias, generation_scheme, created_at, expires_at
		 FROM aliases WHERE public_alias = ? AND `+liveAliasFilter,
		publicAlias, now,
	)
	return scanAlias(row)
}

// DeleteExpiredAliases removes every row whose expiry is non-null and has
// passed at now, returning the number of rows removed. Persistent rows are
// never touched. Row-level deletes only, so it is safe to run concurrently
// with reads and writes.
func DeleteExpiredAliases(ctx context.Context, d *sql.DB, now int64) (int64, error) {
	result, err := d.ExecContext(ctx,
		"DELETE FROM aliases WHERE expires_at IS NOT NULL AND expires_at <= ?",
		now,
	)
	if err != nil {
		return 0, errors.Wrap(classify(err), "delete expired aliases")
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(classify(err), "expired aliases count")
	}
	return count, nil
}

func scanAlias(row *sql.Row) (*models.Alias, error) {
	var a models.Alias
	err := row.Scan(&a.ID, &a.Value, &a.PublicAlias, &a.GenerationScheme, &a.CreatedAt, &a.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(classify(err), "scan alias")
	}
	return &a, nil
}
