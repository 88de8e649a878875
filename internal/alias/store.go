// Package alias implements the alias store: persistence of value to
// public-alias pairs with optional expiry, pluggable alias generation
// schemes, and a background sweeper for expired rows.
package alias

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/getmasq/masq/internal/db"
	"github.com/getmasq/masq/internal/models"
)

// Store is a handle over the aliases table. The TTL captured at
// construction affects writes only: a volatile handle stamps expires_at
// once at save time and never again. Reads are handle independent, a row
// is visible exactly while its own expires_at says so, regardless of
// which handle performs the lookup.
type Store struct {
	db         *sql.DB
	ttl        time.Duration
	persistent bool
}

// NewStore returns a handle whose saves never expire.
func NewStore(d *sql.DB) *Store {
	return &Store{db: d, persistent: true}
}

// NewVolatileStore returns a handle whose saves expire ttl after the
// save. A non-positive ttl produces rows that are already expired when
// written; they are retained until the next cleanup but never returned
// by lookups.
func NewVolatileStore(d *sql.DB, ttl time.Duration) *Store {
	return &Store{db: d, ttl: ttl}
}

// Mode reports whether saves through this handle persist or expire.
func (s *Store) Mode() models.StoreMode {
	if s.persistent {
		return models.StorePersistent
	}
	return models.StoreVolatile
}

// Save persists a new alias pair. The caller supplies Value, PublicAlias
// and GenerationScheme; Save assigns ID, CreatedAt and ExpiresAt. Both
// the value and the public alias must be unused, including by expired
// rows that have not been swept yet, otherwise Save fails with a
// duplicate-key error.
func (s *Store) Save(ctx context.Context, a *models.Alias) error {
	if a.Value == "" {
		return errors.New("alias value must not be empty")
	}
	if a.PublicAlias == "" {
		return errors.New("public alias must not be empty")
	}

	now := time.Now()
	a.CreatedAt = now.UnixMilli()
	if s.persistent {
		a.ExpiresAt = nil
	} else {
		expiresAt := now.Add(s.ttl).UnixMilli()
		a.ExpiresAt = &expiresAt
	}

	return db.InsertAlias(ctx, s.db, a)
}

// GetByValue looks up the live alias record for an original value.
// Returns nil without error when no live record exists.
func (s *Store) GetByValue(ctx context.Context, value string) (*models.Alias, error) {
	return db.GetAliasByValue(ctx, s.db, value, time.Now().UnixMilli())
}

// GetByAlias looks up the live alias record for a public alias.
// Returns nil without error when no live record exists.
func (s *Store) GetByAlias(ctx context.Context, publicAlias string) (*models.Alias, error) {
	return db.GetAliasByAlias(ctx, s.db, publicAlias, time.Now().UnixMilli())
}

// Cleanup deletes every alias row whose expiry has passed and reports
// how many rows were removed. It operates on the table as a whole, not
// on a single handle, so it is a package function rather than a method.
func Cleanup(ctx context.Context, d *sql.DB) (int64, error) {
	return db.DeleteExpiredAliases(ctx, d, time.Now().UnixMilli())
}
