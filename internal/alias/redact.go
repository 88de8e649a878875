package alias

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/getmasq/masq/internal/db"
	"github.com/getmasq/masq/internal/models"
)

// Redact returns the alias record for value, creating one with the named
// scheme when no live record exists. The bool reports whether a new
// record was created. When a concurrent Redact wins the insert race the
// winner's record is returned instead of an error.
func (s *Store) Redact(ctx context.Context, value, scheme string) (*models.Alias, bool, error) {
	existing, err := s.GetByValue(ctx, value)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	public, err := Generate(scheme)
	if err != nil {
		return nil, false, err
	}

	a := &models.Alias{
		Value:            value,
		PublicAlias:      public,
		GenerationScheme: scheme,
	}
	if err := s.Save(ctx, a); err != nil {
		if !db.IsDuplicateKey(err) {
			return nil, false, err
		}
		// Lost a race, or the value is held by an expired row that has
		// not been swept. Only the former can be recovered here.
		winner, getErr := s.GetByValue(ctx, value)
		if getErr != nil {
			return nil, false, getErr
		}
		if winner != nil {
			return winner, false, nil
		}
		return nil, false, errors.Wrap(err, "value is held by an expired alias, run cleanup first")
	}
	return a, true, nil
}

// Reveal resolves a public alias back to its record. Returns nil without
// error when the alias is unknown or expired, so callers can leave
// unresolvable aliases untouched.
func (s *Store) Reveal(ctx context.Context, publicAlias string) (*models.Alias, error) {
	return s.GetByAlias(ctx, publicAlias)
}
