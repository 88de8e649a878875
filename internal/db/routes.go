package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/getmasq/masq/internal/models"
)

const routeColumns = "id, direction, destination_override_endpoint, rank, rules, created_at"

// InsertRoute persists a route, assigning the next rank within a single
// transaction so creation order stays deterministic even under concurrent
// inserts. The caller populates ID and CreatedAt.
func InsertRoute(ctx context.Context, d *sql.DB, r *models.Route) error {
	rules, err := encodeRules(r.Rules)
	if err != nil {
		return err
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(classify(err), "begin route insert")
	}
	defer tx.Rollback()

	var rank int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(rank), 0) + 1 FROM routes").Scan(&rank); err != nil {
		return errors.Wrap(classify(err), "next route rank")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO routes (id, direction, destination_override_endpoint, rank, rules, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Direction), r.DestinationOverrideEndpoint, rank, rules, r.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(classify(err), "insert route")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(classify(err), "commit route insert")
	}
	r.Rank = rank
	return nil
}

// GetRoute returns the route with the given ID, or (nil, nil) when absent.
func GetRoute(ctx context.Context, d *sql.DB, id string) (*models.Route, error) {
	row := d.QueryRowContext(ctx,
		"SELECT "+routeColumns+" FROM routes WHERE id = ?", id,
	)
	r, err := scanRoute(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(classify(err), "scan route")
	}
	return r, nil
}

// ListRoutes returns every route ordered by (rank, id).
func ListRoutes(ctx context.Context, d *sql.DB) ([]*models.Route, error) {
	rows, err := d.QueryContext(ctx,
		"SELECT "+routeColumns+" FROM routes ORDER BY rank, id",
	)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list routes")
	}
	defer rows.Close()
	return collectRoutes(rows)
}

// ListRoutesByDirection returns routes for one traffic direction ordered by
// (rank, id). An empty result is a nil slice, not an error.
func ListRoutesByDirection(ctx context.Context, d *sql.DB, dir models.RouteDirection) ([]*models.Route, error) {
	rows, err := d.QueryContext(ctx,
		"SELECT "+routeColumns+" FROM routes WHERE direction = ? ORDER BY rank, id",
		string(dir),
	)
	if err != nil {
		return nil, errors.Wrap(classify(err), "list routes by direction")
	}
	defer rows.Close()
	return collectRoutes(rows)
}

// DeleteRoute removes the route with the given ID, reporting whether a row
// was actually deleted.
func DeleteRoute(ctx context.Context, d *sql.DB, id string) (bool, error) {
	result, err := d.ExecContext(ctx, "DELETE FROM routes WHERE id = ?", id)
	if err != nil {
		return false, errors.Wrap(classify(err), "delete route")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(classify(err), "deleted route count")
	}
	return n > 0, nil
}

// ReplaceRoutes swaps the entire route set for rs in one transaction. Ranks
// are assigned from slice order. Used by the routes file loader, where the
// file is the source of truth.
func ReplaceRoutes(ctx context.Context, d *sql.DB, rs []*models.Route) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(classify(err), "begin route replace")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM routes"); err != nil {
		return errors.Wrap(classify(err), "clear routes")
	}

	for i, r := range rs {
		rules, err := encodeRules(r.Rules)
		if err != nil {
			return err
		}
		r.Rank = int64(i + 1)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO routes (id, direction, destination_override_endpoint, rank, rules, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, string(r.Direction), r.DestinationOverrideEndpoint, r.Rank, rules, r.CreatedAt,
		)
		if err != nil {
			return errors.Wrapf(classify(err), "insert route %s", r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(classify(err), "commit route replace")
	}
	return nil
}

func encodeRules(rules []models.RewriteRule) (string, error) {
	if len(rules) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(rules)
	if err != nil {
		return "", errors.Wrap(err, "encode route rules")
	}
	return string(b), nil
}

func scanRoute(scan func(dest ...any) error) (*models.Route, error) {
	var (
		r         models.Route
		direction string
		rules     string
	)
	if err := scan(&r.ID, &direction, &r.DestinationOverrideEndpoint, &r.Rank, &rules, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Direction = models.RouteDirection(direction)
	if err := json.Unmarshal([]byte(rules), &r.Rules); err != nil {
		return nil, errors.Wrapf(err, "decode rules for route %s", r.ID)
	}
	return &r, nil
}

func collectRoutes(rows *sql.Rows) ([]*models.Route, error) {
	var routes []*models.Route
	for rows.Next() {
		r, err := scanRoute(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(classify(err), "scan route")
		}
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(classify(err), "iterate routes")
	}
	return routes, nil
}
