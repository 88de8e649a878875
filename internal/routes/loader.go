// Package routes loads route definitions from a YAML file and keeps the
// persisted route set in sync with it.
package routes

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/getmasq/masq/internal/db"
	"github.com/getmasq/masq/internal/models"
)

type routesFile struct {
	Routes []routeSpec `yaml:"routes"`
}

type routeSpec struct {
	ID                          string               `yaml:"id"`
	Direction                   string               `yaml:"direction"`
	DestinationOverrideEndpoint string               `yaml:"destination_override_endpoint"`
	Rules                       []models.RewriteRule `yaml:"rules"`
}

// LoadFile parses a routes file. File order is preserved; it becomes the
// match order once synced. Routes without an id get a generated one, a
// missing direction defaults to INBOUND.
func LoadFile(path string) ([]*models.Route, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read routes file %s", path)
	}

	var f routesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(err, "parse routes file %s", path)
	}

	now := time.Now().UnixMilli()
	out := make([]*models.Route, 0, len(f.Routes))
	for i, spec := range f.Routes {
		r := &models.Route{
			ID:        spec.ID,
			Direction: models.RouteDirection(spec.Direction),
			Rules:     spec.Rules,
			CreatedAt: now,
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if spec.Direction == "" {
			r.Direction = models.DirectionInbound
		}
		if !r.Direction.Valid() {
			return nil, errors.Newf("route %d (%s): unknown direction %q", i, r.ID, spec.Direction)
		}
		if spec.DestinationOverrideEndpoint != "" {
			ep := spec.DestinationOverrideEndpoint
			r.DestinationOverrideEndpoint = &ep
		}
		out = append(out, r)
	}
	return out, nil
}

// Sync replaces the persisted route set with rs in one transaction.
// Ranks follow slice order, so the file's first route is the router's
// first match.
func Sync(ctx context.Context, d *sql.DB, rs []*models.Route) error {
	if err := db.ReplaceRoutes(ctx, d, rs); err != nil {
		return errors.Wrap(err, "sync routes")
	}
	return nil
}
