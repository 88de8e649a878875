package proxy

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/getmasq/masq/internal/db"
	"github.com/getmasq/masq/internal/logging"
	"github.com/getmasq/masq/internal/models"
)

// RouteSource supplies the persisted routes the router decides from.
type RouteSource interface {
	ListByDirection(ctx context.Context, direction models.RouteDirection) ([]*models.Route, error)
}

// DBRoutes is the production RouteSource, reading straight from SQLite.
// No caching: every call reflects the routes committed at that moment.
type DBRoutes struct {
	DB *sql.DB
}

func (r DBRoutes) ListByDirection(ctx context.Context, direction models.RouteDirection) ([]*models.Route, error) {
	return db.ListRoutesByDirection(ctx, r.DB, direction)
}

// Router resolves the configuration for each accepted connection. It
// holds a shared default that is read-only; overrides are applied to a
// per-call copy. Safe for unbounded concurrent use.
type Router struct {
	source   RouteSource
	defaults Config
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRouter creates a router over the given route source. timeout
// bounds each per-connection route lookup; zero or less means no bound.
func NewRouter(source RouteSource, defaults Config, timeout time.Duration, logger *zap.Logger) *Router {
	return &Router{
		source:   source,
		defaults: defaults,
		timeout:  timeout,
		logger:   logger.With(logging.Component("router")),
	}
}

// ResolveConfig returns the configuration for one connection.
//
// Forward mode returns the default unchanged without touching the route
// source. Reverse mode reads the INBOUND routes and applies the first
// route's destination override, when it has one. A malformed override
// is logged and skipped. A route source failure is returned to the
// caller, which must abort the connection rather than proceed on a
// guessed configuration.
func (r *Router) ResolveConfig(ctx context.Context) (Config, error) {
	cfg := r.defaults
	if !cfg.IsReverse() {
		return cfg, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	routes, err := r.source.ListByDirection(ctx, models.DirectionInbound)
	if err != nil {
		return Config{}, errors.Wrap(err, "route lookup")
	}
	if len(routes) == 0 {
		return cfg, nil
	}

	route := routes[0]
	endpoint := route.OverrideEndpoint()
	if endpoint == "" {
		return cfg, nil
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		r.logger.Warn("ignoring destination override",
			logging.RouteID(route.ID),
			logging.Endpoint(endpoint),
			zap.Error(err))
		return cfg, nil
	}

	r.logger.Debug("destination override applied",
		logging.RouteID(route.ID),
		logging.Endpoint(endpoint))
	return cfg.WithOverride(endpoint), nil
}
