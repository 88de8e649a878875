// Package models defines the database entity types.
package models

// StoreMode selects which alias store handle a write goes through.
type StoreMode string

// Store modes.
const (
	StorePersistent StoreMode = "PERSISTENT"
	StoreVolatile   StoreMode = "VOLATILE"
)

// Valid reports whether m is a known store mode.
func (m StoreMode) Valid() bool {
	return m == StorePersistent || m == StoreVolatile
}

// Alias maps an original sensitive value to its opaque public substitute.
type Alias struct {
	ID               int64
	Value            string
	PublicAlias      string
	GenerationScheme string
	CreatedAt        int64  // unix milliseconds
	ExpiresAt        *int64 // unix milliseconds; nil means the record never expires
}

// Expired reports whether the record's stored expiry has passed at now
// (unix milliseconds). Expiry is a property of the row itself, not of
// whichever store handle is reading it.
func (a *Alias) Expired(now int64) bool {
	return a.ExpiresAt != nil && *a.ExpiresAt <= now
}

// RouteDirection is the traffic direction a route applies to.
type RouteDirection string

// Route directions.
const (
	DirectionInbound  RouteDirection = "INBOUND"
	DirectionOutbound RouteDirection = "OUTBOUND"
)

// Valid reports whether d is a known direction.
func (d RouteDirection) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// Route describes a persisted routing rule. INBOUND routes apply to
// reverse-proxied connections; the first route by (rank, id) wins.
type Route struct {
	ID                          string
	Direction                   RouteDirection
	DestinationOverrideEndpoint *string
	Rank                        int64
	Rules                       []RewriteRule
	CreatedAt                   int64 // unix milliseconds
}

// OverrideEndpoint returns the route's override endpoint, or "" when the
// route declares none.
func (r *Route) OverrideEndpoint() string {
	if r.DestinationOverrideEndpoint == nil {
		return ""
	}
	return *r.DestinationOverrideEndpoint
}

// RewritePhase is the half of an exchange a rewrite rule applies to.
type RewritePhase string

// Rewrite phases.
const (
	PhaseRequest  RewritePhase = "request"
	PhaseResponse RewritePhase = "response"
)

// RewriteAction is what a rewrite rule does with located targets.
type RewriteAction string

// Rewrite actions.
const (
	ActionRedact RewriteAction = "redact"
	ActionReveal RewriteAction = "reveal"
)

// RewriteRule describes one body transformation attached to a route.
// Rules are stored JSON-encoded in the routes table and applied in order.
type RewriteRule struct {
	Phase       RewritePhase  `json:"phase"`
	Action      RewriteAction `json:"action"`
	Store       StoreMode     `json:"store,omitempty"`
	Scheme      string        `json:"scheme,omitempty"`
	Transformer string        `json:"transformer"`
	Targets     []string      `json:"targets"`
}

// APIKey represents a management API key record.
type APIKey struct {
	ID        int64
	KeyPrefix string
	KeyHash   []byte
	Label     *string
	CreatedAt int64 // unix milliseconds
	RevokedAt *int64
}
