// Package api defines the request and response bodies of the
// management API.
package api

import "github.com/getmasq/masq/internal/models"

// RedactRequest is the body of POST /aliases.
type RedactRequest struct {
	Data []RedactEntry `json:"data"`
}

// RedactEntry asks for one value to be aliased. Format names the
// generation scheme (default UUID); Store picks PERSISTENT (default)
// or VOLATILE.
type RedactEntry struct {
	Value  string `json:"value"`
	Format string `json:"format,omitempty"`
	Store  string `json:"store,omitempty"`
}

// AliasRecord is the wire form of a stored alias.
type AliasRecord struct {
	Value       string  `json:"value"`
	PublicAlias string  `json:"public_alias"`
	Format      string  `json:"format"`
	Store       string  `json:"store"`
	CreatedAt   string  `json:"created_at"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

// RedactResponse mirrors RedactRequest order.
type RedactResponse struct {
	Data []AliasRecord `json:"data"`
}

// RevealResponse answers GET /aliases?q=; unresolvable aliases are
// omitted.
type RevealResponse struct {
	Data []AliasRecord `json:"data"`
}

// CleanupResponse reports how many expired rows a cleanup removed.
type CleanupResponse struct {
	Count int64 `json:"count"`
}

// RouteSpec is the body of POST /route.
type RouteSpec struct {
	ID                          string               `json:"id,omitempty"`
	Direction                   string               `json:"direction,omitempty"`
	DestinationOverrideEndpoint string               `json:"destination_override_endpoint,omitempty"`
	Rules                       []models.RewriteRule `json:"rules,omitempty"`
}

// RouteInfo is the wire form of a stored route.
type RouteInfo struct {
	ID                          string               `json:"id"`
	Direction                   string               `json:"direction"`
	DestinationOverrideEndpoint *string              `json:"destination_override_endpoint"`
	Rank                        int64                `json:"rank"`
	Rules                       []models.RewriteRule `json:"rules,omitempty"`
	CreatedAt                   string               `json:"created_at"`
}

// ListRoutesResponse answers GET /route.
type ListRoutesResponse struct {
	Routes []RouteInfo `json:"routes"`
}

// DeleteRouteResponse answers DELETE /route/{id}.
type DeleteRouteResponse struct {
	Deleted bool `json:"deleted"`
}

// RewriteRequest is the body of POST /rewrite: dry-run a route's rules
// of one phase against a body.
type RewriteRequest struct {
	RouteID string `json:"route_id"`
	Phase   string `json:"phase"`
	Body    string `json:"body"`
}

// RewriteResponse carries the rewritten body.
type RewriteResponse struct {
	Body string `json:"body"`
}
