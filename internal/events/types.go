// Package events carries control-plane notifications between components and
// out to /updates WebSocket clients.
package events

import "time"

// Kind identifies the event type.
type Kind string

// Event kinds.
const (
	KindAliasCreated     Kind = "alias.created"
	KindAliasSwept       Kind = "alias.swept"
	KindRouteCreated     Kind = "route.created"
	KindRouteDeleted     Kind = "route.deleted"
	KindRoutesSynced     Kind = "routes.synced"
	KindConnectionRouted Kind = "connection.routed"
)

// Event is one control-plane notification. Exactly one detail field is set,
// matching Kind. Events never carry original sensitive values, only aliases.
type Event struct {
	Kind       Kind              `json:"kind"`
	OccurredAt int64             `json:"occurred_at"` // unix milliseconds
	Alias      *AliasDetail      `json:"alias,omitempty"`
	Sweep      *SweepDetail      `json:"sweep,omitempty"`
	Route      *RouteDetail      `json:"route,omitempty"`
	Connection *ConnectionDetail `json:"connection,omitempty"`
}

// AliasDetail describes a created alias (public side only).
type AliasDetail struct {
	PublicAlias string `json:"public_alias"`
	Scheme      string `json:"scheme"`
	Volatile    bool   `json:"volatile"`
}

// SweepDetail reports a cleanup pass.
type SweepDetail struct {
	Count int64 `json:"count"`
}

// RouteDetail describes a route change.
type RouteDetail struct {
	ID               string `json:"id"`
	Direction        string `json:"direction"`
	OverrideEndpoint string `json:"override_endpoint,omitempty"`
	Count            int    `json:"count,omitempty"` // routes.synced only
}

// ConnectionDetail describes a routed connection.
type ConnectionDetail struct {
	RemoteAddr string `json:"remote_addr"`
	Mode       string `json:"mode"`
}

// AliasCreated builds an alias.created event.
func AliasCreated(publicAlias, scheme string, volatile bool) Event {
	return Event{
		Kind:       KindAliasCreated,
		OccurredAt: time.Now().UnixMilli(),
		Alias:      &AliasDetail{PublicAlias: publicAlias, Scheme: scheme, Volatile: volatile},
	}
}

// AliasSwept builds an alias.swept event.
func AliasSwept(count int64) Event {
	return Event{
		Kind:       KindAliasSwept,
		OccurredAt: time.Now().UnixMilli(),
		Sweep:      &SweepDetail{Count: count},
	}
}

// RouteCreated builds a route.created event.
func RouteCreated(id, direction, overrideEndpoint string) Event {
	return Event{
		Kind:       KindRouteCreated,
		OccurredAt: time.Now().UnixMilli(),
		Route:      &RouteDetail{ID: id, Direction: direction, OverrideEndpoint: overrideEndpoint},
	}
}

// RouteDeleted builds a route.deleted event.
func RouteDeleted(id string) Event {
	return Event{
		Kind:       KindRouteDeleted,
		OccurredAt: time.Now().UnixMilli(),
		Route:      &RouteDetail{ID: id},
	}
}

// RoutesSynced builds a routes.synced event after a file sync.
func RoutesSynced(count int) Event {
	return Event{
		Kind:       KindRoutesSynced,
		OccurredAt: time.Now().UnixMilli(),
		Route:      &RouteDetail{Count: count},
	}
}

// ConnectionRouted builds a connection.routed event.
func ConnectionRouted(remoteAddr, mode string) Event {
	return Event{
		Kind:       KindConnectionRouted,
		OccurredAt: time.Now().UnixMilli(),
		Connection: &ConnectionDetail{RemoteAddr: remoteAddr, Mode: mode},
	}
}
