package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/getmasq/masq/internal/models"
)

func strPtr(s string) *string { return &s }

func makeRoute(dir models.RouteDirection, endpoint string) *models.Route {
	r := &models.Route{
		ID:        uuid.NewString(),
		Direction: dir,
		CreatedAt: time.Now().UnixMilli(),
	}
	if endpoint != "" {
		r.DestinationOverrideEndpoint = strPtr(endpoint)
	}
	return r
}

func TestInsertRouteAssignsRanks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var ids []string
	for i, endpoint := range []string{"one.test:443", "two.test:443", "three.test:443"} {
		r := makeRoute(models.DirectionInbound, endpoint)
		if err := InsertRoute(ctx, db, r); err != nil {
			t.Fatalf("InsertRoute failed: %v", err)
		}
		if r.Rank != int64(i+1) {
			t.Errorf("expected rank %d, got %d", i+1, r.Rank)
		}
		ids = append(ids, r.ID)
	}

	routes, err := ListRoutes(ctx, db)
	if err != nil {
		t.Fatalf("ListRoutes failed: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(routes))
	}
	for i, r := range routes {
		if r.ID != ids[i] {
			t.Errorf("position %d: expected route %s, got %s", i, ids[i], r.ID)
		}
	}
}

func TestListRoutesByDirection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	in := makeRoute(models.DirectionInbound, "upstream.test:8443")
	out := makeRoute(models.DirectionOutbound, "")
	for _, r := range []*models.Route{in, out} {
		if err := InsertRoute(ctx, db, r); err != nil {
			t.Fatalf("InsertRoute failed: %v", err)
		}
	}

	inbound, err := ListRoutesByDirection(ctx, db, models.DirectionInbound)
	if err != nil {
		t.Fatalf("ListRoutesByDirection failed: %v", err)
	}
	if len(inbound) != 1 || inbound[0].ID != in.ID {
		t.Errorf("expected only the inbound route, got %d routes", len(inbound))
	}
	if inbound[0].OverrideEndpoint() != "upstream.test:8443" {
		t.Errorf("expected override endpoint round-trip, got %q", inbound[0].OverrideEndpoint())
	}

	none, err := ListRoutesByDirection(ctx, db, models.RouteDirection("SIDEWAYS"))
	if err != nil {
		t.Fatalf("ListRoutesByDirection failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected empty result for unknown direction, got %d", len(none))
	}
}

func TestRouteRulesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r := makeRoute(models.DirectionInbound, "")
	r.Rules = []models.RewriteRule{
		{
			Phase:       models.PhaseRequest,
			Action:      models.ActionRedact,
			Store:       models.StoreVolatile,
			Scheme:      "UUID",
			Transformer: "json",
			Targets:     []string{"card.number", "card.cvc"},
		},
		{
			Phase:       models.PhaseResponse,
			Action:      models.ActionReveal,
			Transformer: "regex",
			Targets:     []string{`tok_[0-9a-f]{32}`},
		},
	}
	if err := InsertRoute(ctx, db, r); err != nil {
		t.Fatalf("InsertRoute failed: %v", err)
	}

	got, err := GetRoute(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected route, got nil")
	}
	if len(got.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got.Rules))
	}
	if got.Rules[0].Action != models.ActionRedact || got.Rules[0].Targets[1] != "card.cvc" {
		t.Errorf("first rule did not round-trip: %+v", got.Rules[0])
	}
	if got.Rules[1].Phase != models.PhaseResponse {
		t.Errorf("second rule did not round-trip: %+v", got.Rules[1])
	}
}

func TestGetRouteAbsent(t *testing.T) {
	db := openTestDB(t)

	got, err := GetRoute(context.Background(), db, uuid.NewString())
	if err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent route, got %+v", got)
	}
}

func TestDeleteRoute(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r := makeRoute(models.DirectionInbound, "")
	if err := InsertRoute(ctx, db, r); err != nil {
		t.Fatalf("InsertRoute failed: %v", err)
	}

	deleted, err := DeleteRoute(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("DeleteRoute failed: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report a removed row")
	}

	deleted, err = DeleteRoute(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("second DeleteRoute failed: %v", err)
	}
	if deleted {
		t.Error("expected second delete to report no removed row")
	}
}

func TestReplaceRoutes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	stale := makeRoute(models.DirectionInbound, "stale.test:443")
	if err := InsertRoute(ctx, db, stale); err != nil {
		t.Fatalf("InsertRoute failed: %v", err)
	}

	fresh := []*models.Route{
		makeRoute(models.DirectionInbound, "a.test:443"),
		makeRoute(models.DirectionInbound, "b.test:443"),
	}
	if err := ReplaceRoutes(ctx, db, fresh); err != nil {
		t.Fatalf("ReplaceRoutes failed: %v", err)
	}

	routes, err := ListRoutes(ctx, db)
	if err != nil {
		t.Fatalf("ListRoutes failed: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes after replace, got %d", len(routes))
	}
	if routes[0].ID != fresh[0].ID || routes[1].ID != fresh[1].ID {
		t.Error("expected replaced routes in file order")
	}
	if routes[0].Rank != 1 || routes[1].Rank != 2 {
		t.Errorf("expected ranks 1,2 got %d,%d", routes[0].Rank, routes[1].Rank)
	}

	got, err := GetRoute(ctx, db, stale.ID)
	if err != nil {
		t.Fatalf("GetRoute failed: %v", err)
	}
	if got != nil {
		t.Error("expected stale route to be gone after replace")
	}
}
