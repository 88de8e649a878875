package routes

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/getmasq/masq/internal/db"
	"github.com/getmasq/masq/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "masq.sqlite"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const sampleRoutes = `routes:
  - id: upstream-override
    direction: INBOUND
    destination_override_endpoint: "10.0.0.5:8443"
    rules:
      - phase: request
        action: redact
        store: PERSISTENT
        scheme: UUID
        transformer: json
        targets: ["card.number"]
  - direction: OUTBOUND
  - id: bare-inbound
`

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "routes.yml", sampleRoutes)

	rs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rs) != 3 {
		t.Fatalf("loaded %d routes, want 3", len(rs))
	}

	first := rs[0]
	if first.ID != "upstream-override" {
		t.Errorf("id = %q", first.ID)
	}
	if first.Direction != models.DirectionInbound {
		t.Errorf("direction = %q", first.Direction)
	}
	if first.OverrideEndpoint() != "10.0.0.5:8443" {
		t.Errorf("override = %q", first.OverrideEndpoint())
	}
	if len(first.Rules) != 1 || first.Rules[0].Transformer != "json" {
		t.Errorf("rules = %+v", first.Rules)
	}
	if len(first.Rules) == 1 && len(first.Rules[0].Targets) != 1 {
		t.Errorf("rule targets = %+v", first.Rules[0].Targets)
	}

	if rs[1].ID == "" {
		t.Error("missing id was not generated")
	}
	if rs[1].Direction != models.DirectionOutbound {
		t.Errorf("second direction = %q", rs[1].Direction)
	}

	if rs[2].Direction != models.DirectionInbound {
		t.Errorf("default direction = %q, want INBOUND", rs[2].Direction)
	}
	if rs[2].OverrideEndpoint() != "" {
		t.Errorf("bare route has override %q", rs[2].OverrideEndpoint())
	}
}

func TestLoadFileEmpty(t *testing.T) {
	path := writeFile(t, t.TempDir(), "routes.yml", "")
	rs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load empty file: %v", err)
	}
	if len(rs) != 0 {
		t.Fatalf("loaded %d routes from empty file", len(rs))
	}
}

func TestLoadFileBadDirection(t *testing.T) {
	path := writeFile(t, t.TempDir(), "routes.yml", "routes:\n  - direction: SIDEWAYS\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestLoadFileBadSyntax(t *testing.T) {
	path := writeFile(t, t.TempDir(), "routes.yml", "routes: [whoops\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSyncReplacesRouteSet(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	stale := &models.Route{ID: "stale", Direction: models.DirectionInbound}
	if err := db.InsertRoute(ctx, d, stale); err != nil {
		t.Fatalf("insert stale route: %v", err)
	}

	dir := t.TempDir()
	path := writeFile(t, dir, "routes.yml", sampleRoutes)
	rs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Sync(ctx, d, rs); err != nil {
		t.Fatalf("sync: %v", err)
	}

	stored, err := db.ListRoutes(ctx, d)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("stored %d routes, want 3", len(stored))
	}
	if stored[0].ID != "upstream-override" {
		t.Errorf("first stored route = %q, file order not preserved", stored[0].ID)
	}
	for _, r := range stored {
		if r.ID == "stale" {
			t.Error("stale route survived sync")
		}
	}
}
