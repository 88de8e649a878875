package alias

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/getmasq/masq/internal/db"
)

var tokenPattern = regexp.MustCompile(`^tok_[0-9a-f]{32}$`)

func TestRedactCreatesThenReuses(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	store := NewStore(d)

	first, created, err := store.Redact(ctx, "4111 1111 1111 1111", SchemeUUID)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if !created {
		t.Error("first redact should create a record")
	}
	if !tokenPattern.MatchString(first.PublicAlias) {
		t.Errorf("public alias %q does not match the uuid scheme format", first.PublicAlias)
	}
	if first.GenerationScheme != SchemeUUID {
		t.Errorf("generation scheme = %q, want %q", first.GenerationScheme, SchemeUUID)
	}

	second, created, err := store.Redact(ctx, "4111 1111 1111 1111", SchemeUUID)
	if err != nil {
		t.Fatalf("second redact: %v", err)
	}
	if created {
		t.Error("second redact should reuse the existing record")
	}
	if second.PublicAlias != first.PublicAlias {
		t.Errorf("second redact returned %q, want %q", second.PublicAlias, first.PublicAlias)
	}
}

func TestRedactRevealRoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	store := NewVolatileStore(d, time.Hour)

	rec, _, err := store.Redact(ctx, "ssn 078-05-1120", SchemeUUID)
	if err != nil {
		t.Fatalf("redact: %v", err)
	}

	revealed, err := store.Reveal(ctx, rec.PublicAlias)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if revealed == nil || revealed.Value != "ssn 078-05-1120" {
		t.Fatalf("reveal returned %+v", revealed)
	}
}

func TestRevealUnknownAlias(t *testing.T) {
	d := openTestDB(t)
	got, err := NewStore(d).Reveal(context.Background(), "tok_00000000000000000000000000000000")
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if got != nil {
		t.Fatalf("reveal of unknown alias returned %+v", got)
	}
}

func TestRedactUnknownScheme(t *testing.T) {
	d := openTestDB(t)
	_, _, err := NewStore(d).Redact(context.Background(), "value", "NOPE")
	if err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}

func TestRedactValueHeldByExpiredRow(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	dead := NewVolatileStore(d, -1*time.Second)

	if _, _, err := dead.Redact(ctx, "held", SchemeUUID); err != nil {
		t.Fatalf("redact into expired row: %v", err)
	}

	// The value is still taken by the unswept expired row, and since the
	// row is invisible to lookups there is nothing to reuse.
	_, _, err := dead.Redact(ctx, "held", SchemeUUID)
	if !db.IsDuplicateKey(err) {
		t.Fatalf("redact over expired row error = %v, want duplicate-key", err)
	}

	if _, err := Cleanup(ctx, d); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	_, created, err := dead.Redact(ctx, "held", SchemeUUID)
	if err != nil {
		t.Fatalf("redact after cleanup: %v", err)
	}
	if !created {
		t.Error("redact after cleanup should create a fresh record")
	}
}
