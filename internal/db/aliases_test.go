package db

import (
	"context"
	"testing"
	"time"

	"github.com/getmasq/masq/internal/models"
)

func msPtr(ms int64) *int64 { return &ms }

func TestInsertAndGetAlias(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	a := &models.Alias{
		Value:            "4111-1111-1111-1111",
		PublicAlias:      "tok_abc",
		GenerationScheme: "UUID",
		CreatedAt:        now,
	}
	if err := InsertAlias(ctx, db, a); err != nil {
		t.Fatalf("InsertAlias failed: %v", err)
	}
	if a.ID == 0 {
		t.Error("expected assigned ID after insert")
	}

	got, err := GetAliasByValue(ctx, db, "4111-1111-1111-1111", now)
	if err != nil {
		t.Fatalf("GetAliasByValue failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected alias, got nil")
	}
	if got.PublicAlias != "tok_abc" {
		t.Errorf("expected public alias tok_abc, got %s", got.PublicAlias)
	}
	if got.ExpiresAt != nil {
		t.Errorf("expected nil expiry, got %d", *got.ExpiresAt)
	}

	got, err = GetAliasByAlias(ctx, db, "tok_abc", now)
	if err != nil {
		t.Fatalf("GetAliasByAlias failed: %v", err)
	}
	if got == nil || got.Value != "4111-1111-1111-1111" {
		t.Errorf("expected value lookup round-trip, got %+v", got)
	}
}

func TestGetAliasWrongKeySpace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	a := &models.Alias{Value: "secret", PublicAlias: "tok_1", GenerationScheme: "UUID", CreatedAt: now}
	if err := InsertAlias(ctx, db, a); err != nil {
		t.Fatalf("InsertAlias failed: %v", err)
	}

	// A public alias is not findable through the value lookup and vice versa.
	got, err := GetAliasByValue(ctx, db, "tok_1", now)
	if err != nil {
		t.Fatalf("GetAliasByValue failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for alias string in value lookup, got %+v", got)
	}

	got, err = GetAliasByAlias(ctx, db, "secret", now)
	if err != nil {
		t.Fatalf("GetAliasByAlias failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for value string in alias lookup, got %+v", got)
	}
}

func TestGetAliasSkipsExpiredRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	expired := &models.Alias{
		Value:            "old",
		PublicAlias:      "tok_old",
		GenerationScheme: "UUID",
		CreatedAt:        now - 1000,
		ExpiresAt:        msPtr(now - 1),
	}
	if err := InsertAlias(ctx, db, expired); err != nil {
		t.Fatalf("InsertAlias failed: %v", err)
	}

	got, err := GetAliasByValue(ctx, db, "old", now)
	if err != nil {
		t.Fatalf("GetAliasByValue failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected expired row to be invisible, got %+v", got)
	}

	got, err = GetAliasByAlias(ctx, db, "tok_old", now)
	if err != nil {
		t.Fatalf("GetAliasByAlias failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected expired row to be invisible, got %+v", got)
	}

	// Still visible one millisecond before expiry.
	got, err = GetAliasByValue(ctx, db, "old", now-2)
	if err != nil {
		t.Fatalf("GetAliasByValue failed: %v", err)
	}
	if got == nil {
		t.Error("expected row to be visible before its expiry")
	}
}

func TestInsertAliasDuplicates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	first := &models.Alias{Value: "v", PublicAlias: "tok_a", GenerationScheme: "UUID", CreatedAt: now}
	if err := InsertAlias(ctx, db, first); err != nil {
		t.Fatalf("InsertAlias failed: %v", err)
	}

	dupValue := &models.Alias{Value: "v", PublicAlias: "tok_b", GenerationScheme: "UUID", CreatedAt: now}
	err := InsertAlias(ctx, db, dupValue)
	if !IsDuplicateKey(err) {
		t.Errorf("expected duplicate key error for value, got %v", err)
	}

	dupAlias := &models.Alias{Value: "w", PublicAlias: "tok_a", GenerationScheme: "UUID", CreatedAt: now}
	err = InsertAlias(ctx, db, dupAlias)
	if !IsDuplicateKey(err) {
		t.Errorf("expected duplicate key error for public alias, got %v", err)
	}
}

func TestInsertAliasDuplicateOfExpired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	expired := &models.Alias{
		Value:            "v",
		PublicAlias:      "tok_a",
		GenerationScheme: "UUID",
		CreatedAt:        now - 1000,
		ExpiresAt:        msPtr(now - 1),
	}
	if err := InsertAlias(ctx, db, expired); err != nil {
		t.Fatalf("InsertAlias failed: %v", err)
	}

	// Expired rows still hold their unique slots until swept.
	again := &models.Alias{Value: "v", PublicAlias: "tok_b", GenerationScheme: "UUID", CreatedAt: now}
	err := InsertAlias(ctx, db, again)
	if !IsDuplicateKey(err) {
		t.Errorf("expected duplicate key error against expired row, got %v", err)
	}

	if _, err := DeleteExpiredAliases(ctx, db, now); err != nil {
		t.Fatalf("DeleteExpiredAliases failed: %v", err)
	}
	if err := InsertAlias(ctx, db, again); err != nil {
		t.Errorf("expected insert to succeed after sweep, got %v", err)
	}
}

func TestDeleteExpiredAliases(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	rows := []*models.Alias{
		{Value: "persistent", PublicAlias: "tok_p", GenerationScheme: "UUID", CreatedAt: now},
		{Value: "live", PublicAlias: "tok_l", GenerationScheme: "UUID", CreatedAt: now, ExpiresAt: msPtr(now + 60_000)},
		{Value: "dead", PublicAlias: "tok_d", GenerationScheme: "UUID", CreatedAt: now, ExpiresAt: msPtr(now - 1)},
		{Value: "borderline", PublicAlias: "tok_bl", GenerationScheme: "UUID", CreatedAt: now, ExpiresAt: msPtr(now)},
	}
	for _, a := range rows {
		if err := InsertAlias(ctx, db, a); err != nil {
			t.Fatalf("InsertAlias(%s) failed: %v", a.Value, err)
		}
	}

	// expires_at <= now is removed: both the past row and the borderline row.
	count, err := DeleteExpiredAliases(ctx, db, now)
	if err != nil {
		t.Fatalf("DeleteExpiredAliases failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 removed rows, got %d", count)
	}

	count, err = DeleteExpiredAliases(ctx, db, now)
	if err != nil {
		t.Fatalf("second DeleteExpiredAliases failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 removed rows on second sweep, got %d", count)
	}

	for _, value := range []string{"persistent", "live"} {
		got, err := GetAliasByValue(ctx, db, value, now)
		if err != nil {
			t.Fatalf("GetAliasByValue(%s) failed: %v", value, err)
		}
		if got == nil {
			t.Errorf("expected %s row to survive the sweep", value)
		}
	}
}
