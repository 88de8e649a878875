package db

import (
	"context"
	"testing"
	"time"

	"github.com/getmasq/masq/internal/auth"
)

func TestAPIKeyLifecycle(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	count, err := CountAPIKeys(ctx, d)
	if err != nil {
		t.Fatalf("CountAPIKeys failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("fresh database has %d keys, want 0", count)
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	label := "ci"
	if _, err := CreateAPIKey(ctx, d, key.Prefix, key.Hash, &label); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	count, err = CountAPIKeys(ctx, d)
	if err != nil {
		t.Fatalf("CountAPIKeys failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("count after create = %d, want 1", count)
	}

	stored, err := GetAPIKeyByPrefix(ctx, d, key.Prefix)
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix failed: %v", err)
	}
	if stored == nil {
		t.Fatal("GetAPIKeyByPrefix returned nil for a stored key")
	}
	if stored.Label == nil || *stored.Label != "ci" {
		t.Errorf("stored label = %v, want ci", stored.Label)
	}
	if stored.RevokedAt != nil {
		t.Errorf("fresh key has RevokedAt = %v, want nil", *stored.RevokedAt)
	}
	if !auth.VerifyAPIKey(key.Display, stored.KeyHash) {
		t.Error("stored hash does not verify against the display key")
	}
}

func TestGetAPIKeyByPrefixMissing(t *testing.T) {
	d := openTestDB(t)

	stored, err := GetAPIKeyByPrefix(context.Background(), d, "nosuchprefix")
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix failed: %v", err)
	}
	if stored != nil {
		t.Fatalf("GetAPIKeyByPrefix returned %+v for a missing prefix, want nil", stored)
	}
}

func TestRevokeAPIKey(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	key, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if _, err := CreateAPIKey(ctx, d, key.Prefix, key.Hash, nil); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	revoked, err := RevokeAPIKey(ctx, d, key.Prefix)
	if err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}
	if !revoked {
		t.Fatal("RevokeAPIKey reported no match for a live key")
	}

	stored, err := GetAPIKeyByPrefix(ctx, d, key.Prefix)
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix failed: %v", err)
	}
	if stored == nil || stored.RevokedAt == nil {
		t.Fatal("revoked key lost or missing RevokedAt")
	}
	if now := time.Now().UnixMilli(); *stored.RevokedAt > now {
		t.Errorf("RevokedAt = %d is in the future (now %d)", *stored.RevokedAt, now)
	}

	count, err := CountAPIKeys(ctx, d)
	if err != nil {
		t.Fatalf("CountAPIKeys failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count after revoke = %d, want 0", count)
	}

	revoked, err = RevokeAPIKey(ctx, d, key.Prefix)
	if err != nil {
		t.Fatalf("second RevokeAPIKey failed: %v", err)
	}
	if revoked {
		t.Error("second revoke reported a match, want none")
	}
}

func TestListAPIKeys(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	keys, err := ListAPIKeys(ctx, d)
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("fresh database lists %d keys, want 0", len(keys))
	}

	first, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if _, err := CreateAPIKey(ctx, d, first.Prefix, first.Hash, nil); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	second, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if _, err := CreateAPIKey(ctx, d, second.Prefix, second.Hash, nil); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	if _, err := RevokeAPIKey(ctx, d, first.Prefix); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	keys, err = ListAPIKeys(ctx, d)
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("listed %d keys, want 2 (revoked keys stay listed)", len(keys))
	}
	if keys[0].KeyPrefix != first.Prefix || keys[1].KeyPrefix != second.Prefix {
		t.Errorf("list order = %s, %s, want %s, %s",
			keys[0].KeyPrefix, keys[1].KeyPrefix, first.Prefix, second.Prefix)
	}
	if keys[0].RevokedAt == nil {
		t.Error("first key should be revoked")
	}
	if keys[1].RevokedAt != nil {
		t.Error("second key should not be revoked")
	}
}
