package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if len(key.Prefix) != prefixLength {
		t.Errorf("prefix length = %d, want %d", len(key.Prefix), prefixLength)
	}
	for _, c := range key.Prefix {
		if !isAlphanumeric(c) {
			t.Errorf("prefix contains non-alphanumeric character: %c", c)
		}
	}

	expectedStart := "masq_" + key.Prefix + "_"
	if !strings.HasPrefix(key.Display, expectedStart) {
		t.Errorf("display key %q does not start with %q", key.Display, expectedStart)
	}

	// base62 encoding of 32 bytes is ~43 chars
	secret := strings.TrimPrefix(key.Display, expectedStart)
	if len(secret) < 40 || len(secret) > 44 {
		t.Errorf("secret length = %d, want 40-44 (base62 of 32 bytes)", len(secret))
	}
	for _, c := range secret {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			t.Errorf("secret contains invalid character: %c", c)
		}
	}

	if len(key.Hash) != 32 {
		t.Errorf("hash length = %d, want 32 (SHA256)", len(key.Hash))
	}
}

func TestHashSecretDeterministic(t *testing.T) {
	secret := "test-secret-value"

	hash1 := HashSecret(secret)
	hash2 := HashSecret(secret)
	if string(hash1) != string(hash2) {
		t.Error("HashSecret is not deterministic")
	}

	hash3 := HashSecret("different-secret")
	if string(hash1) == string(hash3) {
		t.Error("HashSecret should produce different results with different secret")
	}
}

func TestVerifyAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if !VerifyAPIKey(key.Display, key.Hash) {
		t.Error("VerifyAPIKey should return true for valid key")
	}
	if VerifyAPIKey("masq_invalid12345a_key", key.Hash) {
		t.Error("VerifyAPIKey should return false for invalid key")
	}

	wrongHash := make([]byte, 32)
	if VerifyAPIKey(key.Display, wrongHash) {
		t.Error("VerifyAPIKey should return false with wrong hash")
	}
}

func TestParseAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		wantPre string
		wantSec string
	}{
		{
			name:    "valid key",
			input:   "masq_abcdef123456_somesecretvalue123",
			wantErr: false,
			wantPre: "abcdef123456",
			wantSec: "somesecretvalue123",
		},
		{
			name:    "missing service prefix",
			input:   "abcdef123456_somesecretvalue123",
			wantErr: true,
		},
		{
			name:    "wrong service prefix",
			input:   "stripe_abcdef123456_somesecretvalue123",
			wantErr: true,
		},
		{
			name:    "no separator",
			input:   "masq_noseparatorhere",
			wantErr: true,
		},
		{
			name:    "prefix too short",
			input:   "masq_short_secret",
			wantErr: true,
		},
		{
			name:    "prefix too long",
			input:   "masq_abcdef1234567_secret",
			wantErr: true,
		},
		{
			name:    "uppercase in prefix",
			input:   "masq_ABCDEF123456_secret",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, secret, err := ParseAPIKey(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("ParseAPIKey should return error")
				}
				return
			}
			if err != nil {
				t.Errorf("ParseAPIKey failed: %v", err)
				return
			}
			if prefix != tt.wantPre {
				t.Errorf("prefix = %q, want %q", prefix, tt.wantPre)
			}
			if secret != tt.wantSec {
				t.Errorf("secret = %q, want %q", secret, tt.wantSec)
			}
		})
	}
}
