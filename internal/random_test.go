package internal

import (
	"strings"
	"testing"
)

func TestTokenIDRoundtrip(t *testing.T) {
	id, err := NewTokenID()
	if err != nil {
		t.Fatalf("NewTokenID failed: %v", err)
	}

	encoded := id.String()
	if len(encoded) != 22 {
		t.Fatalf("encoded length = %d, want 22", len(encoded))
	}
	if strings.ContainsAny(encoded, "+/=") {
		t.Fatalf("not base64url: %q", encoded)
	}

	parsed, err := ParseTokenID(encoded)
	if err != nil {
		t.Fatalf("ParseTokenID failed: %v", err)
	}
	if parsed != id {
		t.Fatalf("roundtrip mismatch: %v != %v", parsed, id)
	}
}

func TestTokenIDsAreUnique(t *testing.T) {
	seen := make(map[TokenID]bool)
	for i := 0; i < 100; i++ {
		id, err := NewTokenID()
		if err != nil {
			t.Fatalf("NewTokenID failed: %v", err)
		}
		if seen[id] {
			t.Fatal("duplicate token ID")
		}
		seen[id] = true
	}
}

func TestParseTokenIDRejections(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not base64", "!!!not-valid!!!"},
		{"too short", "AAAA"},
		{"too long", strings.Repeat("A", 44)},
		{"standard alphabet", "abcd+fghijklmnopqrst/w"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTokenID(tc.token); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestEphemeralTokenDigests(t *testing.T) {
	raw, digest, err := NewEphemeralToken()
	if err != nil {
		t.Fatalf("NewEphemeralToken failed: %v", err)
	}
	if len(raw) != 43 {
		t.Fatalf("raw length = %d, want 43", len(raw))
	}

	if !DigestsEqual(digest, DigestEphemeralToken(raw)) {
		t.Fatal("digest of raw token does not match issued digest")
	}
	if DigestsEqual(digest, DigestEphemeralToken(raw+"x")) {
		t.Fatal("digest matched a different value")
	}

	raw2, digest2, err := NewEphemeralToken()
	if err != nil {
		t.Fatalf("NewEphemeralToken failed: %v", err)
	}
	if raw == raw2 || DigestsEqual(digest, digest2) {
		t.Fatal("two issued tokens must differ")
	}
}
