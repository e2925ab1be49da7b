package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func hs256Config() Config {
	return Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("unit-test-signing-secret"),
		Issuer:        "authcore-test",
		Audience:      "api",
	}
}

func TestHS256Roundtrip(t *testing.T) {
	mgr, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := mgr.CreateAccess(AccessClaims{
		AccountID:      "42",
		UID:            "uid-42",
		Name:           "Alice",
		Role:           "user",
		EmailConfirmed: true,
	})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	claims, err := mgr.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.AccountID != "42" || claims.UID != "uid-42" || claims.Role != "user" {
		t.Fatalf("claims = %+v", claims)
	}
	if !claims.EmailConfirmed {
		t.Error("EmailConfirmed not carried")
	}
	if claims.Subject != "42" {
		t.Errorf("Subject = %q, want account ID", claims.Subject)
	}
	if claims.Issuer != "authcore-test" {
		t.Errorf("Issuer = %q", claims.Issuer)
	}
}

func TestExpiry(t *testing.T) {
	current := time.Now()
	cfg := hs256Config()
	cfg.Now = func() time.Time { return current }

	mgr, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	token, err := mgr.CreateAccess(AccessClaims{AccountID: "42", Role: "user"})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	current = current.Add(14 * time.Minute)
	if _, err := mgr.ParseAccess(token); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := mgr.ParseAccess(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestLeewayToleratesSkew(t *testing.T) {
	current := time.Now()
	cfg := hs256Config()
	cfg.Leeway = 30 * time.Second
	cfg.Now = func() time.Time { return current }

	mgr, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	token, err := mgr.CreateAccess(AccessClaims{AccountID: "42", Role: "user"})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	current = current.Add(15*time.Minute + 10*time.Second)
	if _, err := mgr.ParseAccess(token); err != nil {
		t.Fatalf("token within leeway rejected: %v", err)
	}

	current = current.Add(time.Minute)
	if _, err := mgr.ParseAccess(token); err == nil {
		t.Fatal("token beyond leeway accepted")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	mgr, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	token, err := mgr.CreateAccess(AccessClaims{AccountID: "42", Role: "user"})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := mgr.ParseAccess(tampered); err == nil {
		t.Fatal("tampered signature accepted")
	}

	// A token signed with a different secret is rejected too.
	otherCfg := hs256Config()
	otherCfg.PrivateKey = []byte("some-other-secret-material")
	other, err := NewManager(otherCfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	foreign, err := other.CreateAccess(AccessClaims{AccountID: "42", Role: "user"})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := mgr.ParseAccess(foreign); err == nil {
		t.Fatal("foreign-key token accepted")
	}
}

func TestWrongIssuerAndAudienceRejected(t *testing.T) {
	mgr, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	otherCfg := hs256Config()
	otherCfg.Issuer = "someone-else"
	other, err := NewManager(otherCfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	token, err := other.CreateAccess(AccessClaims{AccountID: "42", Role: "user"})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := mgr.ParseAccess(token); err == nil {
		t.Fatal("wrong-issuer token accepted")
	}
}

func TestEd25519Roundtrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	mgr, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := mgr.CreateAccess(AccessClaims{AccountID: "42", Role: "admin"})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	claims, err := mgr.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.AccountID != "42" || claims.Role != "admin" {
		t.Fatalf("claims = %+v", claims)
	}

	// Tokens from an unrelated key pair do not verify.
	otherPub, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	other, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    otherPriv,
		PublicKey:     otherPub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	foreign, err := other.CreateAccess(AccessClaims{AccountID: "42", Role: "admin"})
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	if _, err := mgr.ParseAccess(foreign); err == nil {
		t.Fatal("foreign-key token accepted")
	}
}

func TestNewManagerValidation(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero ttl", Config{SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{"negative leeway", Config{AccessTTL: time.Minute, Leeway: -time.Second, SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{"excessive leeway", Config{AccessTTL: time.Minute, Leeway: 3 * time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{"hs256 without key", Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}},
		{"ed25519 without public key", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519}},
		{"ed25519 bad public key", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: []byte("short")}},
		{"ed25519 bad private key", Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: []byte("bad"), PublicKey: pub}},
		{"unknown method", Config{AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}
