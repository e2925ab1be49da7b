package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequestPasswordResetSendsToken(t *testing.T) {
	store := newFakeStore()
	mail := &recordingMailer{}
	engine, _ := newTestEngine(t, store, withMailer(mail))
	registerTestAccount(t, engine, "alice@example.com", "pw123456")

	sent := mail.count() // registration confirmation mail

	raw, err := engine.RequestPasswordReset(context.Background(), "Alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if raw == "" {
		t.Fatal("expected a reset token")
	}
	if mail.count() != sent+1 {
		t.Fatalf("mailer sends = %d, want %d", mail.count(), sent+1)
	}
	if got := mail.last(); got.kind != KindReset || got.raw != raw {
		t.Fatalf("mail = %+v, want kind %q token %q", got, KindReset, raw)
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	store := newFakeStore()
	engine, _ := newTestEngine(t, store)

	if _, err := engine.RequestPasswordReset(context.Background(), "nobody@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("got %v, want ErrAccountNotFound", err)
	}
}

func TestRequestPasswordResetCooldown(t *testing.T) {
	store := newFakeStore()
	engine, clock := newTestEngine(t, store)
	registerTestAccount(t, engine, "alice@example.com", "pw123456")

	raw, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if _, err := engine.RequestPasswordReset(context.Background(), "alice@example.com"); !errors.Is(err, ErrTokenCooldown) {
		t.Fatalf("second request: got %v, want ErrTokenCooldown", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricTokenCooldown]; got != 1 {
		t.Fatalf("cooldown counter = %d, want 1", got)
	}

	// The refused reissue leaves the outstanding token usable.
	if err := engine.ResetPassword(context.Background(), "alice@example.com", raw, "newpw4567", "newpw4567"); err != nil {
		t.Fatalf("outstanding token rejected after refused reissue: %v", err)
	}

	// Consumption clears the slot, so the next request issues at once;
	// an unconsumed token instead has to expire first.
	if _, err := engine.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("request after consumption failed: %v", err)
	}
	if _, err := engine.RequestPasswordReset(context.Background(), "alice@example.com"); !errors.Is(err, ErrTokenCooldown) {
		t.Fatalf("got %v, want ErrTokenCooldown", err)
	}
	clock.Advance(31 * time.Minute)
	if _, err := engine.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("request after expiry failed: %v", err)
	}
}

func TestResetPasswordRotatesCredentialAndSessions(t *testing.T) {
	store := newFakeStore()
	engine, _ := newTestEngine(t, store)
	reg := registerTestAccount(t, engine, "alice@example.com", "pw123456")

	raw, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if err := engine.ResetPassword(context.Background(), "alice@example.com", raw, "newpw4567", "newpw4567"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Old credential is dead, new one works.
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "pw123456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "newpw4567"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	// All pre-reset sessions are revoked.
	if _, err := engine.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("pre-reset refresh token survived: %v", err)
	}

	// The reset token is single use.
	if err := engine.ResetPassword(context.Background(), "alice@example.com", raw, "another99", "another99"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("token replay: got %v, want ErrTokenInvalid", err)
	}
}

func TestResetPasswordWrongToken(t *testing.T) {
	store := newFakeStore()
	engine, _ := newTestEngine(t, store)
	registerTestAccount(t, engine, "alice@example.com", "pw123456")

	if _, err := engine.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	err := engine.ResetPassword(context.Background(), "alice@example.com", "bogus-token", "newpw4567", "newpw4567")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	store := newFakeStore()
	engine, clock := newTestEngine(t, store)
	registerTestAccount(t, engine, "alice@example.com", "pw123456")

	raw, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	clock.Advance(31 * time.Minute)

	if err := engine.ResetPassword(context.Background(), "alice@example.com", raw, "newpw4567", "newpw4567"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
}

func TestResetPasswordConfirmationMismatch(t *testing.T) {
	store := newFakeStore()
	engine, _ := newTestEngine(t, store)
	registerTestAccount(t, engine, "alice@example.com", "pw123456")

	raw, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	err = engine.ResetPassword(context.Background(), "alice@example.com", raw, "newpw4567", "different")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("got %v, want ErrPasswordMismatch", err)
	}

	// The mismatch must not burn the token: a corrected retry with the
	// same raw value succeeds.
	if err := engine.ResetPassword(context.Background(), "alice@example.com", raw, "newpw4567", "newpw4567"); err != nil {
		t.Fatalf("retry after mismatch failed: %v", err)
	}
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "newpw4567"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestResetPasswordRevokeFailureKeepsOldCredential(t *testing.T) {
	store := newFakeStore()
	mr, client := newTestRedis(t)
	clock := newTestClock()

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithStore(store).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	registerTestAccount(t, engine, "alice@example.com", "pw123456")

	raw, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	// Session revocation runs before the hash store; if it fails, the
	// credential must not have changed.
	mr.SetError("connection refused")
	err = engine.ResetPassword(context.Background(), "alice@example.com", raw, "newpw4567", "newpw4567")
	if err == nil {
		t.Fatal("expected failure while redis is down")
	}
	mr.SetError("")

	if store.updateHashCalls != 0 {
		t.Fatalf("UpdatePasswordHash calls = %d, want 0", store.updateHashCalls)
	}
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "pw123456"); err != nil {
		t.Fatalf("old password rejected after failed reset: %v", err)
	}
	if _, err := engine.Authenticate(context.Background(), "alice@example.com", "newpw4567"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("new password: got %v, want ErrInvalidCredentials", err)
	}
}

func TestResetPasswordRejectsCurrentPassword(t *testing.T) {
	store := newFakeStore()
	engine, _ := newTestEngine(t, store)
	registerTestAccount(t, engine, "alice@example.com", "pw123456")

	raw, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	err = engine.ResetPassword(context.Background(), "alice@example.com", raw, "pw123456", "pw123456")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("got %v, want ErrPasswordReuse", err)
	}
}
