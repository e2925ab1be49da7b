package authcore

import (
	"context"
	"time"

	"github.com/mkarlsen/authcore/internal"
)

// ephemeralTTL returns the configured lifetime for a token kind.
func (e *Engine) ephemeralTTL(kind TokenKind) (time.Duration, bool) {
	switch kind {
	case KindConfirmation:
		return e.config.Ephemeral.ConfirmationTTL, true
	case KindReset:
		return e.config.Ephemeral.ResetTTL, true
	default:
		return 0, false
	}
}

func (e *Engine) tokenSlot(account *Account, kind TokenKind) **TokenDigest {
	if kind == KindReset {
		return &account.ResetToken
	}
	return &account.ConfirmationToken
}

// issueEphemeralToken mints a single-use token for the account, stores
// its digest, and returns the raw value. While the previous token of
// the same kind is still unexpired, reissue is refused with
// [ErrTokenCooldown]; the token TTL doubles as the reissue cooldown.
// The account's in-memory slot is updated to match storage.
func (e *Engine) issueEphemeralToken(ctx context.Context, account *Account, kind TokenKind) (string, error) {
	ttl, ok := e.ephemeralTTL(kind)
	if !ok {
		return "", ErrTokenInvalid
	}

	now := e.now()
	slot := e.tokenSlot(account, kind)
	if existing := *slot; existing != nil && now.Before(existing.ExpiresAt) {
		e.metricInc(MetricTokenCooldown)
		return "", ErrTokenCooldown
	}

	raw, digest, err := internal.NewEphemeralToken()
	if err != nil {
		return "", infraErr(err)
	}

	stored := TokenDigest{
		Digest:    digest,
		ExpiresAt: now.Add(ttl).UTC(),
	}
	if err := e.store.SetEphemeralDigest(ctx, account.ID, kind, stored); err != nil {
		return "", infraErr(err)
	}
	*slot = &stored

	return raw, nil
}

// consumeEphemeralToken validates a raw token against the account's
// stored digest and clears the slot on success. Missing, expired, and
// mismatched tokens all report [ErrTokenInvalid]; a cleared slot means
// the token can never be presented twice.
func (e *Engine) consumeEphemeralToken(ctx context.Context, account *Account, kind TokenKind, raw string) error {
	slot := e.tokenSlot(account, kind)
	stored := *slot
	if stored == nil {
		return ErrTokenInvalid
	}
	if !e.now().Before(stored.ExpiresAt) {
		return ErrTokenInvalid
	}
	if !internal.DigestsEqual(stored.Digest, internal.DigestEphemeralToken(raw)) {
		return ErrTokenInvalid
	}

	if err := e.store.ClearEphemeralDigest(ctx, account.ID, kind); err != nil {
		return infraErr(err)
	}
	*slot = nil

	return nil
}
