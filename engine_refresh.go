package authcore

import (
	"context"
	"errors"

	"github.com/mkarlsen/authcore/internal"
	"github.com/mkarlsen/authcore/refresh"
)

// Refresh rotates a refresh token: the presented token is revoked and a
// brand new access/refresh pair is issued for its account. The revoke
// is an atomic compare-and-set, so under concurrent presentation of the
// same token exactly one caller wins; every other caller gets
// [ErrTokenInvalid]. Malformed, unknown, expired, and already-revoked
// tokens are deliberately indistinguishable.
//
// A failure after the revoke leaves the caller without a usable refresh
// token. That is the safe direction: the old token is dead either way
// and the account simply has to log in again.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.refreshStore == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	id, err := internal.ParseTokenID(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "malformed"}
		})
		return nil, ErrTokenInvalid
	}

	rec, err := e.refreshStore.Get(ctx, id.String())
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			e.metricInc(MetricRefreshInvalid)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", id.String(), ErrTokenInvalid, func() map[string]string {
				return map[string]string{"reason": "not_found"}
			})
			return nil, ErrTokenInvalid
		}
		return nil, infraErr(err)
	}

	err = e.refreshStore.Revoke(ctx, rec.ID, e.now(), clientIPFromContext(ctx))
	switch {
	case err == nil:
	case errors.Is(err, refresh.ErrAlreadyRevoked):
		// Either a replay of a rotated token or the losing side of a
		// concurrent refresh; the caller cannot tell which and neither
		// can we.
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, rec.AccountID, rec.ID, ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	case errors.Is(err, refresh.ErrNotFound):
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, rec.AccountID, rec.ID, ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "expired"}
		})
		return nil, ErrTokenInvalid
	default:
		return nil, infraErr(err)
	}

	account, err := e.store.AccountByID(ctx, rec.AccountID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			e.metricInc(MetricRefreshInvalid)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, rec.AccountID, rec.ID, ErrTokenInvalid, func() map[string]string {
				return map[string]string{"reason": "account_gone"}
			})
			return nil, ErrTokenInvalid
		}
		return nil, infraErr(err)
	}

	if account.Deactivated {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, account.ID, rec.ID, ErrAccountDeactivated, nil)
		return nil, ErrAccountDeactivated
	}

	access, newToken, err := e.issueSessionTokens(ctx, account)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAuditRotation(ctx, account.ID, rec.ID, newToken)

	return &LoginResult{
		Account:      account,
		AccessToken:  access,
		RefreshToken: newToken,
	}, nil
}

// ValidateRefreshToken reports whether a refresh token is currently
// usable by the given account, without consuming it. Foreign, unknown,
// revoked, and expired tokens all report [ErrTokenInvalid].
func (e *Engine) ValidateRefreshToken(ctx context.Context, accountID, refreshToken string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}

	rec, err := e.lookupOwnedToken(ctx, accountID, refreshToken)
	if err != nil {
		return err
	}
	if rec.Revoked || !e.now().Before(rec.ExpiresAt) {
		return ErrTokenInvalid
	}
	return nil
}

// Logout revokes a single refresh token owned by the account. A token
// that does not exist, is already revoked, or belongs to a different
// account reports [ErrTokenInvalid]; ownership failures are never
// distinguished from missing tokens.
func (e *Engine) Logout(ctx context.Context, accountID, refreshToken string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}

	rec, err := e.lookupOwnedToken(ctx, accountID, refreshToken)
	if err != nil {
		return err
	}

	err = e.refreshStore.Revoke(ctx, rec.ID, e.now(), clientIPFromContext(ctx))
	switch {
	case err == nil:
	case errors.Is(err, refresh.ErrAlreadyRevoked), errors.Is(err, refresh.ErrNotFound):
		return ErrTokenInvalid
	default:
		return infraErr(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, accountID, rec.ID, nil, nil)

	return nil
}

// LogoutAll revokes every live refresh token issued to the account.
// Idempotent; an account with no live tokens succeeds.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}

	if err := e.refreshStore.RevokeAllForAccount(ctx, accountID, e.now(), clientIPFromContext(ctx)); err != nil {
		return infraErr(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, accountID, "", nil, nil)

	return nil
}

func (e *Engine) lookupOwnedToken(ctx context.Context, accountID, refreshToken string) (*refresh.Record, error) {
	id, err := internal.ParseTokenID(refreshToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	rec, err := e.refreshStore.Get(ctx, id.String())
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, infraErr(err)
	}
	if rec.AccountID != accountID {
		return nil, ErrTokenInvalid
	}

	return rec, nil
}
