package authcore

import (
	"context"
	"errors"
	"time"
)

// ChangePassword replaces the account's password after verifying the
// current one. The new password must match its confirmation and differ
// from the current password. On success every refresh token the account
// holds is revoked; all of its devices have to log in again.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, confirmPassword string) error {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrAccountNotFound
		}
		return infraErr(err)
	}
	if account.Deactivated {
		return ErrAccountDeactivated
	}

	ok, err := e.passwordHash.Verify(currentPassword, account.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "current_password_mismatch"}
		})
		return ErrInvalidCredentials
	}

	if err := e.checkNewPassword(&account, currentPassword, newPassword, confirmPassword); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, "", err, nil)
		return err
	}

	if err := e.rotateCredential(ctx, &account, newPassword); err != nil {
		if errors.Is(err, ErrPasswordPolicy) {
			e.metricInc(MetricPasswordChangeFailure)
			e.emitAudit(ctx, auditEventPasswordChangeFailure, false, account.ID, "", err, nil)
		}
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, account.ID, "", nil, nil)

	return nil
}

// checkNewPassword runs the shared validation of password change and
// reset: confirmation match and reuse rejection. It mutates nothing, so
// callers can order it before any destructive step.
func (e *Engine) checkNewPassword(account *Account, currentPassword, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if newPassword == currentPassword && currentPassword != "" {
		return ErrPasswordReuse
	}
	if account.PasswordHash != "" && currentPassword == "" {
		// Reset path has no current password in hand; compare against
		// the stored hash instead.
		if same, err := e.passwordHash.Verify(newPassword, account.PasswordHash); err == nil && same {
			return ErrPasswordReuse
		}
	}
	return nil
}

// rotateCredential replaces the stored hash after revoking every
// refresh token the account holds. The hash is computed up front so a
// policy rejection costs nothing; revocation runs before the store
// update so a storage failure leaves the account logged out under its
// old credential rather than logged in under a half-applied change.
func (e *Engine) rotateCredential(ctx context.Context, account *Account, newPassword string) error {
	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return errors.Join(ErrPasswordPolicy, err)
	}

	if err := e.LogoutAll(ctx, account.ID); err != nil {
		return err
	}

	if err := e.store.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return infraErr(err)
	}
	account.PasswordHash = hash

	return nil
}

// Deactivate soft-deletes the account after verifying its password and
// revokes all of its refresh tokens. The record stays readable through
// the configured grace window so an external sweep can purge it later;
// deactivating an already deactivated account is a no-op.
func (e *Engine) Deactivate(ctx context.Context, accountID, password string) error {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return ErrAccountNotFound
		}
		return infraErr(err)
	}

	ok, err := e.passwordHash.Verify(password, account.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventAccountDeactivated, false, account.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return ErrInvalidCredentials
	}

	if account.Deactivated {
		return nil
	}

	if err := e.store.MarkDeactivated(ctx, account.ID, e.now().UTC()); err != nil {
		return infraErr(err)
	}

	if err := e.LogoutAll(ctx, account.ID); err != nil {
		return err
	}

	e.metricInc(MetricDeactivation)
	e.emitAudit(ctx, auditEventAccountDeactivated, true, account.ID, "", nil, nil)

	return nil
}

// PurgeDeadline reports when a deactivated account becomes eligible for
// permanent removal by an external sweep. Returns false for active
// accounts.
func (e *Engine) PurgeDeadline(account Account) (time.Time, bool) {
	if !account.Deactivated || account.DeactivatedAt == nil {
		return time.Time{}, false
	}
	grace := time.Duration(e.config.Account.DeactivationGraceDays) * 24 * time.Hour
	return account.DeactivatedAt.Add(grace), true
}
