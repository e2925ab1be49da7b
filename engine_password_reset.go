package authcore

import (
	"context"
	"errors"
)

// RequestPasswordReset issues a fresh reset token for the account and
// hands its raw value to the configured [Mailer]. While the previous
// reset token is still unexpired the request is refused with
// [ErrTokenCooldown], which caps how fast an attacker can mint reset
// mails for someone else's address.
//
// As with confirmation requests, public endpoints should present
// [ErrAccountNotFound] identically to success.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	account, err := e.accountByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if account.Deactivated {
		return "", ErrAccountDeactivated
	}

	raw, err := e.issueEphemeralToken(ctx, &account, KindReset)
	if err != nil {
		if errors.Is(err, ErrTokenCooldown) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, account.ID, "", ErrTokenCooldown, nil)
		}
		return "", err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, account.ID, "", nil, nil)

	if e.mailer != nil {
		if err := e.mailer.Send(ctx, account, KindReset, raw); err != nil {
			return raw, infraErr(err)
		}
	}

	return raw, nil
}

// ResetPassword consumes a reset token and installs the new password.
// The token is single use; wrong, expired, consumed, and replayed
// values all report [ErrTokenInvalid]. A successful reset revokes every
// refresh token the account holds.
func (e *Engine) ResetPassword(ctx context.Context, email, rawToken, newPassword, confirmPassword string) error {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	account, err := e.accountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.Deactivated {
		return ErrAccountDeactivated
	}

	// Validate the replacement before touching the token: a typo'd
	// confirmation must not burn a single-use reset token.
	if err := e.checkNewPassword(&account, "", newPassword, confirmPassword); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, account.ID, "", err, nil)
		return err
	}

	if err := e.consumeEphemeralToken(ctx, &account, KindReset, rawToken); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, account.ID, "", err, nil)
		return err
	}

	if err := e.rotateCredential(ctx, &account, newPassword); err != nil {
		if errors.Is(err, ErrPasswordPolicy) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, account.ID, "", err, nil)
		}
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, account.ID, "", nil, nil)

	return nil
}
