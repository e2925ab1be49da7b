package authcore

import (
	"context"
	"errors"
	"strings"
)

// RequestEmailConfirmation issues a fresh confirmation token for the
// account and hands its raw value to the configured [Mailer]. While the
// previous confirmation token is still unexpired the request is refused
// with [ErrTokenCooldown]. An already confirmed account gets no token
// and no error.
//
// Callers exposing this over a public endpoint should present
// [ErrAccountNotFound] identically to success so the endpoint cannot be
// used to probe which emails are registered.
func (e *Engine) RequestEmailConfirmation(ctx context.Context, email string) (string, error) {
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
	if account.EmailConfirmed {
		return "", nil
	}

	raw, err := e.issueEphemeralToken(ctx, &account, KindConfirmation)
	if err != nil {
		if errors.Is(err, ErrTokenCooldown) {
			e.emitAudit(ctx, auditEventConfirmationRequest, false, account.ID, "", ErrTokenCooldown, nil)
		}
		return "", err
	}

	e.metricInc(MetricConfirmationRequest)
	e.emitAudit(ctx, auditEventConfirmationRequest, true, account.ID, "", nil, nil)

	if e.mailer != nil {
		if err := e.mailer.Send(ctx, account, KindConfirmation, raw); err != nil {
			return raw, infraErr(err)
		}
	}

	return raw, nil
}

// ConfirmEmail consumes a confirmation token and marks the account's
// email as confirmed. The token is single use: wrong, expired, and
// already consumed values all report [ErrTokenInvalid], and a replay of
// a consumed value can never succeed.
func (e *Engine) ConfirmEmail(ctx context.Context, email, rawToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	account, err := e.accountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.Deactivated {
		return ErrAccountDeactivated
	}

	if err := e.consumeEphemeralToken(ctx, &account, KindConfirmation, rawToken); err != nil {
		e.metricInc(MetricConfirmationFailure)
		e.emitAudit(ctx, auditEventConfirmationFailure, false, account.ID, "", err, nil)
		return err
	}

	if !account.EmailConfirmed {
		if err := e.store.MarkEmailConfirmed(ctx, account.ID); err != nil {
			return infraErr(err)
		}
	}

	e.metricInc(MetricConfirmationSuccess)
	e.emitAudit(ctx, auditEventConfirmationConfirm, true, account.ID, "", nil, nil)

	return nil
}

func (e *Engine) accountByEmail(ctx context.Context, email string) (Account, error) {
	account, err := e.store.AccountByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, infraErr(err)
	}
	return account, nil
}
