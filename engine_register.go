package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Register creates a password-provider account and logs it in. The
// first account created while [AccountConfig.BootstrapFirstAdmin] is
// enabled receives [RoleAdmin]; everyone else gets [RoleUser].
//
// A confirmation token is issued as part of registration: its raw value
// is handed to the configured [Mailer] and returned in the result. If
// the mailer fails, the account and session tokens are still returned
// together with an error wrapping [ErrInfrastructure]; the caller
// decides whether to surface or retry the delivery.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrEmailInvalid
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{"reason": "password_policy"}
		})
		return nil, errors.Join(ErrPasswordPolicy, err)
	}

	role := RoleUser
	if e.config.Account.BootstrapFirstAdmin {
		count, err := e.store.CountAccounts(ctx)
		if err != nil {
			return nil, infraErr(err)
		}
		if count == 0 {
			role = RoleAdmin
		}
	}

	account, err := e.store.CreateAccount(ctx, CreateAccountInput{
		UID:          uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Provider:     e.config.Account.DefaultProvider,
		Role:         role,
		CreatedAt:    e.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrStoreDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrDuplicateAccount, nil)
			return nil, ErrDuplicateAccount
		}
		e.metricInc(MetricRegisterFailure)
		return nil, infraErr(err)
	}

	raw, err := e.issueEphemeralToken(ctx, &account, KindConfirmation)
	if err != nil {
		// The account exists but has no outstanding confirmation token;
		// the caller can request one later.
		e.metricInc(MetricRegisterFailure)
		return nil, err
	}

	access, refreshToken, err := e.issueSessionTokens(ctx, account)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, account.ID, "", nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})

	result := &RegisterResult{
		Account:           account,
		AccessToken:       access,
		RefreshToken:      refreshToken,
		ConfirmationToken: raw,
	}

	if e.mailer != nil {
		if err := e.mailer.Send(ctx, account, KindConfirmation, raw); err != nil {
			return result, infraErr(err)
		}
	}

	return result, nil
}
