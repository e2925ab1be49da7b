package authcore

import (
	"context"
	"errors"

	internalaudit "github.com/mkarlsen/authcore/internal/audit"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterFailure       = "register_failure"
	auditEventRegisterDuplicate     = "register_duplicate"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventLogout                = "logout"
	auditEventLogoutAll             = "logout_all"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventPasswordResetFailure  = "password_reset_failure"
	auditEventConfirmationRequest   = "email_confirmation_request"
	auditEventConfirmationConfirm   = "email_confirmation_confirm"
	auditEventConfirmationFailure   = "email_confirmation_failure"
	auditEventAccountDeactivated    = "account_deactivated"
)

// AuditErrorCode is the stable machine-readable failure code carried on
// audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenCooldown      AuditErrorCode = "token_cooldown"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrPasswordMismatch   AuditErrorCode = "password_mismatch"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrAccountDeactivated AuditErrorCode = "account_deactivated"
	auditErrEmailNotConfirmed  AuditErrorCode = "email_not_confirmed"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInfrastructure     AuditErrorCode = "infrastructure"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		TokenID:   tokenID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// emitAuditRotation records a successful rotation, carrying the old
// token ID on the event and the new ID in metadata under "rotated_to".
func (e *Engine) emitAuditRotation(ctx context.Context, accountID, oldID, newID string) {
	e.emitAudit(ctx, auditEventRefreshSuccess, true, accountID, oldID, nil, func() map[string]string {
		return map[string]string{
			"rotated_to": newID,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenCooldown):
		return auditErrTokenCooldown
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrPasswordMismatch):
		return auditErrPasswordMismatch
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountDeactivated):
		return auditErrAccountDeactivated
	case errors.Is(err, ErrEmailNotConfirmed):
		return auditErrEmailNotConfirmed
	case errors.Is(err, ErrDuplicateAccount):
		return auditErrDuplicate
	case errors.Is(err, ErrInfrastructure):
		return auditErrInfrastructure
	default:
		return auditErrInternal
	}
}
