package authcore

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/mkarlsen/authcore/internal/audit"

	"github.com/mkarlsen/authcore/internal"
	"github.com/mkarlsen/authcore/jwt"
	"github.com/mkarlsen/authcore/password"
	"github.com/mkarlsen/authcore/refresh"
)

// Engine is the credential and session-lifecycle engine. Build one
// through [Builder]; it is immutable after construction and safe for
// concurrent use.
type Engine struct {
	config       Config
	store        Store
	mailer       Mailer
	refreshStore *refresh.Store
	jwtManager   *jwt.Manager
	passwordHash *password.Hasher
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	clock        Clock
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters
// and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Authenticate verifies an email/password pair and, on success, issues
// a fresh access/refresh token pair. Unknown email and wrong password
// both report [ErrInvalidCredentials]; a deactivated account reports
// [ErrAccountDeactivated] only after the password verified, so the
// status leaks nothing to guessers.
func (e *Engine) Authenticate(ctx context.Context, email, pass string) (*LoginResult, error) {
	if e == nil || e.store == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	if pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_password"}
		})
		return nil, ErrInvalidCredentials
	}

	account, err := e.store.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "account_not_found"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, infraErr(err)
	}

	if account.PasswordHash == "" {
		// Non-password provider account; it cannot log in this way.
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "no_password_credential", "provider": account.Provider}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(pass, account.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}
	pass = ""

	if account.Deactivated {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrAccountDeactivated, func() map[string]string {
			return map[string]string{"reason": "deactivated"}
		})
		return nil, ErrAccountDeactivated
	}

	if e.config.Security.RequireConfirmedEmail && !account.EmailConfirmed {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, "", ErrEmailNotConfirmed, func() map[string]string {
			return map[string]string{"reason": "email_not_confirmed"}
		})
		return nil, ErrEmailNotConfirmed
	}

	access, refreshToken, err := e.issueSessionTokens(ctx, account)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, "", nil, nil)

	return &LoginResult{
		Account:      account,
		AccessToken:  access,
		RefreshToken: refreshToken,
	}, nil
}

// ValidateAccess verifies an access token's signature and expiry and
// returns the identity snapshot it carries. Purely local; no storage
// round-trip, so revocations since issuance are not visible here.
func (e *Engine) ValidateAccess(token string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	claims, err := e.jwtManager.ParseAccess(token)
	if e.metrics != nil {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return &AuthResult{
		AccountID:      claims.AccountID,
		UID:            claims.UID,
		Name:           claims.Name,
		Role:           Role(claims.Role),
		EmailConfirmed: claims.EmailConfirmed,
		Deactivated:    claims.Deactivated,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

// issueSessionTokens mints an access token and persists a new refresh
// record for the account. The opaque refresh token handed to the caller
// is the record ID's base64url form.
func (e *Engine) issueSessionTokens(ctx context.Context, account Account) (string, string, error) {
	access, err := e.jwtManager.CreateAccess(jwt.AccessClaims{
		AccountID:      account.ID,
		UID:            account.UID,
		Name:           account.Name,
		Role:           string(account.Role),
		EmailConfirmed: account.EmailConfirmed,
		Deactivated:    account.Deactivated,
	})
	if err != nil {
		return "", "", infraErr(err)
	}

	id, err := internal.NewTokenID()
	if err != nil {
		return "", "", infraErr(err)
	}

	now := e.now()
	rec := &refresh.Record{
		ID:        id.String(),
		AccountID: account.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.Refresh.TTL),
		IssuedIP:  clientIPFromContext(ctx),
	}
	if err := e.refreshStore.Save(ctx, rec, now); err != nil {
		return "", "", infraErr(err)
	}

	return access, rec.ID, nil
}

// infraErr tags storage, mailer, and signer failures so callers can
// route them with errors.Is(err, ErrInfrastructure).
func infraErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInfrastructure) {
		return err
	}
	return errors.Join(ErrInfrastructure, err)
}
