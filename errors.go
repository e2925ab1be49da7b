package authcore

import "errors"

var (
	// ErrDuplicateAccount is returned by Register when the email is
	// already taken.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrInvalidCredentials covers both "no such account" and "wrong
	// password"; the two are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid covers refresh or ephemeral tokens that are not
	// found, revoked, expired, or owned by a different account. The
	// underlying cause is deliberately not distinguishable to callers.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenCooldown is returned when a new ephemeral token is
	// requested while the previous one is still outstanding.
	ErrTokenCooldown = errors.New("previous token still outstanding")
	// ErrPasswordMismatch is returned when the new password and its
	// confirmation differ.
	ErrPasswordMismatch = errors.New("password confirmation mismatch")
	// ErrPasswordReuse is returned when the new password equals the
	// current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrPasswordPolicy is returned when a password fails the hasher's
	// minimum requirements.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrEmailInvalid is returned by Register when the supplied email
	// address is empty or malformed.
	ErrEmailInvalid = errors.New("invalid email address")
	// ErrAccountDeactivated is returned for operations against a
	// soft-deleted account.
	ErrAccountDeactivated = errors.New("account deactivated")
	// ErrEmailNotConfirmed is returned by Authenticate when
	// [SecurityConfig.RequireConfirmedEmail] is enabled and the account
	// has not confirmed its address.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrAccountNotFound is returned when a lookup by id or uid misses.
	// Callers exposing reset/confirmation endpoints should present it
	// identically to success to avoid account enumeration.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInfrastructure wraps storage or mailer failures. The engine
	// surfaces them verbatim and never retries.
	ErrInfrastructure = errors.New("infrastructure failure")
	// ErrEngineNotReady is returned when a required collaborator was not
	// wired before use.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrStoreNotFound is the sentinel [Store] implementations return
	// for missing accounts.
	ErrStoreNotFound = errors.New("store: account not found")
	// ErrStoreDuplicateEmail is the sentinel [Store.CreateAccount]
	// returns on a unique-email violation.
	ErrStoreDuplicateEmail = errors.New("store: duplicate email")
)
