package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/mkarlsen/authcore/internal/audit"
)

// Role is the authorization role carried on an [Account]. The engine
// knows exactly two roles; anything finer grained belongs to the
// caller's authorization layer.
type Role string

const (
	// RoleUser is the default role for every account.
	RoleUser Role = "user"
	// RoleAdmin is assigned only to the bootstrap account (first account
	// created while [AccountConfig.BootstrapFirstAdmin] is enabled) or by
	// administrative action outside this engine.
	RoleAdmin Role = "admin"
)

// TokenKind identifies which ephemeral token slot on an [Account] an
// operation targets.
type TokenKind string

const (
	// KindConfirmation is the email-confirmation token slot.
	KindConfirmation TokenKind = "confirmation"
	// KindReset is the password-reset token slot.
	KindReset TokenKind = "reset"
)

// TokenDigest is the stored form of an ephemeral token: a SHA-256
// digest of the raw value plus its expiry. The raw value itself is
// never persisted.
type TokenDigest struct {
	Digest    [32]byte
	ExpiresAt time.Time
}

// Account is the identity record managed through [Store]. PasswordHash
// is empty for accounts created by non-password providers. The
// ConfirmationToken and ResetToken slots are mutated only by the
// engine's ephemeral token issuer; at most one of each is outstanding
// at any time.
type Account struct {
	ID             string
	UID            string
	Name           string
	Email          string
	PasswordHash   string
	Provider       string
	Role           Role
	EmailConfirmed bool
	Deactivated    bool
	DeactivatedAt  *time.Time
	CreatedAt      time.Time

	ConfirmationToken *TokenDigest
	ResetToken        *TokenDigest
}

// CreateAccountInput is the input for [Store.CreateAccount]. The engine
// fills every field; the store assigns the internal ID.
type CreateAccountInput struct {
	UID          string
	Name         string
	Email        string
	PasswordHash string
	Provider     string
	Role         Role
	CreatedAt    time.Time
}

// Store is the interface callers must implement to integrate authcore
// with their account database. Find methods return
// [ErrStoreNotFound] for missing accounts; CreateAccount returns
// [ErrStoreDuplicateEmail] on an email collision.
//
// CountAccounts backs the bootstrap-admin check in Register. It is not
// transactional with CreateAccount, so two racing registrations
// against an empty system can both observe zero; stores that enforce a
// unique first-admin constraint can close that window.
type Store interface {
	AccountByID(ctx context.Context, id string) (Account, error)
	AccountByUID(ctx context.Context, uid string) (Account, error)
	AccountByEmail(ctx context.Context, email string) (Account, error)
	CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error)
	CountAccounts(ctx context.Context) (int64, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	MarkEmailConfirmed(ctx context.Context, id string) error
	MarkDeactivated(ctx context.Context, id string, at time.Time) error
	SetEphemeralDigest(ctx context.Context, id string, kind TokenKind, digest TokenDigest) error
	ClearEphemeralDigest(ctx context.Context, id string, kind TokenKind) error
}

// Mailer delivers a raw ephemeral token to the account's email address.
// The engine never retries a failed send.
type Mailer interface {
	Send(ctx context.Context, account Account, kind TokenKind, rawToken string) error
}

// Clock supplies the current time. Injectable for tests via
// [Builder.WithClock]; defaults to [time.Now].
type Clock func() time.Time

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

// RegisterResult is returned by [Engine.Register]. ConfirmationToken is
// the raw single-use confirmation value, also handed to the configured
// [Mailer]; it is never recoverable afterwards.
type RegisterResult struct {
	Account           Account
	AccessToken       string
	RefreshToken      string
	ConfirmationToken string
}

// LoginResult is returned by [Engine.Authenticate].
type LoginResult struct {
	Account      Account
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by [Engine.ValidateAccess]: the verified
// identity snapshot embedded in an access token.
type AuthResult struct {
	AccountID      string
	UID            string
	Name           string
	Role           Role
	EmailConfirmed bool
	Deactivated    bool
	ExpiresAt      time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to
// an [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
