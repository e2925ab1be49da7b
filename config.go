package authcore

import (
	"errors"
	"time"
)

// Config is the process-wide engine configuration. It is read once by
// [Builder.Build] and treated as immutable afterwards.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	Refresh   RefreshConfig
	Ephemeral EphemeralConfig
	Account   AccountConfig
	Security  SecurityConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the access-token signer.
type JWTConfig struct {
	// AccessTTL bounds access-token validity. Default 15 minutes.
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures the refresh-token record store.
type RefreshConfig struct {
	// TTL bounds refresh-token validity. Default 30 days.
	TTL time.Duration
	// RedisPrefix namespaces all refresh-token keys.
	RedisPrefix string
}

/*
====================================
EPHEMERAL TOKEN CONFIG
====================================
*/

// EphemeralConfig sets the lifetimes of the single-use tokens. A new
// token of a kind cannot be issued while the previous one of that kind
// is still unexpired, so these TTLs double as reissue cooldowns.
type EphemeralConfig struct {
	ConfirmationTTL time.Duration // default 1 hour
	ResetTTL        time.Duration // default 30 minutes
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig governs registration and deactivation behavior.
type AccountConfig struct {
	// BootstrapFirstAdmin grants [RoleAdmin] to the first account
	// registered against an empty store.
	BootstrapFirstAdmin bool
	// DeactivationGraceDays is how long a deactivated record must remain
	// readable before the external sweep may purge it. Default 10.
	DeactivationGraceDays int
	// DefaultProvider tags accounts created through Register.
	DefaultProvider string
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds optional precondition gates. These are normally
// enforced by a collaborator in front of the engine; enabling them here
// makes the engine fail closed instead.
type SecurityConfig struct {
	RequireConfirmedEmail bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Refresh: RefreshConfig{
			TTL:         30 * 24 * time.Hour,
			RedisPrefix: "ac",
		},
		Ephemeral: EphemeralConfig{
			ConfirmationTTL: time.Hour,
			ResetTTL:        30 * time.Minute,
		},
		Account: AccountConfig{
			DeactivationGraceDays: 10,
			DefaultProvider:       "password",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// Validate reports the first configuration error, if any.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be positive")
	}
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "ed25519" {
		return errors.New("JWT SigningMethod must be hs256 or ed25519")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey (signing secret) required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway out of range")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be positive")
	}
	if c.Refresh.RedisPrefix == "" {
		return errors.New("Refresh RedisPrefix required")
	}
	if c.Ephemeral.ConfirmationTTL <= 0 || c.Ephemeral.ResetTTL <= 0 {
		return errors.New("Ephemeral TTLs must be positive")
	}
	if c.Account.DeactivationGraceDays < 0 {
		return errors.New("Account DeactivationGraceDays must not be negative")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be positive when audit is enabled")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
