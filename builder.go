package authcore

import (
	"errors"

	"github.com/mkarlsen/authcore/jwt"
	"github.com/mkarlsen/authcore/password"
	"github.com/mkarlsen/authcore/refresh"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it once during startup; a
// Builder must not be reused after Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  Store
	mailer Mailer
	sink   AuditSink
	clock  Clock

	built bool
}

// New creates a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. Zero-valued sections
// are not backfilled with defaults; start from [DefaultConfig] when
// overriding selectively.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the refresh token store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the account storage implementation.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithMailer sets the ephemeral-token mailer. Optional; without one the
// raw tokens are only returned to the caller.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink sets the audit event destination. Effective only when
// [AuditConfig.Enabled] is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the engine's time source. Intended for tests.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the in-process metrics system.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// DefaultConfig returns the default configuration, suitable as a base
// for selective overrides passed to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

// Build validates the configuration, wires the collaborators, and
// returns a ready [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock

	engine := &Engine{
		config:       cfg,
		store:        b.store,
		mailer:       b.mailer,
		refreshStore: refresh.NewStore(b.redis, cfg.Refresh.RedisPrefix),
		audit:        newAuditDispatcher(cfg.Audit, b.sink),
		metrics:      NewMetrics(cfg.Metrics),
		clock:        clock,
	}

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jwtCfg := jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	}
	if clock != nil {
		jwtCfg.Now = clock
	}
	jm, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
