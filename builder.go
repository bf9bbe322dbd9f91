package studyauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/studyauth/internal/audit"
	"github.com/MrEthical07/studyauth/internal/otp"
	"github.com/MrEthical07/studyauth/internal/rate"
	"github.com/MrEthical07/studyauth/internal/stores"
	"github.com/MrEthical07/studyauth/jwt"
	"github.com/MrEthical07/studyauth/password"
	"github.com/MrEthical07/studyauth/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/studyauth"

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	mailer    Mailer
	auditSink AuditSink
	logger    *slog.Logger
	tracing   trace.TracerProvider

	now   func() time.Time
	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared Redis handle used for sessions, codes, staged
// registrations and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the durable user store.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithMailer sets the verification code transport.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger sets the logger for best-effort failures. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the span provider. Defaults to the otel global.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracing = tp
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	tp := b.tracing
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	// -------- SESSIONS --------
	sessions, err := session.NewManager(b.redis, session.Config{
		Prefix:      cfg.Session.RedisPrefix,
		IdleTTL:     cfg.Session.IdleTTL,
		AbsoluteTTL: cfg.Session.AbsoluteTTL,
		Now:         now,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	// -------- VERIFICATION CODES --------
	issuer, err := otp.NewIssuer(b.redis, b.mailer, otp.Config{
		Prefix:      cfg.OTP.RedisPrefix,
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		users:     b.users,
		sessions:  sessions,
		otp:       issuer,
		pending:   stores.NewPendingRegistrationStore(b.redis, cfg.Registration.RedisPrefix),
		logger:    logger,
		tracer:    tp.Tracer(tracerName),
		now:       now,
		newUserID: uuid.NewString,
	}

	if cfg.PasswordReset.Enabled {
		var sender otp.Sender = b.mailer
		if rm, ok := b.mailer.(PasswordResetMailer); ok {
			sender = otp.SenderFunc(rm.SendPasswordResetEmail)
		}
		engine.resetOTP, err = otp.NewIssuer(b.redis, sender, otp.Config{
			Prefix:      cfg.PasswordReset.RedisPrefix,
			TTL:         cfg.PasswordReset.TTL,
			MaxAttempts: cfg.PasswordReset.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
	}

	engine.limiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:        cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
		MaxRegistrationRequests: cfg.Registration.MaxRequests,
		RegistrationWindow:      cfg.Registration.Window,
	})
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = ph

	if cfg.Refresh.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.Refresh.AccessTTL,
			SigningMethod: jwt.SigningMethod(cfg.Refresh.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Refresh.PrivateKey),
			PublicKey:     cloneBytes(cfg.Refresh.PublicKey),
			Issuer:        cfg.Refresh.Issuer,
			Audience:      cfg.Refresh.Audience,
			KeyID:         cfg.Refresh.KeyID,
			VerifyKeys:    cloneKeySet(cfg.Refresh.VerifyKeys),
			Leeway:        cfg.Refresh.Leeway,
			RequireIAT:    cfg.Refresh.RequireIAT,
			MaxFutureIAT:  cfg.Refresh.MaxFutureIAT,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		engine.jwt = jm
	}

	b.built = true

	return engine, nil
}
