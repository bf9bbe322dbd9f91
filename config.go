package studyauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/studyauth/jwt"
	"github.com/MrEthical07/studyauth/password"
)

// Config holds every tunable of the Engine. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	Session       SessionConfig
	OTP           OTPConfig
	Registration  RegistrationConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	Refresh       RefreshConfig
	Security      SecurityConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session key namespace and lifetimes.
type SessionConfig struct {
	RedisPrefix string
	// IdleTTL is the sliding window refreshed by every validation.
	IdleTTL time.Duration
	// AbsoluteTTL is the hard ceiling measured from first issuance.
	AbsoluteTTL time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls sign-up verification codes.
type OTPConfig struct {
	RedisPrefix string
	TTL         time.Duration
	// MaxAttempts burns the live code after this many wrong guesses. Zero disables.
	MaxAttempts int
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig controls staged sign-ups.
type RegistrationConfig struct {
	RedisPrefix string
	PendingTTL  time.Duration
	// MaxRequests bounds Register calls per email and per IP within Window. Zero disables.
	MaxRequests int
	Window      time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters and the length policy.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls the reset-code flow.
type PasswordResetConfig struct {
	Enabled     bool
	RedisPrefix string
	TTL         time.Duration
	MaxAttempts int
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls the long-lived refresh secret and the access tokens
// minted from it.
type RefreshConfig struct {
	Enabled       bool
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string

	// KeyID is written to the kid header of new tokens. With VerifyKeys set,
	// tokens are verified by kid, so retired keys keep verifying until their
	// tokens expire. VerifyKeys must contain KeyID.
	KeyID      string
	VerifyKeys map[string][]byte

	// Leeway tolerates clock skew on exp and nbf (at most 2m).
	Leeway time.Duration
	// RequireIAT rejects tokens without an iat claim.
	RequireIAT bool
	// MaxFutureIAT rejects tokens issued further ahead than this (default 10m).
	MaxFutureIAT time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls login throttling.
type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Session: SessionConfig{
			RedisPrefix: "sess",
			IdleTTL:     2 * time.Hour,
			AbsoluteTTL: 7 * 24 * time.Hour,
		},
		OTP: OTPConfig{
			RedisPrefix: "otp",
			TTL:         600 * time.Second,
			MaxAttempts: 5,
		},
		Registration: RegistrationConfig{
			RedisPrefix: "reg",
			PendingTTL:  15 * time.Minute,
			MaxRequests: 5,
			Window:      time.Hour,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:     true,
			RedisPrefix: "otp:reset",
			TTL:         600 * time.Second,
			MaxAttempts: 5,
		},
		Refresh: RefreshConfig{
			Enabled:       false,
			AccessTTL:     15 * time.Minute,
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "studyauth",
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			MaxLoginAttempts:      10,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Refresh.PrivateKey = cloneBytes(cfg.Refresh.PrivateKey)
	out.Refresh.PublicKey = cloneBytes(cfg.Refresh.PublicKey)
	out.Refresh.VerifyKeys = cloneKeySet(cfg.Refresh.VerifyKeys)
	return out
}

func cloneKeySet(keys map[string][]byte) map[string][]byte {
	if keys == nil {
		return nil
	}
	out := make(map[string][]byte, len(keys))
	for kid, key := range keys {
		out[kid] = cloneBytes(key)
	}
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

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	if c.Session.IdleTTL <= 0 {
		return errors.New("Session IdleTTL must be > 0")
	}
	if c.Session.AbsoluteTTL <= 0 {
		return errors.New("Session AbsoluteTTL must be > 0")
	}
	if c.Session.IdleTTL > c.Session.AbsoluteTTL {
		return errors.New("Session IdleTTL must be <= AbsoluteTTL")
	}

	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts < 0 {
		return errors.New("OTP MaxAttempts must be >= 0")
	}

	if c.Registration.PendingTTL < c.OTP.TTL {
		return errors.New("Registration PendingTTL must be >= OTP TTL")
	}
	if c.Registration.MaxRequests < 0 {
		return errors.New("Registration MaxRequests must be >= 0")
	}
	if c.Registration.MaxRequests > 0 && c.Registration.Window <= 0 {
		return errors.New("Registration Window must be > 0 when MaxRequests is set")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 || c.Password.MinLength > password.MaxPasswordBytes {
		return errors.New("Password MinLength must be between 1 and MaxPasswordBytes")
	}

	if c.PasswordReset.Enabled {
		if c.PasswordReset.TTL <= 0 {
			return errors.New("PasswordReset TTL must be > 0")
		}
		if c.PasswordReset.MaxAttempts < 0 {
			return errors.New("PasswordReset MaxAttempts must be >= 0")
		}
		if c.PasswordReset.RedisPrefix == "" || c.PasswordReset.RedisPrefix == c.OTP.RedisPrefix {
			return errors.New("PasswordReset RedisPrefix must be set and differ from OTP RedisPrefix")
		}
	}

	if c.Refresh.Enabled {
		if c.Refresh.AccessTTL <= 0 {
			return errors.New("Refresh AccessTTL must be > 0")
		}
		switch jwt.SigningMethod(c.Refresh.SigningMethod) {
		case jwt.MethodHS256:
			if len(c.Refresh.PrivateKey) == 0 {
				return errors.New("hs256 requires PrivateKey")
			}
		case jwt.MethodEd25519:
			if len(c.Refresh.PrivateKey) == 0 {
				return errors.New("ed25519 requires PrivateKey")
			}
			if len(c.Refresh.PublicKey) == 0 && len(c.Refresh.VerifyKeys) == 0 {
				return errors.New("ed25519 requires PublicKey or VerifyKeys")
			}
		default:
			return errors.New("unsupported Refresh signing method")
		}
		if c.Refresh.Leeway < 0 || c.Refresh.Leeway > 2*time.Minute {
			return errors.New("Refresh Leeway must be within [0, 2m]")
		}
		if c.Refresh.MaxFutureIAT < 0 {
			return errors.New("Refresh MaxFutureIAT must be >= 0")
		}
		if len(c.Refresh.VerifyKeys) > 0 {
			if c.Refresh.KeyID == "" {
				return errors.New("Refresh VerifyKeys requires KeyID")
			}
			if _, ok := c.Refresh.VerifyKeys[c.Refresh.KeyID]; !ok {
				return errors.New("Refresh KeyID must be present in VerifyKeys")
			}
		}
	}

	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldownDuration <= 0 {
		return errors.New("LoginCooldownDuration must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
