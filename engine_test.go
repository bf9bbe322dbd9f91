package studyauth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuilderRequiresCollaborators(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithUserStore(newMockUserStore()).WithMailer(&recordingMailer{}).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithMailer(&recordingMailer{}).Build(); err == nil {
		t.Fatal("expected error without user store")
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).WithUserStore(newMockUserStore()).Build(); err == nil {
		t.Fatal("expected error without mailer")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithUserStore(newMockUserStore()).WithMailer(&recordingMailer{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
}

func TestAuditEventsAreEmitted(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	users := newMockUserStore()
	sink := NewChannelSink(16)
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(&recordingMailer{}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	hash, _ := engine.hasher.Hash("password-1")
	users.put(&User{ID: "u1", Email: "a@b.com", PasswordHash: hash})

	ctx := WithUserAgent(WithClientIP(context.Background(), "10.0.0.1"), "test-agent")
	if _, err := engine.Login(ctx, "a@b.com", "password-1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	engine.Close()

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditEventLoginSuccess || ev.UserID != "u1" || ev.IP != "10.0.0.1" || ev.UserAgent != "test-agent" || !ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected audit event")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	cases := map[string]func(*Config){
		"idle above absolute": func(c *Config) { c.Session.IdleTTL = c.Session.AbsoluteTTL + time.Second },
		"pending below otp":   func(c *Config) { c.Registration.PendingTTL = c.OTP.TTL - time.Second },
		"weak memory":         func(c *Config) { c.Password.Memory = 1024 },
		"refresh without key": func(c *Config) { c.Refresh.Enabled = true },
		"bad signing method":  func(c *Config) { c.Refresh.Enabled = true; c.Refresh.PrivateKey = []byte("k"); c.Refresh.SigningMethod = "rs256" },
		"reset shares prefix": func(c *Config) { c.PasswordReset.RedisPrefix = c.OTP.RedisPrefix },
		"audit zero buffer":   func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
		"cooldown missing":    func(c *Config) { c.Security.LoginCooldownDuration = 0 },
		"leeway too large": func(c *Config) {
			c.Refresh.Enabled = true
			c.Refresh.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
			c.Refresh.Leeway = 5 * time.Minute
		},
		"kid missing from verify keys": func(c *Config) {
			c.Refresh.Enabled = true
			c.Refresh.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
			c.Refresh.KeyID = "k2"
			c.Refresh.VerifyKeys = map[string][]byte{"k1": []byte("fedcba9876543210fedcba9876543210")}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if len(nilMetrics.Snapshot().Counters) != 0 {
		t.Fatal("nil metrics snapshot must be empty")
	}
}
