package studyauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/studyauth/internal/audit"
	"github.com/MrEthical07/studyauth/internal/otp"
	"github.com/MrEthical07/studyauth/internal/rate"
	"github.com/MrEthical07/studyauth/internal/stores"
	"github.com/MrEthical07/studyauth/jwt"
	"github.com/MrEthical07/studyauth/password"
	"github.com/MrEthical07/studyauth/session"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxEmailLength = 254

// Engine orchestrates registration, login, sessions and refresh secrets.
//
// Engine holds no mutable state of its own; every auth state transition is a
// single Redis command or script, so one Engine is shared by all requests.
type Engine struct {
	config    Config
	users     UserStore
	sessions  *session.Manager
	otp       *otp.Issuer
	resetOTP  *otp.Issuer
	pending   *stores.PendingRegistrationStore
	limiter   *rate.Limiter
	hasher    *password.Argon2
	jwt       *jwt.Manager
	audit     *audit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newUserID func() string

	// background tracks work detached from a request, such as reset mail.
	background sync.WaitGroup
}

// Close waits for pending deliveries, then stops the audit dispatcher after
// draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.background.Wait()
	if e.audit != nil {
		e.audit.Close()
	}
}

// CloseContext is Close bounded by ctx.
func (e *Engine) CloseContext(ctx context.Context) error {
	if e == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		e.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if e.audit == nil {
		return nil
	}
	return e.audit.CloseContext(ctx)
}

// AuditDropped returns how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SessionTTL returns the absolute session lifetime, used as cookie max-age.
func (e *Engine) SessionTTL() time.Duration {
	return e.config.Session.AbsoluteTTL
}

// RefreshEnabled reports whether refresh secrets and access tokens are configured.
func (e *Engine) RefreshEnabled() bool {
	return e.jwt != nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "studyauth."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, auditErrorCode(err).String())
	}
	span.End()
}

// String returns the code as a plain string.
func (c AuditErrorCode) String() string {
	return string(c)
}

// normalizeEmail trims and lower-cases email and rejects anything that is not
// a bare addr-spec.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if len(pw) < e.config.Password.MinLength || len(pw) > password.MaxPasswordBytes {
		return ErrPasswordPolicy
	}
	return nil
}

func (e *Engine) dummyVerify(pw string) {
	if len(pw) > password.MaxPasswordBytes {
		pw = pw[:password.MaxPasswordBytes]
	}
	e.hasher.DummyVerify(pw)
}

func storeError(err error) error {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserExists) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUserStore, err)
}
