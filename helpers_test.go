package studyauth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockUserStore struct {
	mu        sync.Mutex
	users     map[string]*User
	createErr error
	updateErr error
	findErr   error
	creates   int
	updates   int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: map[string]*User{}}
}

func (m *mockUserStore) put(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

func (m *mockUserStore) get(id string) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (m *mockUserStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockUserStore) FindUserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserStore) FindUserByProvider(_ context.Context, provider, providerUserID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderUserID == providerUserID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockUserStore) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	for _, u := range m.users {
		if u.Email == user.Email || u.ID == user.ID {
			return ErrUserExists
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserStore) UpdateUser(_ context.Context, id string, update UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.DisplayName != nil {
		u.DisplayName = *update.DisplayName
	}
	if update.AvatarURL != nil {
		u.AvatarURL = *update.AvatarURL
	}
	if update.Provider != nil {
		u.Provider = *update.Provider
	}
	if update.ProviderUserID != nil {
		u.ProviderUserID = *update.ProviderUserID
	}
	if update.RefreshSecretHash != nil {
		u.RefreshSecretHash = *update.RefreshSecretHash
	}
	cp := *u
	return &cp, nil
}

type sentCode struct {
	email string
	code  string
	reset bool
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
	// gate, when set, holds reset deliveries until it is closed.
	gate chan struct{}
}

func (m *recordingMailer) SendVerificationEmail(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{email: email, code: code})
	return nil
}

func (m *recordingMailer) SendPasswordResetEmail(ctx context.Context, email, code string) error {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{email: email, code: code, reset: true})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentCode {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no code was sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// advance moves both the engine clock and miniredis key expiry.
func (c *testClock) advance(mr *miniredis.Miniredis, d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	mr.FastForward(d)
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	users  *mockUserStore
	mailer *recordingMailer
	clock  *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.IdleTTL = 30 * time.Minute
	cfg.Session.AbsoluteTTL = 2 * time.Hour
	cfg.Security.MaxLoginAttempts = 3
	cfg.Security.LoginCooldownDuration = time.Minute
	cfg.Security.EnableIPThrottle = false
	cfg.Refresh.Enabled = true
	cfg.Refresh.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		mr:     mr,
		rdb:    rdb,
		users:  newMockUserStore(),
		mailer: &recordingMailer{},
		clock:  &testClock{now: time.UnixMilli(1_772_000_000_000)},
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(env.users).
		WithMailer(env.mailer)
	b.now = env.clock.Now

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	var seq int
	engine.newUserID = func() string {
		seq++
		return "user-" + strconv.Itoa(seq)
	}
	env.engine = engine

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

// seedPasswordUser stores a verified password account directly.
func (env *testEnv) seedPasswordUser(t *testing.T, id, email, pw string) *User {
	t.Helper()
	hash, err := env.engine.hasher.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &User{ID: id, Email: email, PasswordHash: hash, DisplayName: "Seed", CreatedAt: env.clock.Now()}
	env.users.put(u)
	return u
}

// registerAndVerify runs the full code-gated sign-up.
func (env *testEnv) registerAndVerify(t *testing.T, email, pw string) *AuthResult {
	t.Helper()
	ctx := context.Background()
	if err := env.engine.Register(ctx, RegisterRequest{Email: email, Password: pw, DisplayName: "New"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := env.engine.VerifyRegistration(ctx, email, env.mailer.last(t).code)
	if err != nil {
		t.Fatalf("VerifyRegistration: %v", err)
	}
	return res
}

var errBackend = errors.New("backend down")
