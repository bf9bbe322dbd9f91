package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/studyauth/internal"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps transport failures from the session store.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned when a session is absent or past its absolute expiry.
	ErrNotFound = errors.New("session not found")
	// ErrOwnerMismatch is returned when a session belongs to a different user.
	ErrOwnerMismatch = errors.New("session owner mismatch")
)

const (
	touchStatusAbsent  int64 = 0
	touchStatusExpired int64 = 1
	touchStatusTouched int64 = 2
	touchStatusCorrupt int64 = 3

	rotateStatusAbsent  int64 = 0
	rotateStatusRotated int64 = 1
	rotateStatusChanged int64 = 2

	maxRotateAttempts = 3
)

// KEYS[1] session key
// ARGV[1] now (unix ms), ARGV[2] now as 8 big-endian bytes, ARGV[3] idle ttl (ms)
const touchScript = `
local function read_be64(s, i)
  local n = 0
  for k = 0, 7 do
    local b = string.byte(s, i + k)
    if not b then
      return nil
    end
    n = n * 256 + b
  end
  return n
end

local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end

if string.byte(data, 1) ~= 1 then
  return {3}
end

local uid_len = string.byte(data, 2)
if not uid_len then
  return {3}
end

local issued_offset = 3 + uid_len
local last_offset = issued_offset + 8
local exp_offset = last_offset + 8
if #data ~= exp_offset + 11 then
  return {3}
end

local expires_at = read_be64(data, exp_offset)
if not expires_at then
  return {3}
end

local now = tonumber(ARGV[1])
local ttl = tonumber(ARGV[3])
-- remaining == 0 is expired: a session is live on [issued, expires_at).
local remaining = expires_at - now
if remaining < ttl then
  ttl = remaining
end
if ttl < 1 then
  redis.call("DEL", KEYS[1])
  return {1}
end

local updated = string.sub(data, 1, last_offset - 1) .. ARGV[2] .. string.sub(data, last_offset + 8)
redis.call("SET", KEYS[1], updated, "PX", math.floor(ttl))

return {2, updated}
`

var touchLua = redis.NewScript(touchScript)

// KEYS[1] old key, KEYS[2] new key
// ARGV[1] expected old blob, ARGV[2] new blob, ARGV[3] ttl (ms)
const rotateScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if data ~= ARGV[1] then
  return 2
end
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

// Config controls key namespace and lifetimes.
type Config struct {
	Prefix      string
	IdleTTL     time.Duration
	AbsoluteTTL time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
	// Logger receives best-effort failures swallowed by ValidateAndTouch.
	Logger *slog.Logger
}

// Manager is the Redis-backed session state machine.
//
//	Docs: session/doc.go
type Manager struct {
	redis  redis.UniversalClient
	prefix string
	idle   time.Duration
	abs    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewManager builds a Manager on the shared Redis handle.
func NewManager(rdb redis.UniversalClient, cfg Config) (*Manager, error) {
	if rdb == nil {
		return nil, errors.New("session: redis client required")
	}
	if cfg.IdleTTL <= 0 {
		return nil, errors.New("session: idle ttl must be > 0")
	}
	if cfg.AbsoluteTTL <= 0 {
		return nil, errors.New("session: absolute ttl must be > 0")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "sess"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		redis:  rdb,
		prefix: cfg.Prefix,
		idle:   cfg.IdleTTL,
		abs:    cfg.AbsoluteTTL,
		now:    cfg.Now,
		logger: cfg.Logger,
	}, nil
}

// AbsoluteTTL returns the configured absolute lifetime.
func (m *Manager) AbsoluteTTL() time.Duration {
	return m.abs
}

// Key returns the Redis key holding the session for token.
func (m *Manager) Key(token string) string {
	return m.prefix + ":" + internal.HashToken(token)
}

// Issue creates a new session for userID and returns the raw token once.
//
//	Performance: 1 Redis SET.
func (m *Manager) Issue(ctx context.Context, userID string) (Issued, error) {
	token, err := internal.NewToken()
	if err != nil {
		return Issued{}, err
	}

	now := m.now().Truncate(time.Millisecond)
	rec := Record{
		UserID:            userID,
		IssuedAt:          now,
		LastActivityAt:    now,
		AbsoluteExpiresAt: now.Add(m.abs),
	}

	data, err := Encode(&rec)
	if err != nil {
		return Issued{}, err
	}

	if err := m.redis.Set(ctx, m.Key(token), data, m.ttlFor(&rec, now)).Err(); err != nil {
		return Issued{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return Issued{Token: token, Record: rec}, nil
}

// ValidateAndTouch resolves token to its session and slides the idle window.
// The second return is false when there is no usable session. Store errors
// and corrupt records are logged and also reported as false so a flaky store
// degrades to re-authentication.
//
//	Performance: 1 Lua EVALSHA.
func (m *Manager) ValidateAndTouch(ctx context.Context, token string) (*Record, bool) {
	rec, err := m.touch(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.WarnContext(ctx, "session touch failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	return rec, true
}

func (m *Manager) touch(ctx context.Context, token string) (*Record, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	now := m.now().Truncate(time.Millisecond)
	result, err := touchLua.Run(
		ctx,
		m.redis,
		[]string{m.Key(token)},
		now.UnixMilli(),
		encodeMillis(now),
		m.idle.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid touch script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid touch script status", ErrRedisUnavailable)
	}

	switch code {
	case touchStatusAbsent, touchStatusExpired:
		return nil, ErrNotFound
	case touchStatusCorrupt:
		return nil, errCorruptRecord
	case touchStatusTouched:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing touched record", ErrRedisUnavailable)
		}
		return Decode(scriptBytes(parts[1]))
	default:
		return nil, fmt.Errorf("%w: unknown touch script status %d", ErrRedisUnavailable, code)
	}
}

// Lookup reads a session without sliding its idle window. Sessions past
// their absolute expiry are reported as ErrNotFound.
//
//	Performance: 1 Redis GET.
func (m *Manager) Lookup(ctx context.Context, token string) (*Record, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	rec, _, err := m.get(ctx, m.Key(token))
	if err != nil {
		return nil, err
	}
	if rec.Expired(m.now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *Manager) get(ctx context.Context, key string) (*Record, []byte, error) {
	data, err := m.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return rec, data, nil
}

// Revoke deletes the session for token. Revoking an absent session is not an error.
//
//	Performance: 1 Redis DEL.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.redis.Del(ctx, m.Key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate replaces oldToken with a freshly issued token for the same user.
// The new session keeps the original IssuedAt and AbsoluteExpiresAt and
// increments Rotation, so rotation never extends total lifetime.
//
//	Performance: 1 GET + 1 Lua EVALSHA (compare-and-swap), retried on a concurrent touch.
func (m *Manager) Rotate(ctx context.Context, oldToken, userID string) (Issued, error) {
	if oldToken == "" {
		return Issued{}, ErrNotFound
	}
	oldKey := m.Key(oldToken)

	for attempt := 0; attempt < maxRotateAttempts; attempt++ {
		old, oldData, err := m.get(ctx, oldKey)
		if err != nil {
			return Issued{}, err
		}

		now := m.now().Truncate(time.Millisecond)
		if old.Expired(now) {
			_ = m.redis.Del(ctx, oldKey).Err()
			return Issued{}, ErrNotFound
		}
		if old.UserID != userID {
			return Issued{}, ErrOwnerMismatch
		}

		token, err := internal.NewToken()
		if err != nil {
			return Issued{}, err
		}

		next := Record{
			UserID:            old.UserID,
			IssuedAt:          old.IssuedAt,
			LastActivityAt:    now,
			AbsoluteExpiresAt: old.AbsoluteExpiresAt,
			Rotation:          old.Rotation + 1,
		}
		ttl := m.ttlFor(&next, now)
		if ttl <= 0 {
			_ = m.redis.Del(ctx, oldKey).Err()
			return Issued{}, ErrNotFound
		}

		nextData, err := Encode(&next)
		if err != nil {
			return Issued{}, err
		}

		status, err := rotateLua.Run(
			ctx,
			m.redis,
			[]string{oldKey, m.Key(token)},
			oldData,
			nextData,
			ttl.Milliseconds(),
		).Int64()
		if err != nil {
			return Issued{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		switch status {
		case rotateStatusRotated:
			return Issued{Token: token, Record: next}, nil
		case rotateStatusAbsent:
			return Issued{}, ErrNotFound
		case rotateStatusChanged:
			continue
		default:
			return Issued{}, fmt.Errorf("%w: unknown rotate script status %d", ErrRedisUnavailable, status)
		}
	}

	return Issued{}, fmt.Errorf("%w: session changed during rotation", ErrRedisUnavailable)
}

func (m *Manager) ttlFor(rec *Record, now time.Time) time.Duration {
	ttl := m.idle
	if remaining := rec.AbsoluteExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	return ttl.Truncate(time.Millisecond)
}

func scriptBytes(v interface{}) []byte {
	switch b := v.(type) {
	case string:
		return []byte(b)
	case []byte:
		return b
	default:
		return nil
	}
}
