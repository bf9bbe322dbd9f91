package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] code key, KEYS[2] failure counter key
// ARGV[1] expected code
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data or data ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1], KEYS[2])
return 1
`)

// KEYS[1] code key, KEYS[2] failure counter key
// ARGV[1] max attempts
//
// Returns 0 when no live code exists, 1 when the failure was recorded and
// 2 when the code was burned because the limit was reached.
var recordCodeFailureLua = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  return 0
end
local count = redis.call('INCR', KEYS[2])
if count == 1 then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
if count >= tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1], KEYS[2])
  return 2
end
return 1
`)

// OTPCodeStore keeps at most one live code per email under <prefix>:<email>.
type OTPCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewOTPCodeStore returns a store rooted at prefix ("otp" when empty).
func NewOTPCodeStore(redisClient redis.UniversalClient, prefix string) *OTPCodeStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &OTPCodeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Key returns the Redis key holding the code for email.
func (s *OTPCodeStore) Key(email string) string {
	return s.prefix + ":" + email
}

func (s *OTPCodeStore) failureKey(email string) string {
	return s.prefix + "fail:" + email
}

// Put stores code for email, superseding any live code and its failure count.
func (s *OTPCodeStore) Put(ctx context.Context, email, code string, ttl time.Duration) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.Key(email), code, ttl)
		pipe.Del(ctx, s.failureKey(email))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the live code for email. found is false when no code exists.
func (s *OTPCodeStore) Get(ctx context.Context, email string) (code string, found bool, err error) {
	code, err = s.redis.Get(ctx, s.Key(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return code, true, nil
}

// Consume deletes the live code for email if it equals code. The stored value
// is first compared in constant time; the delete is a compare-and-delete so
// two concurrent callers cannot both consume the same code.
func (s *OTPCodeStore) Consume(ctx context.Context, email, code string) (bool, error) {
	stored, found, err := s.Get(ctx, email)
	if err != nil || !found {
		return false, err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return false, nil
	}

	deleted, err := consumeCodeLua.Run(ctx, s.redis, []string{s.Key(email), s.failureKey(email)}, stored).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return deleted == 1, nil
}

// RecordFailure counts a failed verification against the live code. When the
// count reaches maxAttempts the code is deleted and burned is true.
func (s *OTPCodeStore) RecordFailure(ctx context.Context, email string, maxAttempts int) (burned bool, err error) {
	if maxAttempts <= 0 {
		return false, nil
	}
	status, err := recordCodeFailureLua.Run(ctx, s.redis, []string{s.Key(email), s.failureKey(email)}, maxAttempts).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return status == 2, nil
}

// Delete removes the code and its failure count. Deleting nothing is not an error.
func (s *OTPCodeStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.Key(email), s.failureKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
