package stores

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingRecordVersionV1 = 1

// PendingRegistration is staged sign-up data awaiting code verification.
type PendingRegistration struct {
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// PendingRegistrationStore stages registrations under <prefix>:<email>.
type PendingRegistrationStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPendingRegistrationStore returns a store rooted at prefix ("reg" when empty).
func NewPendingRegistrationStore(redisClient redis.UniversalClient, prefix string) *PendingRegistrationStore {
	if prefix == "" {
		prefix = "reg"
	}
	return &PendingRegistrationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Key returns the Redis key for email.
func (s *PendingRegistrationStore) Key(email string) string {
	return s.prefix + ":" + email
}

// Put stages record, replacing any earlier registration for the same email.
func (s *PendingRegistrationStore) Put(ctx context.Context, record *PendingRegistration, ttl time.Duration) error {
	encoded, err := encodePendingRegistration(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.Key(record.Email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Take reads and deletes the staged registration in one GETDEL.
func (s *PendingRegistrationStore) Take(ctx context.Context, email string) (*PendingRegistration, bool, error) {
	data, err := s.redis.GetDel(ctx, s.Key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	record, err := decodePendingRegistration(data)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Delete discards a staged registration.
func (s *PendingRegistrationStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Del(ctx, s.Key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// v1 layout: [1]version then u16-length-prefixed email, hash, name, then [8]created_ms.
func encodePendingRegistration(record *PendingRegistration) ([]byte, error) {
	if record == nil || record.Email == "" || record.PasswordHash == "" {
		return nil, errors.New("pending registration requires email and password hash")
	}

	buf := []byte{pendingRecordVersionV1}
	for _, field := range []string{record.Email, record.PasswordHash, record.DisplayName} {
		if len(field) > 0xFFFF {
			return nil, errors.New("pending registration field too long")
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(field)))
		buf = append(buf, field...)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(record.CreatedAt.UnixMilli()))

	return buf, nil
}

func decodePendingRegistration(data []byte) (*PendingRegistration, error) {
	if len(data) == 0 || data[0] != pendingRecordVersionV1 {
		return nil, ErrRecordCorrupt
	}

	rest := data[1:]
	fields := make([]string, 3)
	for i := range fields {
		if len(rest) < 2 {
			return nil, ErrRecordCorrupt
		}
		n := int(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
		if len(rest) < n {
			return nil, ErrRecordCorrupt
		}
		fields[i] = string(rest[:n])
		rest = rest[n:]
	}
	if len(rest) != 8 {
		return nil, ErrRecordCorrupt
	}

	return &PendingRegistration{
		Email:        fields[0],
		PasswordHash: fields[1],
		DisplayName:  fields[2],
		CreatedAt:    time.UnixMilli(int64(binary.BigEndian.Uint64(rest))),
	}, nil
}
