package stores

import "errors"

var (
	// ErrRedisUnavailable wraps transport failures from the ephemeral store.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrRecordCorrupt is returned when a stored blob cannot be decoded.
	ErrRecordCorrupt = errors.New("stored record corrupt")
)
