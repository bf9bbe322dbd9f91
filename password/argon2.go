package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// MaxPasswordBytes bounds the input fed to Argon2 so a single request cannot
// pin a worker on an arbitrarily long password.
const MaxPasswordBytes = 1024

// ErrPasswordTooLong is returned by Hash when the input exceeds MaxPasswordBytes.
var ErrPasswordTooLong = errors.New("password exceeds maximum length")

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the parameters used when the caller supplies none.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies passwords. It is safe for concurrent use.
type Argon2 struct {
	config Config

	dummyOnce sync.Once
	dummy     phcHash
}

// NewArgon2 validates cfg and returns a hasher using it.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a PHC-encoded Argon2id hash of password with a fresh random salt.
// The password bytes are used exactly as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	return phcHash{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
		key:         a.derive(password, salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength),
	}.String(), nil
}

// Verify reports whether password matches encodedHash. Malformed hashes and
// oversized passwords verify as false; there is no error path.
func (a *Argon2) Verify(encodedHash, password string) bool {
	if len(password) > MaxPasswordBytes {
		a.DummyVerify(password[:MaxPasswordBytes])
		return false
	}

	parsed, err := parsePHC(encodedHash)
	if err != nil {
		a.DummyVerify(password)
		return false
	}

	computed := a.derive(password, parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(computed, parsed.key) == 1
}

// DummyVerify performs one key derivation with the configured cost against a
// fixed throwaway hash. Callers use it on paths where no stored hash exists so
// response latency does not reveal whether an account exists.
func (a *Argon2) DummyVerify(password string) {
	a.dummyOnce.Do(func() {
		salt := make([]byte, a.config.SaltLength)
		_, _ = io.ReadFull(rand.Reader, salt)
		a.dummy = phcHash{
			memory:      a.config.Memory,
			time:        a.config.Time,
			parallelism: a.config.Parallelism,
			salt:        salt,
			key:         make([]byte, a.config.KeyLength),
		}
	})

	computed := a.derive(password, a.dummy.salt, a.dummy.time, a.dummy.memory, a.dummy.parallelism, uint32(len(a.dummy.key)))
	_ = subtle.ConstantTimeCompare(computed, a.dummy.key)
}

// NeedsUpgrade reports whether encodedHash was produced with weaker parameters
// than the current configuration. Unparseable hashes always need an upgrade.
func (a *Argon2) NeedsUpgrade(encodedHash string) bool {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return true
	}

	return a.config.Memory > parsed.memory ||
		a.config.Time > parsed.time ||
		a.config.Parallelism > parsed.parallelism ||
		a.config.KeyLength != uint32(len(parsed.key))
}

func (a *Argon2) derive(password string, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, time, memory, threads, keyLen)
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	return nil
}
