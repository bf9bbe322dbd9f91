package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strconv"
	"strings"
)

const (
	// TokenSize is the number of random bytes behind every opaque bearer token.
	TokenSize = 32

	otpMin = 100000
	otpMax = 999999
)

var errMalformedSecret = errors.New("malformed secret")

// NewToken returns a base64url (unpadded) encoding of TokenSize random bytes.
func NewToken() (string, error) {
	var raw [TokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the hex sha256 of a bearer token. Only this value is ever
// persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewRefreshSecret returns a fresh refresh secret and its storable hash.
func NewRefreshSecret() (secret string, hash string, err error) {
	secret, err = NewToken()
	if err != nil {
		return "", "", err
	}
	return secret, HashToken(secret), nil
}

// MatchSecretHash compares the hash of secret with storedHash in constant time.
func MatchSecretHash(secret, storedHash string) bool {
	if secret == "" || storedHash == "" {
		return false
	}
	want, err := hex.DecodeString(storedHash)
	if err != nil || len(want) != sha256.Size {
		return false
	}
	got := sha256.Sum256([]byte(secret))
	return subtle.ConstantTimeCompare(got[:], want) == 1
}

// NewOTP returns a uniformly random six-digit code in [100000, 999999].
func NewOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// CanonicalOTP parses a supplied code numerically and returns its canonical
// decimal form. Surrounding whitespace is ignored; anything else non-numeric
// is rejected.
func CanonicalOTP(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || len(trimmed) > 10 {
		return "", errMalformedSecret
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] < '0' || trimmed[i] > '9' {
			return "", errMalformedSecret
		}
	}
	n, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return "", errMalformedSecret
	}
	return strconv.FormatUint(n, 10), nil
}
