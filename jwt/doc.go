// Package jwt issues and verifies the short-lived access tokens handed out by
// the refresh flow. Sessions themselves are opaque Redis-backed tokens; a JWT
// here is only a bearer credential for downstream APIs that cannot reach Redis.
//
// # Architecture boundaries
//
// The package knows nothing about users, sessions or refresh secrets. It
// signs claims (uid, email, jti) with HS256 or Ed25519 and validates issuer,
// audience, key id and clock skew on parse.
package jwt
