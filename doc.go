// Package studyauth is the credential and session lifecycle engine: code-gated
// password registration, password and external-provider login, opaque
// Redis-backed sessions with sliding and absolute expiry, session rotation,
// logout, and a rotating long-lived refresh secret.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// studyauth is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] and [Mailer] collaborator interfaces and value types.
// Session encoding lives in session/, password hashing in password/, and
// codes, staged registrations, throttling and audit dispatch under internal/.
//
// # What this package must NOT do
//
//   - Persist or log a raw session token, refresh secret or password. Only
//     hashes reach Redis and the user store.
//   - Hold auth state in process memory. Every state unit is one Redis key.
//   - Import a sub-package that re-imports studyauth.
//
// # Performance contract
//
// Authenticate is the hot path: one Lua round trip, no user-store access.
// Login and registration are dominated by one Argon2id derivation.
package studyauth
