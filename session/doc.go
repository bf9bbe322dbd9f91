// Package session issues, validates, touches, rotates and revokes opaque
// session tokens backed by Redis.
//
// # Storage
//
// A raw token is never stored. Each record lives under
// <prefix>:<hex sha256(token)> as a compact versioned binary blob holding the
// owning user, issue time, last activity, absolute expiry and a rotation
// counter. The Redis key TTL is the idle window, capped by what remains of the
// absolute lifetime, so idle eviction is performed by Redis itself. A session
// is live while now < AbsoluteExpiresAt; at the ceiling itself it is expired
// on every path (touch, lookup and rotate).
//
// # State machine
//
//	absent -> active -> touched (self-loop)
//	                 -> expired-absolute (lazy DEL on the next validation)
//	                 -> revoked (explicit DEL)
//
// Touch and rotation each run as a single Lua round trip.
//
// # What this package must NOT do
//
//   - Import studyauth (no upward imports).
//   - Decide who may revoke a session beyond the owner check in Rotate.
//   - Store or log raw tokens.
package session
