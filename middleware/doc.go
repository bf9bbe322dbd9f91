// Package middleware adapts studyauth.Engine to net/http.
//
// # Guards
//
//   - [RequireSession] resolves the opaque session token from the `sid`
//     cookie or a Bearer header and slides its idle window.
//   - [RequireAccessToken] verifies a short-lived access JWT issued by
//     the refresh flow. No Redis call.
//   - [ClientInfo] records the caller's IP and User-Agent for audit events.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// decide anything itself: every accept/reject comes from the Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
//   - Write response bodies beyond a bare 401.
package middleware
