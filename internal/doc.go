// Package internal holds helpers that are private to studyauth, chiefly
// secure random generation and one-way hashing of bearer secrets.
//
// # Sub-packages
//
//   - applog: slog handler setup shared by the daemon
//   - appconfig: file and environment configuration for the daemon
//   - tracing: OTLP span export setup for the daemon
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - otp: one-time code issuance and verification
//   - rate: Redis-backed fixed-window login throttling
//   - stores: Redis record stores for codes and pending registrations
//
// # What this package must NOT do
//
//   - Export types that appear in the public studyauth API.
//   - Be imported by any package outside the studyauth module.
package internal
