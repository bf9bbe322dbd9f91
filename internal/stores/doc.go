// Package stores provides Redis-backed, short-lived record stores for the
// registration flow: pending registrations and one-time codes.
//
// # Design
//
// Each store owns one key namespace. Records carry a TTL and are single-use:
// a pending registration is read and deleted in one GETDEL, and a one-time
// code is deleted by a compare-and-delete script so only one verifier can
// consume it. Lookups return explicit (value, found, err) results; a missing
// key is never an error.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT generate codes, send mail,
// or decide whether a flow may proceed.
//
// # What this package must NOT do
//
//   - Import studyauth or any sibling internal package except internal itself.
//   - Log codes or password hashes.
package stores
