// Package otp issues and verifies six-digit one-time codes bound to an email
// address.
//
// A code is stored under <prefix>:<email> with a fixed TTL and handed to a
// [Sender]. Issuing again for the same email supersedes the previous code.
// Verification is single-use and, when MaxAttempts is set, a code is burned
// after that many wrong guesses.
//
// # What this package must NOT do
//
//   - Distinguish "expired" from "never issued" to callers.
//   - Log codes.
package otp
