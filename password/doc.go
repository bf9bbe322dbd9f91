// Package password hashes and verifies user passwords with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format with a random salt per call:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash after the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length, reuse) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import studyauth or any sibling package.
//   - Log plaintext passwords.
package password
