// Package rate provides Redis-backed fixed-window counters for login and
// registration throttling.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on the first hit. Key prefixes:
//   - rl:login:u:  failed logins per email
//   - rl:login:ip: failed logins per client IP
//   - rl:reg:u:    registration requests per email
//   - rl:reg:ip:   registration requests per client IP
//
// # What this package must NOT do
//
//   - Decide which flows are throttled (the Engine does).
//   - Be imported outside the studyauth module.
package rate
