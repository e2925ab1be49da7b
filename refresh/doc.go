// Package refresh implements the Redis-backed store for rotating refresh
// tokens.
//
// # Record layout
//
// Each token is a Redis hash keyed by its random ID, with the account ID,
// issue and expiry timestamps, the revocation flag, and client IPs as
// fields. A per-account set indexes all token IDs ever issued to an
// account so that bulk revocation can enumerate them. Hash keys expire at
// the token's natural expiry, so expired tokens vanish on their own and
// revoked records stay readable until then.
//
// # Rotation contract
//
// Revoke is a Lua compare-and-set: it flips revoked from false to true
// only when the record exists, is unexpired, and is not already revoked.
// Exactly one concurrent caller observes the successful transition; all
// others see the already-revoked or missing state. The Engine builds
// token rotation on top of this primitive.
//
// # What this package must NOT do
//
//   - Mint or parse access tokens.
//   - Touch account records or credentials.
//   - Decide rotation policy; it only exposes the atomic transition.
package refresh
