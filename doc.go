// Package authcore is a credential and session-lifecycle engine for
// account services: short-lived signed access tokens, rotating opaque
// refresh tokens backed by Redis, and single-use ephemeral tokens for
// email confirmation and password reset.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// Account records live behind the caller-supplied [Store] interface;
// outbound token mail goes through the optional [Mailer] collaborator.
// Refresh tokens are single-use: every Refresh call atomically revokes
// the presented token before a replacement is issued, so a replayed
// token is always observed as revoked.
package authcore
