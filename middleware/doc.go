// Package middleware provides the request gate that every authenticated
// portal call passes through.
//
// # Gate
//
// [Gate] is an [net/http.RoundTripper]. It attaches the session bearer token,
// fails fast when a call marked with [RequireSession] has no session, and on
// an expired-session status clears the session exactly once (compare-and-clear
// on the token that was sent) before returning [ErrSessionExpired].
//
// Calls marked with [WithoutSession] (the two login verifiers) bypass the gate.
//
// # Architecture boundaries
//
// The gate reads the token through [TokenSource] and never writes session
// state other than through ClearIfToken. Navigation after expiry belongs to
// the caller, which observes the session store.
//
// # What this package must NOT do
//
//   - Retry requests.
//   - Validate or decode tokens.
//   - Import goPortal (no upward imports).
package middleware
