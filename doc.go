// Package goPortal is the client core of the lending portal: two-phase login
// with an optional TOTP second factor, a session store that gates every
// backend call, and the 2FA enable and disable dialogs.
//
// A [Client] is assembled with [Builder] and is safe for concurrent use.
// Interactive flows ([LoginFlow], [TwoFactorFlow]) are state machines whose
// states are sealed types; secrets such as the login challenge and the
// enrollment material are only reachable from the states that own them.
//
// # Architecture boundaries
//
// goPortal is the public surface. The state machines live in internal/flows,
// the session store in session, the request gate in middleware and the wire
// protocol in transport.
//
// # What this package must NOT do
//
//   - Log or audit passwords, TOTP codes, bearer tokens or enrollment material.
//   - Flip the cached 2FA status before the backend confirmed the change.
//   - Retry backend calls automatically.
package goPortal
