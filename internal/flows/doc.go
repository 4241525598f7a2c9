// Package flows contains the client-side state machines behind every portal
// authentication operation: the two-phase login and the 2FA enrollment and
// disablement dialog.
//
// Each machine accepts a typed dependency struct (backend calls, session
// commit, error constructors, metrics and audit hooks) and owns only its own
// phase. States are sealed tagged unions, so data that exists only in one
// phase (the challenge token, the enrollment material) cannot be observed in
// any other.
//
// # Concurrency
//
// Machines are safe for concurrent use. The internal mutex is released while
// a backend call is in flight; a busy flag rejects re-submission and an epoch
// counter discards responses that arrive after Reset or Cancel.
//
// # What this package must NOT do
//
//   - Import goPortal (host sentinels arrive through the deps structs).
//   - Perform I/O directly; every backend call goes through a dependency.
//   - Keep challenge tokens or enrollment material after the phase that owns them.
package flows
