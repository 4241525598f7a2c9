// Package transport is the JSON/HTTP client for the portal backend.
//
// Each method maps to one backend endpoint and returns either the decoded
// result or an error. Non-2xx answers become [*APIError] carrying the
// server message verbatim; gate errors (session expired, no session) are
// returned unwrapped so callers can match them with errors.Is.
//
// The two login verifiers mark their requests with middleware.WithoutSession;
// every other call requires a session and is marked middleware.RequireSession.
//
// # What this package must NOT do
//
//   - Hold session state or decide login phases.
//   - Retry requests.
//   - Record credentials, codes, tokens or enrollment secrets in spans or logs.
package transport
