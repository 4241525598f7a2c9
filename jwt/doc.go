// Package jwt reads portal bearer tokens and, for test and development
// backends, signs them.
//
// [Inspect] decodes claims without verifying the signature. The result is
// display metadata only (subject, expiry, roles) and must never be used to
// decide whether a request is authorized; the backend remains the authority.
//
// [Manager] issues and verifies HS256 or Ed25519 tokens for the fake backend
// used by tests and the development server.
package jwt
